package services

import (
	"context"
	"errors"
	"testing"

	"marketchat/internal/domain/persona"
	"marketchat/internal/identity"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrdersIndividualFirst(t *testing.T) {
	f := newFixture(t)
	svc := NewPersonaService(f.store.Personas, logger.Nop())

	set, err := svc.Resolve(context.Background(), identity.Identity{UID: "vendor-uid"})
	require.NoError(t, err)
	require.Len(t, set.Personas, 2)
	assert.Equal(t, f.vendor.ID, set.Personas[0].ID)
	assert.Equal(t, persona.KindIndividual, set.Personas[0].Kind)
	assert.Equal(t, f.shop.ID, set.Personas[1].ID)
	assert.Equal(t, persona.KindShop, set.Personas[1].Kind)
	assert.Equal(t, f.vendor.ID, set.Active.ID)
	assert.False(t, set.Degraded)
}

func TestResolveCreatesMissingProfile(t *testing.T) {
	f := newFixture(t)
	svc := NewPersonaService(f.store.Personas, logger.Nop())
	ctx := context.Background()
	id := identity.Identity{UID: "new-uid", Email: "lin@campus.edu"}

	set, err := svc.Resolve(ctx, id)
	require.NoError(t, err)
	require.Len(t, set.Personas, 1)
	assert.Equal(t, persona.ProfileIDFor("new-uid"), set.Active.ID)
	assert.Equal(t, "lin", set.Active.DisplayName)
	assert.False(t, set.Degraded)

	profile, err := f.store.Personas.GetProfileByAuthUID(ctx, "new-uid")
	require.NoError(t, err)
	assert.Equal(t, set.Active.ID, profile.ID)

	again, err := svc.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, set.Active.ID, again.Active.ID)
}

func TestResolveDegradesOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewPersonaService(f.store.Personas, logger.Nop())
	ctx := context.Background()

	f.mem.FailProfiles(errors.New("connection reset"))
	set, err := svc.Resolve(ctx, identity.Identity{UID: "vendor-uid", DisplayName: "Grace H"})
	require.NoError(t, err)
	assert.True(t, set.Degraded)
	assert.Equal(t, persona.ProfileIDFor("vendor-uid"), set.Personas[0].ID)
	assert.Equal(t, "Grace H", set.Personas[0].DisplayName)
	assert.Len(t, set.Personas, 2)
	f.mem.FailProfiles(nil)

	f.mem.FailShops(errors.New("timeout"))
	set, err = svc.Resolve(ctx, identity.Identity{UID: "vendor-uid"})
	require.NoError(t, err)
	assert.True(t, set.Degraded)
	require.Len(t, set.Personas, 1)
	assert.Equal(t, f.vendor.ID, set.Active.ID)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	svc := NewPersonaService(f.store.Personas, logger.Nop())
	ctx := context.Background()

	p, err := svc.Authorize(ctx, identity.Identity{UID: "vendor-uid"}, f.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "Campus Books", p.DisplayName)

	_, err = svc.Authorize(ctx, identity.Identity{UID: "student-uid"}, f.shop.ID)
	assert.ErrorIs(t, err, marketchat_errors.ErrForbidden)

	_, err = svc.Resolve(ctx, identity.Identity{})
	assert.ErrorIs(t, err, marketchat_errors.ErrUnauthorized)

	_, err = svc.Lookup(ctx, uuid.New())
	assert.ErrorIs(t, err, marketchat_errors.ErrNotFound)
}
