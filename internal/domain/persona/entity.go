package persona

import (
	"strings"
	"time"

	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type Kind string

const (
	KindIndividual Kind = "individual"
	KindShop       Kind = "shop"
)

func (k Kind) Valid() bool {
	return k == KindIndividual || k == KindShop
}

// Persona is a chat-capable identity. An individual persona's ID is the
// profile row id, a shop persona's ID is the shop row id.
type Persona struct {
	ID                uuid.UUID `json:"id"`
	Kind              Kind      `json:"kind"`
	DisplayName       string    `json:"display_name"`
	AvatarURL         string    `json:"avatar_url,omitempty"`
	BackingIdentityID uuid.UUID `json:"backing_identity_id"`
}

// Ref names a persona and the table its membership index lives in.
type Ref struct {
	ID   uuid.UUID
	Kind Kind
}

func (p Persona) Ref() Ref {
	return Ref{ID: p.ID, Kind: p.Kind}
}

// Set is the result of resolving an identity's personas.
type Set struct {
	Personas []Persona `json:"personas"`
	Active   Persona   `json:"active"`
	Degraded bool      `json:"degraded"`
}

// Find returns the persona with the given id.
func (s Set) Find(id uuid.UUID) (Persona, bool) {
	for _, p := range s.Personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// Profile represents the profiles table
type Profile struct {
	ID          uuid.UUID
	AuthUID     string
	DisplayName string
	AvatarURL   string
	Email       string
	ChatRooms   []uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Shop represents the shops table
type Shop struct {
	ID             uuid.UUID
	OwnerUID       string
	OwnerProfileID uuid.UUID
	Name           string
	LogoURL        string
	ChatRooms      []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Profile) Validate() error {
	if p.ID == uuid.Nil || strings.TrimSpace(p.AuthUID) == "" {
		return marketchat_errors.ErrInvalidRow
	}
	return nil
}

func (s Shop) Validate() error {
	if s.ID == uuid.Nil || s.OwnerProfileID == uuid.Nil {
		return marketchat_errors.ErrInvalidRow
	}
	return nil
}

func (p Profile) Persona() Persona {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = "Student"
	}
	return Persona{
		ID:                p.ID,
		Kind:              KindIndividual,
		DisplayName:       name,
		AvatarURL:         p.AvatarURL,
		BackingIdentityID: p.ID,
	}
}

func (s Shop) Persona() Persona {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "Shop"
	}
	return Persona{
		ID:                s.ID,
		Kind:              KindShop,
		DisplayName:       name,
		AvatarURL:         s.LogoURL,
		BackingIdentityID: s.OwnerProfileID,
	}
}

var profileNamespace = uuid.MustParse("6f1c2a4e-2b55-4c1d-9a77-3f0f6f1b8e21")

// ProfileIDFor derives the profile id for an auth uid. New profiles are
// created with this id, and it doubles as the persona id when the profile
// store cannot be reached.
func ProfileIDFor(authUID string) uuid.UUID {
	return uuid.NewSHA1(profileNamespace, []byte(authUID))
}
