package services

import (
	"context"
	"errors"
	"time"

	"marketchat/internal/domain/persona"
	"marketchat/internal/identity"
	"marketchat/internal/repository"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

type PersonaService struct {
	repo repository.PersonaRepository
	log  *logger.Logger
	now  func() time.Time
}

func NewPersonaService(repo repository.PersonaRepository, l *logger.Logger) *PersonaService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &PersonaService{repo: repo, log: l, now: time.Now}
}

// Resolve lists every persona the identity may act as: its individual
// persona first, then one per owned shop. A missing profile is created from
// the identity claims. Store failures degrade the result instead of failing.
func (s *PersonaService) Resolve(ctx context.Context, id identity.Identity) (persona.Set, error) {
	if id.UID == "" {
		return persona.Set{}, marketchat_errors.ErrUnauthorized
	}
	degraded := false

	var individual persona.Persona
	profile, err := s.repo.GetProfileByAuthUID(ctx, id.UID)
	switch {
	case err == nil:
		individual = profile.Persona()
	case errors.Is(err, marketchat_errors.ErrNotFound):
		individual, degraded = s.createProfile(ctx, id)
	default:
		s.log.Ctx(ctx).Sugar().Warnf("profile lookup failed, using identity claims: %v", err)
		individual = claimsPersona(id)
		degraded = true
	}

	set := persona.Set{Personas: []persona.Persona{individual}}
	shops, err := s.repo.ListShopsByOwner(ctx, id.UID)
	if err != nil {
		s.log.Ctx(ctx).Sugar().Warnf("shop enumeration failed, individual persona only: %v", err)
		degraded = true
	}
	for _, shop := range shops {
		set.Personas = append(set.Personas, shop.Persona())
	}
	set.Active = set.Personas[0]
	set.Degraded = degraded
	return set, nil
}

func (s *PersonaService) createProfile(ctx context.Context, id identity.Identity) (persona.Persona, bool) {
	now := s.now().UTC()
	profile := persona.Profile{
		ID:          persona.ProfileIDFor(id.UID),
		AuthUID:     id.UID,
		DisplayName: id.Name(),
		AvatarURL:   id.PhotoURL,
		Email:       id.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.CreateProfile(ctx, profile)
	switch {
	case err == nil:
		return profile.Persona(), false
	case errors.Is(err, marketchat_errors.ErrAlreadyExists):
		// Created concurrently by another request.
		if existing, getErr := s.repo.GetProfileByAuthUID(ctx, id.UID); getErr == nil {
			return existing.Persona(), false
		}
	}
	s.log.Ctx(ctx).Sugar().Warnf("profile creation failed, using identity claims: %v", err)
	return claimsPersona(id), true
}

func claimsPersona(id identity.Identity) persona.Persona {
	profileID := persona.ProfileIDFor(id.UID)
	return persona.Profile{
		ID:          profileID,
		AuthUID:     id.UID,
		DisplayName: id.Name(),
		AvatarURL:   id.PhotoURL,
	}.Persona()
}

// Authorize returns the persona if the identity may act as it.
func (s *PersonaService) Authorize(ctx context.Context, id identity.Identity, personaID uuid.UUID) (persona.Persona, error) {
	set, err := s.Resolve(ctx, id)
	if err != nil {
		return persona.Persona{}, err
	}
	p, ok := set.Find(personaID)
	if !ok {
		return persona.Persona{}, marketchat_errors.ErrForbidden
	}
	return p, nil
}

// Lookup re-fetches any persona by id.
func (s *PersonaService) Lookup(ctx context.Context, personaID uuid.UUID) (persona.Persona, error) {
	return s.repo.GetPersona(ctx, personaID)
}
