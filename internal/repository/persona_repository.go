package repository

import (
	"context"
	"database/sql"
	"errors"

	"marketchat/internal/domain/persona"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type PostgresPersonaRepository struct {
	db DBTX
}

func NewPersonaRepository(db DBTX) PersonaRepository {
	return &PostgresPersonaRepository{db: db}
}

func (r *PostgresPersonaRepository) GetProfileByAuthUID(ctx context.Context, authUID string) (persona.Profile, error) {
	var p persona.Profile
	var avatar, email sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, auth_uid, display_name, avatar_url, email, created_at, updated_at
		FROM profiles WHERE auth_uid = $1`, authUID).
		Scan(&p.ID, &p.AuthUID, &p.DisplayName, &avatar, &email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return persona.Profile{}, translate("get profile", err)
	}
	p.AvatarURL = avatar.String
	p.Email = email.String
	if err := p.Validate(); err != nil {
		return persona.Profile{}, err
	}
	return p, nil
}

func (r *PostgresPersonaRepository) CreateProfile(ctx context.Context, p persona.Profile) error {
	if err := p.Validate(); err != nil {
		return marketchat_errors.ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, auth_uid, display_name, avatar_url, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.AuthUID, p.DisplayName, nullString(p.AvatarURL), nullString(p.Email), p.CreatedAt, p.UpdatedAt,
	)
	return translate("create profile", err)
}

func (r *PostgresPersonaRepository) ListShopsByOwner(ctx context.Context, ownerUID string) ([]persona.Shop, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_uid, owner_profile_id, name, logo_url, created_at, updated_at
		FROM shops WHERE owner_uid = $1
		ORDER BY created_at ASC, id ASC`, ownerUID)
	if err != nil {
		return nil, translate("list shops", err)
	}
	defer rows.Close()

	var shops []persona.Shop
	for rows.Next() {
		var s persona.Shop
		var logo sql.NullString
		if err := rows.Scan(&s.ID, &s.OwnerUID, &s.OwnerProfileID, &s.Name, &logo, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, translate("scan shop", err)
		}
		s.LogoURL = logo.String
		if err := s.Validate(); err != nil {
			continue
		}
		shops = append(shops, s)
	}
	return shops, translate("list shops", rows.Err())
}

func (r *PostgresPersonaRepository) GetPersona(ctx context.Context, id uuid.UUID) (persona.Persona, error) {
	var p persona.Profile
	var avatar sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, auth_uid, display_name, avatar_url FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.AuthUID, &p.DisplayName, &avatar)
	if err == nil {
		p.AvatarURL = avatar.String
		return p.Persona(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return persona.Persona{}, translate("get persona", err)
	}

	var s persona.Shop
	var logo sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT id, owner_uid, owner_profile_id, name, logo_url FROM shops WHERE id = $1`, id).
		Scan(&s.ID, &s.OwnerUID, &s.OwnerProfileID, &s.Name, &logo)
	if err != nil {
		return persona.Persona{}, translate("get persona", err)
	}
	s.LogoURL = logo.String
	return s.Persona(), nil
}

func (r *PostgresPersonaRepository) Kinds(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]persona.Kind, error) {
	kinds := make(map[uuid.UUID]persona.Kind, len(ids))
	if len(ids) == 0 {
		return kinds, nil
	}
	in := buildPlaceholders(1, len(ids))
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, 'individual' FROM profiles WHERE id IN (`+in+`)
		UNION ALL
		SELECT id, 'shop' FROM shops WHERE id IN (`+in+`)`, uuidArgs(ids)...)
	if err != nil {
		return nil, translate("resolve kinds", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, translate("scan kind", err)
		}
		kinds[id] = persona.Kind(kind)
	}
	return kinds, translate("resolve kinds", rows.Err())
}
