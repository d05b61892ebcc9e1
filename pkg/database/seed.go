package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketchat/internal/domain/persona"

	"github.com/google/uuid"
)

// SeedResult lists what SeedDevelopment created or found.
type SeedResult struct {
	Profiles []persona.Profile
	Shops    []persona.Shop
}

// SeedDevelopment creates a student and a vendor who owns two shops. Running
// it again leaves existing rows alone.
func SeedDevelopment(ctx context.Context, db *sql.DB) (*SeedResult, error) {
	now := time.Now().UTC()
	student := persona.Profile{
		ID:          persona.ProfileIDFor("dev-student"),
		AuthUID:     "dev-student",
		DisplayName: "Dev Student",
		Email:       "student@campus.test",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	vendor := persona.Profile{
		ID:          persona.ProfileIDFor("dev-vendor"),
		AuthUID:     "dev-vendor",
		DisplayName: "Dev Vendor",
		Email:       "vendor@campus.test",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	shops := []persona.Shop{
		{ID: uuid.NewSHA1(vendor.ID, []byte("books")), OwnerUID: vendor.AuthUID, OwnerProfileID: vendor.ID, Name: "Campus Books", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewSHA1(vendor.ID, []byte("bikes")), OwnerUID: vendor.AuthUID, OwnerProfileID: vendor.ID, Name: "Quad Bikes", CreatedAt: now.Add(time.Second), UpdatedAt: now},
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range []persona.Profile{student, vendor} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (id, auth_uid, display_name, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (auth_uid) DO NOTHING`,
			p.ID, p.AuthUID, p.DisplayName, p.Email, p.CreatedAt, p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("seed profile %s: %w", p.AuthUID, err)
		}
	}
	for _, s := range shops {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shops (id, owner_uid, owner_profile_id, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			s.ID, s.OwnerUID, s.OwnerProfileID, s.Name, s.CreatedAt, s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("seed shop %s: %w", s.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &SeedResult{Profiles: []persona.Profile{student, vendor}, Shops: shops}, nil
}
