package repository

import (
	"context"

	"marketchat/internal/domain/persona"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

// PostgresMembershipRepository keeps the room index in the chat_rooms
// uuid[] column of profiles (individuals) and shops (shops).
type PostgresMembershipRepository struct {
	db DBTX
}

func NewMembershipRepository(db DBTX) MembershipRepository {
	return &PostgresMembershipRepository{db: db}
}

func membershipTable(kind persona.Kind) (string, error) {
	switch kind {
	case persona.KindIndividual:
		return "profiles", nil
	case persona.KindShop:
		return "shops", nil
	}
	return "", marketchat_errors.ErrInvalidInput
}

func (r *PostgresMembershipRepository) Rooms(ctx context.Context, ref persona.Ref) ([]uuid.UUID, error) {
	table, err := membershipTable(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT unnest(chat_rooms) FROM `+table+` WHERE id = $1`, ref.ID)
	if err != nil {
		return nil, translate("list memberships", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, translate("scan membership", err)
		}
		ids = append(ids, id)
	}
	return ids, translate("list memberships", rows.Err())
}

func (r *PostgresMembershipRepository) Append(ctx context.Context, ref persona.Ref, roomID uuid.UUID) error {
	table, err := membershipTable(ref.Kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE `+table+`
		SET chat_rooms = array_append(chat_rooms, $2::uuid), updated_at = now()
		WHERE id = $1 AND NOT ($2::uuid = ANY(chat_rooms))`, ref.ID, roomID)
	if err != nil {
		return translate("append membership", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Nothing changed: either already present or the persona row is missing.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, ref.ID).Scan(&exists); err != nil {
		return translate("append membership", err)
	}
	if !exists {
		return marketchat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMembershipRepository) Contains(ctx context.Context, ref persona.Ref, roomID uuid.UUID) (bool, error) {
	table, err := membershipTable(ref.Kind)
	if err != nil {
		return false, err
	}
	var found bool
	err = r.db.QueryRowContext(ctx, `SELECT $2::uuid = ANY(chat_rooms) FROM `+table+` WHERE id = $1`, ref.ID, roomID).Scan(&found)
	if err != nil {
		return false, translate("verify membership", err)
	}
	return found, nil
}
