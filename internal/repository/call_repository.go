package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marketchat/internal/domain/call"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type PostgresCallRepository struct {
	db DBTX
}

func NewCallRepository(db DBTX) CallRepository {
	return &PostgresCallRepository{db: db}
}

const callColumns = `id, room_id, caller_id, receiver_id, call_type, status, end_reason,
	created_at, updated_at, connected_at, ended_at`

func scanCall(s rowScanner) (call.Signal, error) {
	var c call.Signal
	var callType, status string
	var reason sql.NullString
	var connectedAt, endedAt sql.NullTime
	if err := s.Scan(&c.ID, &c.RoomID, &c.CallerID, &c.ReceiverID, &callType, &status, &reason,
		&c.CreatedAt, &c.UpdatedAt, &connectedAt, &endedAt); err != nil {
		return call.Signal{}, err
	}
	c.CallType = call.Type(callType)
	c.Status = call.Status(status)
	c.EndReason = reason.String
	c.ConnectedAt = timePtr(connectedAt)
	c.EndedAt = timePtr(endedAt)
	return c, nil
}

func (r *PostgresCallRepository) Create(ctx context.Context, c call.Signal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_signals (id, room_id, caller_id, receiver_id, call_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.RoomID, c.CallerID, c.ReceiverID, string(c.CallType), string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	return translate("create call", err)
}

func (r *PostgresCallRepository) GetByID(ctx context.Context, id uuid.UUID) (call.Signal, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM call_signals WHERE id = $1`, id))
	if err != nil {
		return call.Signal{}, translate("get call", err)
	}
	return c, nil
}

func (r *PostgresCallRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to call.Status, reason string, at time.Time) (call.Signal, error) {
	if !call.CanTransition(from, to) {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	var connectedAt, endedAt sql.NullTime
	switch to {
	case call.StatusConnected:
		connectedAt = sql.NullTime{Time: at, Valid: true}
	case call.StatusEnded:
		endedAt = sql.NullTime{Time: at, Valid: true}
	}
	c, err := scanCall(r.db.QueryRowContext(ctx, `
		UPDATE call_signals
		SET status = $3, updated_at = $4,
			connected_at = COALESCE($5, connected_at),
			ended_at = COALESCE($6, ended_at),
			end_reason = COALESCE($7, end_reason)
		WHERE id = $1 AND status = $2
		RETURNING `+callColumns, id, string(from), string(to), at, connectedAt, endedAt, nullString(reason)))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return call.Signal{}, getErr
		}
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	if err != nil {
		return call.Signal{}, translate("update call", err)
	}
	return c, nil
}

func (r *PostgresCallRepository) ActiveForRoom(ctx context.Context, roomID uuid.UUID) (call.Signal, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `
		SELECT `+callColumns+` FROM call_signals
		WHERE room_id = $1 AND status IN ('ringing', 'connected')
		ORDER BY created_at DESC LIMIT 1`, roomID))
	if err != nil {
		return call.Signal{}, translate("active call", err)
	}
	return c, nil
}
