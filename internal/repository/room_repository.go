package repository

import (
	"context"
	"database/sql"
	"time"

	"marketchat/internal/domain/room"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type PostgresRoomRepository struct {
	db DBTX
}

func NewRoomRepository(db DBTX) RoomRepository {
	return &PostgresRoomRepository{db: db}
}

const roomColumns = `id, p_a, p_b, name_a, avatar_a, name_b, avatar_b, chat_type,
	last_message, last_message_at, last_sender_id, unread_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(s rowScanner) (room.Room, error) {
	var r room.Room
	var avatarA, avatarB, lastMessage sql.NullString
	var lastAt sql.NullTime
	var chatType string
	err := s.Scan(&r.ID, &r.ParticipantA, &r.ParticipantB, &r.NameA, &avatarA, &r.NameB, &avatarB, &chatType,
		&lastMessage, &lastAt, &r.LastSenderID, &r.UnreadCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return room.Room{}, err
	}
	r.AvatarA = avatarA.String
	r.AvatarB = avatarB.String
	r.ChatType = room.ChatType(chatType)
	r.LastMessage = lastMessage.String
	r.LastMessageAt = timePtr(lastAt)
	return r, r.Validate()
}

func (r *PostgresRoomRepository) Create(ctx context.Context, rm room.Room) error {
	if err := rm.Validate(); err != nil {
		return marketchat_errors.ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, p_a, p_b, name_a, avatar_a, name_b, avatar_b, chat_type, unread_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)`,
		rm.ID, rm.ParticipantA, rm.ParticipantB, rm.NameA, nullString(rm.AvatarA), rm.NameB, nullString(rm.AvatarB),
		string(rm.ChatType), rm.CreatedAt, rm.UpdatedAt,
	)
	return translate("create room", err)
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (room.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, id))
	if err != nil {
		return room.Room{}, translate("get room", err)
	}
	return rm, nil
}

func (r *PostgresRoomRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]room.Room, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE id IN (`+buildPlaceholders(1, len(ids))+`)`,
		uuidArgs(ids)...)
	if err != nil {
		return nil, translate("get rooms", err)
	}
	defer rows.Close()

	var rooms []room.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			if err == marketchat_errors.ErrInvalidRow {
				continue
			}
			return nil, translate("scan room", err)
		}
		rooms = append(rooms, rm)
	}
	return rooms, translate("get rooms", rows.Err())
}

func (r *PostgresRoomRepository) FindByPair(ctx context.Context, a, b uuid.UUID) (room.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM chat_rooms
		WHERE (p_a = $1 AND p_b = $2) OR (p_a = $2 AND p_b = $1)
		ORDER BY created_at ASC
		LIMIT 1`, a, b))
	if err != nil {
		return room.Room{}, translate("find room", err)
	}
	return rm, nil
}

func (r *PostgresRoomRepository) RecordMessage(ctx context.Context, roomID, senderID uuid.UUID, preview string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_rooms
		SET last_message = $2,
			last_message_at = $4,
			updated_at = $4,
			unread_count = CASE WHEN last_sender_id = $3 THEN unread_count + 1 ELSE 1 END,
			last_sender_id = $3
		WHERE id = $1`, roomID, preview, senderID, at)
	if err != nil {
		return translate("record message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return marketchat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresRoomRepository) ResetUnread(ctx context.Context, roomID, readerID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_rooms SET unread_count = 0
		WHERE id = $1 AND unread_count <> 0
			AND (last_sender_id IS NULL OR last_sender_id <> $2)`, roomID, readerID)
	if err != nil {
		return false, translate("reset unread", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
