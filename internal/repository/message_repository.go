package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"marketchat/internal/domain/message"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

const messageColumns = `id, room_id, sender_id, type, text, media_url, media_type, file_name, file_size,
	is_read, read_at, delivered, delivered_at, metadata, created_at`

func scanMessage(s rowScanner) (message.Message, error) {
	var m message.Message
	var msgType string
	var mediaURL, mediaType, fileName sql.NullString
	var fileSize sql.NullInt64
	var readAt, deliveredAt sql.NullTime
	var meta []byte
	err := s.Scan(&m.ID, &m.RoomID, &m.SenderID, &msgType, &m.Text, &mediaURL, &mediaType, &fileName, &fileSize,
		&m.IsRead, &readAt, &m.Delivered, &deliveredAt, &meta, &m.CreatedAt)
	if err != nil {
		return message.Message{}, err
	}
	m.Type = message.Type(msgType)
	m.MediaURL = mediaURL.String
	m.MediaType = mediaType.String
	m.FileName = fileName.String
	m.FileSize = fileSize.Int64
	m.ReadAt = timePtr(readAt)
	m.DeliveredAt = timePtr(deliveredAt)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return message.Message{}, marketchat_errors.ErrInvalidRow
		}
	}
	return m, m.Validate()
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m message.Message) error {
	if err := m.Validate(); err != nil {
		return marketchat_errors.ErrInvalidInput
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, type, text, media_url, media_type, file_name, file_size,
			is_read, delivered, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, false, $10::jsonb, $11)`,
		m.ID, m.RoomID, m.SenderID, string(m.Type), m.Text, nullString(m.MediaURL), nullString(m.MediaType),
		nullString(m.FileName), sql.NullInt64{Int64: m.FileSize, Valid: m.FileSize > 0}, string(meta), m.CreatedAt,
	)
	return translate("create message", err)
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return message.Message{}, translate("get message", err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]message.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = $1
		ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, translate("list messages", err)
	}
	defer rows.Close()

	var out []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			if err == marketchat_errors.ErrInvalidRow {
				continue
			}
			return nil, translate("scan message", err)
		}
		out = append(out, m)
	}
	return out, translate("list messages", rows.Err())
}

func (r *PostgresMessageRepository) MarkRead(ctx context.Context, roomID, readerID uuid.UUID, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = true, read_at = $3,
			delivered = true, delivered_at = COALESCE(delivered_at, $3)
		WHERE room_id = $1 AND sender_id <> $2 AND is_read = false`, roomID, readerID, at)
	if err != nil {
		return 0, translate("mark read", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *PostgresMessageRepository) MarkDelivered(ctx context.Context, roomID, readerID uuid.UUID, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET delivered = true, delivered_at = $3
		WHERE room_id = $1 AND sender_id <> $2 AND delivered = false`, roomID, readerID, at)
	if err != nil {
		return 0, translate("mark delivered", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *PostgresMessageRepository) OwnedBy(ctx context.Context, roomID, senderID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]interface{}{roomID, senderID}, uuidArgs(ids)...)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE room_id = $1 AND sender_id = $2 AND id IN (`+buildPlaceholders(3, len(ids))+`)`, args...)
	if err != nil {
		return nil, translate("own messages", err)
	}
	defer rows.Close()

	var owned []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, translate("scan message id", err)
		}
		owned = append(owned, id)
	}
	return owned, translate("own messages", rows.Err())
}

func (r *PostgresMessageRepository) DeleteOwned(ctx context.Context, roomID, senderID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]interface{}{roomID, senderID}, uuidArgs(ids)...)
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE room_id = $1 AND sender_id = $2 AND id IN (`+buildPlaceholders(3, len(ids))+`)`, args...)
	if err != nil {
		return 0, translate("delete messages", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
