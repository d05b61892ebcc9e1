package repository

import (
	"context"
	"fmt"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		auth_uid TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT,
		email TEXT,
		chat_rooms UUID[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,

	`CREATE TABLE IF NOT EXISTS shops (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		owner_uid TEXT NOT NULL,
		owner_profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		logo_url TEXT,
		chat_rooms UUID[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_shops_owner_uid ON shops (owner_uid);`,

	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		p_a UUID NOT NULL,
		p_b UUID NOT NULL,
		name_a TEXT NOT NULL DEFAULT '',
		avatar_a TEXT,
		name_b TEXT NOT NULL DEFAULT '',
		avatar_b TEXT,
		chat_type TEXT NOT NULL CHECK (chat_type IN ('user_user', 'user_vendor', 'vendor_vendor')),
		last_message TEXT,
		last_message_at TIMESTAMPTZ,
		last_sender_id UUID,
		unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (p_a <> p_b)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_chat_rooms_pair ON chat_rooms (LEAST(p_a, p_b), GREATEST(p_a, p_b));`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('text', 'image', 'voice', 'file', 'offer', 'system')),
		text TEXT NOT NULL DEFAULT '',
		media_url TEXT,
		media_type TEXT,
		file_name TEXT,
		file_size BIGINT,
		is_read BOOLEAN NOT NULL DEFAULT false,
		read_at TIMESTAMPTZ,
		delivered BOOLEAN NOT NULL DEFAULT false,
		delivered_at TIMESTAMPTZ,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);`,

	`CREATE TABLE IF NOT EXISTS call_signals (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		caller_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		call_type TEXT NOT NULL CHECK (call_type IN ('voice', 'video')),
		status TEXT NOT NULL CHECK (status IN ('ringing', 'connected', 'ended')),
		end_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		connected_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_call_signals_room_status ON call_signals (room_id, status);`,
}

// Tables lists the tables the schema creates, in dependency order.
var Tables = []string{"profiles", "shops", "chat_rooms", "messages", "call_signals"}

// InitSchema applies the schema.
func InitSchema(ctx context.Context, db DBTX) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
