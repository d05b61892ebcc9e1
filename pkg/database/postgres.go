package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketchat/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var DB *sql.DB

// Connect opens the pool through the pgx stdlib driver and pings it.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	conn, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Connection pool settings
	conn.SetMaxIdleConns(10)
	conn.SetMaxOpenConns(50)
	conn.SetConnMaxLifetime(time.Hour)

	DB = conn
	return conn, nil
}

func Close() {
	if DB != nil {
		_ = DB.Close()
	}
}

// HealthCheck pings the shared pool.
func HealthCheck(ctx context.Context) error {
	if DB == nil {
		return errors.New("database not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return DB.PingContext(ctx)
}

func TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
	return exists, err
}

// TableCount counts rows. table must come from a trusted list.
func TableCount(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&n)
	return n, err
}
