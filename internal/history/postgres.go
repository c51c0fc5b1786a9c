package history

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the subset of *pgxpool.Pool used by [PostgresStore].
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by the station_selections table.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store on db. The schema must already exist; see
// [Migrate].
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Open connects to dsn, verifies the connection and applies pending
// migrations. The caller owns the returned pool.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations through pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("history: migrations fs: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	p, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("history: migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record implements [Store].
func (s *PostgresStore) Record(ctx context.Context, sel Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	if sel.At.IsZero() {
		sel.At = s.now()
	}
	const query = `
		INSERT INTO station_selections (guild_id, channel_id, station_id, station_name, selected_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, query, sel.GuildID, sel.ChannelID, sel.StationID, sel.StationName, sel.At.UTC()); err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, guildID string, limit int) ([]Selection, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	const query = `
		SELECT guild_id, channel_id, station_id, station_name, selected_at
		FROM station_selections
		WHERE guild_id = $1
		ORDER BY selected_at DESC, id DESC
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.GuildID, &sel.ChannelID, &sel.StationID, &sel.StationName, &sel.At); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return out, nil
}
