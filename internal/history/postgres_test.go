package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRows implements pgx.Rows over in-memory rows.
type mockRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *mockRows) Close()                                       {}
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements [DB].
type mockDB struct {
	queryFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Record(t *testing.T) {
	t.Parallel()

	var gotSQL string
	var gotArgs []any
	db := &mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		gotSQL, gotArgs = sql, args
		return pgconn.CommandTag{}, nil
	}}
	s := NewPostgresStore(db)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	if err := s.Record(context.Background(), Selection{GuildID: "g1", ChannelID: "v1", StationID: "abc", StationName: "The Breeze"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !strings.Contains(gotSQL, "INSERT INTO station_selections") {
		t.Errorf("sql = %q", gotSQL)
	}
	if len(gotArgs) != 5 || gotArgs[0] != "g1" || gotArgs[2] != "abc" || gotArgs[4] != at {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestPostgresStore_RecordErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	s := NewPostgresStore(&mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, boom
	}})
	if err := s.Record(context.Background(), Selection{GuildID: "g", StationID: "abc"}); !errors.Is(err, boom) {
		t.Errorf("Record = %v, want wrapped %v", err, boom)
	}
	if err := s.Record(context.Background(), Selection{}); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("Record(empty) = %v, want ErrInvalidSelection", err)
	}
}

func TestPostgresStore_Recent(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var gotArgs []any
	db := &mockDB{queryFunc: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
		gotArgs = args
		return &mockRows{data: [][]any{
			{"g1", "v1", "xyz", "ZM", t1.Add(time.Minute)},
			{"g1", "v1", "abc", "The Breeze", t1},
		}}, nil
	}}
	s := NewPostgresStore(db)

	got, err := s.Recent(context.Background(), "g1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(gotArgs) != 2 || gotArgs[1] != DefaultLimit {
		t.Errorf("args = %v, want default limit", gotArgs)
	}
	if len(got) != 2 || got[0].StationID != "xyz" || got[1].StationName != "The Breeze" {
		t.Errorf("Recent = %+v", got)
	}
}

func TestPostgresStore_RecentRowsError(t *testing.T) {
	t.Parallel()

	boom := errors.New("stream interrupted")
	s := NewPostgresStore(&mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
		return &mockRows{err: boom}, nil
	}})
	if _, err := s.Recent(context.Background(), "g", 5); !errors.Is(err, boom) {
		t.Errorf("Recent = %v, want wrapped %v", err, boom)
	}
}

// TestPostgresStore_Integration runs against a real database when
// ROVABOT_TEST_POSTGRES_DSN is set.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("ROVABOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROVABOT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()

	pool, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(pool.Close)
	// Running the migrations twice must be a no-op.
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	guild := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM station_selections WHERE guild_id = $1", guild)
	})

	s := NewPostgresStore(pool)
	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"abc", "xyz", "def"} {
		if err := s.Record(ctx, Selection{GuildID: guild, StationID: id, At: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := s.Recent(ctx, guild, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].StationID != "def" || got[1].StationID != "xyz" {
		t.Errorf("Recent = %+v, want [def xyz]", got)
	}
}
