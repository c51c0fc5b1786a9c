// Package history keeps a per-guild log of station selections.
//
// Recording is best effort: the voice manager logs and drops a failed
// [Store.Record] rather than failing the selection it describes.
package history

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// DefaultLimit is the number of entries Recent returns when asked for zero or
// fewer.
const DefaultLimit = 10

// ErrInvalidSelection is returned by [Store.Record] when a selection is missing
// its guild or station.
var ErrInvalidSelection = errors.New("history: invalid selection")

// Selection is one successful station change in a guild.
type Selection struct {
	GuildID     string
	ChannelID   string
	StationID   string
	StationName string
	At          time.Time
}

// Validate reports whether s can be stored.
func (s Selection) Validate() error {
	var errs []error
	if s.GuildID == "" {
		errs = append(errs, errors.New("guild_id must not be empty"))
	}
	if s.StationID == "" {
		errs = append(errs, errors.New("station_id must not be empty"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidSelection}, errs...)...)
}

// Store persists selections.
type Store interface {
	// Record appends s. A zero At is set to the current time.
	Record(ctx context.Context, s Selection) error

	// Recent returns up to limit selections for guildID, newest first.
	Recent(ctx context.Context, guildID string, limit int) ([]Selection, error)
}

// MemStore is an in-process [Store] that keeps the newest entries of each
// guild up to a fixed capacity.
type MemStore struct {
	mu       sync.Mutex
	capacity int
	now      func() time.Time
	guilds   map[string][]Selection
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a MemStore holding at most capacity entries per guild.
// A capacity of zero or less means 100.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemStore{
		capacity: capacity,
		now:      time.Now,
		guilds:   make(map[string][]Selection),
	}
}

// Record implements [Store].
func (m *MemStore) Record(_ context.Context, s Selection) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.At.IsZero() {
		s.At = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append(m.guilds[s.GuildID], s)
	if over := len(entries) - m.capacity; over > 0 {
		entries = slices.Delete(entries, 0, over)
	}
	m.guilds[s.GuildID] = entries
	return nil
}

// Recent implements [Store].
func (m *MemStore) Recent(_ context.Context, guildID string, limit int) ([]Selection, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.guilds[guildID]
	n := min(limit, len(entries))
	out := make([]Selection, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}
