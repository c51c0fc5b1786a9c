// Package onair holds the live "now playing" state for every station.
//
// The state is published as an immutable [Snapshot]. A single producer (the
// refresh loop) builds each new snapshot off to the side and swaps it in with
// [Cache.Replace]; any number of readers call [Cache.Get] concurrently and
// always observe one complete snapshot, never a mix of two.
package onair

import (
	"sync/atomic"
	"time"
)

// Track is the song currently on air.
type Track struct {
	Title string

	// Artist is empty when the station does not report one.
	Artist string
}

// Show is the programme currently on air.
type Show struct {
	Title        string
	ImageURL     string
	ThumbnailURL string
}

// Record is the live metadata for one station.
type Record struct {
	// StationID links the record to a catalog station. The station is not
	// required to exist in the catalog.
	StationID string

	// NowPlaying is nil when no track is reported.
	NowPlaying *Track

	// Show is nil when no programme is reported.
	Show *Show
}

// Snapshot is the complete set of on-air records at one point in time. It is
// never modified after [NewSnapshot] returns.
type Snapshot struct {
	records   []Record
	index     map[string]int
	fetchedAt time.Time
}

// NewSnapshot builds an immutable snapshot from records. Order is preserved
// and at most one record is kept per station id; when the input repeats an
// id, the first occurrence wins. Records with an empty station id are dropped.
func NewSnapshot(records []Record, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		records:   make([]Record, 0, len(records)),
		index:     make(map[string]int, len(records)),
		fetchedAt: fetchedAt,
	}
	for _, r := range records {
		if r.StationID == "" {
			continue
		}
		if _, dup := s.index[r.StationID]; dup {
			continue
		}
		s.index[r.StationID] = len(s.records)
		s.records = append(s.records, cloneRecord(r))
	}
	return s
}

// emptySnapshot is what readers see before the first successful refresh.
var emptySnapshot = NewSnapshot(nil, time.Time{})

// Records returns a copy of the records in payload order.
func (s *Snapshot) Records() []Record {
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// Find returns the record for stationID.
func (s *Snapshot) Find(stationID string) (Record, bool) {
	i, ok := s.index[stationID]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(s.records[i]), true
}

// Len reports the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// FetchedAt is the time the snapshot was fetched. Zero for the initial empty
// snapshot.
func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

// cloneRecord copies the optional parts so callers cannot reach into the
// snapshot's storage.
func cloneRecord(r Record) Record {
	if r.NowPlaying != nil {
		t := *r.NowPlaying
		r.NowPlaying = &t
	}
	if r.Show != nil {
		sh := *r.Show
		r.Show = &sh
	}
	return r
}

// Cache publishes the latest committed [Snapshot].
//
// The zero value is not usable; create one with [NewCache]. All methods are
// safe for concurrent use and never block on each other.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

// NewCache returns a cache holding an empty snapshot.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(emptySnapshot)
	return c
}

// Replace publishes snap as the current snapshot. A nil snap is ignored.
func (c *Cache) Replace(snap *Snapshot) {
	if snap == nil {
		return
	}
	c.current.Store(snap)
}

// Get returns the most recently committed snapshot.
func (c *Cache) Get() *Snapshot {
	return c.current.Load()
}

// FindByStationID looks up stationID in the current snapshot. A false result
// means the station is not reporting live data right now, which says nothing
// about whether the station exists in the catalog.
func (c *Cache) FindByStationID(stationID string) (Record, bool) {
	return c.Get().Find(stationID)
}
