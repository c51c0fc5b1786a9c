// Package catalog holds the static list of Rova stations. The catalog is
// fetched once at startup and never mutated afterwards, so it is safe for
// concurrent use without locking.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// PageSize is the number of stations rendered per Discord embed.
const PageSize = 25

// ErrCatalogLoadFailed is returned by [Load] when the station list cannot be
// fetched. The bot has no useful behaviour without a catalog, so callers treat
// it as fatal.
var ErrCatalogLoadFailed = errors.New("catalog: load failed")

// Station is a single catalog entry.
type Station struct {
	// ID is the stable, case-sensitive station key (e.g. "thebreeze").
	ID string

	// SortName is the secondary display name (usually the region or format).
	SortName string

	// BrandName is the primary display name (e.g. "The Breeze").
	BrandName string

	// StreamURL is the audio stream location handed to the media pipeline.
	StreamURL string
}

// Fetcher retrieves the full station list from the remote service.
type Fetcher interface {
	FetchStations(ctx context.Context) ([]Station, error)
}

// Catalog is an immutable, ordered station index.
type Catalog struct {
	stations []Station
	byID     map[string]int
}

// New builds a Catalog from stations, preserving their order. Stations with
// an empty ID are dropped; when an ID repeats, the first occurrence wins.
func New(stations []Station) *Catalog {
	c := &Catalog{
		stations: make([]Station, 0, len(stations)),
		byID:     make(map[string]int, len(stations)),
	}
	for _, st := range stations {
		if st.ID == "" {
			continue
		}
		if _, dup := c.byID[st.ID]; dup {
			continue
		}
		c.byID[st.ID] = len(c.stations)
		c.stations = append(c.stations, st)
	}
	return c
}

// Load fetches the station list once via f and builds a Catalog. Any fetch
// error is wrapped together with [ErrCatalogLoadFailed].
func Load(ctx context.Context, f Fetcher) (*Catalog, error) {
	stations, err := f.FetchStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogLoadFailed, err)
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: remote returned no stations", ErrCatalogLoadFailed)
	}
	return New(stations), nil
}

// Lookup returns the station with the exact id. The boolean is false when the
// id is unknown.
func (c *Catalog) Lookup(id string) (Station, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Station{}, false
	}
	return c.stations[i], true
}

// List returns the stations in load order. The returned slice is a copy.
func (c *Catalog) List() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Len reports the number of stations.
func (c *Catalog) Len() int {
	return len(c.stations)
}

// IDs returns every station id in load order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.stations))
	for i, st := range c.stations {
		ids[i] = st.ID
	}
	return ids
}

// Pages splits the catalog into consecutive pages of at most size stations.
// A non-positive size falls back to [PageSize].
func (c *Catalog) Pages(size int) [][]Station {
	return Chunk(c.List(), size)
}

// Chunk splits items into consecutive slices of at most size elements.
// A non-positive size falls back to [PageSize].
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = PageSize
	}
	var pages [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		pages = append(pages, items[start:end])
	}
	return pages
}
