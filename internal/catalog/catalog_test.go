package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/davidcole1340/rovabot/internal/catalog"
)

type fetcherFunc func(ctx context.Context) ([]catalog.Station, error)

func (f fetcherFunc) FetchStations(ctx context.Context) ([]catalog.Station, error) {
	return f(ctx)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	c := catalog.New([]catalog.Station{
		{ID: "abc", BrandName: "ABC FM", StreamURL: "http://abc"},
		{ID: "xyz", BrandName: "XYZ", StreamURL: "http://xyz"},
	})

	tests := []struct {
		name   string
		id     string
		wantOK bool
		brand  string
	}{
		{name: "exact match", id: "abc", wantOK: true, brand: "ABC FM"},
		{name: "second entry", id: "xyz", wantOK: true, brand: "XYZ"},
		{name: "case sensitive", id: "ABC", wantOK: false},
		{name: "unknown", id: "nope", wantOK: false},
		{name: "empty", id: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, ok := c.Lookup(tt.id)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.id, ok, tt.wantOK)
			}
			if ok && st.BrandName != tt.brand {
				t.Errorf("BrandName = %q, want %q", st.BrandName, tt.brand)
			}
		})
	}
}

func TestNew_DropsDuplicatesAndEmptyIDs(t *testing.T) {
	t.Parallel()

	c := catalog.New([]catalog.Station{
		{ID: "a", BrandName: "first"},
		{ID: ""},
		{ID: "b"},
		{ID: "a", BrandName: "second"},
	})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	st, _ := c.Lookup("a")
	if st.BrandName != "first" {
		t.Errorf("duplicate id should keep first entry, got %q", st.BrandName)
	}
	ids := c.IDs()
	if ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs = %v, want [a b]", ids)
	}
}

func TestList_ReturnsCopyInLoadOrder(t *testing.T) {
	t.Parallel()

	c := catalog.New([]catalog.Station{{ID: "z"}, {ID: "m"}, {ID: "a"}})
	list := c.List()
	list[0].ID = "mutated"

	again := c.List()
	want := []string{"z", "m", "a"}
	for i, st := range again {
		if st.ID != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, st.ID, want[i])
		}
	}
}

func TestPages(t *testing.T) {
	t.Parallel()

	var stations []catalog.Station
	for i := range 60 {
		stations = append(stations, catalog.Station{ID: fmt.Sprintf("st-%02d", i)})
	}
	c := catalog.New(stations)

	pages := c.Pages(catalog.PageSize)
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(pages))
	}
	if len(pages[0]) != 25 || len(pages[1]) != 25 || len(pages[2]) != 10 {
		t.Errorf("page sizes = %d/%d/%d, want 25/25/10", len(pages[0]), len(pages[1]), len(pages[2]))
	}
	if pages[1][0].ID != "st-25" {
		t.Errorf("second page starts at %q, want st-25", pages[1][0].ID)
	}

	if got := len(c.Pages(0)); got != 3 {
		t.Errorf("Pages(0) = %d pages, want default page size", got)
	}
}

func TestChunk_Empty(t *testing.T) {
	t.Parallel()

	if pages := catalog.Chunk([]int(nil), 25); len(pages) != 0 {
		t.Errorf("Chunk(nil) = %v, want no pages", pages)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		c, err := catalog.Load(context.Background(), fetcherFunc(func(context.Context) ([]catalog.Station, error) {
			return []catalog.Station{{ID: "abc", BrandName: "ABC FM"}}, nil
		}))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if _, ok := c.Lookup("abc"); !ok {
			t.Error("loaded catalog is missing abc")
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection refused")
		_, err := catalog.Load(context.Background(), fetcherFunc(func(context.Context) ([]catalog.Station, error) {
			return nil, cause
		}))
		if !errors.Is(err, catalog.ErrCatalogLoadFailed) {
			t.Errorf("err = %v, want ErrCatalogLoadFailed", err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("err = %v, want wrapped cause", err)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		_, err := catalog.Load(context.Background(), fetcherFunc(func(context.Context) ([]catalog.Station, error) {
			return nil, nil
		}))
		if !errors.Is(err, catalog.ErrCatalogLoadFailed) {
			t.Errorf("err = %v, want ErrCatalogLoadFailed", err)
		}
	})
}
