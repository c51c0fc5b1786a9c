// Package rova is a small HTTP client for the two public Rova endpoints the
// bot consumes: the station directory and the live on-air feed.
package rova

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davidcole1340/rovabot/internal/catalog"
	"github.com/davidcole1340/rovabot/internal/onair"
)

// Default endpoints for the Auckland region.
const (
	DefaultStationsURL = "https://fred.aimapi.io/services/station/rova?region=Auckland"
	DefaultOnAirURL    = "https://bruce.radioapi.io/services/onair/rova?region=Auckland"
)

// maxErrorBody caps how much of a non-2xx body is kept in an [APIError].
const maxErrorBody = 4 << 10

// APIError is returned when an endpoint answers with a non-2xx status.
type APIError struct {
	URL    string
	Status int
	Body   string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rova: %s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("rova: %s returned status %d: %s", e.URL, e.Status, e.Body)
}

// Client fetches station and on-air data. It is safe for concurrent use.
type Client struct {
	http        *http.Client
	stationsURL string
	onAirURL    string
	userAgent   string
	now         func() time.Time
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithStationsURL overrides the station directory endpoint.
func WithStationsURL(u string) Option {
	return func(c *Client) { c.stationsURL = u }
}

// WithOnAirURL overrides the on-air endpoint.
func WithOnAirURL(u string) Option {
	return func(c *Client) { c.onAirURL = u }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithNow overrides the clock used to stamp snapshots.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New returns a client pointed at the default endpoints.
func New(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: 30 * time.Second},
		stationsURL: DefaultStationsURL,
		onAirURL:    DefaultOnAirURL,
		userAgent:   "rovabot",
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchStations implements [catalog.Fetcher].
func (c *Client) FetchStations(ctx context.Context) ([]catalog.Station, error) {
	var dto stationsDTO
	if err := c.getJSON(ctx, c.stationsURL, &dto); err != nil {
		return nil, err
	}
	out := make([]catalog.Station, 0, len(dto.Stations))
	for _, s := range dto.Stations {
		out = append(out, catalog.Station{
			ID:        s.ID,
			SortName:  s.SortName,
			BrandName: s.BrandName,
			StreamURL: s.HighQualityStreamURL,
		})
	}
	return out, nil
}

// FetchOnAir downloads the live feed and builds a snapshot from it. Only the
// first now-playing and first on-air entry of each station are used.
func (c *Client) FetchOnAir(ctx context.Context) (*onair.Snapshot, error) {
	var dto onAirDTO
	if err := c.getJSON(ctx, c.onAirURL, &dto); err != nil {
		return nil, err
	}
	records := make([]onair.Record, 0, len(dto.Stations))
	for _, s := range dto.Stations {
		rec := onair.Record{StationID: s.ID}
		if len(s.NowPlaying) > 0 {
			np := s.NowPlaying[0]
			rec.NowPlaying = &onair.Track{Title: np.Title, Artist: np.Artist}
		}
		if len(s.OnAir) > 0 {
			sh := s.OnAir[0]
			rec.Show = &onair.Show{Title: sh.Title, ImageURL: sh.ImageURL, ThumbnailURL: sh.ThumbnailURL}
		}
		records = append(records, rec)
	}
	return onair.NewSnapshot(records, c.now()), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("rova: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rova: get %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &APIError{URL: url, Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("rova: decode %s: %w", url, err)
	}
	return nil
}

type stationsDTO struct {
	Region struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"region"`
	Stations []struct {
		ID                   string `json:"id"`
		SortName             string `json:"sortName"`
		BrandName            string `json:"brandName"`
		HighQualityStreamURL string `json:"highQualityStreamUrl"`
	} `json:"stations"`
}

type onAirDTO struct {
	Stations []struct {
		ID         string `json:"id"`
		NowPlaying []struct {
			Title  string `json:"title"`
			Artist string `json:"artist"`
		} `json:"nowPlaying"`
		OnAir []struct {
			Title        string `json:"title"`
			ImageURL     string `json:"imageUrl"`
			ThumbnailURL string `json:"thumbnailUrl"`
		} `json:"onAir"`
	} `json:"stations"`
}
