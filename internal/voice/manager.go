// Package voice manages the bot's voice presence, one session per guild.
//
// Every state change of a guild (join, station switch, leave, teardown after
// the connection dropped) runs while holding that guild's transition lock, so
// changes to one guild are strictly ordered while different guilds proceed
// independently. Join and stream start-up are bounded by timeouts so a hung
// call cannot hold the lock forever.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/davidcole1340/rovabot/internal/catalog"
	"github.com/davidcole1340/rovabot/internal/history"
	"github.com/davidcole1340/rovabot/internal/observe"
	"github.com/davidcole1340/rovabot/pkg/audio"
)

// Defaults used when the corresponding config field is zero.
const (
	DefaultJoinTimeout  = 15 * time.Second
	DefaultStartTimeout = 20 * time.Second
)

// recordTimeout bounds a single history write.
const recordTimeout = 5 * time.Second

// Errors returned by [Manager.SelectStation]. They are meant to be shown to
// the user and are never retried.
var (
	ErrStationNotFound     = errors.New("voice: station not found")
	ErrRequesterNotInVoice = errors.New("voice: requester is not in a voice channel")
	ErrJoinFailed          = errors.New("voice: joining the voice channel failed")
	ErrStreamStartFailed   = errors.New("voice: starting the stream failed")

	// ErrClosed is returned once [Manager.Close] has been called.
	ErrClosed = errors.New("voice: manager closed")
)

// Stations resolves station ids. *catalog.Catalog satisfies it.
type Stations interface {
	Lookup(id string) (catalog.Station, bool)
}

// Recorder stores successful selections. history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, s history.Selection) error
}

// Config holds the dependencies of a [Manager].
type Config struct {
	Platform audio.Platform
	Player   Player
	Stations Stations

	// History is optional.
	History Recorder

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	JoinTimeout  time.Duration
	StartTimeout time.Duration
}

// Manager owns every guild's voice session. All methods are safe for
// concurrent use.
type Manager struct {
	platform     audio.Platform
	player       Player
	stations     Stations
	history      Recorder
	metrics      *observe.Metrics
	joinTimeout  time.Duration
	startTimeout time.Duration

	// closed is set by Close and checked under each guild's lock, so no
	// guild can be joined after Close has collected the guilds to leave.
	closed atomic.Bool

	mu     sync.Mutex
	guilds map[string]*guild
}

// guild is the per-guild session slot. Slots are never removed, so a waiter
// on sem always finds the same slot it queued on.
type guild struct {
	id  string
	sem *semaphore.Weighted

	// Guarded by sem.
	conn     audio.Connection
	playback Playback

	// state mirrors the guarded fields for lock-free reads. nil means
	// disconnected.
	state atomic.Pointer[Connected]
}

// New returns a Manager.
func New(cfg Config) *Manager {
	m := &Manager{
		platform:     cfg.Platform,
		player:       cfg.Player,
		stations:     cfg.Stations,
		history:      cfg.History,
		metrics:      cfg.Metrics,
		joinTimeout:  cfg.JoinTimeout,
		startTimeout: cfg.StartTimeout,
		guilds:       make(map[string]*guild),
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.joinTimeout <= 0 {
		m.joinTimeout = DefaultJoinTimeout
	}
	if m.startTimeout <= 0 {
		m.startTimeout = DefaultStartTimeout
	}
	return m
}

// slot returns the session slot for guildID, creating it on first use.
func (m *Manager) slot(guildID string) *guild {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok {
		g = &guild{id: guildID, sem: semaphore.NewWeighted(1)}
		m.guilds[guildID] = g
	}
	return g
}

func (m *Manager) existing(guildID string) *guild {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guilds[guildID]
}

// SelectStation makes the bot play stationID in guildID. If the bot is not
// yet connected it joins requesterChannelID first; if it is, the current
// stream is stopped and the bot stays in its channel.
//
// A failed join leaves the guild disconnected ([ErrJoinFailed]). A stream that
// fails to start leaves the bot joined but silent ([ErrStreamStartFailed]).
func (m *Manager) SelectStation(ctx context.Context, guildID, requesterChannelID, stationID string) (err error) {
	ctx, span := observe.StartSpan(ctx, "voice.select_station", trace.WithAttributes(
		attribute.String("guild_id", guildID),
		attribute.String("station_id", stationID),
	))
	defer func() {
		observe.EndSpan(span, err)
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
		}
		m.metrics.RecordSelection(ctx, status)
	}()

	st, ok := m.stations.Lookup(stationID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrStationNotFound, stationID)
	}
	if requesterChannelID == "" {
		return ErrRequesterNotInVoice
	}

	g := m.slot(guildID)
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("voice: wait for guild %s: %w", guildID, err)
	}
	if m.closed.Load() {
		g.sem.Release(1)
		return ErrClosed
	}
	channelID, err := m.selectLocked(ctx, g, requesterChannelID, st)
	g.sem.Release(1)
	if err != nil {
		return err
	}

	m.record(ctx, history.Selection{
		GuildID:     guildID,
		ChannelID:   channelID,
		StationID:   st.ID,
		StationName: st.BrandName,
	})
	return nil
}

// selectLocked runs the join/switch transition. The caller holds g.sem.
func (m *Manager) selectLocked(ctx context.Context, g *guild, requesterChannelID string, st catalog.Station) (string, error) {
	log := observe.Logger(ctx).With("guild_id", g.id, "station_id", st.ID)

	if g.conn == nil {
		jctx, cancel := context.WithTimeout(ctx, m.joinTimeout)
		conn, err := m.platform.Connect(jctx, g.id, requesterChannelID)
		cancel()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrJoinFailed, err)
		}
		g.conn = conn
		g.publish(conn.ChannelID(), "")
		m.metrics.ActiveVoiceSessions.Add(ctx, 1)
		go m.watchConnection(g, conn)
		log.Info("voice: joined channel", "channel_id", conn.ChannelID())
	} else if g.playback != nil {
		g.playback.Stop()
		g.playback = nil
		g.publish(g.conn.ChannelID(), "")
	}

	sctx, cancel := context.WithTimeout(ctx, m.startTimeout)
	pb, err := m.player.Play(sctx, st.StreamURL, g.conn.OutputStream())
	cancel()
	if err != nil {
		log.Warn("voice: stream failed to start", "error", err)
		return "", fmt.Errorf("%w: %w", ErrStreamStartFailed, err)
	}
	g.playback = pb
	g.publish(g.conn.ChannelID(), st.ID)
	go m.watchPlayback(g, pb)
	log.Info("voice: playing station", "channel_id", g.conn.ChannelID())
	return g.conn.ChannelID(), nil
}

// Leave stops playback and disconnects the bot in guildID. Leaving a guild
// without a session succeeds and does nothing.
func (m *Manager) Leave(ctx context.Context, guildID string) error {
	g := m.existing(guildID)
	if g == nil {
		return nil
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("voice: wait for guild %s: %w", guildID, err)
	}
	defer g.sem.Release(1)
	if g.conn == nil {
		return nil
	}
	return m.teardownLocked(ctx, g)
}

// teardownLocked stops audio, disconnects and marks g disconnected. The
// caller holds g.sem.
func (m *Manager) teardownLocked(ctx context.Context, g *guild) error {
	if g.playback != nil {
		g.playback.Stop()
		g.playback = nil
	}
	conn := g.conn
	g.conn = nil
	g.state.Store(nil)
	m.metrics.ActiveVoiceSessions.Add(ctx, -1)

	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("voice: disconnect guild %s: %w", g.id, err)
	}
	slog.Info("voice: left channel", "guild_id", g.id, "channel_id", conn.ChannelID())
	return nil
}

// watchConnection tears the session down when conn ends without a Leave,
// e.g. because the bot was kicked or moved.
func (m *Manager) watchConnection(g *guild, conn audio.Connection) {
	<-conn.Done()

	ctx := context.Background()
	_ = g.sem.Acquire(ctx, 1)
	defer g.sem.Release(1)
	if g.conn != conn {
		return
	}
	slog.Warn("voice: connection lost", "guild_id", g.id, "channel_id", conn.ChannelID())
	if err := m.teardownLocked(ctx, g); err != nil {
		slog.Debug("voice: disconnect after connection loss", "guild_id", g.id, "error", err)
	}
}

// watchPlayback marks the guild silent when pb ends on its own.
func (m *Manager) watchPlayback(g *guild, pb Playback) {
	<-pb.Done()

	_ = g.sem.Acquire(context.Background(), 1)
	defer g.sem.Release(1)
	if g.playback != pb || g.conn == nil {
		return
	}
	g.playback = nil
	g.publish(g.conn.ChannelID(), "")
	slog.Warn("voice: stream ended", "guild_id", g.id)
}

func (g *guild) publish(channelID, stationID string) {
	g.state.Store(&Connected{ChannelID: channelID, StationID: stationID})
}

// State returns the current state of guildID without waiting for an
// in-flight transition.
func (m *Manager) State(guildID string) State {
	g := m.existing(guildID)
	if g == nil {
		return Disconnected{}
	}
	if c := g.state.Load(); c != nil {
		return *c
	}
	return Disconnected{}
}

// Current returns the station playing in guildID. ok is false when the bot
// is disconnected or silent.
func (m *Manager) Current(guildID string) (stationID string, ok bool) {
	c, connected := m.State(guildID).(Connected)
	if !connected || c.StationID == "" {
		return "", false
	}
	return c.StationID, true
}

// Close leaves every guild and makes later selections fail with
// [ErrClosed]. It returns the joined disconnect errors.
func (m *Manager) Close(ctx context.Context) error {
	m.closed.Store(true)
	m.mu.Lock()
	ids := slices.Sorted(maps.Keys(m.guilds))
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Leave(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// record writes s to the history store. Failures are logged and dropped.
func (m *Manager) record(ctx context.Context, s history.Selection) {
	if m.history == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := m.history.Record(rctx, s); err != nil {
		observe.Logger(ctx).Warn("voice: record selection", "guild_id", s.GuildID, "error", err)
	}
}
