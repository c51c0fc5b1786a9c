// Package app wires the rovabot subsystems into a running application.
//
// New builds every subsystem from the config, Run drives the background
// loops, and Shutdown tears everything down in order. Tests inject doubles
// through the functional options (WithRovaAPI, WithBot, ...); anything not
// injected is created from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/davidcole1340/rovabot/internal/catalog"
	"github.com/davidcole1340/rovabot/internal/config"
	"github.com/davidcole1340/rovabot/internal/discord"
	"github.com/davidcole1340/rovabot/internal/discord/commands"
	"github.com/davidcole1340/rovabot/internal/health"
	"github.com/davidcole1340/rovabot/internal/history"
	"github.com/davidcole1340/rovabot/internal/observe"
	"github.com/davidcole1340/rovabot/internal/onair"
	"github.com/davidcole1340/rovabot/internal/refresh"
	"github.com/davidcole1340/rovabot/internal/resilience"
	"github.com/davidcole1340/rovabot/internal/rova"
	"github.com/davidcole1340/rovabot/internal/voice"
	"github.com/davidcole1340/rovabot/pkg/audio"
	"github.com/davidcole1340/rovabot/pkg/audio/ffmpeg"
)

// breakerName labels the on-air circuit breaker in logs and metrics.
const breakerName = "rova-onair"

// RovaAPI is the remote catalog and on-air source. *rova.Client satisfies it.
type RovaAPI interface {
	catalog.Fetcher
	refresh.Fetcher
}

// Bot is the chat gateway. *discord.Bot satisfies it. Open starts routing
// messages and is called once every command handler is registered.
type Bot interface {
	Platform() audio.Platform
	Router() *discord.CommandRouter
	Open() error
	Ready() bool
	Close() error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	api      RovaAPI
	catalog  *catalog.Catalog
	cache    *onair.Cache
	breaker  *resilience.CircuitBreaker
	loop     *refresh.Loop
	history  history.Store
	player   voice.Player
	bot      Bot
	voice    *voice.Manager
	boards   *discord.Boards
	commands *commands.RadioCommands
	health   *health.Handler

	// levelVar, when set, receives log level changes on Reload.
	levelVar *slog.LevelVar

	// closers run in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRovaAPI injects the catalog and on-air source instead of an HTTP client.
func WithRovaAPI(api RovaAPI) Option {
	return func(a *App) { a.api = api }
}

// WithBot injects the chat gateway instead of connecting to Discord.
func WithBot(b Bot) Option {
	return func(a *App) { a.bot = b }
}

// WithHistoryStore injects the listening-history store.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithPlayer injects the stream player instead of ffmpeg.
func WithPlayer(p voice.Player) Option {
	return func(a *App) { a.player = p }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets Reload change the log level held by v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together. The station catalog
// is fetched once here; failure to load it is fatal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Closers are registered as resources come up and run in reverse.
	var stack []func(context.Context) error
	fail := func(err error) (*App, error) {
		for i := len(stack) - 1; i >= 0; i-- {
			_ = stack[i](context.Background())
		}
		return nil, err
	}

	// 1. Catalog.
	if a.api == nil {
		a.api = rova.New(
			rova.WithStationsURL(cfg.Rova.StationsURL),
			rova.WithOnAirURL(cfg.Rova.OnAirURL),
			rova.WithHTTPClient(&http.Client{Timeout: cfg.Rova.FetchTimeout}),
		)
	}
	cat, err := catalog.Load(ctx, a.api)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}
	a.catalog = cat
	slog.Info("station catalog loaded", "stations", cat.Len())

	// 2. On-air cache and refresh loop.
	a.cache = onair.NewCache()
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         breakerName,
		MaxFailures:  cfg.Rova.Breaker.MaxFailures,
		ResetTimeout: cfg.Rova.Breaker.ResetTimeout,
		OnStateChange: func(name string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
	a.loop = refresh.New(a.api, a.cache,
		refresh.WithInterval(cfg.Rova.RefreshInterval),
		refresh.WithFetchTimeout(cfg.Rova.FetchTimeout),
		refresh.WithBreaker(a.breaker),
		refresh.WithMetrics(a.metrics),
	)

	// 3. Listening history.
	if a.history == nil {
		if dsn := cfg.History.PostgresDSN; dsn != "" {
			pool, err := history.Open(ctx, dsn)
			if err != nil {
				return fail(fmt.Errorf("app: %w", err))
			}
			stack = append(stack, func(context.Context) error { pool.Close(); return nil })
			a.history = history.NewPostgresStore(pool)
			slog.Info("history store: postgres")
		} else {
			a.history = history.NewMemStore(0)
			slog.Info("history store: in-memory")
		}
	}

	// 4. Discord session. It connects in step 7, once handlers exist.
	if a.bot == nil {
		bot, err := discord.New(ctx, discord.Config{
			Token:         cfg.Discord.Token,
			Prefix:        cfg.Discord.Prefix,
			ControlRoleID: cfg.Discord.ControlRoleID,
			Metrics:       a.metrics,
		})
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		a.bot = bot
	}
	stack = append(stack, func(context.Context) error { return a.bot.Close() })

	// 5. Voice sessions.
	if a.player == nil {
		a.player = voice.FFmpegPlayer(ffmpeg.New(
			ffmpeg.WithPath(cfg.Voice.FFmpegPath),
			ffmpeg.WithVolume(cfg.Voice.Volume),
		))
	}
	a.voice = voice.New(voice.Config{
		Platform:     a.bot.Platform(),
		Player:       a.player,
		Stations:     a.catalog,
		History:      a.history,
		Metrics:      a.metrics,
		JoinTimeout:  cfg.Voice.JoinTimeout,
		StartTimeout: cfg.Voice.StartTimeout,
	})
	stack = append(stack, a.voice.Close)

	// 6. Commands.
	if cfg.Discord.NowPlayingBoard {
		a.boards = discord.NewBoards()
		stack = append(stack, func(context.Context) error { return a.boards.Close() })
	}
	a.commands = commands.NewRadioCommands(commands.RadioConfig{
		Catalog:       a.catalog,
		OnAir:         a.cache,
		Voice:         a.voice,
		History:       a.history,
		HistoryLimit:  cfg.History.Limit,
		ClientID:      cfg.Discord.ClientID,
		Boards:        a.boards,
		BoardInterval: cfg.Rova.RefreshInterval,
	})
	a.commands.Register(a.bot.Router())

	// 7. Connect to the gateway.
	if err := a.bot.Open(); err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	// 8. Readiness.
	a.health = health.New(
		health.Catalog(a.catalog),
		health.OnAir(a.loop, nil),
		health.Discord(a.bot),
	)

	for i := len(stack) - 1; i >= 0; i-- {
		a.closers = append(a.closers, stack[i])
	}
	return a, nil
}

// Run drives the background loops and blocks until ctx is cancelled. A
// cancelled context is a clean stop and returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Reload applies the live-reloadable parts of a new config: the log level
// and the command prefix. Other changes are logged and wait for a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PrefixChanged {
		a.bot.Router().SetPrefix(d.NewPrefix)
		slog.Info("command prefix changed", "prefix", d.NewPrefix)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "fields", d.RestartRequired)
	}
}

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Voice returns the voice session manager.
func (a *App) Voice() *voice.Manager { return a.voice }

// Catalog returns the station catalog loaded at startup.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// Shutdown stops the now-playing boards, leaves every voice channel,
// disconnects from Discord and closes the history store. It respects the
// context deadline: if ctx expires before all closers finish, the remaining
// ones are skipped and ctx.Err() returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
