// Package discord provides the Discord bot layer for rovabot. It owns the
// discordgo.Session lifecycle, routes prefix commands from chat messages to
// registered handlers and exposes the voice platform built on the session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/observe"
	"github.com/davidcole1340/rovabot/pkg/audio"
	discordaudio "github.com/davidcole1340/rovabot/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string

	// Prefix is the first word of every command, e.g. "!rova".
	Prefix string

	// ControlRoleID, when set, is required to select stations or make the
	// bot leave.
	ControlRoleID string

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Bot owns the Discord gateway connection.
type Bot struct {
	session  *discordgo.Session
	platform *discordaudio.Platform
	router   *CommandRouter

	// ctx is handed to command handlers and cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	ready     atomic.Bool
	closeOnce sync.Once
}

// New creates a Bot and registers its event handlers. It does not connect;
// register command handlers on [Bot.Router] and then call [Bot.Open].
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session: session,
		router:  NewCommandRouter(cfg.Prefix, NewPermissionChecker(cfg.ControlRoleID), cfg.Metrics),
		ctx:     ctx,
		cancel:  cancel,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.ready.Store(true)
		slog.Info("discord: gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(*discordgo.Session, *discordgo.Resumed) {
		b.ready.Store(true)
	})
	session.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) {
		b.ready.Store(false)
		slog.Warn("discord: gateway disconnected")
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.router.HandleMessage(b.ctx, s, m)
	})

	b.platform = discordaudio.New(session)
	return b, nil
}

// Open connects to the Discord gateway. Messages are routed from this point
// on.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	return nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Ready reports whether the gateway connection is currently established.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Close cancels in-flight handlers and disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.cancel()
		b.ready.Store(false)
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
