package discord

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidcole1340/rovabot/internal/command"
	"github.com/davidcole1340/rovabot/internal/observe"
)

// Request is a parsed command together with where it came from.
type Request struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string

	// VoiceChannelID is the author's voice channel in GuildID, empty when the
	// author is not in voice.
	VoiceChannelID string

	Member  *discordgo.Member
	Command command.Command
}

// Reference returns a reference to the message that issued the request.
func (r *Request) Reference() *discordgo.MessageReference {
	return &discordgo.MessageReference{
		MessageID: r.MessageID,
		ChannelID: r.ChannelID,
		GuildID:   r.GuildID,
	}
}

// HandlerFunc handles one command kind.
type HandlerFunc func(ctx context.Context, s Messenger, req *Request)

// controlKinds change what the bot plays and are subject to the
// PermissionChecker.
var controlKinds = map[command.Kind]bool{
	command.SelectStation: true,
	command.Leave:         true,
}

// CommandRouter turns chat messages into [Request] values and dispatches them
// to the handler registered for their kind.
type CommandRouter struct {
	mu       sync.RWMutex
	handlers map[command.Kind]HandlerFunc

	prefix  atomic.Pointer[string]
	perms   *PermissionChecker
	metrics *observe.Metrics
}

// NewCommandRouter returns a router listening for prefix. perms may be nil.
func NewCommandRouter(prefix string, perms *PermissionChecker, m *observe.Metrics) *CommandRouter {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	r := &CommandRouter{
		handlers: make(map[command.Kind]HandlerFunc),
		perms:    perms,
		metrics:  m,
	}
	r.SetPrefix(prefix)
	return r
}

// Prefix returns the command prefix currently in effect.
func (r *CommandRouter) Prefix() string {
	return *r.prefix.Load()
}

// SetPrefix changes the prefix for subsequent messages.
func (r *CommandRouter) SetPrefix(prefix string) {
	r.prefix.Store(&prefix)
}

// Register sets the handler for kind, replacing any previous one.
func (r *CommandRouter) Register(kind command.Kind, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// HandleMessage is the MessageCreate entry point. Messages from bots, direct
// messages and messages without the prefix are ignored.
func (r *CommandRouter) HandleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	cmd, ok := command.Parse(r.Prefix(), m.Content)
	if !ok {
		return
	}

	req := &Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		AuthorID:  m.Author.ID,
		Member:    m.Member,
		Command:   cmd,
	}
	if vs, err := s.State.VoiceState(m.GuildID, m.Author.ID); err == nil && vs != nil {
		req.VoiceChannelID = vs.ChannelID
	}
	r.Dispatch(ctx, s, req)
}

// Dispatch runs the handler for req.Command. Unregistered kinds fall back to
// the help handler.
func (r *CommandRouter) Dispatch(ctx context.Context, s Messenger, req *Request) {
	kind := req.Command.Kind
	ctx, span := observe.StartSpan(ctx, "discord.command", trace.WithAttributes(
		attribute.String("command", kind.String()),
		attribute.String("guild_id", req.GuildID),
	))
	defer span.End()
	r.metrics.RecordCommand(ctx, kind.String())

	r.mu.RLock()
	h, ok := r.handlers[kind]
	if !ok {
		h, ok = r.handlers[command.Help]
	}
	r.mu.RUnlock()
	if !ok {
		slog.Warn("discord: no handler for command", "command", kind.String())
		return
	}

	if controlKinds[kind] && !r.perms.CanControl(req.Member) {
		Reply(s, req.ChannelID, "You do not have permission to control playback.")
		return
	}

	observe.Logger(ctx).Debug("discord: command",
		"command", kind.String(),
		"guild_id", req.GuildID,
		"user_id", req.AuthorID,
	)
	h(ctx, s, req)
}
