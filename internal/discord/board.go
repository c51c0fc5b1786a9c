package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// defaultBoardInterval is the default board refresh interval.
const defaultBoardInterval = 30 * time.Second

// BoardConfig holds the dependencies of a [Board].
type BoardConfig struct {
	Session   Messenger
	ChannelID string

	// Interval between refreshes. Default: 30 seconds.
	Interval time.Duration

	// Render returns the current embed, or nil once the board has nothing
	// left to show. A nil result ends the board as if Stop had been called.
	Render func() *discordgo.MessageEmbed

	// Ended, if set, renders the embed left behind when the board stops.
	Ended func() *discordgo.MessageEmbed
}

// Board keeps one embed message up to date. The message is posted on the
// first refresh and edited in place afterwards.
//
// Safe for concurrent use.
type Board struct {
	mu        sync.Mutex
	session   Messenger
	channelID string
	messageID string
	interval  time.Duration
	render    func() *discordgo.MessageEmbed
	ended     func() *discordgo.MessageEmbed

	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

// NewBoard creates a Board. Call [Board.Start] to post it.
func NewBoard(cfg BoardConfig) *Board {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultBoardInterval
	}
	return &Board{
		session:   cfg.Session,
		channelID: cfg.ChannelID,
		interval:  interval,
		render:    cfg.Render,
		ended:     cfg.Ended,
		stop:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Start posts the board and keeps refreshing it in a background goroutine
// until Stop is called, ctx is cancelled or Render returns nil.
func (b *Board) Start(ctx context.Context) {
	go b.loop(ctx)
}

// Stop halts the refresh loop, leaves the ended embed behind and waits for
// the loop to exit. Safe to call more than once.
func (b *Board) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.finished
}

// Done is closed once the board has stopped refreshing.
func (b *Board) Done() <-chan struct{} {
	return b.finished
}

func (b *Board) loop(ctx context.Context) {
	defer close(b.finished)
	defer b.finish()

	select {
	case <-b.stop:
		return
	case <-ctx.Done():
		return
	default:
	}
	if !b.refresh() {
		return
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.refresh() {
				return
			}
		}
	}
}

// refresh posts or edits the embed. It reports false when Render has
// nothing to show.
func (b *Board) refresh() bool {
	embed := b.render()
	if embed == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.messageID == "" {
		msg, err := b.session.ChannelMessageSendEmbed(b.channelID, embed)
		if err != nil {
			slog.Warn("board: failed to post embed", "channel_id", b.channelID, "error", err)
			return true
		}
		b.messageID = msg.ID
		slog.Debug("board: posted embed", "message_id", msg.ID, "channel_id", b.channelID)
		return true
	}
	if _, err := b.session.ChannelMessageEditEmbed(b.channelID, b.messageID, embed); err != nil {
		slog.Warn("board: failed to edit embed", "message_id", b.messageID, "error", err)
	}
	return true
}

// finish replaces the live embed with the ended one.
func (b *Board) finish() {
	if b.ended == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messageID == "" {
		return
	}
	if _, err := b.session.ChannelMessageEditEmbed(b.channelID, b.messageID, b.ended()); err != nil {
		slog.Warn("board: failed to post final embed", "message_id", b.messageID, "error", err)
	}
}

// Boards tracks at most one live [Board] per guild.
type Boards struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	boards map[string]*Board
}

// NewBoards returns an empty set. Boards started through it stop when
// [Boards.Close] is called.
func NewBoards() *Boards {
	ctx, cancel := context.WithCancel(context.Background())
	return &Boards{ctx: ctx, cancel: cancel, boards: make(map[string]*Board)}
}

// Replace starts b as the guild's board and stops the previous one. keep,
// when non-nil, is evaluated under the set's lock; if it reports false b is
// discarded and the current board stays. It reports whether b was started.
func (s *Boards) Replace(guildID string, b *Board, keep func() bool) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil || (keep != nil && !keep()) {
		s.mu.Unlock()
		return false
	}
	old := s.boards[guildID]
	s.boards[guildID] = b
	b.Start(s.ctx)
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return true
}

// Stop stops the guild's board. It is a no-op when none is running.
func (s *Boards) Stop(guildID string) {
	s.mu.Lock()
	b := s.boards[guildID]
	delete(s.boards, guildID)
	s.mu.Unlock()

	if b != nil {
		b.Stop()
	}
}

// Close stops every board.
func (s *Boards) Close() error {
	s.mu.Lock()
	boards := s.boards
	s.boards = make(map[string]*Board)
	s.mu.Unlock()

	for _, b := range boards {
		b.Stop()
	}
	s.cancel()
	return nil
}
