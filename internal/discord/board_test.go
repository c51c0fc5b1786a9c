package discord_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/discord"
	"github.com/davidcole1340/rovabot/internal/discord/mock"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBoard_PostsThenEdits(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	var renders atomic.Int32
	b := discord.NewBoard(discord.BoardConfig{
		Session:   s,
		ChannelID: "text",
		Interval:  10 * time.Millisecond,
		Render: func() *discordgo.MessageEmbed {
			renders.Add(1)
			return &discordgo.MessageEmbed{Title: "The Breeze"}
		},
		Ended: func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{Title: "Stopped"} },
	})
	b.Start(context.Background())

	waitFor(t, func() bool { return len(s.Edits()) >= 2 })
	b.Stop()

	msgs := s.Messages()
	if msgs[0].MessageID != "" || msgs[0].ChannelID != "text" {
		t.Errorf("first message should be a new post, got %+v", msgs[0])
	}
	last := s.Last()
	if last.MessageID != "mock-message" || last.Embeds[0].Title != "Stopped" {
		t.Errorf("last message = %+v, want an edit to the ended embed", last)
	}

	n := len(s.Messages())
	time.Sleep(30 * time.Millisecond)
	if got := len(s.Messages()); got != n {
		t.Errorf("board kept sending after Stop: %d -> %d", n, got)
	}
}

func TestBoard_EndsWhenRenderReturnsNil(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	var calls atomic.Int32
	b := discord.NewBoard(discord.BoardConfig{
		Session:  s,
		Interval: 10 * time.Millisecond,
		Render: func() *discordgo.MessageEmbed {
			if calls.Add(1) > 2 {
				return nil
			}
			return &discordgo.MessageEmbed{Title: "live"}
		},
		Ended: func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{Title: "ended"} },
	})
	b.Start(context.Background())

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("board did not end")
	}
	if got := s.Last().Embeds[0].Title; got != "ended" {
		t.Errorf("final embed = %q, want ended", got)
	}
	b.Stop()
}

func TestBoard_NothingToShowPostsNothing(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	b := discord.NewBoard(discord.BoardConfig{
		Session: s,
		Render:  func() *discordgo.MessageEmbed { return nil },
		Ended:   func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{} },
	})
	b.Start(context.Background())
	<-b.Done()

	if n := len(s.Messages()); n != 0 {
		t.Errorf("sent %d messages, want 0", n)
	}
}

func TestBoard_PostFailureRetriesAsPost(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{Err: errors.New("missing access")}
	b := discord.NewBoard(discord.BoardConfig{
		Session:  s,
		Interval: 10 * time.Millisecond,
		Render:   func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{} },
	})
	b.Start(context.Background())
	waitFor(t, func() bool { return len(s.Messages()) >= 2 })
	b.Stop()

	if n := len(s.Edits()); n != 0 {
		t.Errorf("edits = %d, want 0 while posting keeps failing", n)
	}
}

func TestBoards_ReplaceStopsPrevious(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	render := func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{} }
	boards := discord.NewBoards()
	defer boards.Close()

	first := discord.NewBoard(discord.BoardConfig{Session: s, Render: render})
	second := discord.NewBoard(discord.BoardConfig{Session: s, Render: render})

	boards.Replace("g1", first, nil)
	boards.Replace("g1", second, nil)

	select {
	case <-first.Done():
	default:
		t.Error("first board still running after Replace")
	}

	boards.Stop("g1")
	select {
	case <-second.Done():
	default:
		t.Error("second board still running after Stop")
	}

	boards.Stop("unknown")
}

func TestBoards_CloseStopsAll(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	render := func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{} }
	boards := discord.NewBoards()

	a := discord.NewBoard(discord.BoardConfig{Session: s, Render: render})
	b := discord.NewBoard(discord.BoardConfig{Session: s, Render: render})
	boards.Replace("g1", a, nil)
	boards.Replace("g2", b, nil)

	if err := boards.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, board := range []*discord.Board{a, b} {
		select {
		case <-board.Done():
		default:
			t.Errorf("board %d still running after Close", i)
		}
	}
}

func TestBoards_ReplaceSkipsStaleBoard(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	boards := discord.NewBoards()
	defer boards.Close()

	current := discord.NewBoard(discord.BoardConfig{
		Session: s,
		Render:  func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{Title: "XYZ"} },
	})
	stale := discord.NewBoard(discord.BoardConfig{
		Session: s,
		Render:  func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{Title: "ABC"} },
	})

	if !boards.Replace("g1", current, func() bool { return true }) {
		t.Fatal("Replace with keep=true reported false")
	}
	waitFor(t, func() bool { return len(s.Messages()) == 1 })

	if boards.Replace("g1", stale, func() bool { return false }) {
		t.Error("Replace with keep=false reported true")
	}
	select {
	case <-current.Done():
		t.Fatal("current board stopped by a stale Replace")
	default:
	}
	time.Sleep(20 * time.Millisecond)
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Embeds[0].Title != "XYZ" {
		t.Errorf("messages = %+v, want only the current board", msgs)
	}
}

func TestBoards_ReplaceAfterClose(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	boards := discord.NewBoards()
	if err := boards.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b := discord.NewBoard(discord.BoardConfig{
		Session: s,
		Render:  func() *discordgo.MessageEmbed { return &discordgo.MessageEmbed{} },
	})
	if boards.Replace("g1", b, nil) {
		t.Error("Replace after Close reported true")
	}
	if n := len(s.Messages()); n != 0 {
		t.Errorf("messages after Close = %d, want 0", n)
	}
}
