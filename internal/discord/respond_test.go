package discord_test

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/discord"
	"github.com/davidcole1340/rovabot/internal/discord/mock"
)

func embeds(n int) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, n)
	for i := range out {
		out[i] = &discordgo.MessageEmbed{}
	}
	return out
}

func TestReplyEmbeds_Chunking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		embeds    int
		wantSizes []int
	}{
		{embeds: 0, wantSizes: nil},
		{embeds: 1, wantSizes: []int{1}},
		{embeds: 10, wantSizes: []int{10}},
		{embeds: 11, wantSizes: []int{10, 1}},
		{embeds: 23, wantSizes: []int{10, 10, 3}},
	}
	for _, tt := range tests {
		s := &mock.Messenger{}
		discord.ReplyEmbeds(s, "text", embeds(tt.embeds))

		msgs := s.Messages()
		if len(msgs) != len(tt.wantSizes) {
			t.Errorf("%d embeds: sent %d messages, want %d", tt.embeds, len(msgs), len(tt.wantSizes))
			continue
		}
		for i, m := range msgs {
			if len(m.Embeds) != tt.wantSizes[i] {
				t.Errorf("%d embeds: message %d has %d embeds, want %d", tt.embeds, i, len(m.Embeds), tt.wantSizes[i])
			}
		}
	}
}

func TestReplyEmbeds_StopsOnError(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{Err: errors.New("rate limited")}
	discord.ReplyEmbeds(s, "text", embeds(25))
	if n := len(s.Messages()); n != 1 {
		t.Errorf("attempted %d sends, want 1", n)
	}
}

func TestReplyTo(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	ref := &discordgo.MessageReference{ChannelID: "text", MessageID: "m1"}
	discord.ReplyTo(s, ref, "hello")

	got := s.Last()
	if got.ChannelID != "text" || got.Content != "hello" || got.Reference != ref {
		t.Errorf("sent %+v", got)
	}
}

func TestReplyError(t *testing.T) {
	t.Parallel()
	s := &mock.Messenger{}
	discord.ReplyError(s, "text", errors.New("boom"))
	if got := s.Last().Content; got != "Error: boom" {
		t.Errorf("content = %q", got)
	}
}
