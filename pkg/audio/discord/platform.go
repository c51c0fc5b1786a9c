// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// rovabot's PCM [audio.AudioFrame] output with Discord's Opus voice
// transport.
//
// A single Platform serves every guild the bot session is in. Each call to
// [Platform.Connect] joins the requested voice channel and returns a
// [Connection] that encodes and sends PCM output.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/davidcole1340/rovabot/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
// It requires an active *discordgo.Session (owned by the bot layer).
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session

	// join performs the blocking voice handshake. Defaults to
	// session.ChannelVoiceJoin; overridden in tests.
	join func(guildID, channelID string) (*discordgo.VoiceConnection, error)
}

// New creates a Discord Platform for the given session.
func New(session *discordgo.Session) *Platform {
	return &Platform{
		session: session,
		join: func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
			// mute=false (we send audio), deaf=true (incoming audio is never read).
			return session.ChannelVoiceJoin(guildID, channelID, false, true)
		},
	}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Connect joins channelID in guildID and returns an active [audio.Connection].
// discordgo's handshake does not take a context, so it runs on its own
// goroutine; if ctx expires first, Connect returns and the join is torn down
// as soon as it completes.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	res := make(chan joinResult, 1)
	go func() {
		vc, err := p.join(guildID, channelID)
		res <- joinResult{vc: vc, err: err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, r.err)
		}
		return newConnection(r.vc, p.session, guildID, channelID), nil
	case <-ctx.Done():
		go func() {
			r := <-res
			if r.err == nil && r.vc != nil {
				if err := r.vc.Disconnect(); err != nil {
					slog.Debug("discord: disconnect abandoned join", "guild_id", guildID, "error", err)
				}
			}
		}()
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, ctx.Err())
	}
}
