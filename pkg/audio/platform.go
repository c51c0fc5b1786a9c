// Package audio defines the interfaces and types for voice platform
// connectivity within rovabot.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice channel and returns a [Connection].
//   - [Connection] is a live, send-only session on that channel: callers write
//     PCM frames to its output stream and watch [Connection.Done] to learn when
//     the platform dropped it.
//
// Implementations are provided by platform-specific adapter packages
// (audio/discord). The interfaces are intentionally narrow to keep the voice
// session manager decoupled from the Discord SDK.
package audio

import (
	"context"
)

// Connection represents an active session on a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called or the platform drops it (the bot is
// kicked, moved, or the voice websocket dies). Either way [Connection.Done] is
// closed.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// OutputStream returns the write-only channel for outgoing audio.
	// Frames must be 48 kHz stereo signed 16-bit little-endian PCM.
	// The channel is buffered; writers should select on Done as well so they
	// never block on a dead connection.
	//
	// Ownership: the platform never closes this channel. Writes after the
	// connection ended are dropped.
	OutputStream() chan<- AudioFrame

	// ChannelID reports the voice channel this connection joined.
	ChannelID() string

	// Done is closed once the connection has ended, whether through
	// Disconnect or because the platform dropped it.
	Done() <-chan struct{}

	// Disconnect tears down the connection. It is safe to call more than
	// once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins channelID in guildID and returns an active [Connection].
	// ctx bounds the join handshake only; once connected, the Connection stays
	// alive until it is disconnected or dropped. When ctx expires first,
	// Connect returns ctx.Err() and any late-completing join is torn down.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
