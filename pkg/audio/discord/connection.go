package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/davidcole1340/rovabot/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// outputChannelBuffer holds roughly one second of 20 ms frames.
const outputChannelBuffer = 50

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Outgoing PCM frames are re-chunked into exact
// Opus frame sizes, encoded and pushed onto the voice connection. Incoming
// audio is ignored.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
	botUserID string

	output chan audio.AudioFrame

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the send loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, channelID string) *Connection {
	c := &Connection{
		vc:           vc,
		guildID:      guildID,
		channelID:    channelID,
		output:       make(chan audio.AudioFrame, outputChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	if session.State != nil && session.State.User != nil {
		c.botUserID = session.State.User.ID
	}

	// Watch our own voice state so a kick or move ends the connection.
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	go c.sendLoop()
	return c
}

// OutputStream returns the write-only channel for outgoing audio.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// ChannelID returns the voice channel that was joined.
func (c *Connection) ChannelID() string {
	return c.channelID
}

// Done is closed when the connection ends.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Disconnect cleanly tears down the voice connection and stops the send loop.
// It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// drop ends the connection after Discord removed the bot from the channel.
func (c *Connection) drop(reason string) {
	slog.Warn("discord: voice connection dropped",
		"guild_id", c.guildID,
		"channel_id", c.channelID,
		"reason", reason,
	)
	if err := c.Disconnect(); err != nil {
		slog.Debug("discord: disconnect after drop", "guild_id", c.guildID, "error", err)
	}
}

// sendLoop reads PCM frames from the output channel, extracts exact Opus
// frame-sized chunks, encodes them and sends them on the voice connection.
// Speaking is flagged on the first frame and cleared when the loop exits.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "error", err)
		return
	}

	speaking := false
	defer func() {
		if speaking {
			c.setSpeaking(false)
		}
	}()

	var buf []byte
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.output:
			if frame.SampleRate != audio.SampleRate || frame.Channels != audio.Channels {
				slog.Warn("discord: dropping frame in unexpected format",
					"sample_rate", frame.SampleRate,
					"channels", frame.Channels,
				)
				continue
			}
			if !speaking {
				c.setSpeaking(true)
				speaking = true
			}

			buf = append(buf, frame.Data...)
			for len(buf) >= audio.FrameBytes {
				opus, eErr := enc.encode(buf[:audio.FrameBytes])
				buf = buf[audio.FrameBytes:]
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					continue
				}

				select {
				case c.vc.OpusSend <- opus:
				case <-c.done:
					return
				}
			}
		}
	}
}

// handleVoiceStateUpdate ends the connection when the bot itself leaves or is
// moved out of the channel it joined.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.VoiceState == nil || vsu.GuildID != c.guildID || c.botUserID == "" || vsu.UserID != c.botUserID {
		return
	}
	switch vsu.ChannelID {
	case c.channelID:
		return
	case "":
		go c.drop("removed from channel")
	default:
		go c.drop("moved to channel " + vsu.ChannelID)
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Debug("discord: speaking notification error", "speaking", b, "error", err)
	}
}
