package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// MaxEmbedsPerMessage is Discord's limit on embeds in a single message.
const MaxEmbedsPerMessage = 10

// Messenger is the part of *discordgo.Session used to send replies.
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbeds(channelID string, embeds []*discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)

	// Used by [Board] to post and refresh a single embed.
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Messenger = (*discordgo.Session)(nil)

// Reply sends a plain text message to channelID.
func Reply(s Messenger, channelID, content string) {
	if _, err := s.ChannelMessageSend(channelID, content); err != nil {
		slog.Warn("discord: failed to send reply", "channel_id", channelID, "error", err)
	}
}

// ReplyTo answers the message identified by ref with a threaded reply.
func ReplyTo(s Messenger, ref *discordgo.MessageReference, content string) {
	if _, err := s.ChannelMessageSendReply(ref.ChannelID, content, ref); err != nil {
		slog.Warn("discord: failed to send threaded reply", "channel_id", ref.ChannelID, "error", err)
	}
}

// ReplyEmbeds sends embeds to channelID, split over as many messages as the
// per-message embed limit requires. Sending stops at the first failure.
func ReplyEmbeds(s Messenger, channelID string, embeds []*discordgo.MessageEmbed) {
	for start := 0; start < len(embeds); start += MaxEmbedsPerMessage {
		end := min(start+MaxEmbedsPerMessage, len(embeds))
		if _, err := s.ChannelMessageSendEmbeds(channelID, embeds[start:end]); err != nil {
			slog.Warn("discord: failed to send embeds", "channel_id", channelID, "count", end-start, "error", err)
			return
		}
	}
}

// ReplyError sends err as a plain text message.
func ReplyError(s Messenger, channelID string, err error) {
	Reply(s, channelID, fmt.Sprintf("Error: %v", err))
}
