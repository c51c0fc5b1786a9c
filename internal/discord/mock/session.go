// Package mock provides test doubles for the Discord reply layer.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Sent is one message recorded by [Messenger].
type Sent struct {
	ChannelID string
	Content   string
	Embeds    []*discordgo.MessageEmbed

	// Reference is set for threaded replies.
	Reference *discordgo.MessageReference

	// MessageID is set when an existing message was edited.
	MessageID string
}

// Messenger records outgoing messages for test assertions. It is safe for
// concurrent use.
type Messenger struct {
	mu   sync.Mutex
	sent []Sent

	// Err, when non-nil, is returned by every send.
	Err error
}

// ChannelMessageSend records a text message.
func (m *Messenger) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Sent{ChannelID: channelID, Content: content})
}

// ChannelMessageSendEmbeds records an embed message.
func (m *Messenger) ChannelMessageSendEmbeds(channelID string, embeds []*discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Sent{ChannelID: channelID, Embeds: embeds})
}

// ChannelMessageSendReply records a threaded reply.
func (m *Messenger) ChannelMessageSendReply(channelID string, content string, ref *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Sent{ChannelID: channelID, Content: content, Reference: ref})
}

// ChannelMessageSendEmbed records a single-embed message.
func (m *Messenger) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Sent{ChannelID: channelID, Embeds: []*discordgo.MessageEmbed{embed}})
}

// ChannelMessageEditEmbed records an edit of messageID.
func (m *Messenger) ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Sent{ChannelID: channelID, MessageID: messageID, Embeds: []*discordgo.MessageEmbed{embed}})
}

func (m *Messenger) record(s Sent) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, s)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: s.ChannelID, Content: s.Content}, nil
}

// Messages returns a copy of everything sent so far.
func (m *Messenger) Messages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Last returns the most recently sent message, or the zero Sent.
func (m *Messenger) Last() Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}
	}
	return m.sent[len(m.sent)-1]
}

// Embeds returns every embed sent so far, in order.
func (m *Messenger) Embeds() []*discordgo.MessageEmbed {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*discordgo.MessageEmbed
	for _, s := range m.sent {
		out = append(out, s.Embeds...)
	}
	return out
}

// Edits returns the recorded edits, in order.
func (m *Messenger) Edits() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sent
	for _, s := range m.sent {
		if s.MessageID != "" {
			out = append(out, s)
		}
	}
	return out
}

// Reset clears the recorded messages and the injected error.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.Err = nil
}
