// Package commands implements the rovabot chat command handlers.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/catalog"
	"github.com/davidcole1340/rovabot/internal/command"
	"github.com/davidcole1340/rovabot/internal/discord"
	"github.com/davidcole1340/rovabot/internal/history"
	"github.com/davidcole1340/rovabot/internal/onair"
	"github.com/davidcole1340/rovabot/internal/suggest"
)

// Permissions requested by the invite link: view channels, send messages,
// embed links, connect, speak and use voice activity.
const invitePermissions = 36702208

// embedColor is the sidebar color of every embed the bot sends.
const embedColor = 0xE4003A

// endedColor marks a now-playing board whose station stopped.
const endedColor = 0x95A5A6

// Reply texts shared with the tests.
const (
	msgJoinVoice        = "Join a voice channel and try again."
	msgStationNotFound  = "Could not find the given station."
	msgNothingPlaying   = "No station is reporting what's playing right now."
	msgNoHistory        = "Nothing has been played in this server yet."
	msgInviteUnset      = "The invite link is not configured."
	msgJoinFailedFormat = "Error joining voice channel: %s"
	msgStartFailedFmt   = "Error starting the stream: %s"
	msgShuttingDown     = "The bot is shutting down, try again shortly."
)

// Voice is the part of the voice manager used by the handlers.
type Voice interface {
	SelectStation(ctx context.Context, guildID, requesterChannelID, stationID string) error
	Leave(ctx context.Context, guildID string) error
	Current(guildID string) (stationID string, ok bool)
}

// HistoryReader returns recent selections of a guild.
type HistoryReader interface {
	Recent(ctx context.Context, guildID string, limit int) ([]history.Selection, error)
}

// OnAir returns the latest on-air snapshot. *onair.Cache satisfies it.
type OnAir interface {
	Get() *onair.Snapshot
}

// RadioConfig holds the dependencies of [RadioCommands].
type RadioConfig struct {
	Catalog *catalog.Catalog
	OnAir   OnAir
	Voice   Voice

	// History is optional; without it the history command says so.
	History      HistoryReader
	HistoryLimit int

	// ClientID is the application id used in the invite link.
	ClientID string

	// Boards, when set, gets a live now-playing board after every successful
	// selection, refreshed every BoardInterval.
	Boards        *discord.Boards
	BoardInterval time.Duration
}

// RadioCommands answers every rovabot command.
type RadioCommands struct {
	catalog      *catalog.Catalog
	onAir        OnAir
	voice        Voice
	history      HistoryReader
	historyLimit int
	clientID     string
	boards       *discord.Boards
	boardEvery   time.Duration
	matcher      *suggest.Matcher
	candidates   []suggest.Candidate

	// prefix returns the router's current command prefix.
	prefix func() string
}

// NewRadioCommands returns the handlers. Call [RadioCommands.Register] to
// attach them to a router.
func NewRadioCommands(cfg RadioConfig) *RadioCommands {
	rc := &RadioCommands{
		catalog:      cfg.Catalog,
		onAir:        cfg.OnAir,
		voice:        cfg.Voice,
		history:      cfg.History,
		historyLimit: cfg.HistoryLimit,
		clientID:     cfg.ClientID,
		boards:       cfg.Boards,
		boardEvery:   cfg.BoardInterval,
		matcher:      suggest.New(),
		prefix:       func() string { return "" },
	}
	if rc.historyLimit <= 0 {
		rc.historyLimit = history.DefaultLimit
	}
	for _, st := range cfg.Catalog.List() {
		rc.candidates = append(rc.candidates, suggest.Candidate{
			Key:   st.ID,
			Names: []string{st.ID, st.BrandName, st.BrandName + " " + st.SortName},
		})
	}
	return rc
}

// Register attaches a handler for every command kind to router.
func (rc *RadioCommands) Register(router *discord.CommandRouter) {
	rc.prefix = router.Prefix
	router.Register(command.Help, rc.handleHelp)
	router.Register(command.ListStations, rc.handleListStations)
	router.Register(command.SelectStation, rc.handleSelectStation)
	router.Register(command.NowPlaying, rc.handleNowPlaying)
	router.Register(command.Leave, rc.handleLeave)
	router.Register(command.Invite, rc.handleInvite)
	router.Register(command.History, rc.handleHistory)
}

func (rc *RadioCommands) handleHelp(_ context.Context, s discord.Messenger, req *discord.Request) {
	discord.ReplyEmbeds(s, req.ChannelID, []*discordgo.MessageEmbed{rc.helpEmbed()})
}

func (rc *RadioCommands) helpEmbed() *discordgo.MessageEmbed {
	p := rc.prefix()
	entries := []struct{ usage, what string }{
		{"station", "shows a list of stations"},
		{"station [station]", "selects a station"},
		{"playing", "outputs the current song on every station"},
		{"playing [station]", "outputs the current song on a given station"},
		{"history", "shows the stations recently played in this server"},
		{"invite", "outputs an invite link for the bot"},
		{"leave", "makes the bot leave the voice channel"},
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, &discordgo.MessageEmbedField{Name: p + " " + e.usage, Value: e.what})
	}
	return &discordgo.MessageEmbed{
		Title:       "Rova",
		Description: "Rova bot help",
		Color:       embedColor,
		Fields:      fields,
	}
}

func (rc *RadioCommands) handleInvite(_ context.Context, s discord.Messenger, req *discord.Request) {
	if rc.clientID == "" {
		discord.Reply(s, req.ChannelID, msgInviteUnset)
		return
	}
	discord.ReplyTo(s, req.Reference(), InviteURL(rc.clientID))
}

// InviteURL returns the OAuth2 URL that adds the bot to a server.
func InviteURL(clientID string) string {
	return fmt.Sprintf("https://discordapp.com/oauth2/authorize?client_id=%s&scope=bot&permissions=%d", clientID, invitePermissions)
}

// stationName is the display name of id, falling back to id itself for
// stations missing from the catalog.
func (rc *RadioCommands) stationName(id string) string {
	if st, ok := rc.catalog.Lookup(id); ok {
		return st.BrandName
	}
	return id
}
