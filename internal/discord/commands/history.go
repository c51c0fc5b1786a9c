package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/discord"
)

func (rc *RadioCommands) handleHistory(ctx context.Context, s discord.Messenger, req *discord.Request) {
	if rc.history == nil {
		discord.Reply(s, req.ChannelID, msgNoHistory)
		return
	}
	entries, err := rc.history.Recent(ctx, req.GuildID, rc.historyLimit)
	if err != nil {
		discord.ReplyError(s, req.ChannelID, fmt.Errorf("load history: %w", err))
		return
	}
	if len(entries) == 0 {
		discord.Reply(s, req.ChannelID, msgNoHistory)
		return
	}

	e := &discordgo.MessageEmbed{
		Title:       "Recently played",
		Description: fmt.Sprintf("The last %d stations selected in this server", len(entries)),
		Color:       embedColor,
	}
	if id, ok := rc.voice.Current(req.GuildID); ok {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Now playing: " + rc.stationName(id)}
	}
	for _, sel := range entries {
		name := sel.StationName
		if name == "" {
			name = rc.stationName(sel.StationID)
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  name,
			Value: fmt.Sprintf("<t:%d:R> in <#%s>", sel.At.Unix(), sel.ChannelID),
		})
	}
	discord.ReplyEmbeds(s, req.ChannelID, []*discordgo.MessageEmbed{e})
}
