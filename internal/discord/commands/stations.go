package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/catalog"
	"github.com/davidcole1340/rovabot/internal/discord"
	"github.com/davidcole1340/rovabot/internal/voice"
)

func (rc *RadioCommands) handleListStations(_ context.Context, s discord.Messenger, req *discord.Request) {
	discord.ReplyEmbeds(s, req.ChannelID, rc.stationEmbeds())
}

// stationEmbeds renders the catalog as one embed per page of stations.
func (rc *RadioCommands) stationEmbeds() []*discordgo.MessageEmbed {
	p := rc.prefix()
	var embeds []*discordgo.MessageEmbed
	for _, page := range rc.catalog.Pages(catalog.PageSize) {
		e := &discordgo.MessageEmbed{
			Title:       "Rova Stations",
			Description: "Stations available on Rova",
			Color:       embedColor,
		}
		for _, st := range page {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%s - %s", st.BrandName, st.SortName),
				Value: fmt.Sprintf("%s station %s", p, st.ID),
			})
		}
		embeds = append(embeds, e)
	}
	return embeds
}

func (rc *RadioCommands) handleSelectStation(ctx context.Context, s discord.Messenger, req *discord.Request) {
	id := req.Command.StationID
	err := rc.voice.SelectStation(ctx, req.GuildID, req.VoiceChannelID, id)
	switch {
	case err == nil:
		discord.Reply(s, req.ChannelID, fmt.Sprintf("Now playing **%s**.", rc.stationName(id)))
		rc.startBoard(s, req.GuildID, req.ChannelID, id)
	case errors.Is(err, voice.ErrStationNotFound):
		discord.Reply(s, req.ChannelID, rc.notFoundMessage(id))
	case errors.Is(err, voice.ErrRequesterNotInVoice):
		discord.Reply(s, req.ChannelID, msgJoinVoice)
	case errors.Is(err, voice.ErrJoinFailed):
		discord.Reply(s, req.ChannelID, fmt.Sprintf(msgJoinFailedFormat, reason(err, voice.ErrJoinFailed)))
	case errors.Is(err, voice.ErrStreamStartFailed):
		discord.Reply(s, req.ChannelID, fmt.Sprintf(msgStartFailedFmt, reason(err, voice.ErrStreamStartFailed)))
	case errors.Is(err, voice.ErrClosed):
		discord.Reply(s, req.ChannelID, msgShuttingDown)
	default:
		discord.ReplyError(s, req.ChannelID, err)
	}
}

// notFoundMessage is the unknown-station reply, with a suggestion when a
// catalog station is close enough to id.
func (rc *RadioCommands) notFoundMessage(id string) string {
	key, _, ok := rc.matcher.Best(id, rc.candidates)
	if !ok {
		return msgStationNotFound
	}
	return fmt.Sprintf("%s Did you mean `%s station %s`?", msgStationNotFound, rc.prefix(), key)
}

func (rc *RadioCommands) handleLeave(ctx context.Context, s discord.Messenger, req *discord.Request) {
	if err := rc.voice.Leave(ctx, req.GuildID); err != nil {
		discord.ReplyError(s, req.ChannelID, err)
		return
	}
	if rc.boards != nil {
		rc.boards.Stop(req.GuildID)
	}
}

// reason strips the sentinel's own text from err, leaving the underlying
// cause for display.
func reason(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
