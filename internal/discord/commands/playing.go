package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/davidcole1340/rovabot/internal/catalog"
	"github.com/davidcole1340/rovabot/internal/discord"
	"github.com/davidcole1340/rovabot/internal/onair"
)

// noArtist stands in for a track without artist metadata.
const noArtist = "No Artist"

func (rc *RadioCommands) handleNowPlaying(_ context.Context, s discord.Messenger, req *discord.Request) {
	snap := rc.onAir.Get()
	if id := req.Command.StationID; id != "" {
		rec, ok := snap.Find(id)
		if !ok {
			discord.Reply(s, req.ChannelID, msgStationNotFound)
			return
		}
		discord.ReplyEmbeds(s, req.ChannelID, []*discordgo.MessageEmbed{rc.stationEmbed(rec)})
		return
	}

	embeds := rc.playingEmbeds(snap)
	if len(embeds) == 0 {
		discord.Reply(s, req.ChannelID, msgNothingPlaying)
		return
	}
	discord.ReplyEmbeds(s, req.ChannelID, embeds)
}

// playingEmbeds lists the current track of every station that reports one,
// one embed per page.
func (rc *RadioCommands) playingEmbeds(snap *onair.Snapshot) []*discordgo.MessageEmbed {
	var playing []onair.Record
	for _, rec := range snap.Records() {
		if rec.NowPlaying != nil {
			playing = append(playing, rec)
		}
	}

	var embeds []*discordgo.MessageEmbed
	for _, page := range catalog.Chunk(playing, catalog.PageSize) {
		e := &discordgo.MessageEmbed{
			Title:       "Rova Playing",
			Description: "Currently playing on Rova",
			Color:       embedColor,
		}
		if !snap.FetchedAt().IsZero() {
			e.Timestamp = snap.FetchedAt().UTC().Format(time.RFC3339)
		}
		for _, rec := range page {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
				Name:  rec.StationID,
				Value: trackLine(rec.NowPlaying),
			})
		}
		embeds = append(embeds, e)
	}
	return embeds
}

// stationEmbed shows the show and track of a single station.
func (rc *RadioCommands) stationEmbed(rec onair.Record) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: rc.stationName(rec.StationID),
		Color: embedColor,
	}
	if show := rec.Show; show != nil {
		e.Description = show.Title
		if show.ImageURL != "" {
			e.Image = &discordgo.MessageEmbedImage{URL: show.ImageURL}
		}
		if show.ThumbnailURL != "" {
			e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: show.ThumbnailURL}
		}
	}
	if t := rec.NowPlaying; t != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: t.Title, Value: artist(t)})
	}
	return e
}

func trackLine(t *onair.Track) string {
	return fmt.Sprintf("%s - %s", t.Title, artist(t))
}

func artist(t *onair.Track) string {
	if t.Artist == "" {
		return noArtist
	}
	return t.Artist
}

// startBoard replaces the guild's now-playing board with one following
// stationID. The board ends on its own once the guild stops playing it. A
// guild that has already moved on to another station keeps its board.
func (rc *RadioCommands) startBoard(s discord.Messenger, guildID, channelID, stationID string) {
	if rc.boards == nil {
		return
	}
	playing := func() bool {
		id, ok := rc.voice.Current(guildID)
		return ok && id == stationID
	}
	board := discord.NewBoard(discord.BoardConfig{
		Session:   s,
		ChannelID: channelID,
		Interval:  rc.boardEvery,
		Render: func() *discordgo.MessageEmbed {
			if !playing() {
				return nil
			}
			return rc.boardEmbed(stationID)
		},
		Ended: func() *discordgo.MessageEmbed {
			return &discordgo.MessageEmbed{
				Title:       rc.stationName(stationID),
				Description: "Stopped playing.",
				Color:       endedColor,
			}
		},
	})
	if !rc.boards.Replace(guildID, board, playing) {
		slog.Debug("board: station already replaced", "guild_id", guildID, "station_id", stationID)
	}
}

// boardEmbed is the live board for stationID: the station detail embed when
// on-air data exists, a bare title otherwise.
func (rc *RadioCommands) boardEmbed(stationID string) *discordgo.MessageEmbed {
	var e *discordgo.MessageEmbed
	if rec, ok := rc.onAir.Get().Find(stationID); ok {
		e = rc.stationEmbed(rec)
	} else {
		e = &discordgo.MessageEmbed{
			Title:       rc.stationName(stationID),
			Description: "No track information yet.",
			Color:       embedColor,
		}
	}
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Live in this server"}
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return e
}
