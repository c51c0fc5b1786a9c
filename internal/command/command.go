// Package command parses prefix chat commands such as "!rova station breeze".
//
// Parsing is pure: no I/O, no state. The first whitespace-separated token must
// equal the configured prefix, the second selects the command and anything
// after that is passed through as arguments.
package command

import "strings"

// Kind identifies a parsed command.
type Kind int

const (
	Help Kind = iota
	ListStations
	SelectStation
	NowPlaying
	Leave
	Invite
	History
)

var kindNames = [...]string{
	Help:          "help",
	ListStations:  "list-stations",
	SelectStation: "select-station",
	NowPlaying:    "now-playing",
	Leave:         "leave",
	Invite:        "invite",
	History:       "history",
}

// String returns the metric/log label of k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Command is one parsed message.
type Command struct {
	Kind Kind

	// StationID is set for SelectStation, and for NowPlaying when a station
	// was named.
	StationID string

	// Args holds every token after the command word.
	Args []string
}

// Parse reads text as a command for prefix. ok is false when the message is
// not addressed to the bot.
func Parse(prefix, text string) (cmd Command, ok bool) {
	fields := strings.Fields(text)
	if prefix == "" || len(fields) == 0 || fields[0] != prefix {
		return Command{}, false
	}
	if len(fields) < 2 {
		return Command{Kind: Help}, true
	}
	args := fields[2:]
	cmd.Args = args

	switch fields[1] {
	case "station":
		if len(args) == 0 {
			cmd.Kind = ListStations
		} else {
			cmd.Kind = SelectStation
			cmd.StationID = args[0]
		}
	case "playing":
		cmd.Kind = NowPlaying
		if len(args) > 0 {
			cmd.StationID = args[0]
		}
	case "leave":
		cmd.Kind = Leave
	case "invite":
		cmd.Kind = Invite
	case "history":
		cmd.Kind = History
	default:
		cmd.Kind = Help
	}
	return cmd, true
}
