package voice

// State is the voice state of one guild: either [Disconnected] or
// [Connected].
type State interface {
	isState()
}

// Disconnected means the bot is not in a voice channel in the guild.
type Disconnected struct{}

// Connected means the bot holds a voice connection in ChannelID. StationID is
// empty while the bot is joined but silent, for example after a stream
// failed to start.
type Connected struct {
	ChannelID string
	StationID string
}

func (Disconnected) isState() {}
func (Connected) isState()    {}
