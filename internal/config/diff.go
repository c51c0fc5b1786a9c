package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PrefixChanged bool
	NewPrefix     string

	// RestartRequired lists fields that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// Changed reports whether any live-applicable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PrefixChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Discord.Prefix != new.Discord.Prefix {
		d.PrefixChanged = true
		d.NewPrefix = new.Discord.Prefix
	}

	restart := []struct {
		field   string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"discord.token", old.Discord.Token != new.Discord.Token},
		{"discord.client_id", old.Discord.ClientID != new.Discord.ClientID},
		{"discord.control_role_id", old.Discord.ControlRoleID != new.Discord.ControlRoleID},
		{"discord.now_playing_board", old.Discord.NowPlayingBoard != new.Discord.NowPlayingBoard},
		{"rova", old.Rova != new.Rova},
		{"voice", old.Voice != new.Voice},
		{"history", old.History != new.History},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.field)
		}
	}
	return d
}
