// Package config provides the configuration schema and loader for rovabot.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for rovabot.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Discord DiscordConfig `yaml:"discord"`
	Rova    RovaConfig    `yaml:"rova"`
	Voice   VoiceConfig   `yaml:"voice"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /healthz, /readyz and /metrics. Empty disables the
	// listener.
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot credentials and chat settings.
type DiscordConfig struct {
	Token string `yaml:"token"`

	// ClientID is the application id used in the invite link. Optional.
	ClientID string `yaml:"client_id"`

	// Prefix is the leading token of every command, e.g. "!rova".
	Prefix string `yaml:"prefix"`

	// ControlRoleID, when set, restricts station changes and leave to members
	// holding that role.
	ControlRoleID string `yaml:"control_role_id"`

	// NowPlayingBoard posts a live embed after each selection that follows
	// the station's current track.
	NowPlayingBoard bool `yaml:"now_playing_board"`
}

// RovaConfig points at the Rova catalog and on-air endpoints.
type RovaConfig struct {
	StationsURL     string        `yaml:"stations_url"`
	OnAirURL        string        `yaml:"on_air_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around on-air fetches.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// VoiceConfig holds voice session and transcoder settings.
type VoiceConfig struct {
	JoinTimeout  time.Duration `yaml:"join_timeout"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	FFmpegPath   string        `yaml:"ffmpeg_path"`

	// Volume is the linear gain applied to every stream, in (0, 2].
	Volume float64 `yaml:"volume"`
}

// HistoryConfig selects the listening-history store.
type HistoryConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps history in memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Limit is how many entries the history command shows.
	Limit int `yaml:"limit"`
}
