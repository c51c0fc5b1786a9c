package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr      = ":8080"
	DefaultPrefix          = "!rova"
	DefaultStationsURL     = "https://fred.aimapi.io/services/station/rova?region=Auckland"
	DefaultOnAirURL        = "https://bruce.radioapi.io/services/onair/rova?region=Auckland"
	DefaultRefreshInterval = 60 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
	DefaultMaxFailures     = 5
	DefaultResetTimeout    = 5 * time.Minute
	DefaultJoinTimeout     = 15 * time.Second
	DefaultStartTimeout    = 20 * time.Second
	DefaultFFmpegPath      = "ffmpeg"
	DefaultVolume          = 1.0
	DefaultHistoryLimit    = 10
)

// maxHistoryLimit is the number of fields a single embed can hold.
const maxHistoryLimit = 25

// Environment variables that override values from the YAML file.
const (
	EnvDiscordToken = "ROVABOT_DISCORD_TOKEN"
	EnvClientID     = "ROVABOT_CLIENT_ID"
	EnvPostgresDSN  = "ROVABOT_POSTGRES_DSN"
	EnvPrefix       = "ROVABOT_PREFIX"
)

// LookupFunc resolves an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, env LookupFunc) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f, env)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables
// alone, for deployments without a config file.
func FromEnv(env LookupFunc) (*Config, error) {
	cfg := &Config{}
	ApplyEnv(cfg, env)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Environment variables are not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	return decode(r, nil)
}

func decode(r io.Reader, env LookupFunc) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if env != nil {
		ApplyEnv(cfg, env)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites fields whose environment variable is set and non-empty.
func ApplyEnv(cfg *Config, env LookupFunc) {
	set := func(dst *string, key string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Discord.Token, EnvDiscordToken)
	set(&cfg.Discord.ClientID, EnvClientID)
	set(&cfg.Discord.Prefix, EnvPrefix)
	set(&cfg.History.PostgresDSN, EnvPostgresDSN)
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = DefaultPrefix
	}

	r := &cfg.Rova
	if r.StationsURL == "" {
		r.StationsURL = DefaultStationsURL
	}
	if r.OnAirURL == "" {
		r.OnAirURL = DefaultOnAirURL
	}
	if r.RefreshInterval == 0 {
		r.RefreshInterval = DefaultRefreshInterval
	}
	if r.FetchTimeout == 0 {
		r.FetchTimeout = DefaultFetchTimeout
	}
	if r.Breaker.MaxFailures == 0 {
		r.Breaker.MaxFailures = DefaultMaxFailures
	}
	if r.Breaker.ResetTimeout == 0 {
		r.Breaker.ResetTimeout = DefaultResetTimeout
	}

	v := &cfg.Voice
	if v.JoinTimeout == 0 {
		v.JoinTimeout = DefaultJoinTimeout
	}
	if v.StartTimeout == 0 {
		v.StartTimeout = DefaultStartTimeout
	}
	if v.FFmpegPath == "" {
		v.FFmpegPath = DefaultFFmpegPath
	}
	if v.Volume == 0 {
		v.Volume = DefaultVolume
	}

	if cfg.History.Limit == 0 {
		cfg.History.Limit = DefaultHistoryLimit
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken))
	}
	if p := cfg.Discord.Prefix; p == "" || strings.ContainsFunc(p, isSpace) {
		errs = append(errs, fmt.Errorf("discord.prefix %q must be a single non-empty word", p))
	}

	if err := validateURL("rova.stations_url", cfg.Rova.StationsURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("rova.on_air_url", cfg.Rova.OnAirURL); err != nil {
		errs = append(errs, err)
	}
	errs = appendPositive(errs, "rova.refresh_interval", cfg.Rova.RefreshInterval)
	errs = appendPositive(errs, "rova.fetch_timeout", cfg.Rova.FetchTimeout)
	errs = appendPositive(errs, "rova.breaker.reset_timeout", cfg.Rova.Breaker.ResetTimeout)
	if cfg.Rova.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("rova.breaker.max_failures must not be negative, got %d", cfg.Rova.Breaker.MaxFailures))
	}

	errs = appendPositive(errs, "voice.join_timeout", cfg.Voice.JoinTimeout)
	errs = appendPositive(errs, "voice.start_timeout", cfg.Voice.StartTimeout)
	if v := cfg.Voice.Volume; v <= 0 || v > 2 {
		errs = append(errs, fmt.Errorf("voice.volume %.2f is out of range (0, 2]", v))
	}

	if l := cfg.History.Limit; l < 1 || l > maxHistoryLimit {
		errs = append(errs, fmt.Errorf("history.limit %d is out of range [1, %d]", l, maxHistoryLimit))
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}

func appendPositive(errs []error, field string, d time.Duration) []error {
	if d <= 0 {
		return append(errs, fmt.Errorf("%s must be positive, got %s", field, d))
	}
	return errs
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
