package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RENDEZVOUS"

type Config struct {
	Mode               string        `mapstructure:"mode"`
	Port               int           `mapstructure:"port"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	RoomCapacity       int           `mapstructure:"room_capacity"`
	JoinLimit          int           `mapstructure:"join_limit"`
	JoinInterval       time.Duration `mapstructure:"join_interval"`
	LogLevel           string        `mapstructure:"log_level"`
	// Backpressure names what happens on a full send queue: kick or drop.
	Backpressure       string        `mapstructure:"backpressure"`
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	return parseLevel(c.LogLevel)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("room_capacity", 2)
	v.SetDefault("join_limit", 5)
	v.SetDefault("join_interval", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("backpressure", "kick")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func newViper() (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)
	bindEnv(v)
	return v, fileName
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("ping_period %s must be shorter than pong_wait %s", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.Backpressure != "kick" && cfg.Backpressure != "drop" {
		return nil, fmt.Errorf("backpressure must be kick or drop, got %q", cfg.Backpressure)
	}
	return &cfg, nil
}

func read(v *viper.Viper, fileName string) bool {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return false
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	return true
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Every key has a
// default and can be overridden by RENDEZVOUS_<KEY>.
func Load() (*Config, error) {
	v, fileName := newViper()
	read(v, fileName)
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return cfg, nil
}

// Watch loads the config like Load and calls onChange with the new value each
// time the file changes. Without a config file nothing is watched.
func Watch(onChange func(*Config)) (*Config, error) {
	v, fileName := newViper()
	found := read(v, fileName)
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return cfg, nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}

type PeerConfig struct {
	Server             string        `mapstructure:"server"`
	Identity           string        `mapstructure:"identity"`
	Room               string        `mapstructure:"room"`
	ICEServers         []string      `mapstructure:"ice_servers"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	LogLevel           string        `mapstructure:"log_level"`
}

func (c *PeerConfig) Level() zerolog.Level {
	return parseLevel(c.LogLevel)
}

var ErrMissingFlag = errors.New("missing required setting")

// PeerFlags registers the peer command line flags on fs.
func PeerFlags(fs *pflag.FlagSet) {
	fs.String("server", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	fs.String("identity", "", "identity to join as, e.g. an email")
	fs.String("room", "", "room code to join")
	fs.StringSlice("ice-server", []string{"stun:stun.l.google.com:19302"}, "ICE server URL (repeatable)")
	fs.Duration("timeout", 30*time.Second, "negotiation timeout, 0 disables")
	fs.String("log-level", "info", "log level")
}

// LoadPeer resolves the peer settings from flags, then RENDEZVOUS_<KEY>
// environment variables, then defaults.
func LoadPeer(fs *pflag.FlagSet) (*PeerConfig, error) {
	v := viper.New()
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	bindEnv(v)

	bindings := map[string]string{
		"server":              "server",
		"identity":            "identity",
		"room":                "room",
		"ice_servers":         "ice-server",
		"negotiation_timeout": "timeout",
		"log_level":           "log-level",
	}
	for key, flag := range bindings {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("%w: identity", ErrMissingFlag)
	}
	if cfg.Room == "" {
		return nil, fmt.Errorf("%w: room", ErrMissingFlag)
	}
	return &cfg, nil
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
