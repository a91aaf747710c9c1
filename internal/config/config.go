// Package config loads spost-web settings from ~/.spost/config.toml and
// SPOST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"SPost-Planner/internal/bridge"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".spost"
	envPrefix  = "SPOST"

	TransportMemory = "memory"
	TransportLibp2p = "libp2p"
)

type Config struct {
	HTTP   HTTPConfig   `mapstructure:"http"`
	Bus    BusConfig    `mapstructure:"bus"`
	Libp2p Libp2pConfig `mapstructure:"libp2p"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	Relay  RelayConfig  `mapstructure:"relay"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
	// AllowedOrigins may open /ws/bus from a browser besides the planner's
	// own origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type BusConfig struct {
	Transport string `mapstructure:"transport"`
	Topic     string `mapstructure:"topic"`
}

type Libp2pConfig struct {
	Listen      []string `mapstructure:"listen"`
	Bootstrap   []string `mapstructure:"bootstrap"`
	Rendezvous  string   `mapstructure:"rendezvous"`
	MDNS        bool     `mapstructure:"mdns"`
	IdentityKey string   `mapstructure:"identity_key"`
}

type BridgeConfig struct {
	Capability    string        `mapstructure:"capability"`
	Aliases       []string      `mapstructure:"aliases"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
	BurstAttempts int           `mapstructure:"burst_attempts"`
	BurstDelay    time.Duration `mapstructure:"burst_delay"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type RelayConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	BaseURL string  `mapstructure:"base_url"`
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment binding. An
// explicit file must exist; otherwise ~/.spost/config.toml is read if present.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, configDir))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func SetDefaults(v *viper.Viper) {
	storePath := filepath.Join(configDir, "posts.toml")
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, configDir, "posts.toml")
	}

	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.static_dir", "")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("bus.transport", TransportMemory)
	v.SetDefault("bus.topic", bridge.PageTopic)
	v.SetDefault("libp2p.listen", []string{"/ip4/127.0.0.1/tcp/0"})
	v.SetDefault("libp2p.bootstrap", []string{})
	v.SetDefault("libp2p.rendezvous", "spost")
	v.SetDefault("libp2p.mdns", false)
	v.SetDefault("libp2p.identity_key", "")
	v.SetDefault("bridge.capability", bridge.DefaultCapability)
	v.SetDefault("bridge.aliases", []string{"LinkedInPlanner"})
	v.SetDefault("bridge.call_timeout", bridge.DefaultCallTimeout)
	v.SetDefault("bridge.probe_timeout", bridge.DefaultProbeTimeout)
	v.SetDefault("bridge.wait_timeout", bridge.DefaultWaitTimeout)
	v.SetDefault("bridge.burst_attempts", bridge.DefaultBurstAttempts)
	v.SetDefault("bridge.burst_delay", bridge.DefaultBurstDelay)
	v.SetDefault("bridge.poll_interval", bridge.DefaultPollInterval)
	v.SetDefault("relay.enabled", true)
	v.SetDefault("relay.base_url", "https://api.linkedin.com/rest")
	v.SetDefault("relay.rate", 5.0)
	v.SetDefault("relay.burst", 5)
	v.SetDefault("store.path", storePath)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Bus.Transport {
	case TransportMemory, TransportLibp2p:
	default:
		errs = append(errs, fmt.Errorf("bus.transport: unknown transport %q", c.Bus.Transport))
	}
	for _, o := range c.HTTP.AllowedOrigins {
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("http.allowed_origins: %q is not an origin", o))
		}
	}
	if strings.TrimSpace(c.Bus.Topic) == "" {
		errs = append(errs, errors.New("bus.topic: must not be empty"))
	}
	if strings.TrimSpace(c.Bridge.Capability) == "" {
		errs = append(errs, errors.New("bridge.capability: must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"bridge.call_timeout":  c.Bridge.CallTimeout,
		"bridge.probe_timeout": c.Bridge.ProbeTimeout,
		"bridge.wait_timeout":  c.Bridge.WaitTimeout,
		"bridge.burst_delay":   c.Bridge.BurstDelay,
		"bridge.poll_interval": c.Bridge.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, d))
		}
	}
	if c.Bridge.BurstAttempts < 0 {
		errs = append(errs, fmt.Errorf("bridge.burst_attempts: must not be negative, got %d", c.Bridge.BurstAttempts))
	}
	if c.Relay.Enabled && c.Relay.BaseURL == "" {
		errs = append(errs, errors.New("relay.base_url: required when the relay is enabled"))
	}
	if c.Relay.Rate < 0 {
		errs = append(errs, errors.New("relay.rate: must not be negative"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path: must not be empty"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ClientConfig maps the bridge section onto the RPC client's settings.
func (c Config) ClientConfig() bridge.Config {
	return bridge.Config{
		Capability:  c.Bridge.Capability,
		CallTimeout: c.Bridge.CallTimeout,
		WaitTimeout: c.Bridge.WaitTimeout,
		Prober: bridge.ProberConfig{
			Topic:         c.Bus.Topic,
			ProbeTimeout:  c.Bridge.ProbeTimeout,
			BurstAttempts: c.Bridge.BurstAttempts,
			BurstDelay:    c.Bridge.BurstDelay,
			PollInterval:  c.Bridge.PollInterval,
		},
	}
}
