// Package config loads server settings: built-in defaults, then an optional
// YAML file, then WSECHO_* environment variables. Command-line flags are
// applied last by the caller.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen         = "127.0.0.1:8010"
	DefaultMaxMessageSize = 16 << 20
)

type Config struct {
	Listen         string        `yaml:"listen"`
	MaxMessageSize int64         `yaml:"max_message_size"` // 0 disables the limit
	MaxConnections int           `yaml:"max_connections"`  // 0 means unlimited
	AcceptRate     float64       `yaml:"accept_rate"`      // per remote host, per second; 0 disables
	AcceptBurst    int           `yaml:"accept_burst"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ProxyProtocol  bool          `yaml:"proxy_protocol"`
	ReusePort      bool          `yaml:"reuse_port"`
	Echo           Echo          `yaml:"echo"`
}

// Echo configures the application reply.
type Echo struct {
	Prefix   string `yaml:"prefix"`
	Sentinel string `yaml:"sentinel"`
	Farewell string `yaml:"farewell"`
}

func Default() Config {
	return Config{
		Listen:         DefaultListen,
		MaxMessageSize: DefaultMaxMessageSize,
		Echo: Echo{
			Prefix:   "Echo: ",
			Sentinel: "close",
			Farewell: "Closing connection. Good bye ;>",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path
// is non-empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: read file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from WSECHO_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	c.Listen = envOr(getenv, "WSECHO_LISTEN", c.Listen)
	c.Echo.Prefix = envOr(getenv, "WSECHO_ECHO_PREFIX", c.Echo.Prefix)
	c.Echo.Sentinel = envOr(getenv, "WSECHO_SENTINEL", c.Echo.Sentinel)
	c.Echo.Farewell = envOr(getenv, "WSECHO_FAREWELL", c.Echo.Farewell)

	var err error
	if v := getenv("WSECHO_MAX_MESSAGE_SIZE"); v != "" {
		if c.MaxMessageSize, err = strconv.ParseInt(v, 10, 64); err != nil {
			return errors.Wrap(err, "config: WSECHO_MAX_MESSAGE_SIZE")
		}
	}
	if v := getenv("WSECHO_MAX_CONNECTIONS"); v != "" {
		if c.MaxConnections, err = strconv.Atoi(v); err != nil {
			return errors.Wrap(err, "config: WSECHO_MAX_CONNECTIONS")
		}
	}
	if v := getenv("WSECHO_ACCEPT_RATE"); v != "" {
		if c.AcceptRate, err = strconv.ParseFloat(v, 64); err != nil {
			return errors.Wrap(err, "config: WSECHO_ACCEPT_RATE")
		}
	}
	if v := getenv("WSECHO_ACCEPT_BURST"); v != "" {
		if c.AcceptBurst, err = strconv.Atoi(v); err != nil {
			return errors.Wrap(err, "config: WSECHO_ACCEPT_BURST")
		}
	}
	if v := getenv("WSECHO_IDLE_TIMEOUT"); v != "" {
		if c.IdleTimeout, err = time.ParseDuration(v); err != nil {
			return errors.Wrap(err, "config: WSECHO_IDLE_TIMEOUT")
		}
	}
	if v := getenv("WSECHO_PROXY_PROTOCOL"); v != "" {
		if c.ProxyProtocol, err = strconv.ParseBool(v); err != nil {
			return errors.Wrap(err, "config: WSECHO_PROXY_PROTOCOL")
		}
	}
	if v := getenv("WSECHO_REUSE_PORT"); v != "" {
		if c.ReusePort, err = strconv.ParseBool(v); err != nil {
			return errors.Wrap(err, "config: WSECHO_REUSE_PORT")
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("config: listen address required")
	case c.MaxMessageSize < 0:
		return errors.New("config: max_message_size must not be negative")
	case c.MaxConnections < 0:
		return errors.New("config: max_connections must not be negative")
	case c.AcceptRate < 0 || c.AcceptBurst < 0:
		return errors.New("config: accept rate and burst must not be negative")
	case c.IdleTimeout < 0:
		return errors.New("config: idle_timeout must not be negative")
	case c.Echo.Sentinel == "":
		return errors.New("config: echo sentinel required")
	}
	return nil
}

func envOr(getenv func(string) string, k, def string) string {
	if v := getenv(k); v != "" {
		return v
	}
	return def
}
