package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"

	// DefaultFile is looked up in the working directory when no path is given
	DefaultFile = "debatelive.yaml"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Hub     HubConfig     `yaml:"hub"`
	Session SessionConfig `yaml:"session"`
	Overlay OverlayConfig `yaml:"overlay"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig points at the debate backend
type ServerConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIPrefix string        `yaml:"api_prefix"`
	HubPath   string        `yaml:"hub_path"`
	Timeout   time.Duration `yaml:"timeout"`
}

type HubConfig struct {
	Transport         string        `yaml:"transport"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	ServerTimeout     time.Duration `yaml:"server_timeout"`
	NATSURL           string        `yaml:"nats_url"`
	NATSSubjectPrefix string        `yaml:"nats_subject_prefix"`
}

type SessionConfig struct {
	ID              string        `yaml:"id"`
	StatusInterval  time.Duration `yaml:"status_interval"`
	HeatmapInterval time.Duration `yaml:"heatmap_interval"`
}

type OverlayConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AuthConfig struct {
	TokenFile string `yaml:"token_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the settings used when nothing else is configured
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:5000",
			APIPrefix: "/api",
			HubPath:   "/hubs/debate",
			Timeout:   30 * time.Second,
		},
		Hub: HubConfig{
			Transport:         TransportWebSocket,
			RetryDelay:        5 * time.Second,
			KeepAliveInterval: 15 * time.Second,
			ServerTimeout:     30 * time.Second,
			NATSURL:           "nats://localhost:4222",
			NATSSubjectPrefix: "debate",
		},
		Session: SessionConfig{
			StatusInterval:  5 * time.Second,
			HeatmapInterval: 10 * time.Second,
		},
		Overlay: OverlayConfig{
			Addr:           "127.0.0.1:8089",
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			TokenFile: defaultTokenFile(),
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".debatelive-token"
	}
	return filepath.Join(dir, "debatelive", "token")
}

// Load reads path on top of Default and then applies DEBATELIVE_*
// environment overrides. An empty path loads DefaultFile if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.BaseURL = getEnv("DEBATELIVE_BASE_URL", c.Server.BaseURL)
	c.Server.APIPrefix = getEnv("DEBATELIVE_API_PREFIX", c.Server.APIPrefix)
	c.Server.HubPath = getEnv("DEBATELIVE_HUB_PATH", c.Server.HubPath)
	c.Hub.Transport = getEnv("DEBATELIVE_TRANSPORT", c.Hub.Transport)
	c.Hub.NATSURL = getEnv("DEBATELIVE_NATS_URL", c.Hub.NATSURL)
	c.Session.ID = getEnv("DEBATELIVE_SESSION_ID", c.Session.ID)
	c.Overlay.Addr = getEnv("DEBATELIVE_OVERLAY_ADDR", c.Overlay.Addr)
	c.Auth.TokenFile = getEnv("DEBATELIVE_TOKEN_FILE", c.Auth.TokenFile)
	c.Log.Level = getEnv("DEBATELIVE_LOG_LEVEL", c.Log.Level)

	var err error
	if c.Hub.RetryDelay, err = getEnvAsDuration("DEBATELIVE_RETRY_DELAY", c.Hub.RetryDelay); err != nil {
		return err
	}
	if c.Session.StatusInterval, err = getEnvAsDuration("DEBATELIVE_STATUS_INTERVAL", c.Session.StatusInterval); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings every command needs. Session.ID is checked
// by the commands that use it.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("server.base_url must be an absolute http(s) URL, got %q", c.Server.BaseURL)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("server.api_prefix must start with '/', got %q", c.Server.APIPrefix)
	}

	switch c.Hub.Transport {
	case TransportWebSocket:
	case TransportNATS:
		if c.Hub.NATSURL == "" {
			return errors.New("hub.nats_url is required for the nats transport")
		}
	default:
		return fmt.Errorf("unknown hub.transport %q", c.Hub.Transport)
	}

	if c.Hub.RetryDelay <= 0 {
		return errors.New("hub.retry_delay must be positive")
	}
	if c.Session.StatusInterval <= 0 || c.Session.HeatmapInterval <= 0 {
		return errors.New("session poll intervals must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
