package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

const DefaultPath = "config.json"

const (
	EngineBitTorrent = "bittorrent"
	EngineLocal      = "local"
)

type Config struct {
	Engine     string `json:"engine"`
	DataDir    string `json:"data_dir"`
	ListenPort int    `json:"listen_port"`
	NoDHT      bool   `json:"no_dht"`

	DBPath   string `json:"db_path"`
	APIAddr  string `json:"api_addr"`
	APIToken string `json:"api_token"`
	LogLevel string `json:"log_level"`

	PollIntervalMS  int `json:"poll_interval_ms"`
	RemoveTimeoutMS int `json:"remove_timeout_ms"`

	// Local engine only.
	MetainfoDir    string `json:"metainfo_dir"`
	ResolveDelayMS int    `json:"resolve_delay_ms"`
}

func Default() Config {
	return Config{
		Engine:          EngineBitTorrent,
		DataDir:         "./downloads",
		ListenPort:      6881,
		APIAddr:         "127.0.0.1:8642",
		LogLevel:        "info",
		PollIntervalMS:  100,
		RemoveTimeoutMS: 5000,
		MetainfoDir:     "./metainfo",
	}
}

// ParseConfig reads path over the defaults. A missing file yields the defaults.
func ParseConfig(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	err = json.NewDecoder(file).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Engine == "" {
		c.Engine = def.Engine
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = def.PollIntervalMS
	}
	if c.RemoveTimeoutMS == 0 {
		c.RemoveTimeoutMS = def.RemoveTimeoutMS
	}
	if c.APIAddr == "" {
		c.APIAddr = def.APIAddr
	}
}

func (c *Config) Validate() error {
	switch c.Engine {
	case EngineBitTorrent, EngineLocal:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port out of range: %d", c.ListenPort)
	}
	if c.PollIntervalMS < 0 || c.RemoveTimeoutMS < 0 || c.ResolveDelayMS < 0 {
		return errors.New("durations must not be negative")
	}
	if c.Engine == EngineLocal && c.MetainfoDir == "" {
		return errors.New("local engine needs metainfo_dir")
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *Config) RemoveTimeout() time.Duration {
	return time.Duration(c.RemoveTimeoutMS) * time.Millisecond
}

func (c *Config) ResolveDelay() time.Duration {
	return time.Duration(c.ResolveDelayMS) * time.Millisecond
}
