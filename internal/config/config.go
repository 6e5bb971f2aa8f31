package config

import (
	"fmt"
	"os"

	"github.com/vitos/opening_playbook/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration of the bot. The trading playbook lives in
// its own file (see LoadPlaybook) so it can be reloaded between sessions.
type Config struct {
	Playbook string `yaml:"playbook"`
	Feed     struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		APIKey       string `yaml:"api_key"`
		TimeoutMs    int    `yaml:"timeout_ms"`
	} `yaml:"feed"`
	Broker struct {
		Mode string `yaml:"mode"`
	} `yaml:"broker"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Polling struct {
		GuardrailMs int `yaml:"guardrail_ms"`
	} `yaml:"polling"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.Broker.Mode != "paper" {
		return nil, fmt.Errorf("%w: broker mode %q is not supported", domain.ErrConfig, cfg.Broker.Mode)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Playbook == "" {
		c.Playbook = "config/playbook.yaml"
	}
	if c.Broker.Mode == "" {
		c.Broker.Mode = "paper"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "playbook.db"
	}
	if c.Polling.GuardrailMs <= 0 {
		c.Polling.GuardrailMs = 5000
	}
	if c.Feed.TimeoutMs <= 0 {
		c.Feed.TimeoutMs = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}
