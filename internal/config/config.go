// Package config handles Jarvix configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/jarvix/config.yaml, /etc/jarvix/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jarvix", "config.yaml"))
	}

	paths = append(paths, "/etc/jarvix/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Jarvix configuration.
type Config struct {
	Listen      ListenConfig `yaml:"listen"`
	XAI         XAIConfig    `yaml:"xai"`
	Mem0        Mem0Config   `yaml:"mem0"`
	Memory      MemoryConfig `yaml:"memory"`
	CalDAV      CalDAVConfig `yaml:"caldav"`
	MQTT        MQTTConfig   `yaml:"mqtt"`
	Speech      SpeechConfig `yaml:"speech"`
	Agent       AgentConfig  `yaml:"agent"`
	PersonaFile string       `yaml:"persona_file"`
	LogLevel    string       `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// XAIConfig defines the xAI (Grok) provider settings.
type XAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Default: https://api.x.ai
	Model   string `yaml:"model"`    // Default: grok-3-mini
}

// Mem0Config defines the hosted memory service. When APIKey is empty
// the local SQLite store is used instead.
type Mem0Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// MemoryConfig defines the local memory store.
type MemoryConfig struct {
	// Path is the SQLite database file. Used only when no mem0 API
	// key is configured.
	Path string `yaml:"path"`
}

// CalDAVConfig defines the calendar backend. Calendar tools are
// disabled when URL is empty.
type CalDAVConfig struct {
	URL          string `yaml:"url"`
	CalendarPath string `yaml:"calendar_path"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

// MQTTConfig defines the trigger bridge connection.
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`     // Default: jarvix/trigger
	ClientID  string `yaml:"client_id"` // Default: jarvix
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// SpeechConfig defines the STT/TTS service.
type SpeechConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Voice   string `yaml:"voice"` // Default TTS voice
}

// AgentConfig defines turn orchestrator tuning.
type AgentConfig struct {
	// MaxWords bounds spoken reply length (default 35).
	MaxWords int `yaml:"max_words"`
	// UpcomingWindowMinutes is the calendar lookahead for context
	// notes (default 60).
	UpcomingWindowMinutes int `yaml:"upcoming_window_minutes"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		XAI: XAIConfig{
			BaseURL: "https://api.x.ai",
			Model:   "grok-3-mini",
		},
		Memory: MemoryConfig{Path: "jarvix.db"},
		MQTT: MQTTConfig{
			Topic:    "jarvix/trigger",
			ClientID: "jarvix",
		},
		Speech: SpeechConfig{Voice: "alloy"},
		Agent: AgentConfig{
			MaxWords:              35,
			UpcomingWindowMinutes: 60,
		},
	}
}
