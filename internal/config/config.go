// Package config handles routecraft CLI configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from -config) is checked first by FindConfig. Then:
// ./routecraft.yaml, ~/.config/routecraft/config.yaml,
// /config/routecraft.yaml, /etc/routecraft/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"routecraft.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "routecraft", "config.yaml"))
	}

	paths = append(paths, "/config/routecraft.yaml") // Container convention
	paths = append(paths, "/etc/routecraft/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches DefaultSearchPaths and returns the first
// that exists. Returns the path found, or an error if nothing was found.
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

// Config holds all routecraft CLI configuration: the durable store
// backend and the set of adapter-backed routes to build at startup.
type Config struct {
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
	Store    StoreConfig   `yaml:"store"`
	Timers   []TimerRoute  `yaml:"timers"`
	Fetches  []FetchRoute  `yaml:"fetches"`
	Markdown []MarkdownJob `yaml:"markdown"`
	IMAP     []IMAPRoute   `yaml:"imap"`
	GitHub   GitHubConfig  `yaml:"github"`
	QR       QRConfig      `yaml:"qr"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
}

// StoreConfig selects the Context store backend.
type StoreConfig struct {
	// Backend is "memory" (default) or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file, used when Backend is "sqlite".
	Path string `yaml:"path"`
}

// TimerRoute configures one timer-sourced route.
type TimerRoute struct {
	ID       string        `yaml:"id"`
	Interval time.Duration `yaml:"interval"`
	Repeat   int           `yaml:"repeat"`
}

// FetchRoute configures one HTTP-polling route.
type FetchRoute struct {
	ID       string        `yaml:"id"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// MarkdownJob configures one markdown-document ingestion route.
type MarkdownJob struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// IMAPRoute configures one IMAP mailbox polling route.
type IMAPRoute struct {
	ID       string        `yaml:"id"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	TLS      bool          `yaml:"tls"`
	Folder   string        `yaml:"folder"`
	Interval time.Duration `yaml:"interval"`
}

// GitHubConfig configures the GitHub issue sink, shared across routes
// that name it as a destination.
type GitHubConfig struct {
	Repo    string `yaml:"repo"`
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// QRConfig configures the QR pairing-code sink's output directory.
type QRConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// MQTTConfig configures the MQTT-backed channel and the set of topic
// routes built on top of it.
type MQTTConfig struct {
	Broker   string      `yaml:"broker"`
	ClientID string      `yaml:"client_id"`
	Username string      `yaml:"username"`
	Password string      `yaml:"password"`
	Routes   []MQTTRoute `yaml:"routes"`
}

// MQTTRoute configures one route sourced from a subscribed MQTT topic
// on the channel described by the enclosing MQTTConfig.
type MQTTRoute struct {
	ID    string `yaml:"id"`
	Topic string `yaml:"topic"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${GITHUB_TOKEN}) as a
	// convenience for container deployments.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "routecraft.db")
	}
	for i := range c.IMAP {
		if c.IMAP[i].Port == 0 {
			c.IMAP[i].Port = 993
		}
		if !c.IMAP[i].TLS && c.IMAP[i].Port != 143 {
			c.IMAP[i].TLS = true
		}
		if c.IMAP[i].Folder == "" {
			c.IMAP[i].Folder = "INBOX"
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "routecraft"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Store.Backend != "memory" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("store.backend %q must be \"memory\" or \"sqlite\"", c.Store.Backend)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	checkID := func(id string) error {
		if id == "" {
			return fmt.Errorf("route id must not be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate route id %q", id)
		}
		seen[id] = true
		return nil
	}
	for _, t := range c.Timers {
		if err := checkID(t.ID); err != nil {
			return err
		}
		if t.Interval <= 0 {
			return fmt.Errorf("timers[%s].interval must be positive", t.ID)
		}
	}
	for _, f := range c.Fetches {
		if err := checkID(f.ID); err != nil {
			return err
		}
		if f.URL == "" {
			return fmt.Errorf("fetches[%s].url is required", f.ID)
		}
		if f.Interval <= 0 {
			return fmt.Errorf("fetches[%s].interval must be positive", f.ID)
		}
	}
	for _, m := range c.Markdown {
		if err := checkID(m.ID); err != nil {
			return err
		}
		if m.Path == "" {
			return fmt.Errorf("markdown[%s].path is required", m.ID)
		}
	}
	for _, a := range c.IMAP {
		if err := checkID(a.ID); err != nil {
			return err
		}
		if a.Host == "" {
			return fmt.Errorf("imap[%s].host is required", a.ID)
		}
		if a.Username == "" {
			return fmt.Errorf("imap[%s].username is required", a.ID)
		}
		if a.Interval <= 0 {
			return fmt.Errorf("imap[%s].interval must be positive", a.ID)
		}
	}
	if len(c.MQTT.Routes) > 0 && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.routes is non-empty")
	}
	for _, r := range c.MQTT.Routes {
		if err := checkID(r.ID); err != nil {
			return err
		}
		if r.Topic == "" {
			return fmt.Errorf("mqtt.routes[%s].topic is required", r.ID)
		}
	}
	return nil
}

// Default returns a minimal configuration with only a single timer
// route, suitable for a first run with no YAML file present.
func Default() *Config {
	cfg := &Config{
		Timers: []TimerRoute{{ID: "heartbeat", Interval: time.Minute}},
	}
	cfg.applyDefaults()
	return cfg
}
