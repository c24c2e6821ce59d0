// Package config holds DevMan's on-disk TOML configuration.
//
// The table layout follows spec.md §6 exactly; default values follow
// _examples/original_source/src/config.rs, the Rust implementation this
// spec was distilled from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config is the top-level on-disk configuration document.
type Config struct {
	Models     ModelConfig      `toml:"models"`
	Tools      ToolsConfig      `toml:"tools"`
	Agents     AgentPoolConfig  `toml:"agents"`
	Telegram   *TelegramConfig  `toml:"telegram,omitempty"`
	Discord    *DiscordConfig   `toml:"discord,omitempty"`
	Brave      *BraveConfig     `toml:"brave,omitempty"`
	ElevenLabs *ElevenLabsConfig `toml:"elevenlabs,omitempty"`
	GitHub     *GitHubConfig    `toml:"github,omitempty"`
	Secrets    SecretsConfig    `toml:"secrets"`
	Dashboard  DashboardConfig  `toml:"dashboard"`
	Logging    LoggingConfig    `toml:"logging"`

	mu   sync.RWMutex `toml:"-"`
	path string       `toml:"-"`
}

type ModelConfig struct {
	Manager  string `toml:"manager"`
	Quick    string `toml:"quick"`
	Standard string `toml:"standard"`
	Complex  string `toml:"complex"`
}

type ToolsConfig struct {
	ShellConfirm bool     `toml:"shell_confirm"`
	WebEnabled   bool     `toml:"web_enabled"`
	Custom       []string `toml:"custom,omitempty"`
}

type AgentPoolConfig struct {
	MaxConcurrent      int    `toml:"max_concurrent"`
	MaxTurns           int    `toml:"max_turns"`
	MaxTokens          int    `toml:"max_tokens"`
	Recovery           string `toml:"recovery"`
	CheckpointInterval int    `toml:"checkpoint_interval"`
}

// TelegramConfig carries the shared bot_token/allowed_users plus the list of
// scoped bot instances the manager's assign_bot tool appends to (§4.8).
type TelegramConfig struct {
	BotToken     string     `toml:"bot_token,omitempty"`
	AllowedUsers []int64    `toml:"allowed_users,omitempty"`
	Bots         []BotEntry `toml:"bots,omitempty"`
}

type DiscordConfig struct {
	BotToken     string     `toml:"bot_token,omitempty"`
	AllowedUsers []string   `toml:"allowed_users,omitempty"`
	Bots         []BotEntry `toml:"bots,omitempty"`
}

// BotEntry is a per-scoped-bot record, written by assign_bot and read at
// startup to instantiate BotInstances.
type BotEntry struct {
	Name            string   `toml:"name"`
	BotToken        string   `toml:"bot_token"`
	AllowedUsers    []int64  `toml:"allowed_users,omitempty"`
	Tasks           []string `toml:"tasks,omitempty"`
	SystemPrompt    string   `toml:"system_prompt,omitempty"`
	SystemPromptFile string  `toml:"system_prompt_file,omitempty"`
	DefaultModel    string   `toml:"default_model,omitempty"`
	MemoryAccess    string   `toml:"memory_access,omitempty"` // "scoped" | "full"
	MaxTokens       int      `toml:"max_tokens,omitempty"`
	MaxTurns        int      `toml:"max_turns,omitempty"`
}

type BraveConfig struct {
	APIKey string `toml:"api_key"`
}

type ElevenLabsConfig struct {
	APIKey  string `toml:"api_key"`
	VoiceID string `toml:"voice_id,omitempty"`
}

type GitHubConfig struct {
	Token string `toml:"token"`
}

type SecretsConfig struct {
	Backend string `toml:"backend"`
	APIKey  string `toml:"api_key,omitempty"`
}

type DashboardConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Bind    string `toml:"bind"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

// Default returns a Config populated with the same defaults as the original
// Rust implementation's Default impls.
func Default() *Config {
	return &Config{
		Models: ModelConfig{
			Manager:  "claude-haiku-4-5-20250512",
			Quick:    "claude-haiku-4-5-20250512",
			Standard: "claude-sonnet-4-20250514",
			Complex:  "claude-opus-4-20250414",
		},
		Tools: ToolsConfig{
			ShellConfirm: false,
			WebEnabled:   true,
		},
		Agents: AgentPoolConfig{
			MaxConcurrent:      5,
			MaxTurns:           50,
			MaxTokens:          16384,
			Recovery:           "report",
			CheckpointInterval: 1,
		},
		Secrets: SecretsConfig{Backend: "auto"},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    18790,
			Bind:    "127.0.0.1",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultPath mirrors the original's dirs::config_dir()/devman/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "devman", "config.toml")
}

// Load reads Config from DefaultPath, falling back to Default() if the file
// does not exist.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads Config from an explicit path. A missing file yields
// Default() rather than an error, matching the original's load() contract.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the full document to its path (or DefaultPath if unset),
// creating the parent directory first. This is a full-document rewrite —
// formatting-preserving partial edits go through Patch (patch.go) instead.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.path
	if path == "" {
		path = DefaultPath()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	return enc.Encode(c)
}

// SaveTo sets the config's save path and writes it, for callers (the init
// wizard) that build a Config via Default() rather than LoadFrom.
func (c *Config) SaveTo(path string) error {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
	return c.Save()
}

// Path returns the path this config was loaded from / will save to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// AddTelegramBot appends a scoped bot entry to the telegram table,
// implementing the "mutate the on-disk config" half of assign_bot (§4.8).
// Returns an error if name collides with an existing bot.
func (c *Config) AddTelegramBot(entry BotEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Telegram == nil {
		c.Telegram = &TelegramConfig{}
	}
	for _, b := range c.Telegram.Bots {
		if b.Name == entry.Name {
			return fmt.Errorf("bot %q already assigned", entry.Name)
		}
	}
	c.Telegram.Bots = append(c.Telegram.Bots, entry)
	return nil
}

// RemoveTelegramBot deletes a scoped bot entry by name. Returns an error if
// no such bot exists.
func (c *Config) RemoveTelegramBot(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Telegram == nil {
		return fmt.Errorf("no bot named %q", name)
	}
	out := c.Telegram.Bots[:0]
	found := false
	for _, b := range c.Telegram.Bots {
		if b.Name == name {
			found = true
			continue
		}
		out = append(out, b)
	}
	if !found {
		return fmt.Errorf("no bot named %q", name)
	}
	c.Telegram.Bots = out
	return nil
}
