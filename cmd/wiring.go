package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/creds"
	"github.com/ferguskendall2k/devman/internal/logging"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// memoryRoot returns the .devman/memory directory under the OS user config
// dir (os.UserConfigDir()/devman), the same base every state path in this
// file uses; no separate OS data directory is used.
func memoryRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "devman", ".devman", "memory")
}

func chatsDir(botName string) string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "devman", "chats", botName)
}

func tmpDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "devman", "tmp")
}

func cronStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "devman", "cron-jobs.json")
}

func costTrackerPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "devman", "cost-tracker.json")
}

// buildClient resolves an Anthropic credential chain and constructs the
// streaming client per §4.1/§6.
func buildClient(cfg *config.Config) providers.Client {
	resolver := creds.NewAnthropicResolver(cfg.Secrets.APIKey)
	return providers.NewAnthropicClient(resolver, "", cfg.Models.Standard)
}

// buildRegistry constructs the shared tool registry from config (§4.3).
func buildRegistry(cfg *config.Config) *tools.Registry {
	return tools.BuildRegistry(cfg)
}

func setupLogging(cfg *config.Config, sink logging.Sink) *slog.Logger {
	logger, _, err := logging.Setup(cfg.Logging.Level, cfg.Logging.File, sink)
	if err != nil {
		slog.Error("logging setup failed, falling back to stderr default", "error", err)
		return slog.Default()
	}
	return logger
}
