package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/bot"
	"github.com/ferguskendall2k/devman/internal/channels"
	"github.com/ferguskendall2k/devman/internal/channels/discord"
	"github.com/ferguskendall2k/devman/internal/channels/telegram"
	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/cost"
	"github.com/ferguskendall2k/devman/internal/cron"
	"github.com/ferguskendall2k/devman/internal/dashboard"
	"github.com/ferguskendall2k/devman/internal/manager"
)

// serveCmd runs the daemon: every configured bot instance, the cron wheel,
// the cost meter, and (if enabled) the dashboard, all under one process
// (§4.7, §6). Exits 0 on a clean signal shutdown, and with the supervisor's
// restart exit code when a manager tool (assign_bot/remove_bot) has tripped
// restart_requested — the surrounding process supervisor is expected to
// relaunch devman serve on that code.
func serveCmd() *cobra.Command {
	const restartExitCode = 75

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: bots, cron, cost meter, dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			broadcaster := dashboard.NewBroadcaster()
			logger := setupLogging(cfg, broadcaster)

			client := buildClient(cfg)
			registry := buildRegistry(cfg)
			memRoot := memoryRoot()
			scheduler := cron.NewScheduler(cronStatePath(), logger)
			costTracker := cost.NewTracker(costTrackerPath(), nil)

			daemon := &bot.Daemon{
				Cron:       scheduler,
				Cost:       costTracker,
				Registry:   registry,
				Client:     client,
				MemoryRoot: memRoot,
				Logger:     logger,
			}

			instances, err := buildBotInstances(cfg)
			if err != nil {
				return fmt.Errorf("wiring bot instances: %w", err)
			}
			daemon.Bots = instances

			mgr := manager.New(cfg, client, memRoot, daemon, &daemon.RestartRequested)
			manager.RegisterManagerTools(registry)
			daemon.Manager = mgr

			var dashSrv *dashboard.Server
			if cfg.Dashboard.Enabled {
				dashSrv = dashboard.New(cfg, costTracker, daemon, mgr, tmpDir(), broadcaster)
				go func() {
					if err := dashSrv.ListenAndServe(); err != nil {
						logger.Error("dashboard server exited", "error", err)
					}
				}()
			}

			runErr := daemon.Run(cmd.Context())
			_ = costTracker.Save()

			if bot.IsRestartRequested(runErr) {
				logger.Info("restart requested, exiting for supervisor relaunch")
				os.Exit(restartExitCode)
			}
			return runErr
		},
	}
	return cmd
}

// buildBotInstances wires every configured Telegram/Discord bot entry —
// the always-on primary plus each manager-assigned scoped bot — into a
// bot.Instance (§4.7 wiring order).
func buildBotInstances(cfg *config.Config) ([]*bot.Instance, error) {
	var out []*bot.Instance

	if cfg.Telegram != nil && cfg.Telegram.BotToken != "" {
		fe, err := telegram.New(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		inst := bot.NewInstance("manager", fe, chatsDir("manager"))
		inst.Model = cfg.Models.Manager
		inst.SystemPrompt = "You are the DevMan manager bot: you can assign_bot, remove_bot, spawn_agent, list_agents, and kill_agent."
		inst.TaskScope = []string{"*"}
		inst.MemoryAccess = "full"
		inst.MaxTurns = cfg.Agents.MaxTurns
		inst.MaxTokens = cfg.Agents.MaxTokens
		inst.AllowedUsers = int64SetToStrings(cfg.Telegram.AllowedUsers)
		inst.ManagerCapable = true
		out = append(out, inst)

		for _, entry := range cfg.Telegram.Bots {
			scopedFE, err := telegram.New(entry.BotToken)
			if err != nil {
				return nil, fmt.Errorf("telegram bot %q: %w", entry.Name, err)
			}
			out = append(out, buildScopedInstance(cfg, entry, scopedFE))
		}
	}

	if cfg.Discord != nil && cfg.Discord.BotToken != "" {
		fe, err := discord.New(cfg.Discord.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		inst := bot.NewInstance("discord-manager", fe, chatsDir("discord-manager"))
		inst.Model = cfg.Models.Manager
		inst.SystemPrompt = "You are the DevMan manager bot on Discord."
		inst.TaskScope = []string{"*"}
		inst.MemoryAccess = "full"
		inst.MaxTurns = cfg.Agents.MaxTurns
		inst.MaxTokens = cfg.Agents.MaxTokens
		inst.AllowedUsers = stringSliceToSet(cfg.Discord.AllowedUsers)
		inst.ManagerCapable = true
		out = append(out, inst)
	}

	return out, nil
}

func buildScopedInstance(cfg *config.Config, entry config.BotEntry, fe channels.Frontend) *bot.Instance {
	inst := bot.NewInstance(entry.Name, fe, chatsDir(entry.Name))
	inst.Model = entry.DefaultModel
	if inst.Model == "" {
		inst.Model = cfg.Models.Standard
	}
	inst.SystemPrompt = entry.SystemPrompt
	inst.TaskScope = entry.Tasks
	if len(inst.TaskScope) == 0 {
		inst.TaskScope = []string{"*"}
	}
	inst.MemoryAccess = entry.MemoryAccess
	if inst.MemoryAccess == "" {
		inst.MemoryAccess = "scoped"
	}
	inst.MaxTurns = entry.MaxTurns
	if inst.MaxTurns == 0 {
		inst.MaxTurns = cfg.Agents.MaxTurns
	}
	inst.MaxTokens = entry.MaxTokens
	if inst.MaxTokens == 0 {
		inst.MaxTokens = cfg.Agents.MaxTokens
	}
	inst.AllowedUsers = int64SetToStrings(entry.AllowedUsers)
	return inst
}

func int64SetToStrings(ids []int64) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[fmt.Sprintf("%d", id)] = true
	}
	return out
}

func stringSliceToSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
