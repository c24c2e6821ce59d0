package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/config"
)

// initCmd runs the first-run setup wizard: a terminal form that collects
// just enough to produce a working config.toml (model tier, credential
// source, and an optional Telegram bot token), then writes it via
// config.Save. No exemplar in the pack imports charmbracelet/huh in source,
// so this form is built from its stable public API (NewForm/NewGroup/
// NewInput/NewSelect/NewConfirm) rather than copied from a teacher file —
// see DESIGN.md.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive first-run setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()

			var (
				apiKey        string
				standardModel = cfg.Models.Standard
				complexModel  = cfg.Models.Complex
				wantTelegram  bool
				telegramToken string
				dashboardPort = strconv.Itoa(cfg.Dashboard.Port)
				webEnabled    = cfg.Tools.WebEnabled
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Anthropic API key").
						Description("Leave blank to use ANTHROPIC_API_KEY or a vendor CLI's OAuth login instead.").
						Value(&apiKey),
					huh.NewSelect[string]().
						Title("Standard-tier model").
						Options(
							huh.NewOption("claude-sonnet-4-20250514", "claude-sonnet-4-20250514"),
							huh.NewOption("claude-haiku-4-5-20250512", "claude-haiku-4-5-20250512"),
						).
						Value(&standardModel),
					huh.NewSelect[string]().
						Title("Complex-tier model").
						Options(
							huh.NewOption("claude-opus-4-20250414", "claude-opus-4-20250414"),
							huh.NewOption("claude-sonnet-4-20250514", "claude-sonnet-4-20250514"),
						).
						Value(&complexModel),
				),
				huh.NewGroup(
					huh.NewConfirm().
						Title("Enable web search / fetch tools?").
						Value(&webEnabled),
					huh.NewInput().
						Title("Dashboard port").
						Value(&dashboardPort),
				),
				huh.NewGroup(
					huh.NewConfirm().
						Title("Configure a Telegram bot now?").
						Value(&wantTelegram),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("init wizard: %w", err)
			}

			if wantTelegram {
				tgForm := huh.NewForm(huh.NewGroup(
					huh.NewInput().
						Title("Telegram bot token").
						Value(&telegramToken),
				))
				if err := tgForm.Run(); err != nil {
					return fmt.Errorf("init wizard: %w", err)
				}
			}

			cfg.Secrets.APIKey = apiKey
			cfg.Models.Standard = standardModel
			cfg.Models.Complex = complexModel
			cfg.Tools.WebEnabled = webEnabled
			if port, err := strconv.Atoi(dashboardPort); err == nil {
				cfg.Dashboard.Port = port
			}
			if wantTelegram && telegramToken != "" {
				cfg.Telegram = &config.TelegramConfig{BotToken: telegramToken}
			}

			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			if err := cfg.SaveTo(path); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}
