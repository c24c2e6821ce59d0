// Package cmd wires the DevMan CLI tree (§6): chat, run, init, auth, serve,
// cost, cron.
//
// Grounded on goclaw's cmd/root.go cobra-tree shape (persistent --config/-v
// flags, one AddCommand call per subcommand).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/config"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "devman",
	Short: "DevMan — self-hosting agentic runtime",
	Long:  "DevMan exposes LLM agents over chat frontends, with a cron wheel, a cost meter, and a local observability dashboard.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: OS config dir/devman/config.toml)")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(costCmd())
	rootCmd.AddCommand(cronCmd())
}

// Execute runs the CLI, exiting per §6's exit-code contract: 0 normal, 2
// misuse, non-zero-positive for a deliberate supervisor restart.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFrom(cfgFile)
	}
	return config.Load()
}
