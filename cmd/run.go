package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/agent"
	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/storage"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// runCmd is a one-shot turn with no persisted conversation — scripting/cron
// testing surface, grounded on agent_chat.go's `-m` one-shot flag but
// without a session key (every invocation is a fresh Conversation).
func runCmd() *cobra.Command {
	var (
		message string
		model   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single message through the agent and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("run: --message is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loop := &agent.Loop{
				Client:   buildClient(cfg),
				Registry: buildRegistry(cfg),
				Caps: tools.Capabilities{
					TaskStorage: storage.GlobalStorage(memoryRoot()),
					MemoryIndex: storage.NewMemoryIndex(memoryRoot()),
					WorkingDir:  ".",
				},
				Model:    pick(model, cfg.Models.Standard),
				MaxTurns: cfg.Agents.MaxTurns,
			}

			res, err := loop.Run(cmd.Context(), contextstore.New(), message, nil)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			fmt.Println(res.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "message to send (required)")
	cmd.Flags().StringVarP(&model, "model", "M", "", "model override (default: models.standard)")
	return cmd
}
