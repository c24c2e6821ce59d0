package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/agent"
	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/storage"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// chatCmd is the interactive REPL, standalone against the same agent.Loop
// the daemon runs per turn — grounded on goclaw's agent_chat.go standalone
// fallback mode, minus its gateway-client-mode branch (devman has no
// always-on session-bus concept outside the serve daemon).
func chatCmd() *cobra.Command {
	var (
		session string
		model   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive REPL against the configured model and tool set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if session == "" {
				session = "default"
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

			convPath := filepath.Join(chatsDir("cli"), session+".json")
			conv := contextstore.WithPersistence(convPath)

			fmt.Fprintln(os.Stderr, "devman chat — type a message, Ctrl+D to exit.")
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Fprint(os.Stderr, "> ")
				if !scanner.Scan() {
					break
				}
				text := scanner.Text()
				if text == "" {
					continue
				}
				res, err := loop.Run(cmd.Context(), conv, text, nil)
				if err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
					continue
				}
				fmt.Println(res.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "conversation session key (default: \"default\")")
	cmd.Flags().StringVarP(&model, "model", "M", "", "model override (default: models.standard)")
	return cmd
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
