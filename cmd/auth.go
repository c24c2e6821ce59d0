package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/creds"
)

// authCmd reports which credential source the daemon will actually use,
// without printing the secret itself — a debugging surface for the
// env/OAuth-file/config resolver chain (§6).
func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show which Anthropic credential source is currently resolving",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			resolver := creds.NewAnthropicResolver(cfg.Secrets.APIKey)
			cred, ok := resolver.Resolve()
			if !ok {
				fmt.Println("no credential found: set ANTHROPIC_API_KEY, log in via a vendor CLI, or add a key to config.toml")
				return nil
			}
			fmt.Printf("credential resolved: kind=%s value=%s\n", cred.Kind, maskSecret(cred.Value))
			return nil
		},
	}
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
