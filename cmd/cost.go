package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/cost"
)

// costCmd dumps the accumulated per-(model, bot) cost ledger the daemon has
// been persisting to cost-tracker.json.
func costCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cost",
		Short: "Print accumulated token usage and dollar cost by model and bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker := cost.NewTracker(costTrackerPath(), nil)
			entries := tracker.Snapshot()
			if len(entries) == 0 {
				fmt.Println("no usage recorded yet")
				return nil
			}
			fmt.Printf("%-28s %-16s %10s %10s %10s\n", "MODEL", "BOT", "IN TOK", "OUT TOK", "USD")
			var total float64
			for _, e := range entries {
				fmt.Printf("%-28s %-16s %10d %10d %10.4f\n", e.Model, e.Bot, e.InputTokens, e.OutputTokens, e.CostUSD)
				total += e.CostUSD
			}
			fmt.Printf("\ntotal: $%.4f\n", total)
			return nil
		},
	}
}
