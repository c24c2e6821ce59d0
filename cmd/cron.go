package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferguskendall2k/devman/internal/cron"
)

// cronCmd exposes the cron wheel as CLI subcommands (list/add/remove) for
// debugging and scripting outside the daemon (§4.6).
func cronCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and edit the cron job list",
	}
	root.AddCommand(cronListCmd())
	root.AddCommand(cronAddCmd())
	root.AddCommand(cronRemoveCmd())
	return root
}

func cronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every cron job",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cron.NewScheduler(cronStatePath(), nil)
			jobs := s.List()
			if len(jobs) == 0 {
				fmt.Println("no cron jobs configured")
				return nil
			}
			for _, j := range jobs {
				next := "—"
				if j.NextRun != nil {
					next = j.NextRun.Format(time.RFC3339)
				}
				fmt.Printf("%s  %-20s enabled=%-5v next=%s\n", j.ID[:8], j.Name, j.Enabled, next)
			}
			return nil
		},
	}
}

func cronAddCmd() *cobra.Command {
	var (
		name     string
		schedule string
		message  string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new agent-task cron job",
		Long: `Schedule syntax:
  every:<duration>   e.g. every:30m, every:2h
  at:<RFC3339 time>  e.g. at:2026-08-01T09:00:00Z
  cron:<expr>        e.g. cron:"0 9 * * *"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || schedule == "" || message == "" {
				return fmt.Errorf("cron add: --name, --schedule, and --message are all required")
			}
			sched, err := parseScheduleFlag(schedule)
			if err != nil {
				return err
			}

			s := cron.NewScheduler(cronStatePath(), nil)
			id := s.Add(cron.Job{
				Name:     name,
				Schedule: sched,
				Action:   cron.Action{Kind: cron.ActionAgentTask, Message: message, Model: model},
				Enabled:  true,
			})
			if err := s.Save(); err != nil {
				return err
			}
			fmt.Println("added job", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "job name")
	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "every:<dur> | at:<RFC3339> | cron:<expr>")
	cmd.Flags().StringVarP(&message, "message", "m", "", "agent task message")
	cmd.Flags().StringVarP(&model, "model", "M", "", "model override for this job")
	return cmd
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id-prefix>",
		Short: "Remove a cron job by id (or id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cron.NewScheduler(cronStatePath(), nil)
			prefix := args[0]
			var fullID string
			for _, j := range s.List() {
				if strings.HasPrefix(j.ID, prefix) {
					fullID = j.ID
					break
				}
			}
			if fullID == "" {
				return fmt.Errorf("no job matching id prefix %q", prefix)
			}
			if err := s.Remove(fullID); err != nil {
				return err
			}
			return s.Save()
		},
	}
}

func parseScheduleFlag(raw string) (cron.Schedule, error) {
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return cron.Schedule{}, fmt.Errorf("schedule must be kind:value, got %q", raw)
	}
	switch kind {
	case "every":
		d, err := time.ParseDuration(rest)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("every: %w", err)
		}
		return cron.Schedule{Kind: cron.ScheduleEvery, IntervalMS: d.Milliseconds()}, nil
	case "at":
		t, err := time.Parse(time.RFC3339, rest)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("at: %w", err)
		}
		return cron.Schedule{Kind: cron.ScheduleAt, At: t}, nil
	case "cron":
		return cron.Schedule{Kind: cron.ScheduleCron, Expr: rest}, nil
	default:
		return cron.Schedule{}, fmt.Errorf("unknown schedule kind %q (want every/at/cron)", kind)
	}
}
