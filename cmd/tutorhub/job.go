package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and run background jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSCHEDULE\tDESCRIPTION")
				for _, j := range a.scheduler.ListJobs() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", j.Name, j.Schedule, j.Description)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run a job once, ignoring its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				start := time.Now()
				if err := a.scheduler.RunNow(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("job %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s completed in %s\n", args[0], time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	})
	return cmd
}

// withApp собирает приложение на время одной команды.
func withApp(cmd *cobra.Command, fn func(*app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	appLog, slogger := setupLogger(cfg)

	a, err := newApp(cmd.Context(), cfg, appLog, slogger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
