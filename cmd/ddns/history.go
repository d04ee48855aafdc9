package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	historysqlite "github.com/laityts/ddns/history/sqlite"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recently recorded probe run",
		RunE:  runHistory,
	}

	// Read directly from the flag set: the check command already binds
	// the history_db key to its own --history flag.
	cmd.Flags().String("db", "", "sqlite database to read (defaults to history_db)")
	cmd.Flags().Bool("probes", false, "also list the run's individual probes")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return err
	}
	if path == "" {
		path = viper.GetString("history_db")
	}
	if path == "" {
		return fmt.Errorf("no history database configured: set history_db or pass --db")
	}

	withProbes, err := cmd.Flags().GetBool("probes")
	if err != nil {
		return err
	}

	repo, err := historysqlite.New(path)
	if err != nil {
		return err
	}
	defer repo.Close()

	return renderLastRun(cmd.OutOrStdout(), repo, withProbes)
}

// renderLastRun prints the newest recorded run and, optionally, its
// per-candidate outcomes.
func renderLastRun(w io.Writer, repo *historysqlite.Repository, withProbes bool) error {
	ctx := context.Background()

	run, err := repo.LastRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	fmt.Fprintf(w, "run %d: %s -> %s  probed %d  succeeded %d\n",
		run.ID,
		run.StartedAt.Format(time.RFC3339),
		run.FinishedAt.Format(time.RFC3339),
		run.Total,
		run.Succeeded,
	)
	if !withProbes {
		return nil
	}

	probes, err := repo.ProbesForRun(ctx, run.ID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tPORT\tSTATUS\tLATENCY\tOK")
	for _, p := range probes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%v\n", p.IP, p.Port, p.Status, p.LatencyMs, p.Succeeded)
	}
	return tw.Flush()
}
