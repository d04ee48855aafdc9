package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/laityts/ddns"
	historysqlite "github.com/laityts/ddns/history/sqlite"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the candidate pool and write the ranked lists",
		RunE:  runCheck,
	}

	cmd.Flags().Int("workers", ddns.DefaultWorkerCap, "maximum concurrent probes")
	cmd.Flags().String("geography", "", "only keep candidates with this country tag")
	cmd.Flags().Int("latency-limit", 200, "exclusive latency ceiling (ms) for the preferred list")
	cmd.Flags().IntSlice("preferred-ports", nil, "optional port allow-list for the preferred list")
	cmd.Flags().String("history", "", "sqlite database recording probe history")

	must(viper.BindPFlag("workers", cmd.Flags().Lookup("workers")))
	must(viper.BindPFlag("geography", cmd.Flags().Lookup("geography")))
	must(viper.BindPFlag("latency_limit", cmd.Flags().Lookup("latency-limit")))
	must(viper.BindPFlag("preferred_ports", cmd.Flags().Lookup("preferred-ports")))
	must(viper.BindPFlag("history_db", cmd.Flags().Lookup("history")))

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	// An interrupt stops submitting new probes; in-flight ones finish
	// or hit their own timeout.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := ddns.ResolveSource(
		viper.GetString("sources.pairs"),
		viper.GetString("sources.table"),
	)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"kind": src.Kind.String(),
		"path": src.Path,
	}).Info("resolved candidate source")

	candidates, stats, err := ddns.LoadCandidates(src, viper.GetString("geography"))
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"loaded":   stats.Loaded,
		"skipped":  stats.Skipped,
		"filtered": stats.Filtered,
	}).Info("candidate source loaded")

	sink, err := ddns.NewDiagnosticsSink(viper.GetString("outputs.diagnostics"), log)
	if err != nil {
		return err
	}

	checker := ddns.NewChecker(viper.GetString("check_url"))
	checker.Timeout = viper.GetDuration("timeout")
	checker.Logger = log

	pool := ddns.NewPool(checker)
	pool.SetWorkerCap(viper.GetInt("workers"))
	pool.SetLogger(log)
	pool.SetDiagnostics(sink)
	pool.SetProgress(viper.GetBool("progress"))

	startedAt := time.Now()
	outcomes := pool.Run(ctx, candidates)
	finishedAt := time.Now()

	parts := ddns.Rank(outcomes)
	filter := ddns.PreferredFilter{
		MaxLatencyMs: viper.GetInt("latency_limit"),
		Ports:        preferredPorts(),
	}
	preferred := filter.Apply(parts.All)

	files := ddns.OutputFiles{
		All:         viper.GetString("outputs.all"),
		Standard:    viper.GetString("outputs.standard"),
		NonStandard: viper.GetString("outputs.nonstandard"),
		Preferred:   viper.GetString("outputs.preferred"),
	}
	if err := ddns.WritePartitions(files, parts, preferred); err != nil {
		return err
	}

	ddns.LogSummary(log, files, parts, preferred)
	log.WithField("file", sink.Path()).Info("full diagnostics written")

	recordHistory(startedAt, finishedAt, outcomes)
	return nil
}

// recordHistory persists the run when a history database is
// configured. It is best-effort and runs on a fresh context so an
// interrupt that ended the probe loop cannot lose the run record.
func recordHistory(startedAt, finishedAt time.Time, outcomes []ddns.Outcome) {
	path := viper.GetString("history_db")
	if path == "" {
		return
	}

	repo, err := historysqlite.New(path)
	if err != nil {
		log.WithError(err).Warn("cannot open history database")
		return
	}
	defer repo.Close()

	runID, err := repo.RecordRun(context.Background(), startedAt, finishedAt, outcomes)
	if err != nil {
		log.WithError(err).Warn("cannot record run history")
		return
	}
	log.WithFields(logrus.Fields{"run": runID, "db": path}).Debug("run recorded")
}

func preferredPorts() []uint16 {
	raw := viper.GetIntSlice("preferred_ports")
	ports := make([]uint16, 0, len(raw))
	for _, p := range raw {
		if p > 0 && p <= 0xffff {
			ports = append(ports, uint16(p))
		}
	}
	return ports
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
