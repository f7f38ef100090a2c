// Command ddtrace-consumer is a reference polling consumer: it opens a
// Source over a channel directory, pops from both rings on a fixed tick
// (see drainTick for how far one tick drains), and prints a running summary
// table plus (optionally) appends drained records to a binary file in
// the wire format cmd/ddtrace-dump reads.
//
// The consumer itself is an out-of-scope external collaborator per
// spec.md §1 ("the offline consumer's disk-logging/TSV dumping tools
// ... out of scope"); this binary is a concrete, runnable shape for
// that contract, grounded on the polling-loop/signal-handling/
// tabwriter conventions of the teacher pack's own CLI tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kolkov/ddtrace/internal/ddtrace/record"
	"github.com/kolkov/ddtrace/internal/ddtrace/source"
)

type opts struct {
	root     string
	baseName string
	interval time.Duration
	dumpPath string
	pretty   bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "ddtrace-consumer --base-name NAME",
		Short: "Poll and drain recorded interval channels",
		Long: `ddtrace-consumer opens the channels-version beacon and every rec_*
channel file published under <root>/<base-name>/<schema-version>/, round-robins
over them per spec.md §4.H's selection algorithm, and drains both the "all"
and "sla_exceeded" rings on a fixed tick. Dead channels (producer gone) are
reaped after two consecutive liveness-probe failures.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVar(&o.root, "root", "/dev/shm/ddtrace", "shared-memory root directory")
	root.Flags().StringVar(&o.baseName, "base-name", "", "channel base name to drain (required)")
	root.Flags().DurationVarP(&o.interval, "interval", "i", 50*time.Millisecond, "poll interval")
	root.Flags().StringVar(&o.dumpPath, "dump", "", "append drained records here in cmd/ddtrace-dump's binary wire format")
	root.Flags().BoolVar(&o.pretty, "pretty", true, "print a live summary table instead of one line per poll")
	_ = root.MarkFlagRequired("base-name")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	src, err := source.Init(o.root, o.baseName)
	if err != nil {
		return errors.Wrap(err, "ddtrace-consumer: init source")
	}
	defer src.Close()

	var dumpFile *os.File
	if o.dumpPath != "" {
		dumpFile, err = os.OpenFile(o.dumpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "ddtrace-consumer: open dump file %s", o.dumpPath)
		}
		defer dumpFile.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tw *tabwriter.Writer
	if o.pretty {
		tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TICK\tALL DRAINED\tSLA-EXCEEDED\tTOTAL ALL\tTOTAL SLA")
		tw.Flush()
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	var totalAll, totalSLA uint64
	var tick uint64
	reapEvery := 20 // cleanup_dead_channels is file-I/O-bound; skip most ticks

	for {
		select {
		case <-ctx.Done():
			slog.Info("ddtrace-consumer: shutting down", "total_all", totalAll, "total_sla", totalSLA)
			return nil
		case <-ticker.C:
			tick++
			drainedAll, drainedSLA := drainTick(src, dumpFile)
			totalAll += drainedAll
			totalSLA += drainedSLA

			if int(tick)%reapEvery == 0 {
				src.CleanupDeadChannels()
			}

			if o.pretty {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", tick, drainedAll, drainedSLA, totalAll, totalSLA)
				tw.Flush()
			}
		}
	}
}

// drainTick keeps calling PopRecord, then PopSLAExceededRecord, until
// each reports empty, so a burst published between ticks is drained in
// one tick rather than one record per tick. Each loop stops at the first
// empty result, which only reflects the channel selected for that call;
// records still waiting in other channels are left for later ticks.
func drainTick(src *source.Source, dumpFile *os.File) (all, sla uint64) {
	var rec record.IntervalRecord

	for src.PopRecord(&rec) {
		all++
		if dumpFile != nil {
			appendRecord(dumpFile, rec)
		}
	}
	for src.PopSLAExceededRecord(&rec) {
		sla++
	}
	return all, sla
}

func appendRecord(f *os.File, rec record.IntervalRecord) {
	buf, err := rec.MarshalBinary()
	if err != nil {
		slog.Warn("ddtrace-consumer: encode record", "err", err)
		return
	}
	if _, err := f.Write(buf); err != nil {
		slog.Warn("ddtrace-consumer: append dump file", "err", err)
	}
}
