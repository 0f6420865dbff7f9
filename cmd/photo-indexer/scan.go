package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-indexer/internal/core/indexer"
	"photo-indexer/internal/services"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Index all photos below a directory",
	Long: `Walk the directory (default: scanner.root_dir from the config) and index every
photo that is not yet known by its content hash. Already indexed files are
skipped, so scans can be repeated or resumed after an interruption.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("workers", 0, "Number of files analyzed in parallel (0 = config value)")
	scanCmd.Flags().Float64("threshold", 0, "Maximum face distance for the same profile (0 = config value)")
	scanCmd.Flags().String("strategy", "", "Profile matching strategy: first_match or nearest (empty = config value)")
	scanCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if workers := mustGetInt(cmd, "workers"); workers > 0 {
		a.cfg.Scanner.Workers = workers
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		a.cfg.Resolver.Threshold = threshold
	}
	if strategy := mustGetString(cmd, "strategy"); strategy != "" {
		a.cfg.Resolver.Strategy = strategy
	}

	root := a.cfg.Scanner.RootDir
	if len(args) == 1 {
		root = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := startMQTT(a)
	defer bridge.Close()

	notifier := services.NewNotifierService()
	if bridge != nil {
		notifier.Add(bridge.publisher)
	}

	ix, detectors, err := buildIndexer(ctx, a, notifier)
	if err != nil {
		return err
	}
	defer detectors.Close()

	if !mustGetBool(cmd, "no-progress") {
		var bar *progressbar.ProgressBar
		ix.SetProgressFunc(func(processed, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Indexing photos"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("photos"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set(processed)
		})
	}

	report, err := ix.Index(ctx, root)
	if report != nil {
		printReport(report)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println("Scan interrupted, run it again to continue")
		return nil
	}
	return err
}

func printReport(r *indexer.Report) {
	fmt.Printf("\nScanned %s in %s\n", r.Root, r.Duration().Round(time.Millisecond))
	fmt.Printf("  discovered: %d\n", r.Discovered)
	fmt.Printf("  indexed:    %d\n", r.Indexed)
	fmt.Printf("  skipped:    %d\n", r.Skipped)
	fmt.Printf("  tags:       %d\n", r.TagsWritten)
	fmt.Printf("  faces:      %d\n", r.FacesWritten)
	fmt.Printf("  profiles:   %d new\n", r.ProfilesCreated)
	if len(r.Failed) > 0 {
		fmt.Printf("  failed:     %d\n", len(r.Failed))
		for _, f := range r.Failed {
			fmt.Printf("    %s: %s\n", f.Path, f.Error)
		}
	}
}
