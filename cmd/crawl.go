package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/app"
	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <file>",
		Short: "Crawl every URL listed in file",
		Long: `Reads file line by line and feeds each line to the worker pool. SIGINT or
SIGTERM stops the crawl early; the partial totals are still printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, load, args[0])
		},
	}

	flags := cmd.Flags()
	flags.Int("workers", 8, "number of concurrent workers")
	flags.Int("queue-capacity", 0, "work queue capacity (0 means one slot per worker)")
	flags.Int("max-items", 0, "stop after this many lines (0 means no limit)")
	flags.Int64("byte-ceiling", crawler.DefaultByteCeiling, "largest body, in bytes, that is downloaded")
	flags.Float64("max-rps", 0, "cap on probes plus downloads per second (0 means unlimited)")
	flags.String("storage", "none", "body archive backend: none, memory, local or gcs")
	return cmd
}

func runCrawl(cmd *cobra.Command, load loadFunc, path string) error {
	cfg, err := load(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.Logger().Warn("close failed", zap.Error(cerr))
		}
	}()

	result, err := a.Crawl(ctx, path)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func printResult(w io.Writer, r crawler.Result) {
	if r.Canceled {
		fmt.Fprintln(w, "Crawl canceled; totals are partial.")
	}
	fmt.Fprintf(w, "Total sites in file: %d\n", r.TotalSites)
	fmt.Fprintf(w, "Total unique sites: %d\n", r.TotalUniqueSites)
	fmt.Fprintf(w, "Replies from: %d\n", r.TotalResponsiveSites)
	fmt.Fprintf(w, "Hosts not found: %d\n", r.TotalUnfound)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Bytes downloaded: %d\n", r.TotalBytesDownloaded)
	fmt.Fprintf(w, "Total time: %s\n", r.TotalTime)
}
