package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardwork/internal/app"
	"shardwork/internal/checkpoint"
	"shardwork/internal/config"
	"shardwork/internal/errors"
	"shardwork/internal/logger"
	"shardwork/internal/units"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "shardwork",
	Short: "Apply a unit of work to every file of a sharded corpus",
	Long: `Resolves source globs into per-file work items, skips files that already have a
completion marker, and runs the configured unit over the rest with bounded
parallelism and retries. Interrupted runs resume where they left off.`,
	SilenceUsage: true,
	RunE:         runJob,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger <path> [--failed | --source <path>]",
	Short: "Show item outcomes recorded in a run ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  showLedger,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	config.RegisterFlags(rootCmd.Flags())

	ledgerCmd.Flags().Bool("failed", false, "List failed items")
	ledgerCmd.Flags().String("source", "", "Show the record of a single source path")
	rootCmd.AddCommand(ledgerCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer log.Sync()

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, stopping dispatch; rerun to resume")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = application.Run(ctx)

	if closeErr := application.Close(); closeErr != nil {
		log.Error("Error closing application", zap.Error(closeErr))
	}

	return err
}

func showLedger(cmd *cobra.Command, args []string) error {
	store, err := checkpoint.NewSQLiteStore(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	source, _ := cmd.Flags().GetString("source")
	failed, _ := cmd.Flags().GetBool("failed")
	return printLedger(cmd.Context(), store, cmd.OutOrStdout(), source, failed)
}

// printLedger writes one item's record when source is set, the failed items
// when failed is set, and per-status counts otherwise.
func printLedger(ctx context.Context, store checkpoint.Store, w io.Writer, source string, failed bool) error {
	out := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer out.Flush()

	switch {
	case source != "":
		r, err := store.GetItem(ctx, source)
		if err != nil {
			return err
		}
		if r == nil {
			return errors.Newf("no ledger record for %s", source)
		}
		fmt.Fprintf(out, "source:\t%s\n", r.Source)
		fmt.Fprintf(out, "destination:\t%s\n", r.Destination)
		fmt.Fprintf(out, "metadata:\t%s\n", r.Metadata)
		fmt.Fprintf(out, "status:\t%s\n", r.Status)
		fmt.Fprintf(out, "attempts:\t%d\n", r.Attempts)
		fmt.Fprintf(out, "run:\t%s\n", r.RunID)
		fmt.Fprintf(out, "updated:\t%s\n", r.UpdatedAt.Format("2006-01-02 15:04:05"))
		if r.LastError != "" {
			fmt.Fprintf(out, "error:\t%s\n", r.LastError)
		}
		return nil

	case failed:
		records, err := store.ListFailedItems(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "SOURCE\tATTEMPTS\tRUN\tUPDATED\tERROR")
		for _, r := range records {
			fmt.Fprintf(out, "%s\t%d\t%s\t%s\t%s\n", r.Source, r.Attempts, r.RunID, r.UpdatedAt.Format("2006-01-02 15:04:05"), r.LastError)
		}
		return nil
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	fmt.Fprintln(out, "STATUS\tITEMS")
	for _, s := range statuses {
		fmt.Fprintf(out, "%s\t%d\n", s, counts[checkpoint.ItemStatus(s)])
	}
	return nil
}

func main() {
	rootCmd.Flags().Lookup("unit").Usage = fmt.Sprintf("Unit of work to run %v", units.Kinds())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		if errors.IsConfig(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
