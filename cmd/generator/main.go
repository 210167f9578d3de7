package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"obd-backend/internal/database"
	"obd-backend/internal/logging"
	"obd-backend/internal/synthetic"
	"obd-backend/pkg/config"
)

const loadBatchSize = 10000

func main() {
	var (
		outputDir string
		load      bool
	)

	cmd := &cobra.Command{
		Use:   "generator",
		Short: "Generate three synthetic OBD-II CSV datasets",
		Long: `Writes clean_may_1-21.csv, april_1-21_20pct.csv and
march_1-21_50pct_allfaults.csv, each with 50000 labelled rows.
With --load the rows are also inserted into the ClickHouse telemetry table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", outputDir, err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var store synthetic.Writer
			if load {
				db, err := openStore(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				store = db
			}

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			for _, ds := range synthetic.Datasets {
				rows := ds.Build(rng, synthetic.DatasetRows)

				path, err := ds.WriteFile(outputDir, rows)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)

				if store != nil {
					if err := synthetic.Load(ctx, store, rows, loadBatchSize); err != nil {
						return fmt.Errorf("failed to load %s: %w", ds.FileName, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows from %s\n", len(rows), ds.FileName)
				}
			}

			abs, err := filepath.Abs(outputDir)
			if err != nil {
				abs = outputDir
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All CSV files written to: %s\n", abs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to save CSVs")
	cmd.Flags().BoolVar(&load, "load", false, "Also insert the rows into ClickHouse (configured from the environment)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*database.ClickHouseDB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return database.NewClickHouseDB(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
}
