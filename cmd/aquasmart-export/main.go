package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/export"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
)

const serviceName string = "aquasmart-export"

type options struct {
	out    string
	limit  int
	format string
}

func main() {
	ctx, logger := logging.NewLogger(context.Background(), serviceName, "", env.GetVariableOrDefault(zerolog.Nop(), "LOG_LEVEL", "info"))

	cmd := newRootCmd(func(ctx context.Context) (export.Source, error) {
		return openSource(ctx, logger)
	})

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type sourceFunc func(ctx context.Context) (export.Source, error)

func newRootCmd(source sourceFunc) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "aquasmart-export",
		Short: "Export camera images and sensor readings as a training dataset",
		Long: `Writes one BMP per camera image together with image_labels.csv, and the
sensor readings as CSV, XLSX or both. The database is selected with the
same POSTGRES_* and SQLITE_DSN variables as the service.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := export.Format(opts.format)
			if !format.Valid() {
				return fmt.Errorf("--format must be one of csv, xlsx or all, got %q", opts.format)
			}
			if opts.limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			src, err := source(cmd.Context())
			if err != nil {
				return err
			}

			start := time.Now()

			result, err := export.New(src).Dataset(cmd.Context(), opts.out, opts.limit, format)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d images (%d skipped) and %d readings (%d skipped) to %s in %s\n",
				result.Images, result.SkippedImages, result.Readings, result.SkippedReadings, opts.out, time.Since(start).Round(time.Millisecond))

			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "./dataset", "output directory")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", export.DefaultLimit, "maximum number of images and readings")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(export.FormatAll), "readings format: csv, xlsx or all")

	return cmd
}

func openSource(ctx context.Context, log zerolog.Logger) (export.Source, error) {
	connect := database.NewSQLiteConnector(log, env.GetVariableOrDefault(log, "SQLITE_DSN", "aquasmart.db"))
	if env.GetVariableOrDefault(log, "POSTGRES_HOST", "") != "" {
		connect = database.NewPostgreSQLConnector(log)
	}

	repo, err := ponds.NewPondRepository(connect)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pondmanagement.New(repo, messagebus.NewLocal(log), softsensor.New(time.Local)), nil
}
