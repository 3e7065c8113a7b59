package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"table-projection-go/config"
	"table-projection-go/engine"
	"table-projection-go/logging"
	"table-projection-go/operators"
	"table-projection-go/operators/project"
	"table-projection-go/rpc"
	"table-projection-go/settings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

// shown by renderers when the visible column list is empty
const allHiddenMessage = "Every field is hidden right now"

var (
	configPath   string
	envPath      string
	settingsPath string
	sheet        string
	selectCols   []string
	logger       = log.NewNopLogger()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tableproj",
		Short: "Project and pivot tabular query results",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := config.Decode(configPath); err != nil {
					return err
				}
			}
			if err := config.LoadEnv(envPath); err != nil {
				return err
			}
			cfg := config.GetConfig()
			var err error
			logger, err = logging.New(cmd.ErrOrStderr(), cfg.Logging.Format, cfg.Logging.Level)
			return err
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "dotenv file with TABLEPROJ_* overrides")

	projectCmd := &cobra.Command{
		Use:   "project [file]",
		Short: "Print the table a csv, parquet or xlsx file renders to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	projectCmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "YAML settings file")
	projectCmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet (default: config, then first sheet)")
	projectCmd.Flags().StringSliceVar(&selectCols, "select", nil, "only read these columns, in this order")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the projection engine over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(projectCmd, serveCmd)
	return rootCmd
}

func runProject(ctx context.Context, w io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.GetConfig()
	if sheet == "" {
		sheet = cfg.Source.XLSXSheet
	}
	op, err := project.OpenFile(path, project.FileOptions{
		BatchSize:     int64(cfg.Source.BatchSize),
		NullTokens:    cfg.Source.CSVNullTokens,
		Sheet:         sheet,
		MaxFileSizeMB: cfg.Source.MaxFileSizeMB,
	})
	if err != nil {
		return err
	}
	raw, err := operators.Collect(op, batchSize(cfg.Source.BatchSize))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer raw.Release()
	if len(selectCols) > 0 {
		selected, err := project.ProjectSchemaFilterDown(raw, selectCols...)
		if err != nil {
			return err
		}
		defer selected.Release()
		raw = selected
	}

	file, stored, err := loadSettings(settingsPath)
	if err != nil {
		return err
	}
	ds, err := settings.ApplyOverrides(raw, file.Columns)
	if err != nil {
		return err
	}
	defer ds.Release()

	res, err := settings.TableGraph().Resolve(settings.Input{Data: ds, Structured: file.Structured}, stored)
	if err != nil {
		return err
	}
	snapshot := settings.FromResolved(res)
	level.Debug(logger).Log("msg", "resolved settings", "file", path, "settings", snapshot)

	eng := engine.New(engine.Options{
		MaxPivotColumns: cfg.Engine.MaxPivotColumns,
		Logger:          logger,
	})
	out, err := eng.Compute(ctx, ds, snapshot)
	if err != nil {
		return err
	}
	defer out.Release()
	return render(w, out, cfg.Engine.MaxRows)
}

func loadSettings(path string) (*settings.File, settings.Values, error) {
	if path == "" {
		return &settings.File{}, settings.Values{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return settings.Decode(f)
}

func batchSize(n int) uint16 {
	if n <= 0 || n > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(n)
}

// render prints an outcome as an aligned text table. maxRows of 0 prints
// every row.
func render(w io.Writer, out engine.Outcome, maxRows int) error {
	switch out.Kind {
	case engine.OutcomeAllColumnsHidden:
		_, err := fmt.Fprintln(w, allHiddenMessage)
		return err
	case engine.OutcomeCannotPivot:
		_, err := fmt.Fprintf(w, "Cannot pivot: %v\n", out.Reason)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	metas := out.Data.Metas()
	titles := make([]string, len(metas))
	for i, m := range metas {
		titles[i] = m.Title()
		if titles[i] == "" {
			// a null pivot value
			titles[i] = "Unset"
		}
	}
	fmt.Fprintln(tw, strings.Join(titles, "\t"))

	rows := out.Data.NumRows()
	if maxRows > 0 && rows > maxRows {
		rows = maxRows
	}
	cells := make([]string, len(metas))
	for r := 0; r < rows; r++ {
		for c := range metas {
			cells[c] = formatCell(out.Data.Cell(r, c), metas[c].Type)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if rows < out.Data.NumRows() {
		_, err := fmt.Fprintf(w, "... %d more rows\n", out.Data.NumRows()-rows)
		return err
	}
	return nil
}

func formatCell(v any, dt arrow.DataType) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		if dt.ID() == arrow.DATE32 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, done, err := rpc.Start(config.GetConfig(), logger)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutting down")
		srv.GracefulStop()
		return <-done
	}
}
