package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/farm"
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/value"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "silo",
	Short:   "silo - an embedded object warehouse",
	Version: Version,
	Long: `silo persists arbitrary structured values into a single SQLite
file, retrievable by tag pattern, and can diffuse concurrent writes
across a farm of shard files that drain into that target over time.`,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("silo version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (overrides --file and friends)")
	rootCmd.PersistentFlags().String("file", "silo.sqlite", "Warehouse file path")
	rootCmd.PersistentFlags().String("container", "", "Container name (defaults to the warehouse's configured default)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(insertFileCmd)
	rootCmd.AddCommand(insertURLCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(vacuumCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(farmCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig resolves the effective Config for a command invocation: a
// --config file if given, otherwise config.Default seeded from --file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.Load(path)
	}
	file, _ := cmd.Flags().GetString("file")
	return config.Default(file), nil
}

func openWarehouse(cmd *cobra.Command) (*storage.Warehouse, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	w, err := storage.Open(cfg)
	return w, cfg, err
}

func containerFlag(cmd *cobra.Command) string {
	c, _ := cmd.Flags().GetString("container")
	return c
}

// parseDual reads --n or --tags from cmd's flags into a storage.Dual,
// preferring --tags when both are present.
func parseDual(cmd *cobra.Command) storage.Dual {
	if tags, _ := cmd.Flags().GetString("tags"); tags != "" {
		return storage.TagDual(tags)
	}
	n, _ := cmd.Flags().GetInt64("n")
	return storage.IntDual(n)
}

func addDualFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("n", 0, "Integer offset from the dual (newest/oldest anchored depending on the alias)")
	cmd.Flags().String("tags", "", "Comma-separated tag pattern (overrides --n if set)")
}

func printValue(v value.Value) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(valueToJSON(v))
}

func readValueFlag(cmd *cobra.Command) (value.Value, error) {
	raw, _ := cmd.Flags().GetString("value")
	if raw == "" {
		return value.Null(), fmt.Errorf("--value is required")
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return value.Null(), fmt.Errorf("--value: invalid JSON: %w", err)
	}
	return jsonToValue(decoded), nil
}

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert a JSON-encoded value",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := readValueFlag(cmd)
		if err != nil {
			return err
		}
		notes, _ := cmd.Flags().GetString("notes")

		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		if err := w.Insert(cmd.Context(), v, notes, containerFlag(cmd)); err != nil {
			return err
		}
		metrics.InsertsTotal.WithLabelValues(containerFlag(cmd)).Inc()
		return nil
	},
}

var insertFileCmd = &cobra.Command{
	Use:   "insert-file PATH",
	Short: "Insert a file's contents as a byte-string value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		return w.InsertFile(cmd.Context(), args[0], notes, containerFlag(cmd))
	},
}

var insertURLCmd = &cobra.Command{
	Use:   "insert-url URL",
	Short: "Fetch a URL and insert its body as a byte-string value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		return w.InsertURL(cmd.Context(), args[0], notes, containerFlag(cmd))
	},
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Retrieve rows via one of the published aliases",
}

var selectLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "select_latest: newest row matching the dual",
	RunE:  runSelectSingle((*storage.Warehouse).SelectLatest, "select_latest"),
}

var selectOldestCmd = &cobra.Command{
	Use:   "oldest",
	Short: "select_oldest: oldest row matching the dual",
	RunE:  runSelectSingle((*storage.Warehouse).SelectOldest, "select_oldest"),
}

var selectFifoCmd = &cobra.Command{
	Use:   "fifo",
	Short: "fifo: pop the oldest row in the container",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		timer := metrics.NewTimer()
		v, ok, err := w.Fifo(cmd.Context(), containerFlag(cmd))
		timer.ObserveDurationVec(metrics.QueryDuration, "fifo")
		metrics.QueriesTotal.WithLabelValues("fifo").Inc()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no rows")
		}
		return printValue(v)
	},
}

var selectByKeyCmd = &cobra.Command{
	Use:   "by-key KID",
	Short: "by_key: fetch a single row by primary key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kid int64
		if _, err := fmt.Sscanf(args[0], "%d", &kid); err != nil {
			return fmt.Errorf("KID must be an integer: %w", err)
		}
		pop, _ := cmd.Flags().GetBool("pop")

		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		timer := metrics.NewTimer()
		v, ok, err := w.ByKey(cmd.Context(), kid, containerFlag(cmd), pop)
		timer.ObserveDurationVec(metrics.QueryDuration, "by_key")
		metrics.QueriesTotal.WithLabelValues("by_key").Inc()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no row with kid %d", kid)
		}
		return printValue(v)
	},
}

var selectMapCmd = &cobra.Command{
	Use:   "map",
	Short: "select_map: every row matching the dual, keyed by kid",
	RunE: func(cmd *cobra.Command, args []string) error {
		pop, _ := cmd.Flags().GetBool("pop")
		d := parseDual(cmd)

		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		timer := metrics.NewTimer()
		m, err := w.SelectMap(cmd.Context(), d, containerFlag(cmd), pop)
		timer.ObserveDurationVec(metrics.QueryDuration, "select_map")
		metrics.QueriesTotal.WithLabelValues("select_map").Inc()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for kid, row := range m {
			if err := enc.Encode(map[string]any{
				"kid":   kid,
				"tunix": row.Tunix,
				"notes": row.Notes,
				"value": valueToJSON(row.Val),
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

type singleAlias func(*storage.Warehouse, context.Context, storage.Dual, string, bool) (value.Value, bool, error)

func runSelectSingle(alias singleAlias, name string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		pop, _ := cmd.Flags().GetBool("pop")
		d := parseDual(cmd)

		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		timer := metrics.NewTimer()
		v, ok, err := alias(w, cmd.Context(), d, containerFlag(cmd), pop)
		timer.ObserveDurationVec(metrics.QueryDuration, name)
		metrics.QueriesTotal.WithLabelValues(name).Inc()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no matching row")
		}
		return printValue(v)
	}
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Raw comma-tag GLOB query against a container (spec's select/select_pop)",
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetString("tags")
		wild, _ := cmd.Flags().GetBool("wild")
		pop, _ := cmd.Flags().GetBool("pop")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		container := containerFlag(cmd)
		if container == "" {
			container = cfg.DefaultContainer
		}

		conn := storage.NewConn(cfg)
		var rows []storage.Row
		timer := metrics.NewTimer()
		if pop {
			rows, err = conn.SelectPop(cmd.Context(), cfg.Path, container, tags, wild)
		} else {
			rows, err = conn.Select(cmd.Context(), cfg.Path, container, tags, wild)
		}
		timer.ObserveDurationVec(metrics.QueryDuration, "query")
		metrics.QueriesTotal.WithLabelValues("query").Inc()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, r := range rows {
			if err := enc.Encode(map[string]any{
				"kid":   r.Kid,
				"tunix": r.Tunix,
				"notes": r.Notes,
				"value": valueToJSON(r.Val),
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "delete: remove rows matching the dual",
	RunE: func(cmd *cobra.Command, args []string) error {
		wild, _ := cmd.Flags().GetBool("wild")
		d := parseDual(cmd)

		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		if err := w.Delete(cmd.Context(), d, containerFlag(cmd), wild); err != nil {
			return err
		}
		metrics.DeletesTotal.WithLabelValues(containerFlag(cmd)).Inc()
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "drop_container: remove a container and all its rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		return w.Drop(cmd.Context(), containerFlag(cmd))
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "prune: delete rows older than --fresh-days relative to the newest row",
	RunE: func(cmd *cobra.Command, args []string) error {
		freshDays, _ := cmd.Flags().GetFloat64("fresh-days")
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		if err := w.Prune(cmd.Context(), containerFlag(cmd), freshDays); err != nil {
			return err
		}
		metrics.PrunesTotal.WithLabelValues(containerFlag(cmd)).Inc()
		return nil
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "vacuum: compact the whole file",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		return w.Vacuum(cmd.Context())
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "clean: prune then vacuum",
	RunE: func(cmd *cobra.Command, args []string) error {
		freshDays, _ := cmd.Flags().GetFloat64("fresh-days")
		w, _, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		if err := w.Clean(cmd.Context(), containerFlag(cmd), freshDays); err != nil {
			return err
		}
		metrics.PrunesTotal.WithLabelValues(containerFlag(cmd)).Inc()
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy TARGET_FILE",
	Short: "copy: stream matching rows into another warehouse file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wild, _ := cmd.Flags().GetBool("wild")
		targetContainer, _ := cmd.Flags().GetString("target-container")
		d := parseDual(cmd)

		w, cfg, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		target, err := storage.Open(config.Default(args[0]))
		if err != nil {
			return err
		}
		if targetContainer == "" {
			targetContainer = cfg.DefaultContainer
		}
		return w.Copy(cmd.Context(), d, containerFlag(cmd), target, targetContainer, wild)
	},
}

func init() {
	insertCmd.Flags().String("value", "", "JSON-encoded value to insert (required)")
	insertCmd.Flags().String("notes", "", "Comma-separated tags to file this value under")
	insertFileCmd.Flags().String("notes", "", "Tags; defaults to the file's base name")
	insertURLCmd.Flags().String("notes", "", "Tags; defaults to the URL")

	for _, cmd := range []*cobra.Command{selectLatestCmd, selectOldestCmd, selectFifoCmd, selectByKeyCmd, selectMapCmd} {
		cmd.Flags().Bool("pop", false, "Delete each returned row after reading it")
	}
	for _, cmd := range []*cobra.Command{selectLatestCmd, selectOldestCmd, selectMapCmd} {
		addDualFlags(cmd)
	}
	selectCmd.AddCommand(selectLatestCmd, selectOldestCmd, selectFifoCmd, selectByKeyCmd, selectMapCmd)

	queryCmd.Flags().String("tags", "", "Comma-separated tag pattern")
	queryCmd.Flags().Bool("wild", true, "Wrap each tag term in GLOB wildcards")
	queryCmd.Flags().Bool("pop", false, "Delete each returned row after reading it")

	addDualFlags(deleteCmd)
	deleteCmd.Flags().Bool("wild", true, "Wrap each tag term in GLOB wildcards when the dual is a tag pattern")

	pruneCmd.Flags().Float64("fresh-days", 0, "Retention window in days, anchored to the newest row")
	cleanCmd.Flags().Float64("fresh-days", 0, "Retention window in days, anchored to the newest row")

	addDualFlags(copyCmd)
	copyCmd.Flags().Bool("wild", true, "Wrap each tag term in GLOB wildcards")
	copyCmd.Flags().String("target-container", "", "Destination container (defaults to the source warehouse's default container)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a metrics/health HTTP server and a farm shard collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		_, cfg, err := openWarehouse(cmd)
		if err != nil {
			return err
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "ready")

		conn := storage.NewConn(cfg)
		var collector *metrics.Collector
		if cfg.FarmShards > 0 {
			collector = metrics.NewCollector(cfg.FarmShards, func(ctx context.Context, shard int) (int64, error) {
				path := fmt.Sprintf("%s/barn%d.sqlite", cfg.FarmDir, shard)
				return conn.Count(ctx, path, cfg.DefaultContainer)
			})
			collector.Start()
			metrics.RegisterComponent("farm", true, "ready")
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: addr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		fmt.Printf("silo serve: listening on %s\n", addr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		}

		if collector != nil {
			collector.Stop()
		}
		return srv.Close()
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:9090", "Metrics/health listen address")
}
