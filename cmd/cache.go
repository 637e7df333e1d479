package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lloyd-blog/edge/internal/cachestore"
	"github.com/lloyd-blog/edge/internal/config"
	"github.com/lloyd-blog/edge/internal/db"
	"github.com/lloyd-blog/edge/internal/progress"
	"github.com/lloyd-blog/edge/internal/ratelimit"
	"github.com/lloyd-blog/edge/internal/worker"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the persistent worker cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache stores and their entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := openCacheDB()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		storage := newCacheStorage(cfg, database)
		names, err := storage.Names(ctx)
		if err != nil {
			return fmt.Errorf("listing caches: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "No cache stores.")
			return nil
		}
		gen := worker.NewGeneration(cfg.Site.Name, cfg.Site.Version)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STORE\tENTRIES\tCURRENT")
		for _, name := range names {
			store, err := storage.Open(ctx, name)
			if err != nil {
				return fmt.Errorf("opening %s: %w", name, err)
			}
			keys, err := store.Keys(ctx)
			if err != nil {
				return fmt.Errorf("listing %s: %w", name, err)
			}
			mark := ""
			if gen.Contains(name) {
				mark = "yes"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(keys), mark)
		}
		return tw.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache store",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openCacheDB()
		if err != nil {
			return err
		}
		defer database.Close()

		n, err := cachestore.DeleteAll(cmd.Context(), cachestore.NewSQL(database))
		if err != nil {
			return fmt.Errorf("clearing caches: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cache stores.\n", n)
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache entries and stale rate limit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := openCacheDB()
		if err != nil {
			return err
		}
		defer database.Close()

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		w, err := newWorker(cfg, newCacheStorage(cfg, database), logger, nil)
		if err != nil {
			return err
		}
		removed, err := w.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweeping caches: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Removed %d expired cache entries.\n", removed)

		if cfg.RateLimit.Backend == config.BackendSQLite {
			limiter := ratelimit.NewSQL(database, cfg.RateLimit.Limit, cfg.RateLimit.Window)
			n, err := limiter.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweeping rate limit records: %w", err)
			}
			fmt.Fprintf(out, "Removed %d stale rate limit records.\n", n)
		}
		return nil
	},
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precache the manifest into the current generation and evict older ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := openCacheDB()
		if err != nil {
			return err
		}
		defer database.Close()

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		reporter := progress.NewReporter(cmd.ErrOrStderr())
		done := 0
		w, err := newWorker(cfg, newCacheStorage(cfg, database), logger, func(r worker.PrecacheResult) {
			done++
			status := "ok"
			if !r.OK() {
				status = "failed"
			}
			reporter.Update(done, r.Path+" "+status)
		})
		if err != nil {
			return err
		}

		reporter.Start(len(w.Manifest()))
		results, err := w.Register(cmd.Context())
		reporter.Finish()
		if err != nil {
			return fmt.Errorf("warming cache: %w", err)
		}

		failed := 0
		for _, r := range results {
			if !r.OK() {
				failed++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Precached %d of %d paths into %s.\n", len(results)-failed, len(results), w.Generation().General)
		if failed > 0 {
			return fmt.Errorf("%d paths could not be precached", failed)
		}
		return nil
	},
}

// openCacheDB loads the config and opens the database backing the cache.
func openCacheDB() (*config.Config, *db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Worker.Storage != config.BackendSQLite {
		return nil, nil, fmt.Errorf("worker.storage is %q: only the sqlite cache persists between runs", cfg.Worker.Storage)
	}
	database, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd, cacheSweepCmd, cacheWarmCmd)
	rootCmd.AddCommand(cacheCmd)
}
