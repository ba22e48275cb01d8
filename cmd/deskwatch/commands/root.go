package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deskwatch/internal/cache"
	"deskwatch/internal/config"
	"deskwatch/internal/dashboard"
	"deskwatch/internal/httpapi"
	"deskwatch/internal/itsm"
	"deskwatch/internal/logging"
	"deskwatch/internal/metrics"
	"deskwatch/internal/pagerange"
	"deskwatch/internal/ranking"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "deskwatch",
	Short: "Deskwatch serves ticket and technician metrics from an ITSM provider",
	Long: `A monitoring dashboard backend that aggregates ticket counts, trends, and a
technician leaderboard from a session-based ITSM REST API, with adaptive
caching and learned pagination ranges.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("Deskwatch starting")
	},
	Run: func(cmd *cobra.Command, args []string) {
		client := itsm.NewClient(cfg.ITSM)
		defer client.Close()

		store := pagerange.NewFileStore(cfg.RangesFile, cfg.HighVolumeTechnicians)
		smartCache := cache.New(cache.Options{BaseTTL: cfg.CacheBaseTTL})

		aggregator := metrics.NewAggregator(client, smartCache, cfg.CacheBaseTTL, cfg.WorkerLimit)
		engine := ranking.NewEngine(client, store, smartCache, cfg.CacheBaseTTL, cfg.WorkerLimit)
		svc := dashboard.NewService(aggregator, engine, client, smartCache)

		srv := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: httpapi.NewRouter(svc, cfg.CORSOrigins),
		}

		go func() {
			log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("HTTP server failed")
			}
		}()

		// Periodically shrink stale pagination entries and flush knowledge.
		maintenanceDone := make(chan struct{})
		go func() {
			ticker := time.NewTicker(6 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					store.Sweep(30 * 24 * time.Hour)
					if err := store.Persist(); err != nil {
						log.Warn().Err(err).Msg("Pagination store maintenance persist failed")
					}
				case <-maintenanceDone:
					return
				}
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		close(maintenanceDone)
		log.Info().Msg("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
		}
		if err := store.Persist(); err != nil {
			log.Warn().Err(err).Msg("Final pagination store persist failed")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
