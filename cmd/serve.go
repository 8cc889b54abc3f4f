package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cyberintel/internal/api"
	"cyberintel/internal/progress"
	"cyberintel/internal/ratelimit"
	"cyberintel/internal/redisclient"
	"cyberintel/worker"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		broadcaster := progress.New()
		defer broadcaster.Close()

		pipe, err := buildPipeline(cfg, st, broadcaster)
		if err != nil {
			return err
		}

		// Redis backs only the API rate limiter; without it the API runs
		// unthrottled.
		var limiter *ratelimit.Limiter
		if cfg.Redis.Addr != "" {
			rdb := redisclient.New(cfg.Redis)
			defer rdb.Close()
			limiter = ratelimit.New(rdb,
				time.Duration(cfg.Server.RateLimitWindow)*time.Minute,
				cfg.Server.RateLimitRequests)
		}

		srv := api.NewServer(cfg.Server.Addr, pipe, st, limiter, broadcaster)

		var ws []worker.Worker
		if cfg.Refresh.Enabled {
			interval, err := time.ParseDuration(cfg.Refresh.Interval)
			if err != nil {
				return err
			}
			ws = append(ws, &worker.RefreshWorker{
				Pipeline:       pipe,
				Store:          st,
				Interval:       interval,
				StalenessHours: cfg.Refresh.StalenessHours,
				DaysBack:       cfg.Refresh.DaysBack,
				MaxResults:     cfg.Refresh.MaxResults,
			})
		}
		if cfg.Cleanup.Enabled {
			interval, err := time.ParseDuration(cfg.Cleanup.Interval)
			if err != nil {
				return err
			}
			ws = append(ws, &worker.CleanupWorker{
				Store:         st,
				Interval:      interval,
				RetentionDays: cfg.Cleanup.RetentionDays,
			})
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Signal handling for systemd
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigc
			slog.Info("received signal, shutting down", "signal", s.String())
			cancel()
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server shutdown", "err", err)
			}
		}()

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		if len(ws) > 0 {
			mgr := worker.NewManager(ws...)
			go func() {
				if err := mgr.Start(ctx); err != nil {
					slog.Error("worker manager", "err", err)
				}
			}()
		}

		return <-errc
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
