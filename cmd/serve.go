package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/countrysync/internal/api"
	"github.com/sells-group/countrysync/internal/monitoring"
	"github.com/sells-group/countrysync/internal/scheduler"
)

var (
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled syncs",
	Long:  "Starts the HTTP API and the cron-driven reconciliation trigger. It also runs the notification consumer when notify.embedded is set, and the sync health checker when monitor.webhook_url is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bus, err := openBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close() //nolint:errcheck

		m, gatherer := newMetrics()
		engine := newEngine(cfg, st, m)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.NewRouter(api.Deps{
				Service:     newService(st, bus, m),
				Syncer:      engine,
				Metrics:     m,
				Gatherer:    gatherer,
				CORSOrigins: cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout())
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if !serveNoSchedule {
			sched, err := scheduler.New(engine, scheduler.Options{
				Spec:       cfg.Schedule.Ingest,
				RunOnStart: cfg.Schedule.RunOnStart,
			})
			if err != nil {
				return err
			}
			g.Go(func() error { return sched.Run(gctx) })
		}

		if cfg.Notify.Embedded {
			consumer := newConsumer(cfg, bus, m)
			g.Go(func() error { return consumer.Run(gctx) })
		}

		if cfg.Monitor.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitor),
				cfg.Monitor,
			)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "do not start the cron trigger")
	rootCmd.AddCommand(serveCmd)
}
