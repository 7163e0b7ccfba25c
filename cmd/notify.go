package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run the notification consumer",
	Long:  "Subscribes to the country event channel and emails the configured recipients for every manually added country. Requires redis.url; the in-process bus only reaches consumers inside 'serve'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Redis.URL == "" {
			return eris.New("notify: redis.url is required for a standalone consumer")
		}
		bus, err := openBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close() //nolint:errcheck

		m, _ := newMetrics()
		return newConsumer(cfg, bus, m).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
