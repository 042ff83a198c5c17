// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/logging"
	"github.com/unclebandit/mailcampaign/internal/queue"
)

var logger *zap.Logger

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	return &cobra.Command{
		Use:          "campaign-events",
		Short:        "Consume campaign lifecycle events from RabbitMQ and log them",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logger, err = logging.New(cfg.LogLevel)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Events.AMQPURL == "" {
				return errors.New("AMQP_URL is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			q, err := queue.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer q.Close()

			return consume(ctx, q, q.NotifyClose(), logger)
		},
	}
}

// consume logs campaign events until ctx ends or the broker goes away.
func consume(ctx context.Context, q queue.Queue, closed <-chan *amqp.Error, logger *zap.Logger) error {
	if err := queue.LogEvents(q, logger); err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	logger.Info("worker running, waiting for campaign events")

	select {
	case <-ctx.Done():
		logger.Info("worker stopping")
		return nil
	case err, ok := <-closed:
		if ok && err != nil {
			return fmt.Errorf("broker connection lost: %w", err)
		}
		return errors.New("broker connection closed")
	}
}
