// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/controller"
	"github.com/unclebandit/mailcampaign/internal/db"
	"github.com/unclebandit/mailcampaign/internal/logging"
	"github.com/unclebandit/mailcampaign/internal/mailer"
	"github.com/unclebandit/mailcampaign/internal/queue"
	"github.com/unclebandit/mailcampaign/internal/repository"
	"github.com/unclebandit/mailcampaign/internal/service"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:          "campaignd",
		Short:        "Paced bulk email campaigns over HTTP",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err = logging.New(cfg.LogLevel)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runServe,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and campaign engine",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the database schema and exit",
			RunE:  runMigrate,
		},
	)
	return root
}

func openStore(ctx context.Context) (*sql.DB, db.Dialect, error) {
	conn, dialect, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, 0, err
	}
	if err := db.EnsureSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, 0, err
	}
	return conn, dialect, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	conn, dialect, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("schema ready", zap.String("driver", dialect.String()))
	return nil
}

// openQueue returns the event bus and a close func. Without AMQP_URL events
// stay in process and are written to the log.
func openQueue() (queue.Queue, func(), error) {
	if cfg.Events.AMQPURL == "" {
		q := queue.NewInMemoryQueue(logger)
		if err := queue.LogEvents(q, logger); err != nil {
			return nil, nil, err
		}
		return q, q.Wait, nil
	}

	q, err := queue.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	go func() {
		if err, ok := <-q.NotifyClose(); ok && err != nil {
			logger.Error("AMQP connection closed, campaign events are no longer published", zap.Error(err))
		}
	}()
	return q, func() { _ = q.Close() }, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, err := cfg.Auth.Load()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return errors.New("no users configured: set AUTH_USERS or USERS_FILE")
	}

	conn, dialect, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	q, closeQueue, err := openQueue()
	if err != nil {
		return err
	}
	defer closeQueue()

	svc, err := service.NewCampaignService(ctx, service.Options{
		CampaignRepo: repository.NewCampaignRepository(conn, dialect),
		ProfileRepo:  repository.NewProfileRepository(conn, dialect),
		Sender:       mailer.NewSMTPSender(cfg.Engine.SMTPTimeout),
		Queue:        q,
		Logger:       logger,
		PaceUnit:     cfg.Engine.PaceUnit,
		WriteTimeout: cfg.Engine.StoreWriteTimeout,
	})
	if err != nil {
		return err
	}
	if _, err := svc.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile campaigns: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           controller.NewRouter(svc, users, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server running",
			zap.String("addr", srv.Addr),
			zap.String("db_driver", dialect.String()),
			zap.Strings("users", config.Names(users)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), svc.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
