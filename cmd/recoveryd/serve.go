package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kodaktechie/recoveryd/internal/config"
	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/server"
	"github.com/kodaktechie/recoveryd/internal/session"
	"github.com/kodaktechie/recoveryd/internal/store"
	"github.com/kodaktechie/recoveryd/internal/store/postgres"
	recoverysync "github.com/kodaktechie/recoveryd/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recovery workflow server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher and subscriber. Without NATS the server
		// still works: controllers advance on confirmation only and the
		// SSE stream carries locally published events.
		var publisher events.Publisher
		var subscriber events.Subscriber
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub

			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				pub.Close()
				st.Close()
				return err
			}
			subscriber = sub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (RECOVERY_NATS_URL not set)")
		}

		gate := session.NewGate([]byte(cfg.SessionSecret))

		recoveryServer := server.NewRecoveryServer(server.Options{
			Store:      st,
			Publisher:  publisher,
			Subscriber: subscriber,
			Gate:       gate,
			Defaults: store.Defaults{
				RemitWallet:  cfg.RemitWallet,
				RemitNetwork: cfg.RemitNetwork,
			},
			StepDeadline:  cfg.StepDeadline,
			SessionTTL:    cfg.SessionTTL,
			OperatorToken: cfg.OperatorToken,
		})
		if cfg.OperatorToken == "" {
			logger.Warn("operator endpoints disabled (RECOVERY_OPERATOR_TOKEN not set)")
		}

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: recoveryServer.NewHTTPHandler(),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the export scheduler if any destinations are configured.
		var scheduler *recoverysync.Scheduler
		if cfg.SyncInterval > 0 {
			var dests []recoverysync.Destination

			if cfg.SyncS3Bucket != "" {
				s3Dest, err := recoverysync.NewS3Destination(
					context.Background(),
					cfg.SyncS3Bucket,
					cfg.SyncS3Key,
					cfg.SyncS3Region,
					cfg.SyncS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 export destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("export S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
				}
			}

			if cfg.SyncGitRepo != "" {
				gitDest := recoverysync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
				dests = append(dests, gitDest)
				logger.Info("export git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
			}

			if len(dests) > 0 {
				scheduler = recoverysync.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("export scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("recovery server started",
			"http_addr", cfg.HTTPAddr,
			"step_deadline", cfg.StepDeadline,
			"session_ttl", cfg.SessionTTL,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		recoveryServer.Shutdown()

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if subscriber != nil {
			if err := subscriber.Close(); err != nil {
				logger.Error("error closing subscriber", "err", err)
			}
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
