package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/seekreap/engagement-hub/internal/api/http"
	appEngagement "github.com/seekreap/engagement-hub/internal/application/engagement"
	appFraud "github.com/seekreap/engagement-hub/internal/application/fraud"
	"github.com/seekreap/engagement-hub/internal/config"
	"github.com/seekreap/engagement-hub/internal/infrastructure/events"
	"github.com/seekreap/engagement-hub/internal/infrastructure/memory"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// infrastructure
	store := memory.NewStore()
	eventHub := events.NewHub()

	// services
	fraudChecker := appFraud.NewRuleChecker(appFraud.DefaultRules(), cfg.FraudFlagThreshold, logger)
	engagementSvc := appEngagement.NewService(
		store,
		fraudChecker,
		eventHub,
		cfg.EngagementTTL,
		cfg.VerificationTTL,
		cfg.MaxVerifyAttempts,
		logger,
	)

	// API server
	apiServer := httpapi.NewServer(engagementSvc, eventHub, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background expiry sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := engagementSvc.SweepExpired(sweepCtx)
				if err != nil {
					logger.Warn().Err(err).Msg("expiry sweep failed")
					continue
				}
				if n > 0 {
					logger.Info().Int("expired", n).Msg("expiry sweep")
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopSweep()
	eventHub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
