// Platform server - live lecture capture, adaptive question insertion,
// and batch pause point analysis.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classlive/platform/internal/audio"
	"github.com/classlive/platform/internal/auth"
	"github.com/classlive/platform/internal/config"
	apperrors "github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/placement"
	"github.com/classlive/platform/internal/question"
	"github.com/classlive/platform/internal/relay"
	"github.com/classlive/platform/internal/server"
	"github.com/classlive/platform/internal/session"
)

// unavailableStore rejects lecture analysis when no data API is
// configured.
type unavailableStore struct{}

func (unavailableStore) Replace(string, []placement.PausePoint) error {
	return apperrors.New(apperrors.CodeStorageFailed, "no data API configured")
}

func (unavailableStore) PausePoints(string) ([]placement.PausePoint, error) {
	return nil, apperrors.New(apperrors.CodeStorageFailed, "no data API configured")
}

func (unavailableStore) Transcript(string) ([]placement.TranscriptSegment, error) {
	return nil, apperrors.New(apperrors.CodeStorageFailed, "no data API configured")
}

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	generator := question.NewHTTPGenerator(cfg.GeneratorURL, cfg.GeneratorTimeout)
	delivery := question.NewKafkaDelivery(question.DeliveryConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.QuestionTopic,
		Enabled: cfg.KafkaEnabled,
	})
	defer func() { _ = delivery.Close() }()

	limiter := question.NewLimiter(cfg.QuestionCooldown, cfg.DailyQuestionLimit)

	mgr := session.NewManager(
		session.Config{
			VoiceDebounce:    cfg.VoiceDebounce,
			TriggerPhrases:   cfg.TriggerPhrases,
			AutoInterval:     cfg.AutoQuestionInterval,
			AutoEnabled:      cfg.AutoQuestionEnabled,
			MinIntervalChars: cfg.MinIntervalChars,
			MinQualityScore:  cfg.MinQualityScore,
		},
		session.Deps{
			Capture: audio.NewSession(cfg.SampleRate, cfg.ChunkInterval),
			NewStream: func(h relay.Handlers) session.Stream {
				return relay.NewClient(relay.Config{
					URL:                  cfg.RelayURL,
					APIKey:               cfg.RelayAPIKey,
					MinChunkBytes:        cfg.MinChunkBytes,
					MaxReconnectAttempts: cfg.MaxReconnectAttempts,
					ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
					MaxConnectionAge:     cfg.MaxConnectionAge,
				}, h)
			},
			Generator: generator,
			Delivery:  delivery,
			Limiter:   limiter,
		},
	)

	engine := placement.NewEngine(generator)

	var store server.PausePointStore
	var authorizer server.Authorizer
	if cfg.SupabaseURL != "" {
		pgStore, err := placement.NewStore(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			slog.Error("failed to initialize pause point store", "error", err)
			os.Exit(1)
		}
		authSvc, err := auth.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			slog.Error("failed to initialize auth service", "error", err)
			os.Exit(1)
		}
		store = pgStore
		authorizer = authSvc
	} else {
		slog.Warn("no data API configured, lecture analysis disabled and auth open")
		store = unavailableStore{}
		authorizer = auth.AllowAll{}
	}

	srv := server.New(mgr, engine, store, authorizer)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("platform server starting", "http", cfg.HTTPAddr, "relay", cfg.RelayURL)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	mgr.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}
