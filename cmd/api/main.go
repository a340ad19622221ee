package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"mendan-go/internal/api"
	"mendan-go/internal/app"
	"mendan-go/internal/config"
	"mendan-go/internal/logger"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg := config.Load()
	log := logger.New()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	log.Info("TechnoBrain-MENDAN API starting up")

	a, err := app.Build(cfg, log.Entry)
	if err != nil {
		log.WithError(err).Fatal("failed to build service")
	}
	log.WithFields(logrus.Fields{
		"gcp_project":     cfg.GCPProject,
		"model":           a.Model,
		"sheets_backend":  cfg.Sheets.Backend,
		"transcriber":     cfg.Transcription.Provider,
		"secrets_backend": cfg.Secrets.Backend,
	}).Info("service configured")
	if cfg.Server.InternalAPIKey == "" {
		log.Warn("INTERNAL_API_KEY is not set - authentication disabled")
	}

	handler := api.New(api.Deps{
		Audio:   a.Audio,
		Import:  a.Import,
		Webhook: a.Webhook,
		APIKey:  cfg.Server.InternalAPIKey,
		Log:     log,
	}).Handler()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.PipelineTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	case <-ctx.Done():
	}

	log.Info("TechnoBrain-MENDAN API shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("closing clients")
	}
}
