package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraud-detector/internal/cfg"
	"fraud-detector/internal/desk"
	"fraud-detector/internal/metrics"
	"fraud-detector/internal/scoring"
	"fraud-detector/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	cfg.SetupLogging(c)

	mw := metrics.NewWrapper(metrics.New())

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("data_path", c.DataPath).Msg("failed to initialize storage")
	}
	defer store.Close()

	client := scoring.NewClient(c.ScoringURL, c.RESTTimeout)
	hub := desk.NewHub(mw)
	svc := desk.NewService(client, store, hub, mw)

	srv := desk.NewServer(c.DeskAddr(), svc, hub, desk.RouterOptions{
		MetricsHandler: promhttp.Handler(),
		RateLimit:      c.DeskRateLimit,
	})
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start transaction desk")
	}
	log.Info().Str("scoring_url", c.ScoringURL).Str("data_path", c.DataPath).Msg("Transaction desk ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
