package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraud-detector/internal/cfg"
	"fraud-detector/internal/metrics"
	"fraud-detector/internal/ml"
	"fraud-detector/internal/server"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	cfg.SetupLogging(c)

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	model, md := loadModel(c, mw)
	defer model.Close()

	width, err := ml.ResolveWidth(c.FeatureCount, declaredWidth(model, md))
	if err != nil {
		log.Fatal().Err(err).Str("model_path", c.ModelPath).Msg("feature count check failed")
	}

	srv := server.New(c.ListenAddr(), ml.Instrument(model, mw), md, server.Options{
		FeatureCount: width,
		MaxBodyBytes: c.MaxBodyBytes,
		Timeout:      c.PredictTimeout,
		Metrics:      mw,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reportModelAge(ctx, md, mw)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("inference server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}

func loadModel(c cfg.Settings, mw *metrics.MetricsWrapper) (ml.Classifier, *ml.Metadata) {
	md, err := ml.LoadMetadata(c.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("model_path", c.ModelPath).Msg("model metadata load failed")
	}

	model, err := ml.Load(c.ModelPath, ml.Options{
		PythonPath: c.PythonPath,
		ScriptPath: c.InferenceScript,
		Timeout:    c.PredictTimeout,
		Metrics:    mw,
	})
	if err != nil {
		log.Fatal().Err(err).Str("model_path", c.ModelPath).Msg("model load failed")
	}

	log.Info().
		Str("model_path", c.ModelPath).
		Str("version", md.Version).
		Int("n_features", model.NumFeatures()).
		Msg("Model loaded")
	return model, md
}

// declaredWidth prefers the width the loaded model reports over the sidecar.
func declaredWidth(model ml.Classifier, md *ml.Metadata) int {
	if n := model.NumFeatures(); n > 0 {
		if w := md.DeclaredWidth(); w > 0 && w != n {
			log.Warn().Int("model", n).Int("metadata", w).Msg("metadata width disagrees with model")
		}
		return n
	}
	return md.DeclaredWidth()
}

func reportModelAge(ctx context.Context, md *ml.Metadata, mw *metrics.MetricsWrapper) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		mw.MLModelAgeSet(md.Age().Seconds())
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// waitForShutdown blocks until a shutdown signal arrives or ctx is canceled
func waitForShutdown(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}
	log.Info().Msg("shutting down gracefully...")
}
