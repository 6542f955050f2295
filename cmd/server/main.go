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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/whispergate/whispergate/internal/config"
	"github.com/whispergate/whispergate/internal/engine"
	"github.com/whispergate/whispergate/internal/history"
	serverhttp "github.com/whispergate/whispergate/internal/http"
	"github.com/whispergate/whispergate/internal/model"
	"github.com/whispergate/whispergate/internal/status"
	"github.com/whispergate/whispergate/internal/transcribe"
	"github.com/whispergate/whispergate/internal/vad"
	"github.com/whispergate/whispergate/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			lvl = l
		}
	}
	log.Logger = log.Level(lvl)

	cfg := config.Load()
	sink := status.NewLogSink(log.Logger)
	idle := time.Duration(cfg.IdleTimeoutSec) * time.Second

	whisperTracker := trackerFor(cfg.WhisperModelPath, "whisper", sink)
	fluidTracker := trackerFor(cfg.FluidModelPath, "fluid", sink)

	whisperMgr := engine.NewManager("whisper", whisperTracker, engine.NewWhisperFactory(cfg.GPUEnabled), idle, sink)
	fluidMgr := engine.NewManager("fluid", fluidTracker, engine.NewFluidFactory(cfg.FluidCommand), idle, sink)

	router := transcribe.NewRouter(
		transcribe.Provider(cfg.DefaultProvider),
		transcribe.NewWhisperBackend(whisperMgr, cfg.IsolatedDecodes),
		transcribe.NewFluidBackend(fluidMgr),
	)
	orch := transcribe.NewOrchestrator(vad.DefaultConfig())

	var hist *history.Store
	if cfg.HistoryPath != "" {
		var err error
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.HistoryPath).Msg("history db open failed")
		}
		defer hist.Close()
	}

	var realtime http.Handler
	if cfg.RealtimeEnabled {
		realtime = ws.NewServer(router, vad.DefaultConfig())
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      serverhttp.NewRouter(router, orch, hist, realtime),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("provider", cfg.DefaultProvider).Msg("whispergate server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	router.Shutdown()
}

// trackerFor seeds a model tracker from configuration. An absent or
// unreadable artifact leaves the family gated until the acquisition
// collaborator signals readiness.
func trackerFor(path, family string, sink status.Sink) *model.Tracker {
	t := model.NewTracker()
	if path == "" {
		return t
	}
	if _, err := os.Stat(path); err != nil {
		log.Warn().Str("family", family).Str("model", path).Msg("model artifact not present, requests gated")
		t.ModelPreparationFailed(fmt.Errorf("artifact missing: %w", err))
		sink.Publish(status.Event{Kind: status.KindModelFailed, Engine: family, Model: path})
		return t
	}
	t.ModelReady(model.Paths{BinaryPath: path})
	sink.Publish(status.Event{Kind: status.KindModelReady, Engine: family, Model: path})
	return t
}
