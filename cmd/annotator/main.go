package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"segment-annotator/internal/backend"
	"segment-annotator/internal/control"
	"segment-annotator/internal/engine"
	"segment-annotator/internal/notify"
	"segment-annotator/internal/platform/config"
	"segment-annotator/internal/platform/logger"
	"segment-annotator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8090")
	backendURL := config.GetEnv("BACKEND_URL", "http://localhost:5000")
	syncThreshold := config.GetEnvFloat("SYNC_THRESHOLD", engine.DefaultSyncThreshold)
	pageSize := config.GetEnvInt("PAGE_SIZE", engine.DefaultPageSize)
	playStagger := config.GetEnvDuration("PLAY_STAGGER", engine.DefaultPlayStagger)
	visibilityInterval := config.GetEnvDuration("VISIBILITY_INTERVAL", engine.DefaultVisibilityInterval)
	bufferInterval := config.GetEnvDuration("BUFFER_INTERVAL", engine.DefaultBufferInterval)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	store := backend.New(backendURL, log)
	hub := notify.NewHub(log, met)
	registry := notify.NewRegistry(hub, log)

	session := engine.NewSession(store, registry, hub, engine.SessionConfig{
		SyncThreshold:      syncThreshold,
		PlayStagger:        playStagger,
		PageSize:           pageSize,
		VisibilityInterval: visibilityInterval,
		BufferInterval:     bufferInterval,
	}, log, met)
	defer session.Close()
	registry.SetEventSink(session.HandleStreamEvent)

	h := control.NewHandler(session, store, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetNotifyClients(hub.ClientCount()) }).ServeHTTP(w, req)
	})
	r.Get("/ws", hub.ServeWS)
	r.Route("/api", h.Routes)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("annotator starting",
		"port", port,
		"backend_url", backendURL,
		"sync_threshold", syncThreshold,
		"page_size", pageSize,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
