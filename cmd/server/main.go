package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/witwicki/streaming-xtts/cfg"
	"github.com/witwicki/streaming-xtts/internal/app/api"
	"github.com/witwicki/streaming-xtts/internal/app/archive"
	"github.com/witwicki/streaming-xtts/internal/app/metrics"
	"github.com/witwicki/streaming-xtts/internal/app/session"
	"github.com/witwicki/streaming-xtts/pkg/engine"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "cfg-path", "", "path to config file, built-in defaults apply when empty")
	flag.Parse()

	cfg, err := cfg.Load(cfgPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	metrics.RegisterMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Engine calls are bounded by per-segment context deadlines, not a
	// client-wide timeout.
	httpClient := &http.Client{}

	engineClient := engine.New(httpClient, &cfg.Engine)

	pool := session.NewEnginePool(cfg.Engine.MaxConcurrentCalls)

	var archiver session.Archiver
	if cfg.Archive.Enabled {
		arch, err := archive.New(&cfg.Archive)
		if err != nil {
			log.Fatal("failed to init archive: ", err)
		}

		archiver = arch
	}

	manager := session.NewManager(&cfg.Session, engineClient, pool, archiver, logger.WithGroup("session"))

	api := api.NewAPI(&cfg.Api, logger.WithGroup("api"), manager, reg)

	router := api.NewRouter()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Api.Port),
		Handler: router,
		// Sessions inherit this context, so cancelling it aborts every
		// in-flight synthesis on shutdown.
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: cfg.Api.Timeout,
		MaxHeaderBytes:    20971520,
	}

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		logger.Info("Starting server", "port", cfg.Api.Port)

		if err := srv.ListenAndServe(); err != nil {
			logger.Error("ListenAndServe finished", "err", err)
		}
	}()

	api.SetReady(true)

	select {
	case <-ctx.Done():
	case <-stop:
		logger.Info("Interrupt triggered")
	}

	api.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	manager.Wait()

	wg.Wait()
}
