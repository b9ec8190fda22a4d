package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"blobstore/internal/api"
	"blobstore/internal/blob"
	"blobstore/internal/config"
	"blobstore/internal/core"
	"blobstore/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// traceRetention bounds the spans kept in memory by the JSON tracer.
const traceRetention = 1024

func main() {
	app := &cli.App{
		Name:   "blobstored",
		Usage:  "Serve a blob store over HTTP on top of a configurable backend",
		Flags:  flags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	cfg, err := config.Load(cCtx.String("config"))
	if err != nil {
		return err
	}
	if err := applyFlags(cCtx, cfg); err != nil {
		return err
	}

	logger := logging.Setup(&logging.Options{
		JSON:    cfg.Log.JSON,
		Debug:   cfg.Log.Debug,
		UID:     cfg.Log.UID,
		Service: cfg.Log.Service,
		Version: Version,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := blob.Open(ctx, cfg.BlobStore(), logger)
	if err != nil {
		logger.Error("Failed to open blob store", "err", err)
		return err
	}

	metrics, err := blob.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("Failed to register metrics", "err", err)
		_ = store.Close()
		return err
	}

	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("blobstore_service")),
	}
	if cfg.Server.TraceJSON != "" {
		f, err := os.OpenFile(cfg.Server.TraceJSON, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			logger.Error("Failed to open trace file", "file", cfg.Server.TraceJSON, "err", err)
			_ = store.Close()
			return err
		}
		defer f.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f, traceRetention)))
	}
	svc := core.NewService(blob.Instrument(store, metrics, logger), opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close blob store", "err", err)
		}
	}()

	server, err := api.New(&api.HTTPServerConfig{
		ListenAddr:               cfg.Server.ListenAddr,
		Log:                      logger,
		EnablePprof:              cfg.Server.Pprof,
		DrainDuration:            time.Duration(cfg.Server.DrainSeconds) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, api.NewHandler(svc, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server", "driver", store.Driver())
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Drain()
	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
