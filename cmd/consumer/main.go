package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"searchgate.io/internal/config"
	"searchgate.io/internal/consumer"
	"searchgate.io/internal/gateway"
	"searchgate.io/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("SEARCHGATE_CONFIG"), "Path to YAML config")
		queueType   = flag.String("type", string(consumer.TypeCommand), "Queue type to consume (command|domain-event)")
		metricsAddr = flag.String("metrics", "", "Address serving /metrics, empty disables")
	)
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit, "consumer")

	if err := run(*configPath, *queueType, *metricsAddr); err != nil {
		obs.Error("consumer stopped", map[string]any{"error": err, "type": *queueType})
		os.Exit(1)
	}
}

func run(configPath, queueType, metricsAddr string) error {
	t, ok := consumer.ParseType(queueType)
	if !ok {
		return fmt.Errorf("unknown queue type %q", queueType)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.Queue.Backend {
	case "memory":
		return errors.New("queue.backend memory is process local: run consumers inside searchgate with -consumers")
	case "none":
		return errors.New("queue.backend is none: nothing to consume")
	}

	backends, res, err := gateway.OpenBackends(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = res.Close() }()

	gw, err := gateway.New(cfg, backends, gateway.WithVersion(version))
	if err != nil {
		return err
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", obs.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		obs.Info("consumer starting", map[string]any{"type": string(t), "queue_backend": cfg.Queue.Backend})
		return gw.RunConsumer(gctx, t)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
