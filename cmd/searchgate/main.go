package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"searchgate.io/internal/config"
	"searchgate.io/internal/consumer"
	"searchgate.io/internal/gateway"
	"searchgate.io/internal/httpapi"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("SEARCHGATE_CONFIG"), "Path to YAML config")
		consumers  = flag.String("consumers", "", "Queue types to consume in process (command,domain-event)")
	)
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit, "searchgate")

	if err := run(*configPath, *consumers); err != nil {
		obs.Error("searchgate stopped", map[string]any{"error": err})
		os.Exit(1)
	}
}

func run(configPath, consumers string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	backends, res, err := gateway.OpenBackends(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = res.Close() }()

	gw, err := gateway.New(cfg, backends, gateway.WithVersion(version), gateway.WithStream(stream.New(64)))
	if err != nil {
		return err
	}
	defer gw.Close()

	probe := httpapi.ReadyProbe{DB: res.DB, Checks: res.Ready}
	api := httpapi.New(gw, probe, version)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, httpapi.NewGRPCServer(probe, version))
	var lis net.Listener
	if cfg.GRPCAddr != "" {
		if lis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return err
		}
	}
	var types []consumer.Type
	for _, name := range splitTypes(consumers) {
		t, ok := consumer.ParseType(name)
		if !ok {
			return errors.New("unknown consumer type " + name)
		}
		types = append(types, t)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		obs.Info("http listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if lis != nil {
		g.Go(func() error {
			obs.Info("grpc listening", map[string]any{"addr": lis.Addr().String()})
			return grpcServer.Serve(lis)
		})
	}
	for _, t := range types {
		g.Go(func() error { return gw.RunConsumer(gctx, t) })
	}

	g.Go(func() error {
		<-gctx.Done()
		obs.Info("shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	obs.Info("stopped", nil)
	return nil
}

func splitTypes(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
