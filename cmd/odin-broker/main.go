package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odin-msg/broker/internal/broker"
	"github.com/odin-msg/broker/internal/config"
	"github.com/odin-msg/broker/internal/logging"
	"github.com/odin-msg/broker/internal/metrics"
	"github.com/odin-msg/broker/internal/monitor"
	"github.com/odin-msg/broker/internal/ratelimit"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(log)

	met := metrics.NewRegistry()

	limiter := ratelimit.New(ratelimit.Config{
		IPRate:      cfg.AcceptIPRate,
		IPBurst:     cfg.AcceptIPBurst,
		GlobalRate:  cfg.AcceptGlobalRate,
		GlobalBurst: cfg.AcceptGlobalBurst,
		Logger:      log,
	}, func(reason string) {
		met.AcceptRejected()
	})
	defer limiter.Stop()

	srv, err := broker.NewServer(broker.ServerConfig{
		Addr:         fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		Workers:      cfg.Workers,
		AccountsFile: cfg.AccountsFile,
	}, limiter, met, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build broker server")
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr, met, log)
	metricsServer.Start()

	sampler := monitor.NewSampler(15*time.Second, met, log)

	ctx, cancel := context.WithCancel(context.Background())

	go sampler.Run(ctx)

	log.Info().Str("addr", srv.Addr()).Msg("broker listening")
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down metrics server")
	}
}
