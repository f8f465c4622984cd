package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"reniec/internal/persona/service"
	"reniec/internal/persona/store"
	"reniec/internal/platform/config"
	"reniec/internal/platform/logger"
	"reniec/internal/platform/metrics"
	"reniec/internal/platform/opsserver"
	rabbitmq "reniec/internal/platform/rabbit"
	rabbittransport "reniec/internal/transport/rabbit"
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Verification logic lives in the internal packages.
func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("RENIEC_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server exited clean")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	log.Info("store ready", "backend", cfg.Store.Backend)

	client, err := rabbitmq.Dial(cfg.Rabbit)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("closing rabbitmq connection", "error", err)
		}
	}()

	responder := rabbittransport.New(client, cfg.Rabbit, cfg.Verify,
		service.NewVerifier(st), log, metrics.New())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return responder.Run(ctx) })

	if cfg.Ops.Addr != "" {
		ops := opsserver.New(cfg.Ops.Addr, map[string]opsserver.Check{
			"store":    st.Ping,
			"rabbitmq": func(context.Context) error { return client.Health() },
		}, log)
		g.Go(func() error { return ops.Run(ctx) })
	} else {
		log.Info("ops server disabled")
	}

	return g.Wait()
}
