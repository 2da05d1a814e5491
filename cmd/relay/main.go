package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/relay/internal/api"
	"github.com/seantiz/relay/internal/config"
	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/events"
	"github.com/seantiz/relay/internal/handler"
	"github.com/seantiz/relay/internal/loader"
	"github.com/seantiz/relay/internal/store"
)

const outboundTimeout = 60 * time.Second

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		log.Fatalf("relay: %v", err)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("relay: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"max_parallel_steps", cfg.MaxParallelSteps,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sinks := []events.Sink{events.NewLogSink(logger), events.NewHistorySink(db)}

	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		sinks = append(sinks, events.NewNATSSink(nc, cfg.NATSSubject))
		logger.Info("nats sink enabled", "subject", cfg.NATSSubject)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		sinks = append(sinks, events.NewRedisSink(rdb, cfg.RedisChannel, events.WithBacklogTTL(cfg.Retention)))
		logger.Info("redis sink enabled", "channel", cfg.RedisChannel)
	}

	client := &http.Client{Timeout: outboundTimeout}
	opts := handler.Options{HTTPClient: client}
	if cfg.InferenceURL != "" {
		opts.Inferer = handler.NewHTTPInferer(cfg.InferenceURL, client)
	}

	eng := engine.New(engine.Config{
		Workers:          cfg.Workers,
		MaxParallelSteps: cfg.MaxParallelSteps,
		Retention:        cfg.Retention,
		SweepInterval:    cfg.SweepInterval,
	}, handler.NewDefaultRegistry(opts), events.NewFanout(sinks...), logger)

	if cfg.WorkflowDir != "" {
		if err := registerDir(eng, cfg.WorkflowDir, logger); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	defer eng.Stop()

	srv := api.NewServer(cfg.ListenAddr, eng, db, cfg.AdminToken, logger)
	return srv.Run(ctx)
}

// registerDir registers every definition in dir. Invalid definitions are
// reported together and abort startup.
func registerDir(eng *engine.Engine, dir string, logger *slog.Logger) error {
	defs, err := loader.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	var errs []error
	for _, def := range defs {
		if _, err := eng.RegisterWorkflow(def); err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", def.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("workflows loaded", "dir", dir, "count", len(defs))
	return nil
}
