package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/dispatch-relay/internal/config"
	"github.com/example/dispatch-relay/internal/fanout"
	"github.com/example/dispatch-relay/internal/journal"
	"github.com/example/dispatch-relay/internal/logging"
	"github.com/example/dispatch-relay/internal/relay"
	"github.com/example/dispatch-relay/internal/trips"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var bus fanout.Bus
	if cfg.RedisAddr != "" {
		bus = fanout.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, cfg.FanoutChannel, logging.Component(logger, "fanout"))
	} else {
		logger.Warn("REDIS_ADDR not set; cross-instance fanout is process-local only")
		bus = fanout.NewMemoryBus()
	}
	defer bus.Close()

	var recorder trips.Recorder
	if len(cfg.KafkaBrokers) > 0 {
		p := journal.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.InstanceID, logging.Component(logger, "journal"))
		defer p.Close()
		recorder = p
	}

	client := trips.NewClient(cfg.TripServiceURL, cfg.TripTimeout)
	srv := relay.NewServer(cfg, logger, bus, client, recorder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
