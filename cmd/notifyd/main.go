// Command notifyd runs the notification worker: it consumes events from
// the broker, renders them to an HTML email, and delivers the email over
// SMTP, with duplicate-delivery protection backed by Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/POUPE-AI/poupeai-notification-service/internal/config"
	"github.com/POUPE-AI/poupeai-notification-service/internal/logging"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/broker"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/dispatcher"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/gateway"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/idempotency"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/renderer"
)

// restartBackoff bounds how quickly notifyd reopens the consumer loop
// after a connection loss, so a broker outage doesn't spin the process.
const restartBackoff = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the worker's YAML config file")
	flag.Parse()

	if v := os.Getenv("NOTIFYD_CONFIG"); v != "" && *configPath == "config.yaml" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("notifyd: failed to load config: %v", err)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level)

	idemStore := idempotency.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer idemStore.Close()

	rend, err := renderer.New(cfg.Templates.Dir)
	if err != nil {
		log.Fatalf("notifyd: failed to load templates from %s: %v", cfg.Templates.Dir, err)
	}

	gw := gateway.New(gateway.Config{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		SSL:                cfg.SMTP.SSL,
		From:               cfg.SMTP.From,
		FromName:           cfg.SMTP.FromName,
		RateLimitPerSecond: cfg.SMTP.RateLimitPerSecond,
	})

	ttl := time.Duration(cfg.Idempotency.TTLSeconds) * time.Second
	disp := dispatcher.New(idemStore, ttl, logger)
	dispatcher.RegisterDefaultHandlers(disp, rend, gw)

	consumer := broker.New(broker.Config{
		URL: cfg.Broker.URL,
		Topology: broker.TopologyConfig{
			MainExchange:  cfg.Broker.MainExchange,
			MainQueue:     cfg.Broker.MainQueue,
			RetryExchange: cfg.Broker.RetryExchange,
			RetryQueue:    cfg.Broker.RetryQueue,
			DLQExchange:   cfg.Broker.DLQExchange,
			DLQQueue:      cfg.Broker.DLQQueue,
			RoutingKey:    cfg.Broker.RoutingKey,
			RetryDelayMs:  cfg.Broker.RetryDelayMs,
		},
		MaxRetries: cfg.Broker.MaxRetries,
		Prefetch:   cfg.Broker.Prefetch,
	}, disp, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("notifyd: received signal %v, shutting down\n", sig)
		cancel()
	}()

	for {
		if ctx.Err() != nil {
			break
		}
		if err := consumer.Run(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("consumer loop exited, restarting", "error", err, "backoff", restartBackoff.String())
			select {
			case <-ctx.Done():
			case <-time.After(restartBackoff):
			}
		}
	}

	fmt.Println("notifyd: shutdown complete")
}
