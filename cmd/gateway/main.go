package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oi7500/gateway/internal/config"
	"github.com/oi7500/gateway/internal/gateway"
)

var configPath = flag.String("config", "config.yaml", "path to the gateway's YAML configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("starting gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.DurationHours > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.DurationHours)*time.Hour)
	}
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	log.Printf("gateway started, monitoring %d network(s)", len(cfg.Networks))
	if err := gw.Run(ctx); err != nil {
		log.Fatalf("gateway stopped: %v", err)
	}
}
