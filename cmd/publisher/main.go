package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openelectricity/emissionfeed/internal/config"
	"github.com/openelectricity/emissionfeed/internal/replay"
	"github.com/openelectricity/emissionfeed/internal/transport"
)

func main() {
	csvPath := flag.String("csv", "", "historical source table (overrides DATA_CSV)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	path := cfg.Data.CSVPath
	if *csvPath != "" {
		path = *csvPath
	}
	if _, err := os.Stat(path); err != nil {
		log.Fatalf("Source table not readable: %v", err)
	}

	pub, err := transport.NewPublisher(cfg.Bus.WithClientSuffix("publisher"), cfg.Publisher.AckTimeout)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}
	defer pub.Close()

	log.Printf("[publisher] bus=%s topic=%s qos=%d retain=%v",
		cfg.Bus.Kind, cfg.Bus.Topic, cfg.Bus.QoS, cfg.Bus.Retain)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received termination signal. Shutting down...")
		cancel()
	}()

	loop := replay.New(path, pub, cfg.Publisher)
	if err := loop.Run(ctx); err != nil {
		log.Fatalf("Replay loop failed: %v", err)
	}

	log.Println("Shutdown complete.")
}
