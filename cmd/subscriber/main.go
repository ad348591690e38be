package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openelectricity/emissionfeed/internal/config"
	"github.com/openelectricity/emissionfeed/internal/models"
	"github.com/openelectricity/emissionfeed/internal/source"
	"github.com/openelectricity/emissionfeed/internal/transport"
)

func main() {
	outPath := flag.String("out", "", "append log path (overrides DATA_JSONL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	path := cfg.Data.JSONLPath
	if *outPath != "" {
		path = *outPath
	}

	logFile, err := source.OpenAppendLog(path)
	if err != nil {
		log.Fatalf("Failed to open append log: %v", err)
	}
	defer logFile.Close()

	sub, err := transport.NewSubscriber(cfg.Bus.WithClientSuffix("subscriber"))
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	log.Printf("[subscriber] bus=%s topic=%s qos=%d -> %s",
		cfg.Bus.Kind, cfg.Bus.Topic, cfg.Bus.QoS, path)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received termination signal. Shutting down...")
		cancel()
	}()

	handler := func(payload []byte) {
		var raw models.RawRecord
		if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
			log.Printf("[subscriber] ignored non-object payload (%d bytes)", len(payload))
			return
		}
		source.MirrorCoords(raw)

		log.Printf("[msg] %v @ %v | P=%v",
			firstOf(raw, "facility_name", "name", "facility_id"),
			raw["timestamp"],
			firstOf(raw, "power_mw", "power"))

		if err := logFile.Append(raw); err != nil {
			log.Printf("[subscriber] append: %v", err)
		}
	}

	if err := sub.Subscribe(ctx, handler); err != nil {
		log.Fatalf("Subscribe failed: %v", err)
	}

	log.Println("Shutdown complete.")
}

func firstOf(raw models.RawRecord, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return "-"
}
