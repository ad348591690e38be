package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openelectricity/emissionfeed/internal/config"
	"github.com/openelectricity/emissionfeed/internal/feed"
	"github.com/openelectricity/emissionfeed/internal/influxdb"
	"github.com/openelectricity/emissionfeed/internal/transport"
)

func main() {
	csvPath := flag.String("csv", "", "historical CSV fallback (overrides DATA_CSV)")
	jsonlPath := flag.String("jsonl", "", "append log path (overrides DATA_JSONL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *csvPath != "" {
		cfg.Data.CSVPath = *csvPath
	}
	if *jsonlPath != "" {
		cfg.Data.JSONLPath = *jsonlPath
	}

	registry := prometheus.NewRegistry()
	metrics := feed.NewMetrics(registry)
	session := feed.NewSession(cfg.Playback, cfg.Data, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var influxClient *influxdb.Client
	var sub transport.Subscriber

	if cfg.Playback.LiveMode {
		if cfg.Influx.Enabled {
			influxClient, err = influxdb.NewClient(cfg.Influx)
			if err != nil {
				log.Fatalf("Failed to create InfluxDB client: %v", err)
			}
			session.SetSink(influxClient)
		}

		sub, err = transport.NewSubscriber(cfg.Bus.WithClientSuffix("feedview"))
		if err != nil {
			log.Fatalf("Failed to create subscriber: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Subscribe(ctx, session.IngestPayload); err != nil {
				log.Printf("[feedview] subscriber stopped: %v", err)
			}
		}()
		log.Printf("[feedview] live mode: listening on %s topic %s", cfg.Bus.Kind, cfg.Bus.Topic)
	} else {
		log.Printf("[feedview] replay mode: %s (fallback %s), step=%s tick=%s",
			cfg.Data.JSONLPath, cfg.Data.CSVPath, cfg.Playback.Step, cfg.Playback.TickInterval)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Run(ctx)
	}()

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: feed.NewServer(session, registry).Handler(),
	}
	go func() {
		log.Printf("[feedview] serving on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received termination signal. Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("Shutdown timed out, forcing exit")
	}

	if sub != nil {
		sub.Close()
	}
	if influxClient != nil {
		log.Println("Closing InfluxDB client...")
		influxClient.Close()
	}

	log.Println("Shutdown complete.")
}
