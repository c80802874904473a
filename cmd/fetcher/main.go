// Package main provides the fetcher, the external-fetch stage of the
// aircraft tracker.
//
// It consumes region messages from the regions queue, requests current
// ADS-B state vectors for each region from the OpenSky API through a
// bounded worker pool, and forwards the raw results to the fetch-results
// queue. Regions whose fetch fails are routed to a dead-letter queue.
//
// Usage:
//
//	fetcher [options]
//
// Options:
//
//	-broker-url URL     NATS URL (default: nats://127.0.0.1:4222, env: BROKER_URL)
//	-regions-queue Q    Input queue of region messages (default: regions, env: REGIONS_QUEUE)
//	-adsb-queue Q       Output queue of fetch results (default: adsb, env: ADSB_QUEUE)
//	-dead-queue Q       Dead-letter queue for failed regions (default: regions-dead, env: DEAD_QUEUE)
//	-api-url URL        OpenSky API base URL (default: https://opensky-network.org/api, env: OPENSKY_API_URL)
//	-workers N          Concurrent external fetches (default: 4)
//	-timeout D          Per-fetch timeout (default: 15s)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/fetcher"
	"adsb_tracker/internal/opensky"
)

func main() {
	brokerURL := flag.String("broker-url", envOrDefault("BROKER_URL", "nats://127.0.0.1:4222"), "NATS URL")
	regionsQueue := flag.String("regions-queue", envOrDefault("REGIONS_QUEUE", "regions"), "Input queue of region messages")
	adsbQueue := flag.String("adsb-queue", envOrDefault("ADSB_QUEUE", "adsb"), "Output queue of fetch results")
	deadQueue := flag.String("dead-queue", envOrDefault("DEAD_QUEUE", "regions-dead"), "Dead-letter queue for failed regions")
	apiURL := flag.String("api-url", envOrDefault("OPENSKY_API_URL", "https://opensky-network.org/api"), "OpenSky API base URL")
	workers := flag.Int("workers", envOrDefaultInt("FETCH_WORKERS", fetcher.DefaultWorkers), "Concurrent external fetches")
	timeout := flag.Duration("timeout", opensky.DefaultTimeout, "Per-fetch timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := broker.NewGateway(*brokerURL, "fetcher")
	defer gw.Close()

	stage := fetcher.New(
		opensky.NewClient(*apiURL, *timeout),
		gw, gw,
		fetcher.Config{
			InQueue:         *regionsQueue,
			OutQueue:        *adsbQueue,
			DeadLetterQueue: *deadQueue,
			Workers:         *workers,
		},
	)

	log.Printf("fetcher consuming %q, publishing to %q (%d workers)", *regionsQueue, *adsbQueue, *workers)
	if err := stage.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Fetcher error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
