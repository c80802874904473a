// Package main provides the regions-api server, the HTTP front end of the
// aircraft tracker.
//
// The dashboard submits bounding boxes to POST /regions; each box becomes
// one region message on the regions queue for the fetch stage. The
// dashboard polls GET /flights for the latest complete snapshot of
// aircraft states.
//
// Usage:
//
//	regions-api [options]
//
// Options:
//
//	-port N             HTTP port (default: 8080)
//	-broker-url URL     NATS URL (default: nats://127.0.0.1:4222, env: BROKER_URL)
//	-regions-queue Q    Regions queue name (default: regions, env: REGIONS_QUEUE)
//	-db PATH            SQLite database path (default: adsb.db, env: DATABASE_NAME)
//	-store NAME         Snapshot store backend: sqlite or postgres (default: sqlite)
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: adsb, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: adsb, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: adsb, env: POSTGRES_PASSWORD)
//	-origins LIST       Comma-separated CORS allow-list (env: ORIGINS)
//	-version V          Service version string (default: 0.0.0, env: API_VERSION)
//
// Endpoints:
//
//	GET  /          Service version.
//	GET  /health    Health check.
//	POST /regions   Submit bounding boxes for tracking.
//	GET  /flights   Aircraft states of the latest complete batch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"adsb_tracker/internal/api"
	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/storage"
)

func main() {
	port := flag.Int("port", envOrDefaultInt("PORT", 8080), "HTTP port")
	brokerURL := flag.String("broker-url", envOrDefault("BROKER_URL", "nats://127.0.0.1:4222"), "NATS URL")
	regionsQueue := flag.String("regions-queue", envOrDefault("REGIONS_QUEUE", "regions"), "Regions queue name")
	dbPath := flag.String("db", envOrDefault("DATABASE_NAME", "adsb.db"), "SQLite database path")
	storeName := flag.String("store", envOrDefault("STORE", "sqlite"), "Snapshot store backend (sqlite or postgres)")
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "adsb"), "PostgreSQL database")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "adsb"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "adsb"), "PostgreSQL password")
	origins := flag.String("origins", envOrDefault("ORIGINS", ""), "Comma-separated CORS allow-list")
	version := flag.String("version", envOrDefault("API_VERSION", "0.0.0"), "Service version string")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, *storeName, *dbPath, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// The writer owns the schema, but creating it here too is idempotent
	// and lets GET /flights answer before the writer has ever run.
	if err := store.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		os.Exit(1)
	}

	gw := broker.NewGateway(*brokerURL, "regions-api")
	defer gw.Close()

	server := api.NewServer(store, gw, api.Config{
		Port:           *port,
		RegionsQueue:   *regionsQueue,
		Version:        *version,
		AllowedOrigins: splitList(*origins),
	})

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, name, dbPath string, pg storage.PostgresConfig) (storage.Store, error) {
	switch name {
	case "sqlite":
		return storage.OpenSQLite(dbPath)
	case "postgres":
		return storage.OpenPostgres(ctx, pg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", name)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
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
