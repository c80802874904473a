// Package main provides the dbupdater, the snapshot-writer stage of the
// aircraft tracker.
//
// It consumes raw fetch results from the fetch-results queue, validates
// every ADS-B state vector, and commits the valid ones to the snapshot
// store under one batch value per message, inside one transaction. When a
// ClickHouse host is configured, every committed batch is also appended to
// the history archive.
//
// Usage:
//
//	dbupdater [options]
//
// Options:
//
//	-broker-url URL     NATS URL (default: nats://127.0.0.1:4222, env: BROKER_URL)
//	-adsb-queue Q       Input queue of fetch results (default: adsb, env: ADSB_QUEUE)
//	-db PATH            SQLite database path (default: adsb.db, env: DATABASE_NAME)
//	-store NAME         Snapshot store backend: sqlite or postgres (default: sqlite)
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: adsb, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: adsb, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: adsb, env: POSTGRES_PASSWORD)
//	-ch-host HOST       ClickHouse host; empty disables the history archive (env: CLICKHOUSE_HOST)
//	-ch-port PORT       ClickHouse port (default: 9000, env: CLICKHOUSE_PORT)
//	-ch-database DB     ClickHouse database (default: adsb, env: CLICKHOUSE_DATABASE)
//	-ch-user USER       ClickHouse user (default: default, env: CLICKHOUSE_USER)
//	-ch-password PASS   ClickHouse password (env: CLICKHOUSE_PASSWORD)
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
	"adsb_tracker/internal/storage"
	"adsb_tracker/internal/writer"
)

func main() {
	brokerURL := flag.String("broker-url", envOrDefault("BROKER_URL", "nats://127.0.0.1:4222"), "NATS URL")
	adsbQueue := flag.String("adsb-queue", envOrDefault("ADSB_QUEUE", "adsb"), "Input queue of fetch results")
	dbPath := flag.String("db", envOrDefault("DATABASE_NAME", "adsb.db"), "SQLite database path")
	storeName := flag.String("store", envOrDefault("STORE", "sqlite"), "Snapshot store backend (sqlite or postgres)")
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "adsb"), "PostgreSQL database")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "adsb"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "adsb"), "PostgreSQL password")
	chHost := flag.String("ch-host", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse host (empty disables the history archive)")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "adsb"), "ClickHouse database")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := flag.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
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

	var archive writer.Archive
	if *chHost != "" {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening ClickHouse archive: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = ch.Close() }()
		if err := ch.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating ClickHouse schema: %v\n", err)
			os.Exit(1)
		}
		archive = ch
		log.Printf("dbupdater archiving batches to ClickHouse at %s:%d", *chHost, *chPort)
	}

	gw := broker.NewGateway(*brokerURL, "dbupdater")
	defer gw.Close()

	stage := writer.New(store, gw, *adsbQueue, archive)

	log.Printf("dbupdater consuming %q into %s store", *adsbQueue, *storeName)
	if err := stage.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Writer error: %v\n", err)
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
