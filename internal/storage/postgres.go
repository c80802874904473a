package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adsb_tracker/internal/adsb"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB is an alternate snapshot store for deployments where the
// reader and writer processes run on different hosts and a shared SQLite
// file is not an option. Same contract as SQLiteDB.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the adsb table. Safe to call any number of times.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS adsb (
		id              BIGSERIAL PRIMARY KEY,
		icao24          TEXT NOT NULL,
		callsign        TEXT NOT NULL,
		origin_country  TEXT NOT NULL,
		time_position   BIGINT,
		last_contact    BIGINT,
		longitude       DOUBLE PRECISION,
		latitude        DOUBLE PRECISION,
		baro_altitude   DOUBLE PRECISION,
		on_ground       BOOLEAN,
		velocity        DOUBLE PRECISION,
		true_track      DOUBLE PRECISION,
		vertical_rate   DOUBLE PRECISION,
		sensors         TEXT,
		geo_altitude    DOUBLE PRECISION,
		squawk          TEXT,
		spi             BOOLEAN,
		position_source BIGINT,
		update_batch    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adsb_batch ON adsb(update_batch);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertBatch writes all states under one batch value in a single
// transaction.
func (d *PostgresDB) InsertBatch(ctx context.Context, batch string, states []adsb.State) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", batch, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range states {
		sensors, err := marshalSensors(s.Sensors)
		if err != nil {
			return fmt.Errorf("encode sensors for %s: %w", s.ICAO24, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO adsb (
				icao24, callsign, origin_country, time_position,
				last_contact, longitude, latitude, baro_altitude,
				on_ground, velocity, true_track, vertical_rate, sensors,
				geo_altitude, squawk, spi, position_source, update_batch
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`,
			s.ICAO24, s.Callsign, s.OriginCountry, s.TimePosition,
			s.LastContact, s.Longitude, s.Latitude, s.BaroAltitude,
			s.OnGround, s.Velocity, s.TrueTrack, s.VerticalRate, sensors,
			s.GeoAltitude, s.Squawk, s.SPI, s.PositionSource, batch,
		)
		if err != nil {
			return fmt.Errorf("insert state %s: %w", s.ICAO24, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %s: %w", batch, err)
	}
	return nil
}

// FetchLatest returns every row of the maximum batch as one statement.
func (d *PostgresDB) FetchLatest(ctx context.Context) ([]StoredState, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, icao24, callsign, origin_country, time_position,
			last_contact, longitude, latitude, baro_altitude,
			on_ground, velocity, true_track, vertical_rate, sensors,
			geo_altitude, squawk, spi, position_source, update_batch
		FROM adsb
		WHERE update_batch = (SELECT MAX(update_batch) FROM adsb)
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest batch: %w", err)
	}
	defer rows.Close()

	states := []StoredState{}
	for rows.Next() {
		var st StoredState
		var sensors *string

		err := rows.Scan(&st.ID, &st.ICAO24, &st.Callsign, &st.OriginCountry, &st.TimePosition,
			&st.LastContact, &st.Longitude, &st.Latitude, &st.BaroAltitude,
			&st.OnGround, &st.Velocity, &st.TrueTrack, &st.VerticalRate, &sensors,
			&st.GeoAltitude, &st.Squawk, &st.SPI, &st.PositionSource, &st.Batch)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if sensors != nil {
			st.Sensors = unmarshalSensors(*sensors)
		}

		states = append(states, st)
	}

	return states, rows.Err()
}
