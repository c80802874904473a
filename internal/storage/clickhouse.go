package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"adsb_tracker/internal/adsb"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB is an append-only archive of every committed batch, kept for
// historical analytics. It is off the serving path: the snapshot reader
// never touches it, and archive failures never fail a snapshot write.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the history table. Safe to call any number of times.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS adsb_history (
		icao24          LowCardinality(String),
		callsign        LowCardinality(String),
		origin_country  LowCardinality(String),
		time_position   Nullable(Int64),
		last_contact    Nullable(Int64),
		longitude       Nullable(Float64),
		latitude        Nullable(Float64),
		baro_altitude   Nullable(Float64),
		on_ground       Nullable(Bool),
		velocity        Nullable(Float64),
		true_track      Nullable(Float64),
		vertical_rate   Nullable(Float64),
		sensors         Array(Int64),
		geo_altitude    Nullable(Float64),
		squawk          Nullable(String),
		spi             Nullable(Bool),
		position_source Nullable(Int64),
		update_batch    String,
		recorded_at     DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(recorded_at)
	ORDER BY (icao24, update_batch)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// AppendBatch appends all states of one committed batch to the history
// table.
func (d *ClickHouseDB) AppendBatch(ctx context.Context, batch string, states []adsb.State) error {
	b, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO adsb_history (
			icao24, callsign, origin_country, time_position,
			last_contact, longitude, latitude, baro_altitude,
			on_ground, velocity, true_track, vertical_rate, sensors,
			geo_altitude, squawk, spi, position_source, update_batch
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare history batch: %w", err)
	}

	for _, s := range states {
		sensors := s.Sensors
		if sensors == nil {
			sensors = []int64{}
		}
		err := b.Append(
			s.ICAO24, s.Callsign, s.OriginCountry, s.TimePosition,
			s.LastContact, s.Longitude, s.Latitude, s.BaroAltitude,
			s.OnGround, s.Velocity, s.TrueTrack, s.VerticalRate, sensors,
			s.GeoAltitude, s.Squawk, s.SPI, s.PositionSource, batch,
		)
		if err != nil {
			return fmt.Errorf("append state %s: %w", s.ICAO24, err)
		}
	}

	if err := b.Send(); err != nil {
		return fmt.Errorf("send history batch: %w", err)
	}
	return nil
}
