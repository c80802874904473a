package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"adsb_tracker/internal/adsb"
)

// SQLiteDB is the primary snapshot store, backed by a single SQLite file.
// Reader and writer processes open separate connections to the same file;
// WAL mode lets reads proceed concurrently with the writer's transactions.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates the SQLite database at path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the adsb table and its batch index. Safe to call any
// number of times.
func (d *SQLiteDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS adsb (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		icao24 TEXT NOT NULL,
		callsign TEXT NOT NULL,
		origin_country TEXT NOT NULL,
		time_position INTEGER,
		last_contact INTEGER,
		longitude REAL,
		latitude REAL,
		baro_altitude REAL,
		on_ground BOOLEAN,
		velocity REAL,
		true_track REAL,
		vertical_rate REAL,
		sensors TEXT,
		geo_altitude REAL,
		squawk TEXT,
		spi BOOLEAN,
		position_source INTEGER,
		update_batch TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adsb_batch ON adsb(update_batch);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const insertStateSQL = `
	INSERT INTO adsb (
		icao24, callsign, origin_country, time_position,
		last_contact, longitude, latitude, baro_altitude,
		on_ground, velocity, true_track, vertical_rate, sensors,
		geo_altitude, squawk, spi, position_source, update_batch
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertBatch writes all states under one batch value in a single
// transaction. Either every row commits or none do.
func (d *SQLiteDB) InsertBatch(ctx context.Context, batch string, states []adsb.State) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", batch, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertStateSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, s := range states {
		sensors, err := marshalSensors(s.Sensors)
		if err != nil {
			return fmt.Errorf("encode sensors for %s: %w", s.ICAO24, err)
		}
		_, err = stmt.ExecContext(ctx,
			s.ICAO24, s.Callsign, s.OriginCountry, s.TimePosition,
			s.LastContact, s.Longitude, s.Latitude, s.BaroAltitude,
			s.OnGround, s.Velocity, s.TrueTrack, s.VerticalRate, sensors,
			s.GeoAltitude, s.Squawk, s.SPI, s.PositionSource, batch,
		)
		if err != nil {
			return fmt.Errorf("insert state %s: %w", s.ICAO24, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch %s: %w", batch, err)
	}
	return nil
}

// FetchLatest returns every row of the maximum batch. The max-batch lookup
// and the row select run as one statement, so a concurrent writer commit
// cannot slip in between the two phases.
func (d *SQLiteDB) FetchLatest(ctx context.Context) ([]StoredState, error) {
	rows, err := d.db.QueryContext(ctx, `
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
	defer func() { _ = rows.Close() }()

	states := []StoredState{}
	for rows.Next() {
		var st StoredState
		var timePosition, lastContact, positionSource sql.NullInt64
		var longitude, latitude, baroAltitude, velocity, trueTrack, verticalRate, geoAltitude sql.NullFloat64
		var onGround, spi sql.NullBool
		var sensors, squawk sql.NullString

		err := rows.Scan(&st.ID, &st.ICAO24, &st.Callsign, &st.OriginCountry, &timePosition,
			&lastContact, &longitude, &latitude, &baroAltitude,
			&onGround, &velocity, &trueTrack, &verticalRate, &sensors,
			&geoAltitude, &squawk, &spi, &positionSource, &st.Batch)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		st.TimePosition = nullInt64(timePosition)
		st.LastContact = nullInt64(lastContact)
		st.Longitude = nullFloat64(longitude)
		st.Latitude = nullFloat64(latitude)
		st.BaroAltitude = nullFloat64(baroAltitude)
		st.OnGround = nullBool(onGround)
		st.Velocity = nullFloat64(velocity)
		st.TrueTrack = nullFloat64(trueTrack)
		st.VerticalRate = nullFloat64(verticalRate)
		st.GeoAltitude = nullFloat64(geoAltitude)
		st.Squawk = nullString(squawk)
		st.SPI = nullBool(spi)
		st.PositionSource = nullInt64(positionSource)
		if sensors.Valid {
			st.Sensors = unmarshalSensors(sensors.String)
		}

		states = append(states, st)
	}

	return states, rows.Err()
}

// Sensors are persisted as a JSON array in a text column; the ordered
// sequence survives the round trip.

func marshalSensors(sensors []int64) (*string, error) {
	if sensors == nil {
		return nil, nil
	}
	b, err := json.Marshal(sensors)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalSensors(raw string) []int64 {
	var out []int64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return &v.Bool
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
