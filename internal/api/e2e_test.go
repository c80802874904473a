package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/fetcher"
	"adsb_tracker/internal/opensky"
	"adsb_tracker/internal/storage"
	"adsb_tracker/internal/writer"
)

// TestPipelineEndToEnd wires all three stages over the in-process broker:
// one bounding box goes in through POST /regions, a stubbed external
// service answers with one aircraft, and GET /flights serves that aircraft
// from the committed batch.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stub external data source returning one state vector.
	var gotBounds map[string]string
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBounds = map[string]string{
			"lamin": r.URL.Query().Get("lamin"),
			"lomin": r.URL.Query().Get("lomin"),
			"lamax": r.URL.Query().Get("lamax"),
			"lomax": r.URL.Query().Get("lomax"),
		}
		_, _ = w.Write([]byte(`{"time": 1700000000, "states": [
			["abc123", "QFA9 ", "Australia", 1700000000, 1700000010, 5.0, 5.0, 1000.0, false, 200.0, 90.0, 0.0, null, 1100.0, "4521", false, 0]
		]}`))
	}))
	defer external.Close()

	m := broker.NewMemory()

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "adsb.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() { _ = store.Close() }()

	fetchStage := fetcher.New(opensky.NewClient(external.URL, time.Second), m, m, fetcher.Config{
		InQueue:  "regions",
		OutQueue: "adsb",
		Workers:  2,
	})
	go func() { _ = fetchStage.Run(ctx) }()

	writeStage := writer.New(store, m, "adsb", nil)
	go func() { _ = writeStage.Run(ctx) }()

	srv := NewServer(store, m, Config{Port: 8080, RegionsQueue: "regions", Version: "test"})
	router := srv.Router()

	// Submit one bounding box with corners deliberately reversed.
	body := `{"bounding_boxes": [{"northEast": {"lat": 10, "lng": 10}, "southWest": {"lat": 0, "lng": 0}}]}`
	req := httptest.NewRequest(http.MethodPost, "/regions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /regions: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Poll /flights until the batch lands.
	var flights []map[string]any
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flights", nil))
		if rec.Code == http.StatusOK {
			flights = nil
			if err := json.NewDecoder(rec.Body).Decode(&flights); err == nil && len(flights) > 0 {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(flights) != 1 {
		t.Fatalf("expected exactly 1 flight in the latest batch, got %d", len(flights))
	}
	if flights[0]["icao24"] != "abc123" {
		t.Errorf("expected icao24 'abc123', got %v", flights[0]["icao24"])
	}
	if flights[0]["callsign"] != "QFA9" {
		t.Errorf("expected trimmed callsign 'QFA9', got %v", flights[0]["callsign"])
	}

	// The normalized region reached the external service.
	want := map[string]string{"lamin": "0", "lomin": "0", "lamax": "10", "lomax": "10"}
	for k, v := range want {
		if gotBounds[k] != v {
			t.Errorf("expected external query %s=%s, got %s", k, v, gotBounds[k])
		}
	}
}
