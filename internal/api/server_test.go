package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"adsb_tracker/internal/adsb"
	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/region"
	"adsb_tracker/internal/storage"
)

// stubStore serves canned rows or an error for GET /flights.
type stubStore struct {
	rows []storage.StoredState
	err  error
}

func (s *stubStore) CreateSchema(ctx context.Context) error { return nil }
func (s *stubStore) Close() error                           { return nil }
func (s *stubStore) InsertBatch(ctx context.Context, batch string, states []adsb.State) error {
	return nil
}
func (s *stubStore) FetchLatest(ctx context.Context) ([]storage.StoredState, error) {
	return s.rows, s.err
}

// failingPublisher rejects every enqueue.
type failingPublisher struct{}

func (failingPublisher) Enqueue(ctx context.Context, queue string, payload []byte) error {
	return errors.New("broker unavailable")
}

func newTestServer(store storage.Store, pub broker.Publisher) *Server {
	return NewServer(store, pub, Config{
		Port:         8080,
		RegionsQueue: "regions",
		Version:      "1.2.3",
	})
}

func TestIndexReportsVersion(t *testing.T) {
	srv := newTestServer(&stubStore{}, broker.NewMemory())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %q", resp["version"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubStore{}, broker.NewMemory())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestSetRegionsEnqueuesCanonicalRegion(t *testing.T) {
	m := broker.NewMemory()
	srv := newTestServer(&stubStore{}, m)

	body := `{"bounding_boxes": [{"northEast": {"lat": 10, "lng": 10}, "southWest": {"lat": 0, "lng": 0}}]}`
	req := httptest.NewRequest(http.MethodPost, "/regions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := m.Pending("regions"); got != 1 {
		t.Fatalf("expected 1 enqueued region, got %d", got)
	}

	done := make(chan region.Region, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = m.Consume(ctx, "regions", func(payload []byte) {
			r, err := region.Unmarshal(payload)
			if err != nil {
				t.Errorf("queued message should decode: %v", err)
			}
			done <- r
		})
	}()

	r := <-done
	want := region.Region{LatMin: 0, LonMin: 0, LatMax: 10, LonMax: 10}
	if r != want {
		t.Errorf("expected canonical region %+v, got %+v", want, r)
	}
}

func TestSetRegionsOneMessagePerBox(t *testing.T) {
	m := broker.NewMemory()
	srv := newTestServer(&stubStore{}, m)

	body := `{"bounding_boxes": [
		{"northEast": {"lat": 1, "lng": 1}, "southWest": {"lat": 0, "lng": 0}},
		{"northEast": {"lat": 2, "lng": 2}, "southWest": {"lat": 1, "lng": 1}},
		{"northEast": {"lat": 3, "lng": 3}, "southWest": {"lat": 2, "lng": 2}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/regions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := m.Pending("regions"); got != 3 {
		t.Errorf("expected 3 enqueued regions, got %d", got)
	}
}

func TestSetRegionsEmptyListRejected(t *testing.T) {
	m := broker.NewMemory()
	srv := newTestServer(&stubStore{}, m)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty list", body: `{"bounding_boxes": []}`, want: http.StatusBadRequest},
		{name: "missing field", body: `{}`, want: http.StatusBadRequest},
		{name: "invalid json", body: `not json`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/regions", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if got := m.Pending("regions"); got != 0 {
		t.Errorf("expected zero messages enqueued, got %d", got)
	}
}

func TestSetRegionsEnqueueFailureIsVisible(t *testing.T) {
	srv := newTestServer(&stubStore{}, failingPublisher{})

	body := `{"bounding_boxes": [{"northEast": {"lat": 1, "lng": 1}, "southWest": {"lat": 0, "lng": 0}}]}`
	req := httptest.NewRequest(http.MethodPost, "/regions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 when publish fails, got %d", rec.Code)
	}
}

func TestFlightsReturnsLatestBatch(t *testing.T) {
	velocity := 250.5
	store := &stubStore{rows: []storage.StoredState{
		{
			ID:    7,
			Batch: "2026-01-01T00:00:00.000000000Z",
			State: adsb.State{
				ICAO24:        "abc123",
				Callsign:      "QFA9",
				OriginCountry: "Australia",
				Velocity:      &velocity,
			},
		},
	}}
	srv := newTestServer(store, broker.NewMemory())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flights", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var flights []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&flights); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(flights) != 1 {
		t.Fatalf("expected 1 flight, got %d", len(flights))
	}
	if flights[0]["icao24"] != "abc123" {
		t.Errorf("expected icao24 'abc123', got %v", flights[0]["icao24"])
	}
	if flights[0]["velocity"] != 250.5 {
		t.Errorf("expected velocity 250.5, got %v", flights[0]["velocity"])
	}
}

func TestFlightsEmptyStore(t *testing.T) {
	srv := newTestServer(&stubStore{rows: []storage.StoredState{}}, broker.NewMemory())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flights", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("expected empty array, got %q", got)
	}
}

func TestFlightsStoreFailure(t *testing.T) {
	srv := newTestServer(&stubStore{err: errors.New("database locked")}, broker.NewMemory())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flights", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestCORSAllowList(t *testing.T) {
	srv := NewServer(&stubStore{}, broker.NewMemory(), Config{
		Port:           8080,
		RegionsQueue:   "regions",
		Version:        "1.2.3",
		AllowedOrigins: []string{"https://dashboard.example.com"},
	})

	handler := srv.corsMiddleware(srv.Router())

	req := httptest.NewRequest(http.MethodOptions, "/flights", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for OPTIONS, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("expected configured origin echoed, got %q", got)
	}
}

func TestCORSDefaultsToAnyOrigin(t *testing.T) {
	srv := newTestServer(&stubStore{}, broker.NewMemory())
	handler := srv.corsMiddleware(srv.Router())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected '*', got %q", got)
	}
}
