package adsb

import (
	"encoding/json"
	"errors"
	"testing"
)

// sampleTuple returns a fully-populated state vector in wire order.
func sampleTuple() []any {
	return []any{
		"abc123", "QFA9    ", "Australia",
		float64(1700000000), float64(1700000010),
		151.17, -33.94, 10668.0,
		false, 250.5, 87.3, 1.2,
		[]any{float64(1), float64(2)},
		10800.0, "4521", false, float64(0),
	}
}

func TestFromTuple(t *testing.T) {
	s, err := FromTuple(sampleTuple())
	if err != nil {
		t.Fatalf("FromTuple: %v", err)
	}

	if s.ICAO24 != "abc123" {
		t.Errorf("expected icao24 'abc123', got %q", s.ICAO24)
	}
	if s.Callsign != "QFA9" {
		t.Errorf("expected trimmed callsign 'QFA9', got %q", s.Callsign)
	}
	if s.OriginCountry != "Australia" {
		t.Errorf("expected origin_country 'Australia', got %q", s.OriginCountry)
	}
	if s.TimePosition == nil || *s.TimePosition != 1700000000 {
		t.Errorf("expected time_position 1700000000, got %v", s.TimePosition)
	}
	if s.Longitude == nil || *s.Longitude != 151.17 {
		t.Errorf("expected longitude 151.17, got %v", s.Longitude)
	}
	if s.OnGround == nil || *s.OnGround {
		t.Errorf("expected on_ground false, got %v", s.OnGround)
	}
	if s.Velocity == nil || *s.Velocity != 250.5 {
		t.Errorf("expected velocity 250.5, got %v", s.Velocity)
	}
	if len(s.Sensors) != 2 || s.Sensors[0] != 1 || s.Sensors[1] != 2 {
		t.Errorf("expected sensors [1 2], got %v", s.Sensors)
	}
	if s.Squawk == nil || *s.Squawk != "4521" {
		t.Errorf("expected squawk '4521', got %v", s.Squawk)
	}
	if s.PositionSource == nil || *s.PositionSource != 0 {
		t.Errorf("expected position_source 0, got %v", s.PositionSource)
	}
}

func TestFromTupleNullableFields(t *testing.T) {
	tuple := sampleTuple()
	// Null out every optional field.
	for _, i := range []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16} {
		tuple[i] = nil
	}

	s, err := FromTuple(tuple)
	if err != nil {
		t.Fatalf("FromTuple with nulls: %v", err)
	}
	if s.Velocity != nil {
		t.Errorf("expected nil velocity, got %v", *s.Velocity)
	}
	if s.Sensors != nil {
		t.Errorf("expected nil sensors, got %v", s.Sensors)
	}
	if s.Squawk != nil {
		t.Errorf("expected nil squawk, got %v", *s.Squawk)
	}
}

func TestVelocityValidation(t *testing.T) {
	tests := []struct {
		name     string
		velocity any
		wantErr  bool
	}{
		{name: "negative rejected", velocity: -1.0, wantErr: true},
		{name: "zero accepted", velocity: 0.0, wantErr: false},
		{name: "null accepted", velocity: nil, wantErr: false},
		{name: "positive accepted", velocity: 12.5, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuple := sampleTuple()
			tuple[9] = tt.velocity
			_, err := FromTuple(tuple)
			if tt.wantErr && !errors.Is(err, ErrNegativeVelocity) {
				t.Errorf("expected ErrNegativeVelocity, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		index int
		value any
	}{
		{name: "missing icao24", index: 0, value: ""},
		{name: "whitespace callsign", index: 1, value: "   "},
		{name: "null origin_country", index: 2, value: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuple := sampleTuple()
			tuple[tt.index] = tt.value
			_, err := FromTuple(tuple)
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestShortTuple(t *testing.T) {
	_, err := FromTuple([]any{"abc123", "QFA9"})
	if !errors.Is(err, ErrBadTuple) {
		t.Errorf("expected ErrBadTuple, got %v", err)
	}
}

func TestNumericBooleans(t *testing.T) {
	tuple := sampleTuple()
	tuple[8] = float64(1)  // on_ground
	tuple[15] = float64(0) // spi

	s, err := FromTuple(tuple)
	if err != nil {
		t.Fatalf("FromTuple: %v", err)
	}
	if s.OnGround == nil || !*s.OnGround {
		t.Errorf("expected on_ground true from numeric 1, got %v", s.OnGround)
	}
	if s.SPI == nil || *s.SPI {
		t.Errorf("expected spi false from numeric 0, got %v", s.SPI)
	}
}

func TestDecodeFetchResult(t *testing.T) {
	payload := []byte(`{"time": 1700000000, "states": [["abc123","QFA9","Australia",null,null,null,null,null,false,null,null,null,null,null,null,false,0]]}`)

	fr, err := DecodeFetchResult(payload)
	if err != nil {
		t.Fatalf("DecodeFetchResult: %v", err)
	}
	if fr.Time != 1700000000 {
		t.Errorf("expected time 1700000000, got %d", fr.Time)
	}
	if len(fr.States) != 1 {
		t.Fatalf("expected 1 state, got %d", len(fr.States))
	}
	if _, err := FromTuple(fr.States[0]); err != nil {
		t.Errorf("decoded state should validate: %v", err)
	}
}

func TestDecodeFetchResultGarbage(t *testing.T) {
	if _, err := DecodeFetchResult([]byte("\x00not json")); err == nil {
		t.Error("expected error for non-JSON payload")
	}
}

func TestStateJSONFieldNames(t *testing.T) {
	s, err := FromTuple(sampleTuple())
	if err != nil {
		t.Fatalf("FromTuple: %v", err)
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"icao24", "callsign", "origin_country", "baro_altitude", "position_source"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected JSON key %q, got %s", key, b)
		}
	}
}
