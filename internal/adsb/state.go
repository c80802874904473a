// Package adsb models ADS-B aircraft state vectors as reported by the
// OpenSky /states/all endpoint and carried on the fetch-results queue.
//
// The wire format is a positional 17-element tuple per aircraft:
//
//	icao24, callsign, origin_country, time_position, last_contact,
//	longitude, latitude, baro_altitude, on_ground, velocity, true_track,
//	vertical_rate, sensors, geo_altitude, squawk, spi, position_source
//
// Most fields are nullable. Decoding is tolerant about JSON number/bool
// shapes; validation is strict about required fields and velocity sign.
package adsb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// tupleLen is the number of elements in one OpenSky state vector.
const tupleLen = 17

// State is one aircraft's reported position and kinematics at one
// observation instant.
type State struct {
	ICAO24         string   `json:"icao24"`
	Callsign       string   `json:"callsign"`
	OriginCountry  string   `json:"origin_country"`
	TimePosition   *int64   `json:"time_position"`
	LastContact    *int64   `json:"last_contact"`
	Longitude      *float64 `json:"longitude"`
	Latitude       *float64 `json:"latitude"`
	BaroAltitude   *float64 `json:"baro_altitude"`
	OnGround       *bool    `json:"on_ground"`
	Velocity       *float64 `json:"velocity"`
	TrueTrack      *float64 `json:"true_track"`
	VerticalRate   *float64 `json:"vertical_rate"`
	Sensors        []int64  `json:"sensors"`
	GeoAltitude    *float64 `json:"geo_altitude"`
	Squawk         *string  `json:"squawk"`
	SPI            *bool    `json:"spi"`
	PositionSource *int64   `json:"position_source"`
}

// FetchResult is the fetch-results queue message: the raw decoded payload
// from the external data source, forwarded unmodified by the fetch stage.
type FetchResult struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// Validation errors. ErrBadTuple covers structural problems in a state
// vector; the others cover field-level constraint violations.
var (
	ErrBadTuple         = errors.New("malformed state vector")
	ErrMissingField     = errors.New("required field missing or empty")
	ErrNegativeVelocity = errors.New("velocity must be >= 0")
)

// DecodeFetchResult parses a fetch-results queue message.
func DecodeFetchResult(payload []byte) (*FetchResult, error) {
	var fr FetchResult
	if err := json.Unmarshal(payload, &fr); err != nil {
		return nil, fmt.Errorf("decode fetch result: %w", err)
	}
	return &fr, nil
}

// FromTuple builds a State from one positional state vector and validates
// it. Required string fields are trimmed and must be non-empty; velocity
// must be non-negative when present.
func FromTuple(tuple []any) (*State, error) {
	if len(tuple) < tupleLen {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrBadTuple, len(tuple), tupleLen)
	}

	s := &State{
		ICAO24:         strings.TrimSpace(asString(tuple[0])),
		Callsign:       strings.TrimSpace(asString(tuple[1])),
		OriginCountry:  strings.TrimSpace(asString(tuple[2])),
		TimePosition:   asInt64(tuple[3]),
		LastContact:    asInt64(tuple[4]),
		Longitude:      asFloat64(tuple[5]),
		Latitude:       asFloat64(tuple[6]),
		BaroAltitude:   asFloat64(tuple[7]),
		OnGround:       asBool(tuple[8]),
		Velocity:       asFloat64(tuple[9]),
		TrueTrack:      asFloat64(tuple[10]),
		VerticalRate:   asFloat64(tuple[11]),
		Sensors:        asInt64Slice(tuple[12]),
		GeoAltitude:    asFloat64(tuple[13]),
		Squawk:         asStringPtr(tuple[14]),
		SPI:            asBool(tuple[15]),
		PositionSource: asInt64(tuple[16]),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the field constraints on a State.
func (s *State) Validate() error {
	if s.ICAO24 == "" {
		return fmt.Errorf("%w: icao24", ErrMissingField)
	}
	if s.Callsign == "" {
		return fmt.Errorf("%w: callsign", ErrMissingField)
	}
	if s.OriginCountry == "" {
		return fmt.Errorf("%w: origin_country", ErrMissingField)
	}
	if s.Velocity != nil && *s.Velocity < 0 {
		return fmt.Errorf("%w: got %v", ErrNegativeVelocity, *s.Velocity)
	}
	return nil
}

// Loose coercion helpers. encoding/json decodes the positional tuples into
// []any, so every element arrives as string, float64, bool, []any or nil.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func asFloat64(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func asInt64(v any) *int64 {
	if f, ok := v.(float64); ok {
		i := int64(f)
		return &i
	}
	return nil
}

func asBool(v any) *bool {
	switch t := v.(type) {
	case bool:
		return &t
	case float64:
		// Some feeds report booleans as 0/1.
		b := t != 0
		return &b
	}
	return nil
}

func asInt64Slice(v any) []int64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, e := range raw {
		if f, ok := e.(float64); ok {
			out = append(out, int64(f))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
