// Package region models the geographic bounding regions that drive the
// aircraft-data pipeline. A dashboard submits arbitrary corner pairs; this
// package normalizes them into canonical min/max regions and defines the
// queue message exchanged with the fetch stage.
package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Region is a canonical rectangular query bound. LatMin <= LatMax and
// LonMin <= LonMax always hold for regions produced by FromCorners.
// The JSON field names match the regions-queue wire format.
type Region struct {
	LatMin float64 `json:"lamin"`
	LonMin float64 `json:"lomin"`
	LatMax float64 `json:"lamax"`
	LonMax float64 `json:"lomax"`
}

// Coordinates is a single lat/lng pair as sent by the dashboard.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is a rectangle given by two arbitrary corners. Callers may
// swap the corners; FromCorners sorts the axes.
type BoundingBox struct {
	NorthEast Coordinates `json:"northEast"`
	SouthWest Coordinates `json:"southWest"`
}

// BoundingBoxesRequest is the POST /regions request body.
type BoundingBoxesRequest struct {
	BoundingBoxes []BoundingBox `json:"bounding_boxes"`
}

// ErrNotFinite is returned when a corner coordinate is NaN or infinite.
var ErrNotFinite = errors.New("coordinate is not a finite number")

// FromCorners builds the canonical Region from two corner points, taking
// the min and max of each axis so corner orientation does not matter.
func FromCorners(a, b Coordinates) (Region, error) {
	for _, v := range []float64{a.Lat, a.Lng, b.Lat, b.Lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Region{}, ErrNotFinite
		}
	}
	return Region{
		LatMin: math.Min(a.Lat, b.Lat),
		LonMin: math.Min(a.Lng, b.Lng),
		LatMax: math.Max(a.Lat, b.Lat),
		LonMax: math.Max(a.Lng, b.Lng),
	}, nil
}

// Normalize converts a BoundingBox into its canonical Region.
func (b BoundingBox) Normalize() (Region, error) {
	return FromCorners(b.NorthEast, b.SouthWest)
}

// Marshal encodes the region as a regions-queue message.
func (r Region) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal decodes a regions-queue message.
func Unmarshal(payload []byte) (Region, error) {
	var r Region
	if err := json.Unmarshal(payload, &r); err != nil {
		return Region{}, fmt.Errorf("decode region: %w", err)
	}
	return r, nil
}
