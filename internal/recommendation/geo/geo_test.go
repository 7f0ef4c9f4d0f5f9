package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", 48.85, 2.35, 48.85, 2.35, 0, 1e-9},
		{"paris to lyon", 48.8566, 2.3522, 45.7640, 4.8357, 392, 2},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 344, 2},
		{"antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusKm, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2), tt.delta)
		})
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	assert.InDelta(t, DistanceKm(48.85, 2.35, 43.3, 5.4), DistanceKm(43.3, 5.4, 48.85, 2.35), 1e-9)
}

func TestDistanceKm_InvalidInputDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = DistanceKm(math.NaN(), 0, 1000, -500)
	})
}

func TestParsePoint(t *testing.T) {
	lat, lon := 48.85, 2.35
	assert.Equal(t, &Point{Lat: 48.85, Lon: 2.35}, ParsePoint(&lat, &lon))
	assert.Nil(t, ParsePoint(&lat, nil))
	assert.Nil(t, ParsePoint(nil, &lon))
}

func TestFromAttributes(t *testing.T) {
	assert.Equal(t, &Point{Lat: 48.85, Lon: 2.35}, FromAttributes(map[string]interface{}{"lat": 48.85, "lon": "2.35"}))
	assert.Equal(t, &Point{Lat: 1, Lon: 2}, FromAttributes(map[string]interface{}{"lat": json.Number("1"), "lon": 2}))
	assert.Nil(t, FromAttributes(map[string]interface{}{"lat": 48.85}))
	assert.Nil(t, FromAttributes(map[string]interface{}{"lat": "north", "lon": 2.0}))
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{Lat: 48.85, Lon: 2.35}.Valid())
	assert.False(t, Point{Lat: 95, Lon: 2.35}.Valid())
}
