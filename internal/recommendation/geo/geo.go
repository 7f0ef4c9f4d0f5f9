// Package geo holds the great-circle helpers shared by scoring and labeling.
package geo

import (
	"fmt"
	"math"
	"strconv"
)

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate. It serializes to the geo_point object form.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the haversine distance between two coordinates.
// Out-of-range input yields NaN or a meaningless value, never a panic.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceTo returns the distance in kilometers from p to q.
func (p Point) DistanceTo(q Point) float64 {
	return DistanceKm(p.Lat, p.Lon, q.Lat, q.Lon)
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// ParsePoint builds a point when both coordinates are present.
func ParsePoint(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	if math.IsNaN(*lat) || math.IsNaN(*lon) {
		return nil
	}
	return &Point{Lat: *lat, Lon: *lon}
}

// FromAttributes reads "lat"/"lon" out of a loosely typed record. Numbers,
// numeric strings and json.Number are accepted; anything else means absent.
func FromAttributes(attrs map[string]interface{}) *Point {
	lat, okLat := toFloat(attrs["lat"])
	lon, okLon := toFloat(attrs["lon"])
	if !okLat || !okLon {
		return nil
	}
	return ParsePoint(&lat, &lon)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
