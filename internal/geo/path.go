// Package geo derives distance and pace from recorded activity paths.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// ParsePoint decodes a "latitude,longitude" sample. ok is false for anything
// that is not two finite numbers inside the valid coordinate ranges.
func ParsePoint(raw string) (Point, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Point{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, false
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

// ParsePath decodes every well-formed sample and silently drops the rest.
func ParsePath(raw []string) []Point {
	points := make([]Point, 0, len(raw))
	for _, sample := range raw {
		if p, ok := ParsePoint(sample); ok {
			points = append(points, p)
		}
	}
	return points
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceMeters sums the distance between consecutive points.
func DistanceMeters(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1], points[i])
	}
	return total
}

// PathDistanceMeters parses raw samples and returns the cumulative distance.
// Fewer than two valid samples yield 0.
func PathDistanceMeters(raw []string) float64 {
	return DistanceMeters(ParsePath(raw))
}

// PathDistanceKm is PathDistanceMeters expressed in kilometres.
func PathDistanceKm(raw []string) float64 {
	return PathDistanceMeters(raw) / 1000
}

// Pace returns minutes per kilometre. A zero distance yields 0 rather than an infinite pace.
func Pace(elapsedMinutes, distanceKm float64) float64 {
	if distanceKm <= 0 || elapsedMinutes <= 0 {
		return 0
	}
	return elapsedMinutes / distanceKm
}
