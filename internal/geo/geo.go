// Package geo holds the coordinate math shared by clustering, the map endpoint and zone lookup.
package geo

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm mean earth radius
const EarthRadiusKm = 6371.0088

// MaxZoom 地图最大缩放级别
const MaxZoom = 21.0

var ErrInvalidCoordinates = errors.New("invalid coordinates")

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c is a finite point inside [-90,90] x [-180,180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Latitude, c.Longitude)
}

// PlanarDistance is the Euclidean distance over raw degree differences.
// It distorts at high latitudes; kept as the default clustering metric.
func PlanarDistance(a, b Coordinate) float64 {
	dLat := a.Latitude - b.Latitude
	dLng := a.Longitude - b.Longitude
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// AngularDistance is the great-circle distance between a and b, in degrees of arc.
func AngularDistance(a, b Coordinate) float64 {
	return a.latLng().Distance(b.latLng()).Degrees()
}

// DistanceKm is the great-circle distance between a and b in kilometres.
func DistanceKm(a, b Coordinate) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusKm
}

// Centroid returns the arithmetic mean of latitudes and longitudes independently.
// An empty slice yields the zero coordinate.
func Centroid(points []Coordinate) Coordinate {
	if len(points) == 0 {
		return Coordinate{}
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Latitude
		sumLng += p.Longitude
	}
	n := float64(len(points))
	return Coordinate{Latitude: sumLat / n, Longitude: sumLng / n}
}

// ZoomFromLatitudeDelta converts a viewport latitude span into a zoom level: log2(360/delta).
// Non-positive spans clamp to MaxZoom.
func ZoomFromLatitudeDelta(delta float64) float64 {
	if delta <= 0 || math.IsNaN(delta) {
		return MaxZoom
	}
	zoom := math.Log2(360 / delta)
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

// ClusterRadius 根据缩放级别返回聚合半径（单位：度）
func ClusterRadius(zoom float64) float64 {
	switch {
	case zoom > 15:
		return 0.0001
	case zoom > 12:
		return 0.0005
	case zoom > 10:
		return 0.001
	case zoom > 8:
		return 0.005
	default:
		return 0.01
	}
}

// Viewport is the visible map region. Width and Height are pixel dimensions.
type Viewport struct {
	Center         Coordinate
	LatitudeDelta  float64
	LongitudeDelta float64
	Width          int
	Height         int
}

func (v Viewport) Zoom() float64 {
	return ZoomFromLatitudeDelta(v.LatitudeDelta)
}

// Bounds returns the south-west and north-east corners, clamped to valid ranges.
func (v Viewport) Bounds() (Coordinate, Coordinate) {
	halfLat := math.Abs(v.LatitudeDelta) / 2
	halfLng := math.Abs(v.LongitudeDelta) / 2
	sw := Coordinate{
		Latitude:  math.Max(v.Center.Latitude-halfLat, -90),
		Longitude: math.Max(v.Center.Longitude-halfLng, -180),
	}
	ne := Coordinate{
		Latitude:  math.Min(v.Center.Latitude+halfLat, 90),
		Longitude: math.Min(v.Center.Longitude+halfLng, 180),
	}
	return sw, ne
}

// BoundingBox returns a lat/lng box that encloses the circle of radiusKm around center.
// Used as a coarse SQL prefilter before the exact DistanceKm check.
func BoundingBox(center Coordinate, radiusKm float64) (Coordinate, Coordinate) {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	dLng := 180.0
	if cosLat > 1e-9 {
		dLng = math.Min(dLat/cosLat, 180)
	}
	sw := Coordinate{
		Latitude:  math.Max(center.Latitude-dLat, -90),
		Longitude: math.Max(center.Longitude-dLng, -180),
	}
	ne := Coordinate{
		Latitude:  math.Min(center.Latitude+dLat, 90),
		Longitude: math.Min(center.Longitude+dLng, 180),
	}
	return sw, ne
}
