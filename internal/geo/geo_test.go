package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanarDistance(t *testing.T) {
	a := Coordinate{Latitude: 4.7110, Longitude: -74.0721}
	b := Coordinate{Latitude: 4.7111, Longitude: -74.0722}

	d := PlanarDistance(a, b)
	assert.InDelta(t, math.Sqrt(2)*0.0001, d, 1e-9)
	assert.Equal(t, d, PlanarDistance(b, a))
	assert.Zero(t, PlanarDistance(a, a))
}

func TestAngularDistance(t *testing.T) {
	// 赤道上经度差 1 度即 1 度弧
	assert.InDelta(t, 1.0, AngularDistance(Coordinate{0, 0}, Coordinate{0, 1}), 1e-9)
	// 高纬度时经度差被压缩，平面距离会高估
	high := AngularDistance(Coordinate{60, 0}, Coordinate{60, 1})
	assert.InDelta(t, 0.5, high, 0.001)
	assert.Less(t, high, PlanarDistance(Coordinate{60, 0}, Coordinate{60, 1}))
}

func TestDistanceKm(t *testing.T) {
	bogota := Coordinate{Latitude: 4.7110, Longitude: -74.0721}
	medellin := Coordinate{Latitude: 6.2442, Longitude: -75.5812}
	assert.InDelta(t, 240, DistanceKm(bogota, medellin), 5)
}

func TestCentroid(t *testing.T) {
	pts := []Coordinate{
		{Latitude: 4.7110, Longitude: -74.0721},
		{Latitude: 4.7111, Longitude: -74.0722},
	}
	c := Centroid(pts)
	assert.InDelta(t, 4.71105, c.Latitude, 1e-9)
	assert.InDelta(t, -74.07215, c.Longitude, 1e-9)

	assert.Equal(t, Coordinate{}, Centroid(nil))
}

func TestZoomFromLatitudeDelta(t *testing.T) {
	assert.InDelta(t, 0, ZoomFromLatitudeDelta(360), 1e-9)
	assert.InDelta(t, 10, ZoomFromLatitudeDelta(360.0/1024), 1e-9)
	assert.Equal(t, MaxZoom, ZoomFromLatitudeDelta(0))
	assert.Equal(t, MaxZoom, ZoomFromLatitudeDelta(-1))
	assert.Equal(t, MaxZoom, ZoomFromLatitudeDelta(1e-12))
}

func TestClusterRadius(t *testing.T) {
	cases := []struct {
		zoom float64
		want float64
	}{
		{zoom: 16, want: 0.0001},
		{zoom: 15, want: 0.0005},
		{zoom: 13, want: 0.0005},
		{zoom: 12, want: 0.001},
		{zoom: 11, want: 0.001},
		{zoom: 10, want: 0.005},
		{zoom: 9, want: 0.005},
		{zoom: 8, want: 0.01},
		{zoom: 2, want: 0.01},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClusterRadius(tc.zoom), "zoom %v", tc.zoom)
	}
}

func TestViewportBounds(t *testing.T) {
	v := Viewport{Center: Coordinate{Latitude: 4.7, Longitude: -74.1}, LatitudeDelta: 0.2, LongitudeDelta: 0.4}
	sw, ne := v.Bounds()
	assert.InDelta(t, 4.6, sw.Latitude, 1e-9)
	assert.InDelta(t, -74.3, sw.Longitude, 1e-9)
	assert.InDelta(t, 4.8, ne.Latitude, 1e-9)
	assert.InDelta(t, -73.9, ne.Longitude, 1e-9)

	polar := Viewport{Center: Coordinate{Latitude: 89, Longitude: 0}, LatitudeDelta: 10, LongitudeDelta: 10}
	_, ne = polar.Bounds()
	assert.Equal(t, 90.0, ne.Latitude)
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	center := Coordinate{Latitude: 4.7110, Longitude: -74.0721}
	sw, ne := BoundingBox(center, 5)

	north := Coordinate{Latitude: ne.Latitude, Longitude: center.Longitude}
	east := Coordinate{Latitude: center.Latitude, Longitude: ne.Longitude}
	assert.InDelta(t, 5, DistanceKm(center, north), 0.01)
	assert.GreaterOrEqual(t, DistanceKm(center, east), 4.99)
	assert.Less(t, sw.Latitude, center.Latitude)
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Latitude: 4.7, Longitude: -74}.Valid())
	assert.False(t, Coordinate{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Coordinate{Latitude: 0, Longitude: -181}.Valid())
	assert.False(t, Coordinate{Latitude: math.NaN(), Longitude: 0}.Valid())
}

func TestZoneIndexLocate(t *testing.T) {
	square := `{"type":"Polygon","coordinates":[[[-74.1,4.6],[-74.0,4.6],[-74.0,4.7],[-74.1,4.7],[-74.1,4.6]]]}`
	// 顺时针方向的环
	clockwise := `{"type":"Polygon","coordinates":[[[-75.6,6.2],[-75.6,6.3],[-75.5,6.3],[-75.5,6.2],[-75.6,6.2]]]}`
	multi := `{"type":"MultiPolygon","coordinates":[[[[10,10],[11,10],[11,11],[10,11],[10,10]]],[[[20,20],[21,20],[21,21],[20,21],[20,20]]]]}`

	idx, err := NewZoneIndex([]ZoneShape{
		{ID: 1, Name: "Chapinero", Geometry: square},
		{ID: 2, Name: "El Poblado", Geometry: clockwise},
		{ID: 3, Name: "Islas", Geometry: multi},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	id, name, ok := idx.Locate(Coordinate{Latitude: 4.65, Longitude: -74.05})
	require.True(t, ok)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, "Chapinero", name)

	id, _, ok = idx.Locate(Coordinate{Latitude: 6.25, Longitude: -75.55})
	require.True(t, ok)
	assert.Equal(t, uint(2), id)

	id, _, ok = idx.Locate(Coordinate{Latitude: 20.5, Longitude: 20.5})
	require.True(t, ok)
	assert.Equal(t, uint(3), id)

	_, _, ok = idx.Locate(Coordinate{Latitude: 0, Longitude: 0})
	assert.False(t, ok)
}

func TestZoneIndexRejectsBadGeometry(t *testing.T) {
	_, err := NewZoneIndex([]ZoneShape{{ID: 1, Name: "x", Geometry: `{"type":"Point","coordinates":[1,2]}`}})
	assert.Error(t, err)

	_, err = NewZoneIndex([]ZoneShape{{ID: 1, Name: "y", Geometry: `not json`}})
	assert.Error(t, err)

	var nilIdx *ZoneIndex
	_, _, ok := nilIdx.Locate(Coordinate{Latitude: 1, Longitude: 1})
	assert.False(t, ok)
}
