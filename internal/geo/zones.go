package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

// ZoneShape is one named zone geometry to index.
type ZoneShape struct {
	ID       uint
	Name     string
	Geometry string // GeoJSON geometry
}

type indexedZone struct {
	id    uint
	name  string
	loops []*s2.Loop
}

// ZoneIndex answers point-in-zone lookups over Polygon and MultiPolygon geometries.
// Only exterior rings are used; holes are ignored.
type ZoneIndex struct {
	zones []indexedZone
}

// NewZoneIndex parses every geometry; a zone whose geometry cannot be parsed is returned as an error.
func NewZoneIndex(shapes []ZoneShape) (*ZoneIndex, error) {
	idx := &ZoneIndex{zones: make([]indexedZone, 0, len(shapes))}
	for _, sh := range shapes {
		g, err := geojson.UnmarshalGeometry([]byte(sh.Geometry))
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", sh.Name, err)
		}
		loops, err := loopsFromGeometry(g)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", sh.Name, err)
		}
		idx.zones = append(idx.zones, indexedZone{id: sh.ID, name: sh.Name, loops: loops})
	}
	return idx, nil
}

// Locate returns the first zone containing c.
func (idx *ZoneIndex) Locate(c Coordinate) (uint, string, bool) {
	if idx == nil || !c.Valid() {
		return 0, "", false
	}
	p := s2.PointFromLatLng(c.latLng())
	for _, z := range idx.zones {
		for _, l := range z.loops {
			if l.ContainsPoint(p) {
				return z.id, z.name, true
			}
		}
	}
	return 0, "", false
}

// Len 已索引的区域数量
func (idx *ZoneIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.zones)
}

func loopsFromGeometry(g *geojson.Geometry) ([]*s2.Loop, error) {
	switch {
	case g.IsPolygon():
		if len(g.Polygon) == 0 {
			return nil, fmt.Errorf("empty polygon")
		}
		l, err := loopFromRing(g.Polygon[0])
		if err != nil {
			return nil, err
		}
		return []*s2.Loop{l}, nil
	case g.IsMultiPolygon():
		loops := make([]*s2.Loop, 0, len(g.MultiPolygon))
		for _, poly := range g.MultiPolygon {
			if len(poly) == 0 {
				continue
			}
			l, err := loopFromRing(poly[0])
			if err != nil {
				return nil, err
			}
			loops = append(loops, l)
		}
		return loops, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.Type)
	}
}

// loopFromRing converts a GeoJSON ring ([lng, lat] pairs, closed) into a normalized s2 loop.
func loopFromRing(ring [][]float64) (*s2.Loop, error) {
	if len(ring) > 1 && samePosition(ring[0], ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("ring needs at least 3 distinct positions")
	}
	pts := make([]s2.Point, 0, len(ring))
	for _, pos := range ring {
		if len(pos) < 2 {
			return nil, fmt.Errorf("malformed position")
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(pos[1], pos[0])))
	}
	l := s2.LoopFromPoints(pts)
	// 环方向不固定，统一为面积不超过半球
	l.Normalize()
	return l, nil
}

func samePosition(a, b []float64) bool {
	return len(a) >= 2 && len(b) >= 2 && a[0] == b[0] && a[1] == b[1]
}
