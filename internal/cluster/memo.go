package cluster

import (
	"math"
	"sync"

	"reportaciudad/internal/geo"
)

// MoveThreshold 视口中心或缩放变化超过该值（度）才重新聚合
const MoveThreshold = 0.001

// Memo caches the last clustering and only recomputes when the viewport moved past
// MoveThreshold or the ordered id sequence of the items changed.
type Memo[T Item] struct {
	metric Metric

	mu       sync.Mutex
	computed bool
	center   geo.Coordinate
	zoom     float64
	ids      []string
	result   []Cluster[T]
	runs     int
}

func NewMemo[T Item](metric Metric) *Memo[T] {
	return &Memo[T]{metric: metric}
}

// Clusters returns the cached clusters when still valid, otherwise recomputes them.
func (m *Memo[T]) Clusters(items []T, vp geo.Viewport) []Cluster[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	zoom := vp.Zoom()
	if m.computed && !m.moved(vp.Center, zoom) && sameIDs(m.ids, items) {
		return m.result
	}

	m.result = ForViewport(items, vp, m.metric)
	m.center = vp.Center
	m.zoom = zoom
	m.ids = idsOf(items)
	m.computed = true
	m.runs++
	return m.result
}

// Runs 实际执行聚合的次数
func (m *Memo[T]) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

// Reset forces the next call to recompute.
func (m *Memo[T]) Reset() {
	m.mu.Lock()
	m.computed = false
	m.result = nil
	m.ids = nil
	m.mu.Unlock()
}

func (m *Memo[T]) moved(center geo.Coordinate, zoom float64) bool {
	return math.Abs(center.Latitude-m.center.Latitude) > MoveThreshold ||
		math.Abs(center.Longitude-m.center.Longitude) > MoveThreshold ||
		math.Abs(zoom-m.zoom) > MoveThreshold
}

func sameIDs[T Item](ids []string, items []T) bool {
	if len(ids) != len(items) {
		return false
	}
	for i, it := range items {
		if ids[i] != it.ClusterID() {
			return false
		}
	}
	return true
}

func idsOf[T Item](items []T) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ClusterID()
	}
	return ids
}
