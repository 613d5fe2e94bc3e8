package client

import (
	"reportaciudad/internal/cluster"
	"reportaciudad/internal/geo"
)

// MapView clusters fetched reports for display and only recomputes when the
// viewport or the report set actually changes.
type MapView struct {
	memo *cluster.Memo[MapReport]
}

func NewMapView(metric cluster.Metric) *MapView {
	return &MapView{memo: cluster.NewMemo[MapReport](metric)}
}

func (v *MapView) Clusters(reports []MapReport, vp geo.Viewport) []cluster.Cluster[MapReport] {
	return v.memo.Clusters(reports, vp)
}

// Recomputations 实际执行聚合的次数
func (v *MapView) Recomputations() int {
	return v.memo.Runs()
}
