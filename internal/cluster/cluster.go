// Package cluster groups nearby map items into display clusters.
package cluster

import (
	"fmt"
	"strings"

	"reportaciudad/internal/geo"
)

// Item is anything with a stable id and a position.
type Item interface {
	ClusterID() string
	Position() geo.Coordinate
}

type Metric string

const (
	// MetricPlanar compares raw degree differences (sqrt(dLat²+dLng²)).
	MetricPlanar Metric = "planar"
	// MetricHaversine compares great-circle angular distance in degrees.
	MetricHaversine Metric = "haversine"
)

// ParseMetric accepts "planar" or "haversine"; empty means planar.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricPlanar:
		return MetricPlanar, nil
	case MetricHaversine:
		return MetricHaversine, nil
	}
	return "", fmt.Errorf("unknown cluster metric %q", s)
}

func (m Metric) distance(a, b geo.Coordinate) float64 {
	if m == MetricHaversine {
		return geo.AngularDistance(a, b)
	}
	return geo.PlanarDistance(a, b)
}

// Dimensions 视口像素尺寸。目前不参与半径计算
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Cluster[T Item] struct {
	Centroid geo.Coordinate `json:"centroid"`
	Members  []T            `json:"members"`
	Count    int            `json:"count"`
}

// Group partitions items into clusters for the given zoom.
//
// Each unprocessed item, in input order, becomes an anchor. It collects every later
// unprocessed item within ClusterRadius(zoom) of it. Output keeps anchor order, so the
// same input always yields the same clusters. O(n²) in len(items).
func Group[T Item](items []T, zoom float64, _ Dimensions, metric Metric) []Cluster[T] {
	radius := geo.ClusterRadius(zoom)
	processed := make([]bool, len(items))
	clusters := make([]Cluster[T], 0)

	for i, anchor := range items {
		if processed[i] {
			continue
		}
		processed[i] = true
		origin := anchor.Position()
		members := []T{anchor}
		positions := []geo.Coordinate{origin}

		for j := i + 1; j < len(items); j++ {
			if processed[j] {
				continue
			}
			p := items[j].Position()
			if metric.distance(origin, p) <= radius {
				processed[j] = true
				members = append(members, items[j])
				positions = append(positions, p)
			}
		}

		clusters = append(clusters, Cluster[T]{
			Centroid: geo.Centroid(positions),
			Members:  members,
			Count:    len(members),
		})
	}
	return clusters
}

// ForViewport derives the zoom from the viewport's latitude span and groups items.
func ForViewport[T Item](items []T, vp geo.Viewport, metric Metric) []Cluster[T] {
	return Group(items, vp.Zoom(), Dimensions{Width: vp.Width, Height: vp.Height}, metric)
}

type Tier string

const (
	TierSingle Tier = "single"
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
	TierHuge   Tier = "huge"
)

// TierFor picks the marker size bucket for a member count.
func TierFor(count int) Tier {
	switch {
	case count <= 1:
		return TierSingle
	case count < 5:
		return TierSmall
	case count < 10:
		return TierMedium
	case count < 25:
		return TierLarge
	default:
		return TierHuge
	}
}

func (c Cluster[T]) Tier() Tier { return TierFor(c.Count) }

type TapKind string

const (
	TapOpenDetail TapKind = "detail"
	TapOpenList   TapKind = "list"
)

// TapAction says what a tap on the marker opens.
type TapAction struct {
	Kind TapKind  `json:"kind"`
	IDs  []string `json:"ids"`
}

// Tap opens the single member's detail, or a list when the cluster has several members.
func (c Cluster[T]) Tap() TapAction {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ClusterID()
	}
	if len(c.Members) == 1 {
		return TapAction{Kind: TapOpenDetail, IDs: ids}
	}
	return TapAction{Kind: TapOpenList, IDs: ids}
}
