package cluster

import (
	geojson "github.com/paulmach/go.geojson"
)

// Feature renders the cluster as a GeoJSON point at its centroid.
func (c Cluster[T]) Feature() *geojson.Feature {
	f := geojson.NewPointFeature([]float64{c.Centroid.Longitude, c.Centroid.Latitude})
	tap := c.Tap()
	f.SetProperty("count", c.Count)
	f.SetProperty("tier", string(c.Tier()))
	f.SetProperty("ids", tap.IDs)
	f.SetProperty("tap", string(tap.Kind))
	if c.Count == 1 {
		f.ID = tap.IDs[0]
	}
	return f
}

// FeatureCollection wraps clusters for map SDKs that consume GeoJSON sources.
func FeatureCollection[T Item](clusters []Cluster[T]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range clusters {
		fc.AddFeature(c.Feature())
	}
	return fc
}
