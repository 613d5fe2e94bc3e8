package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"reportaciudad/internal/geo"
	"reportaciudad/internal/models"

	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"
	"go.uber.org/zap"
)

type ZoneStore interface {
	List(ctx context.Context) ([]models.Zone, error)
	Upsert(ctx context.Context, zones []models.Zone) error
}

// ZoneHandler serves zone GeoJSON and keeps the point-in-zone index used when reports are created.
type ZoneHandler struct {
	repo   ZoneStore
	index  atomic.Pointer[geo.ZoneIndex]
	logger *zap.Logger
}

func NewZoneHandler(repo ZoneStore, logger *zap.Logger) *ZoneHandler {
	return &ZoneHandler{repo: repo, logger: logger}
}

// Reload rebuilds the in-memory index from the database.
func (h *ZoneHandler) Reload(ctx context.Context) error {
	zones, err := h.repo.List(ctx)
	if err != nil {
		return err
	}
	idx, err := geo.NewZoneIndex(shapesOf(zones))
	if err != nil {
		return err
	}
	h.index.Store(idx)
	h.logger.Info("zone index loaded", zap.Int("zones", idx.Len()))
	return nil
}

// Locate implements ZoneLocator.
func (h *ZoneHandler) Locate(c geo.Coordinate) (uint, string, bool) {
	return h.index.Load().Locate(c)
}

// List GET /zonas
func (h *ZoneHandler) List(c *gin.Context) {
	zones, err := h.repo.List(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, z := range zones {
		g, err := geojson.UnmarshalGeometry([]byte(z.Geometry))
		if err != nil {
			h.logger.Warn("skipping zone with broken geometry", zap.Uint("zone_id", z.ID), zap.Error(err))
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = z.ID
		f.SetProperty("nombre", z.Name)
		fc.AddFeature(f)
	}
	c.JSON(http.StatusOK, fc)
}

// Import POST /admin/zonas/import，请求体为 GeoJSON FeatureCollection
func (h *ZoneHandler) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		BadRequest(c, "No se pudo leer el cuerpo")
		return
	}
	zones, err := parseZones(raw)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	// 先校验几何，再写库
	if _, err := geo.NewZoneIndex(shapesOf(zones)); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.repo.Upsert(c.Request.Context(), zones); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if err := h.Reload(c.Request.Context()); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, gin.H{"importadas": len(zones)})
}

func parseZones(raw []byte) ([]models.Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("GeoJSON inválido: %v", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("la colección no contiene zonas")
	}

	zones := make([]models.Zone, 0, len(fc.Features))
	seen := make(map[string]bool)
	for i, f := range fc.Features {
		name := featureName(f)
		if name == "" {
			return nil, fmt.Errorf("la zona %d no tiene nombre", i)
		}
		if f.Geometry == nil || (f.Geometry.Type != geojson.GeometryPolygon && f.Geometry.Type != geojson.GeometryMultiPolygon) {
			return nil, fmt.Errorf("la zona %q debe ser Polygon o MultiPolygon", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("zona duplicada %q", name)
		}
		seen[name] = true

		geometry, err := json.Marshal(f.Geometry)
		if err != nil {
			return nil, err
		}
		zones = append(zones, models.Zone{Name: name, Geometry: string(geometry)})
	}
	return zones, nil
}

func featureName(f *geojson.Feature) string {
	for _, key := range []string{"nombre", "name", "NOMBRE"} {
		if v, err := f.PropertyString(key); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func shapesOf(zones []models.Zone) []geo.ZoneShape {
	shapes := make([]geo.ZoneShape, len(zones))
	for i, z := range zones {
		shapes[i] = geo.ZoneShape{ID: z.ID, Name: z.Name, Geometry: z.Geometry}
	}
	return shapes
}
