package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"reportaciudad/internal/cluster"
	"reportaciudad/internal/config"
	"reportaciudad/internal/events"
	"reportaciudad/internal/geo"
	"reportaciudad/internal/metrics"
	"reportaciudad/internal/middleware"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"
	"reportaciudad/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxClusterInput 单次聚合最多读取的上报数量
const maxClusterInput = 5000

type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, id string) (*models.Report, error)
	ListValidatedInBounds(ctx context.Context, sw, ne geo.Coordinate, limit int) ([]models.Report, error)
}

type ZoneLocator interface {
	Locate(c geo.Coordinate) (uint, string, bool)
}

type ReportHandler struct {
	reports    ReportStore
	categories CategoryStore
	zones      ZoneLocator
	events     events.Publisher
	cfg        *config.Config
	metric     cluster.Metric
	logger     *zap.Logger
}

func NewReportHandler(reports ReportStore, categories CategoryStore, zones ZoneLocator, publisher events.Publisher, cfg *config.Config, logger *zap.Logger) *ReportHandler {
	metric, err := cluster.ParseMetric(cfg.ClusterMetric)
	if err != nil {
		logger.Warn("unknown cluster metric, using planar", zap.String("metric", cfg.ClusterMetric))
		metric = cluster.MetricPlanar
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ReportHandler{
		reports:    reports,
		categories: categories,
		zones:      zones,
		events:     publisher,
		cfg:        cfg,
		metric:     metric,
		logger:     logger,
	}
}

type createReportRequest struct {
	Title       string          `json:"titulo"`
	Description string          `json:"descripcion"`
	CategoryID  uint            `json:"categoria_id"`
	Latitude    *float64        `json:"latitud"`
	Longitude   *float64        `json:"longitud"`
	Address     string          `json:"direccion"`
	Priority    models.Priority `json:"prioridad"`
}

// mapItem 地图接口返回的精简结构
type mapItem struct {
	ID          string         `json:"id"`
	Title       string         `json:"titulo"`
	Coordinates geo.Coordinate `json:"coordenadas"`
	Status      string         `json:"estado"`
	Category    string         `json:"categoria"`
	CreatedAt   time.Time      `json:"fecha_creacion"`
	DistanceKm  float64        `json:"distancia_km,omitempty"`
}

func toMapItem(r models.Report) mapItem {
	return mapItem{
		ID:          r.ID,
		Title:       r.Title,
		Coordinates: r.Position(),
		Status:      string(r.Status),
		Category:    r.Category.Name,
		CreatedAt:   r.CreatedAt,
	}
}

// Create POST /reportes
func (h *ReportHandler) Create(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Cuerpo de la solicitud inválido")
		return
	}

	title := utils.SanitizeText(req.Title)
	if title == "" || utf8.RuneCountInString(title) > 200 {
		BadRequest(c, "El título es obligatorio (máximo 200 caracteres)")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		RespondError(c, h.logger, geo.ErrInvalidCoordinates)
		return
	}
	pos := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if !pos.Valid() {
		RespondError(c, h.logger, geo.ErrInvalidCoordinates)
		return
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		BadRequest(c, "Prioridad inválida")
		return
	}

	ctx := c.Request.Context()
	ok, err := h.categories.Exists(ctx, req.CategoryID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if !ok {
		BadRequest(c, "Categoría inválida")
		return
	}

	report := &models.Report{
		Title:       title,
		Description: utils.SanitizeText(req.Description),
		CategoryID:  req.CategoryID,
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		Address:     strings.TrimSpace(req.Address),
		Status:      models.StatusNew,
		Priority:    priority,
		Validated:   false,
		UserID:      middleware.CurrentUserID(c),
	}
	if zoneID, _, found := h.zones.Locate(pos); found {
		report.ZoneID = &zoneID
	}

	if err := h.reports.Create(ctx, report); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	h.logger.Info("report created", zap.String("report_id", report.ID), zap.String("user_id", report.UserID))
	if err := h.events.Publish(ctx, events.New(events.ReportCreated, report.ID, report.UserID)); err != nil {
		h.logger.Warn("publish event failed", zap.String("type", string(events.ReportCreated)), zap.Error(err))
	}

	OK(c, http.StatusCreated, report)
}

// Get GET /reportes/:id。未验证的上报只有作者和审核员可见
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if !report.Validated {
		uid := middleware.CurrentUserID(c)
		if uid == "" || (uid != report.UserID && !middleware.CurrentRole(c).Staff()) {
			RespondError(c, h.logger, repository.ErrNotFound)
			return
		}
	}
	OK(c, http.StatusOK, report)
}

// Map GET /reportes/mapa?lat&lng&radio&limite
func (h *ReportHandler) Map(c *gin.Context) {
	center, ok := coordinateQuery(c, "lat", "lng")
	if !ok {
		RespondError(c, h.logger, geo.ErrInvalidCoordinates)
		return
	}
	radius := h.cfg.MapDefaultRadius
	if v, ok := utils.StringToFloat(c.Query("radio")); ok && v > 0 {
		radius = v
	}
	if radius > h.cfg.MapMaxRadius {
		radius = h.cfg.MapMaxRadius
	}
	limit := utils.ClampInt(utils.StringToInt(c.Query("limite")), h.cfg.MapDefaultLimit, h.cfg.MapMaxLimit)

	sw, ne := geo.BoundingBox(center, radius)
	candidates, err := h.reports.ListValidatedInBounds(c.Request.Context(), sw, ne, maxClusterInput)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	items := make([]mapItem, 0, len(candidates))
	for _, r := range candidates {
		d := geo.DistanceKm(center, r.Position())
		if d > radius {
			continue
		}
		item := toMapItem(r)
		item.DistanceKm = d
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].DistanceKm < items[j].DistanceKm })
	if len(items) > limit {
		items = items[:limit]
	}

	OK(c, http.StatusOK, gin.H{
		"reportes": items,
		"total":    len(items),
		"radio_km": radius,
	})
}

type clusterView struct {
	Centroid geo.Coordinate    `json:"centroid"`
	Count    int               `json:"count"`
	Tier     cluster.Tier      `json:"tier"`
	Tap      cluster.TapAction `json:"tap"`
	Reports  []mapItem         `json:"reportes"`
}

// Clusters GET /reportes/clusters?lat&lng&latDelta&lngDelta&width&height&metric[&format=geojson]
func (h *ReportHandler) Clusters(c *gin.Context) {
	center, ok := coordinateQuery(c, "lat", "lng")
	if !ok {
		RespondError(c, h.logger, geo.ErrInvalidCoordinates)
		return
	}
	latDelta, ok1 := utils.StringToFloat(c.Query("latDelta"))
	lngDelta, ok2 := utils.StringToFloat(c.Query("lngDelta"))
	if !ok1 || !ok2 || latDelta < 0 || lngDelta < 0 {
		BadRequest(c, "latDelta y lngDelta son obligatorios")
		return
	}
	metric := h.metric
	if m := c.Query("metric"); m != "" {
		parsed, err := cluster.ParseMetric(m)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		metric = parsed
	}

	vp := geo.Viewport{
		Center:         center,
		LatitudeDelta:  latDelta,
		LongitudeDelta: lngDelta,
		Width:          utils.StringToInt(c.Query("width")),
		Height:         utils.StringToInt(c.Query("height")),
	}
	sw, ne := vp.Bounds()
	reports, err := h.reports.ListValidatedInBounds(c.Request.Context(), sw, ne, maxClusterInput)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	// 仓库按距离返回，聚合前恢复按创建时间的稳定顺序
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].CreatedAt.Before(reports[j].CreatedAt) })

	start := time.Now()
	clusters := cluster.ForViewport(reports, vp, metric)
	metrics.ClusterDurationSeconds.Observe(time.Since(start).Seconds())

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, cluster.FeatureCollection(clusters))
		return
	}

	views := make([]clusterView, len(clusters))
	for i, cl := range clusters {
		members := make([]mapItem, len(cl.Members))
		for j, r := range cl.Members {
			members[j] = toMapItem(r)
		}
		views[i] = clusterView{
			Centroid: cl.Centroid,
			Count:    cl.Count,
			Tier:     cl.Tier(),
			Tap:      cl.Tap(),
			Reports:  members,
		}
	}
	OK(c, http.StatusOK, gin.H{
		"zoom":     vp.Zoom(),
		"metric":   metric,
		"clusters": views,
	})
}

func coordinateQuery(c *gin.Context, latKey, lngKey string) (geo.Coordinate, bool) {
	lat, ok1 := utils.StringToFloat(c.Query(latKey))
	lng, ok2 := utils.StringToFloat(c.Query(lngKey))
	p := geo.Coordinate{Latitude: lat, Longitude: lng}
	if !ok1 || !ok2 || !p.Valid() {
		return geo.Coordinate{}, false
	}
	return p, true
}
