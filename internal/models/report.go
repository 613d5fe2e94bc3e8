package models

import (
	"time"

	"reportaciudad/internal/geo"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportStatus string

const (
	StatusNew        ReportStatus = "nuevo"
	StatusInReview   ReportStatus = "en_revision"
	StatusInProgress ReportStatus = "en_progreso"
	StatusResolved   ReportStatus = "resuelto"
	StatusClosed     ReportStatus = "cerrado"
	StatusRejected   ReportStatus = "rechazado"
)

// Valid reports whether s is one of the known lifecycle states.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInReview, StatusInProgress, StatusResolved, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// Terminal states have no outgoing transitions.
func (s ReportStatus) Terminal() bool {
	return s == StatusResolved || s == StatusClosed || s == StatusRejected
}

type Priority string

const (
	PriorityLow      Priority = "baja"
	PriorityMedium   Priority = "media"
	PriorityHigh     Priority = "alta"
	PriorityCritical Priority = "critica"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Report 市民上报的城市问题。Validated 与 Status 相互独立，只有 Validated=true 的上报才会出现在公开地图上
type Report struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string       `gorm:"column:titulo;size:200;not null" json:"titulo"`
	Description string       `gorm:"column:descripcion;type:text" json:"descripcion"`
	CategoryID  uint         `gorm:"column:categoria_id;not null;index" json:"categoria_id"`
	Category    Category     `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"categoria"`
	ZoneID      *uint        `gorm:"column:zona_id;index" json:"zona_id"`
	Latitude    float64      `gorm:"column:latitud;not null;index:idx_reportes_coords" json:"latitud"`
	Longitude   float64      `gorm:"column:longitud;not null;index:idx_reportes_coords" json:"longitud"`
	Address     string       `gorm:"column:direccion;size:300" json:"direccion"`
	Status      ReportStatus `gorm:"column:estado;type:varchar(20);not null;default:'nuevo';index" json:"estado"`
	Priority    Priority     `gorm:"column:prioridad;type:varchar(10);not null;default:'media'" json:"prioridad"`
	Validated   bool         `gorm:"column:validado;not null;default:false;index" json:"validado"`

	ModeratorComments string     `gorm:"column:comentarios_moderacion;type:text" json:"comentarios_moderacion,omitempty"`
	RejectionReason   string     `gorm:"column:motivo_rechazo;type:text" json:"motivo_rechazo,omitempty"`
	ModeratedBy       *string    `gorm:"column:moderado_por;type:uuid" json:"moderado_por,omitempty"`
	ModeratedAt       *time.Time `gorm:"column:moderado_en" json:"moderado_en,omitempty"`

	UserID string `gorm:"column:usuario_id;type:uuid;not null;index" json:"usuario_id"`
	User   User   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Likes        int `gorm:"column:likes;default:0" json:"likes"`
	Validations  int `gorm:"column:validaciones;default:0" json:"validaciones"`
	CommentCount int `gorm:"column:num_comentarios;default:0" json:"num_comentarios"`

	// Version 每次审核写入自增，用于乐观并发控制
	Version   int       `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"column:created_at" json:"fecha_creacion"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"fecha_actualizacion"`
}

func (Report) TableName() string { return "reportes" }

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ClusterID and Position let reports be grouped on the map.
func (r Report) ClusterID() string { return r.ID }

func (r Report) Position() geo.Coordinate {
	return geo.Coordinate{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Pending reports still wait for a moderator decision.
func (r *Report) Pending() bool {
	return !r.Validated && r.Status != StatusRejected && r.Status != StatusClosed
}

// ReportStats 管理后台统计数据
type ReportStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pendientes"`
	InProgress int64 `json:"en_progreso"`
	Resolved   int64 `json:"resueltos"`
	Last24h    int64 `json:"ultimas_24h"`
	LastWeek   int64 `json:"ultima_semana"`
}
