package models

import (
	"time"
)

type NotificationType string

const (
	NotificationReportValidated  NotificationType = "reporte_validado"
	NotificationReportRejected   NotificationType = "reporte_rechazado"
	NotificationReportStatus     NotificationType = "estado_reporte"
	NotificationAccountValidated NotificationType = "cuenta_validada"
	NotificationAccountRejected  NotificationType = "cuenta_rechazada"
	NotificationSystem           NotificationType = "sistema"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    string           `gorm:"column:usuario_id;type:uuid;not null;index" json:"usuario_id"` // Receiver
	User      User             `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type      NotificationType `gorm:"column:tipo;type:varchar(30);not null" json:"tipo"`
	Title     string           `gorm:"column:titulo;size:200" json:"titulo"`
	Message   string           `gorm:"column:mensaje;type:text" json:"mensaje"` // 已净化的 HTML
	ReportID  *string          `gorm:"column:reporte_id;type:uuid;index" json:"reporte_id,omitempty"`
	Read      bool             `gorm:"column:leida;default:false;index" json:"leida"`
	CreatedAt time.Time        `json:"fecha_creacion"`
}

func (Notification) TableName() string { return "notificaciones" }
