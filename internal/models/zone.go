package models

import "time"

// Zone 行政区域，Geometry 为 GeoJSON geometry 文本
type Zone struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"column:nombre;not null;uniqueIndex" json:"nombre"`
	Geometry  string    `gorm:"column:geometria;type:text;not null" json:"-"`
	CreatedAt time.Time `json:"-"`
}

func (Zone) TableName() string { return "zonas" }
