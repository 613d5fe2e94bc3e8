package models

import (
	"time"
)

type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"column:nombre;not null;unique" json:"nombre"`
	Description string    `gorm:"column:descripcion" json:"descripcion"`
	Icon        string    `gorm:"column:icono;size:50" json:"icono"`
	Color       string    `gorm:"size:9" json:"color"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

func (Category) TableName() string { return "categorias" }
