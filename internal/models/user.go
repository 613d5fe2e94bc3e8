package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin     Role = "ADMINISTRADOR"
	RoleModerator Role = "MODERADOR"
	RoleCitizen   Role = "CIUDADANO"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleCitizen
}

// Staff roles may moderate reports and accounts.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleModerator
}

type User struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string `gorm:"column:nombre;size:120;not null" json:"nombre"`
	Email    string `gorm:"uniqueIndex;size:200;not null" json:"email"`
	Password string `gorm:"not null" json:"-"` // bcrypt hash
	Phone    string `gorm:"column:telefono;size:30" json:"telefono,omitempty"`
	Role     Role   `gorm:"column:tipo;type:varchar(20);not null;default:'CIUDADANO'" json:"tipo"`
	Active   bool   `gorm:"column:activo;not null;default:false" json:"activo"`
	// PendingValidation 新注册账号需管理员审核后才能登录
	PendingValidation bool `gorm:"column:pendiente_validacion;not null;index" json:"pendiente_validacion"`

	ValidationComments string     `gorm:"column:comentarios_validacion;type:text" json:"comentarios_validacion,omitempty"`
	RejectionReason    string     `gorm:"column:motivo_rechazo;type:text" json:"motivo_rechazo,omitempty"`
	ValidatedBy        *string    `gorm:"column:validado_por;type:uuid" json:"validado_por,omitempty"`
	ValidatedAt        *time.Time `gorm:"column:validado_en" json:"validado_en,omitempty"`

	CreatedAt time.Time `json:"fecha_registro"`
	UpdatedAt time.Time `json:"fecha_actualizacion"`
}

func (User) TableName() string { return "usuarios" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
