// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormPlayer 玩家身份
type GormPlayer struct {
	gorm.Model
	Wallet   string `gorm:"uniqueIndex;not null"`
	Username string `gorm:"not null;default:''"`
}

// TableName keeps the table shared with the database/sql directory.
func (GormPlayer) TableName() string { return "players" }

// GormSession 登录会话
type GormSession struct {
	gorm.Model
	Token     string `gorm:"uniqueIndex;not null"`
	PlayerID  uint   `gorm:"index;not null"`
	Player    GormPlayer
	ExpiresAt time.Time `gorm:"index;not null"`
}

// TableName keeps the table shared with the database/sql directory.
func (GormSession) TableName() string { return "sessions" }
