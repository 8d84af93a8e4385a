// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/blinkduel/models"
)

// GormDirectory 使用GORM的PostgreSQL身份目录
type GormDirectory struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormDirectory 创建GORM PostgreSQL数据库连接
func NewGormDirectory(host string, port int, user, password, dbname string) (*GormDirectory, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormPlayer{}, &models.GormSession{}); err != nil {
		return nil, err
	}

	return &GormDirectory{db: db, clock: time.Now}, nil
}

// LookupSession 根据令牌查找玩家
func (g *GormDirectory) LookupSession(ctx context.Context, token string) (*Identity, error) {
	var s models.GormSession
	err := g.db.WithContext(ctx).
		Preload("Player").
		Where("token = ? AND expires_at > ?", token, g.clock()).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Identity{
		Wallet:      NormalizeWallet(s.Player.Wallet),
		DisplayName: s.Player.Username,
	}, nil
}

// Close 关闭数据库连接
func (g *GormDirectory) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
