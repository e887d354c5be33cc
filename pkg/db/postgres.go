package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/GabrielFeijo/jokenpo/config"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	// DB 全局数据库连接实例
	DB *sql.DB
)

// InitPostgres 初始化PostgreSQL连接
func InitPostgres(cfg *config.DatabaseConfig) error {
	conn, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	// 测试连接
	if err = conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("数据库Ping失败: %w", err)
	}

	DB = conn
	zap.S().Infof("成功连接到PostgreSQL数据库 %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return nil
}

// Close 关闭数据库连接
func Close() {
	if DB != nil {
		DB.Close()
		zap.S().Info("数据库连接已关闭")
	}
}
