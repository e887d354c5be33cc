package db

import (
	"context"
	"fmt"
	"time"

	"github.com/GabrielFeijo/jokenpo/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var (
	// RedisClient 全局Redis客户端实例
	RedisClient *redis.Client
)

// NewRedisClient 创建Redis客户端并测试连接
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	return client, nil
}

// InitRedis 初始化全局Redis连接
func InitRedis(cfg *config.RedisConfig) error {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return err
	}

	RedisClient = client
	zap.S().Infof("成功连接到Redis服务器 %s", cfg.GetRedisAddr())
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			zap.S().Warnf("关闭Redis连接时发生错误: %v", err)
			return
		}
		zap.S().Info("Redis连接已关闭")
	}
}
