// main.go

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GabrielFeijo/jokenpo/config"
	"github.com/GabrielFeijo/jokenpo/internal/auth"
	"github.com/GabrielFeijo/jokenpo/internal/game"
	"github.com/GabrielFeijo/jokenpo/internal/gateway"
	"github.com/GabrielFeijo/jokenpo/internal/match"
	"github.com/GabrielFeijo/jokenpo/pkg/db"
	"github.com/GabrielFeijo/jokenpo/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cfg := &config.GlobalConfig

	if err := logger.Init(cfg.Server.LogLevel, cfg.Server.Debug); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库连接
	if err := db.InitPostgres(&cfg.Database); err != nil {
		zap.S().Fatalf("初始化PostgreSQL失败: %v", err)
	}
	defer db.Close()

	if err := db.InitAllTables(); err != nil {
		zap.S().Fatalf("初始化数据库表失败: %v", err)
	}

	// Redis 不可用时排行榜退回到数据库查询
	var ranking match.Ranking
	if err := db.InitRedis(&cfg.Redis); err != nil {
		zap.S().Warnf("Redis不可用，排行榜已禁用: %v", err)
	} else {
		defer db.CloseRedis()
		ranking = match.NewLeaderboard(db.RedisClient)
	}

	tokens := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	users := gateway.NewUserRepository(db.DB)

	// 对局记录与战绩
	matches := match.NewService(match.NewRepository(db.DB), ranking, cfg.Game.LeaderboardRefresh)
	if err := matches.Start(); err != nil {
		zap.S().Fatalf("启动战绩服务失败: %v", err)
	}
	defer matches.Stop()

	// 房间服务器
	gameServer := game.NewGameServer(cfg,
		game.WithUserDirectory(users),
		game.WithRecorder(matches),
		game.WithTokenVerifier(tokens),
	)
	if err := gameServer.Start(); err != nil {
		zap.S().Fatalf("启动游戏服务器失败: %v", err)
	}

	// 请求/响应接口
	gatewayServer := gateway.NewGateway(cfg, gateway.Deps{
		Users:   users,
		Rooms:   gameServer,
		Stats:   matches,
		History: matches,
		Tokens:  tokens,
	})
	if err := gatewayServer.Start(); err != nil {
		zap.S().Fatalf("启动网关服务失败: %v", err)
	}

	zap.S().Info("所有服务已启动")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.S().Info("接收到关闭信号，正在关闭服务器...")

	if err := gatewayServer.Stop(); err != nil {
		zap.S().Errorf("关闭网关失败: %v", err)
	}
	if err := gameServer.Stop(); err != nil {
		zap.S().Errorf("关闭游戏服务器失败: %v", err)
	}

	zap.S().Info("服务器已安全关闭")
}
