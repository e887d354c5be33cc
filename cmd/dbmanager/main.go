// main.go

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/GabrielFeijo/jokenpo/config"
	"github.com/GabrielFeijo/jokenpo/pkg/db"
	"github.com/GabrielFeijo/jokenpo/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	action := flag.String("action", "help", "操作类型: reset, init, help")
	flag.Parse()

	// 显示帮助信息
	if *action == "help" {
		showHelp()
		return
	}

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := logger.Init(config.GlobalConfig.Server.LogLevel, true); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库连接
	if err := db.InitPostgres(&config.GlobalConfig.Database); err != nil {
		zap.S().Fatalf("初始化PostgreSQL失败: %v", err)
	}
	defer db.Close()

	// 执行操作
	switch *action {
	case "reset":
		zap.S().Warn("正在删除所有表和数据")
		if err := db.DropAllTables(); err != nil {
			zap.S().Fatalf("重置数据库失败: %v", err)
		}
		zap.S().Info("数据库重置完成")
	case "init":
		if err := db.InitAllTables(); err != nil {
			zap.S().Fatalf("初始化数据库表失败: %v", err)
		}
		zap.S().Info("数据库初始化完成，已创建 users, matches, plays, match_results")
	default:
		zap.S().Fatalf("未知操作: %s", *action)
	}
}

// showHelp 显示帮助信息
func showHelp() {
	fmt.Println("jokenpo 数据库管理工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  go run ./cmd/dbmanager -action=<操作> [-config=<配置文件>]")
	fmt.Println()
	fmt.Println("操作:")
	fmt.Println("  reset  - 删除所有表和数据")
	fmt.Println("  init   - 创建表结构")
	fmt.Println("  help   - 显示此帮助信息")
}
