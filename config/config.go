// config.go

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 服务配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Game     GameConfig     `mapstructure:"game"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Client   ClientConfig   `mapstructure:"client"`
}

// ServerConfig 服务器基本配置
type ServerConfig struct {
	GamePort     int    `mapstructure:"game_port"`
	GatewayPort  int    `mapstructure:"gateway_port"`
	PublicWSURL  string `mapstructure:"public_ws_url"`
	Debug        bool   `mapstructure:"debug"`
	LogLevel     string `mapstructure:"log_level"`
	MaxRoomCount int    `mapstructure:"max_room_count"`
	RateLimit    int    `mapstructure:"rate_limit"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GameConfig 房间与对局策略
type GameConfig struct {
	GracePeriod        time.Duration `mapstructure:"grace_period"`
	AttachTimeout      time.Duration `mapstructure:"attach_timeout"`
	EmptyRoomTTL       time.Duration `mapstructure:"empty_room_ttl"`
	FinishedRoomTTL    time.Duration `mapstructure:"finished_room_ttl"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
	InviteCodeLength   int           `mapstructure:"invite_code_length"`
}

// AuthConfig 游客令牌配置
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	RequireToken bool          `mapstructure:"require_token"`
}

// ClientConfig 客户端配置
type ClientConfig struct {
	APIBaseURL        string        `mapstructure:"api_base_url"`
	StateFile         string        `mapstructure:"state_file"`
	AnimationDuration time.Duration `mapstructure:"animation_duration"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig Config
)

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.game_port", 8081)
	v.SetDefault("server.gateway_port", 8080)
	v.SetDefault("server.public_ws_url", "ws://localhost:8081/ws")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.max_room_count", 1000)
	v.SetDefault("server.rate_limit", 120)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "jokenpo")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("game.grace_period", 30*time.Second)
	v.SetDefault("game.attach_timeout", time.Minute)
	v.SetDefault("game.empty_room_ttl", 5*time.Minute)
	v.SetDefault("game.finished_room_ttl", 10*time.Minute)
	v.SetDefault("game.cleanup_interval", 10*time.Second)
	v.SetDefault("game.leaderboard_refresh", 5*time.Minute)
	v.SetDefault("game.invite_code_length", 6)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.require_token", false)

	v.SetDefault("client.api_base_url", "http://localhost:8080")
	v.SetDefault("client.state_file", "rps-game-state.json")
	v.SetDefault("client.animation_duration", 2*time.Second)
	v.SetDefault("client.dial_timeout", 10*time.Second)
	v.SetDefault("client.request_timeout", 10*time.Second)
}

// LoadConfig 从文件加载配置，环境变量 RPS_* 覆盖文件中的值
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	GlobalConfig = *cfg
	return nil
}

// Load 读取配置但不修改全局实例
func Load(configPath string) (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if cfg.Game.InviteCodeLength <= 0 {
		return nil, fmt.Errorf("邀请码长度必须为正数: %d", cfg.Game.InviteCodeLength)
	}

	return &cfg, nil
}

// GetDSN 获取PostgreSQL连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr 获取Redis连接地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
