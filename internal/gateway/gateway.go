package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/config"
	"github.com/GabrielFeijo/jokenpo/internal/game"
	"github.com/GabrielFeijo/jokenpo/internal/match"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
	"go.uber.org/zap"
)

const maxBodySize = 64 * 1024

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// TokenService 游客令牌签发与校验
type TokenService interface {
	Issue(userID string, guest bool) (string, error)
	ValidateFor(token, userID string) error
}

// Deps 网关依赖
type Deps struct {
	Users   UserStore
	Rooms   RoomRegistry
	Stats   StatsReader
	History match.HistoryReader
	Tokens  TokenService
}

// Gateway 请求/响应接口
type Gateway struct {
	config     *config.Config
	deps       Deps
	httpServer *http.Server

	rateLimiter *RateLimiter
	cache       *CacheMiddleware

	mutex     sync.Mutex
	isRunning bool
}

// NewGateway 创建新的网关
func NewGateway(cfg *config.Config, deps Deps) *Gateway {
	return &Gateway{
		config: cfg,
		deps:   deps,
	}
}

// Start 启动网关
func (g *Gateway) Start() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.isRunning {
		return fmt.Errorf("网关已经在运行")
	}

	g.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", g.config.Server.GatewayPort),
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infof("API网关启动，监听端口: %d", g.config.Server.GatewayPort)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalf("HTTP服务器错误: %v", err)
		}
	}()

	g.isRunning = true
	return nil
}

// Stop 停止网关
func (g *Gateway) Stop() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.isRunning {
		g.release()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := g.httpServer.Shutdown(ctx)

	g.release()
	g.isRunning = false
	zap.S().Info("API网关已停止")
	return err
}

// release 停止中间件的后台协程
func (g *Gateway) release() {
	if g.rateLimiter != nil {
		g.rateLimiter.Stop()
	}
	if g.cache != nil {
		g.cache.Stop()
	}
}

// Handler 创建HTTP处理器
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	NewUsersHandler(g.deps.Users, g.deps.Tokens, g.config.Auth.RequireToken).RegisterHandlers(mux)
	NewRoomsHandler(g.deps.Rooms, g.deps.Tokens, g.config.Server.PublicWSURL, g.config.Auth.RequireToken).RegisterHandlers(mux)
	if g.deps.Stats != nil {
		NewStatsHandler(g.deps.Stats).RegisterHandlers(mux)
	}
	if g.deps.History != nil {
		match.NewMatchHandler(g.deps.History).RegisterHandlers(mux)
	}

	// 健康检查端点
	health := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
	mux.HandleFunc("/health", health)
	mux.HandleFunc("/api/health", health)

	return g.applyMiddleware(mux)
}

// applyMiddleware 应用中间件
func (g *Gateway) applyMiddleware(handler http.Handler) http.Handler {
	g.release()
	g.rateLimiter = NewRateLimiter(g.config.Server.RateLimit)
	g.cache = NewCacheMiddleware()

	// 按顺序应用中间件（从内到外包装，请求时外层先执行）
	handler = g.cache.Middleware(handler)
	handler = g.rateLimiter.Middleware(handler)
	handler = NewCORSMiddleware().Middleware(handler)
	handler = NewSecurityMiddleware().Middleware(handler)
	handler = NewLoggingMiddleware(zap.L()).Middleware(handler)

	return handler
}

// bearerToken 从 Authorization 头或查询参数读取令牌
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// authorize 校验请求方是否为 userID
func authorize(r *http.Request, tokens TokenService, requireToken bool, userID string) error {
	token := bearerToken(r)
	if token == "" {
		if requireToken {
			return game.ErrUnauthorized
		}
		return nil
	}
	if tokens == nil {
		return nil
	}
	if err := tokens.ValidateFor(token, userID); err != nil {
		return fmt.Errorf("%w: %v", game.ErrUnauthorized, err)
	}
	return nil
}

// writeJSON 发送成功响应
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Errorf("编码响应失败: %v", err)
	}
}

// sendErrorResponse 发送错误响应
func sendErrorResponse(w http.ResponseWriter, message string, code string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Success: false,
		Message: message,
		Code:    code,
	})
}

// sendRoomError 房间错误码映射为HTTP状态码
func sendRoomError(w http.ResponseWriter, err error) {
	code, ok := game.CodeOf(err)
	if !ok {
		zap.S().Errorf("处理请求失败: %v", err)
		sendErrorResponse(w, protocol.GenericMessage, "", http.StatusInternalServerError)
		return
	}
	sendErrorResponse(w, protocol.Message(code, ""), string(code), statusForCode(code))
}

func statusForCode(code protocol.ErrorCode) int {
	switch code {
	case protocol.CodeRoomNotFound:
		return http.StatusNotFound
	case protocol.CodeRoomFull, protocol.CodeGameInProgress, protocol.CodeAlreadyInRoom:
		return http.StatusConflict
	case protocol.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// decodeBody 解析请求体，空请求体视为 {}
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
