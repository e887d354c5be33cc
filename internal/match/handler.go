package match

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"go.uber.org/zap"
)

// HistoryReader 对局历史查询
type HistoryReader interface {
	History(ctx context.Context, userID string, page, limit int) (models.MatchPage, error)
}

// MatchHandler 对局历史处理器
type MatchHandler struct {
	service HistoryReader
}

// NewMatchHandler 创建对局历史处理器
func NewMatchHandler(service HistoryReader) *MatchHandler {
	return &MatchHandler{
		service: service,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *MatchHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/matches/history/", h.handleMatchHistory)
}

// 错误响应
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleMatchHistory 处理对局历史查询
func (h *MatchHandler) handleMatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/api/matches/history/")
	if userID == "" || strings.Contains(userID, "/") {
		h.sendErrorResponse(w, "无效的玩家ID", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	history, err := h.service.History(ctx, userID, page, limit)
	if err != nil {
		zap.S().Errorf("查询对局历史失败: %v", err)
		h.sendErrorResponse(w, "查询对局历史失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(history); err != nil {
		zap.S().Errorf("编码响应失败: %v", err)
	}
}

// sendErrorResponse 发送错误响应
func (h *MatchHandler) sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(errorResponse{Success: false, Message: message}); err != nil {
		zap.S().Errorf("编码错误响应失败: %v", err)
	}
}
