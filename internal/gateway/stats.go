package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"go.uber.org/zap"
)

// defaultLeaderboardSize 排行榜默认条数
const defaultLeaderboardSize = 10

// StatsReader 统计查询，由 match.Service 实现
type StatsReader interface {
	UserStats(ctx context.Context, userID string) (models.UserStatsResponse, error)
	GlobalStats(ctx context.Context) (models.GlobalStats, error)
	Dashboard(ctx context.Context, filters models.DashboardFilters) (models.MatchPage, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// StatsHandler 统计处理器
type StatsHandler struct {
	stats StatsReader
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// RegisterHandlers 注册HTTP处理器
func (h *StatsHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/user/", h.handleUserStats)
	mux.HandleFunc("/api/stats/global", h.handleGlobalStats)
	mux.HandleFunc("/api/stats/dashboard", h.handleDashboard)
	mux.HandleFunc("/api/stats/leaderboard", h.handleLeaderboard)
}

// handleUserStats 玩家战绩
func (h *StatsHandler) handleUserStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "仅支持GET方法", "", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/api/stats/user/")
	if userID == "" || strings.Contains(userID, "/") {
		sendErrorResponse(w, "无效的用户ID", "", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.stats.UserStats(ctx, userID)
	if err != nil {
		h.sendQueryError(w, "查询玩家战绩失败", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGlobalStats 全局统计
func (h *StatsHandler) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "仅支持GET方法", "", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.stats.GlobalStats(ctx)
	if err != nil {
		h.sendQueryError(w, "查询全局统计失败", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDashboard 仪表盘对局列表
func (h *StatsHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "仅支持GET方法", "", http.StatusMethodNotAllowed)
		return
	}

	filters, err := parseDashboardFilters(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := h.stats.Dashboard(ctx, filters)
	if err != nil {
		h.sendQueryError(w, "查询仪表盘失败", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleLeaderboard 胜场排行
func (h *StatsHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "仅支持GET方法", "", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = defaultLeaderboardSize
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := h.stats.Leaderboard(ctx, limit)
	if err != nil {
		h.sendQueryError(w, "排行榜暂不可用", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *StatsHandler) sendQueryError(w http.ResponseWriter, message string, err error) {
	zap.S().Errorf("%s: %v", message, err)
	sendErrorResponse(w, message, "", http.StatusInternalServerError)
}

// parseDashboardFilters 解析仪表盘查询参数，日期接受 RFC3339 或 2006-01-02
func parseDashboardFilters(r *http.Request) (models.DashboardFilters, error) {
	query := r.URL.Query()
	filters := models.DashboardFilters{
		UserID:   query.Get("userId"),
		GameMode: models.GameMode(strings.ToUpper(query.Get("gameMode"))),
	}
	if filters.GameMode != "" && !filters.GameMode.Valid() {
		return filters, errInvalidParam("gameMode")
	}

	var err error
	if filters.StartDate, err = parseDate(query.Get("startDate"), false); err != nil {
		return filters, errInvalidParam("startDate")
	}
	if filters.EndDate, err = parseDate(query.Get("endDate"), true); err != nil {
		return filters, errInvalidParam("endDate")
	}

	filters.Page, _ = strconv.Atoi(query.Get("page"))
	filters.Limit, _ = strconv.Atoi(query.Get("limit"))
	filters.Normalize()
	return filters, nil
}

// parseDate 只有日期时，结束日期取当天最后一刻
func parseDate(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string {
	return "无效的参数: " + string(e)
}
