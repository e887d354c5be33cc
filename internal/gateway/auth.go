package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxNameLength 玩家名称最大长度
const maxNameLength = 50

// UsersHandler 游客用户处理器
type UsersHandler struct {
	users        UserStore
	tokens       TokenService
	requireToken bool
}

// NewUsersHandler 创建用户处理器
func NewUsersHandler(users UserStore, tokens TokenService, requireToken bool) *UsersHandler {
	return &UsersHandler{
		users:        users,
		tokens:       tokens,
		requireToken: requireToken,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *UsersHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/users/guest", h.handleCreateGuest)
	mux.HandleFunc("/api/users/", h.handleUser)
}

// GuestRequest 创建游客请求
type GuestRequest struct {
	Name string `json:"name,omitempty"`
}

// handleCreateGuest 创建游客并签发令牌
func (h *UsersHandler) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendErrorResponse(w, "仅支持POST方法", "", http.StatusMethodNotAllowed)
		return
	}

	var req GuestRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, "无效的请求格式", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}
	name, ok := cleanName(req.Name)
	if !ok {
		sendErrorResponse(w, "名称过长", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}

	user := models.User{
		ID:      uuid.New().String(),
		Name:    name,
		IsGuest: true,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.users.CreateUser(ctx, user); err != nil {
		zap.S().Errorf("创建游客失败: %v", err)
		sendErrorResponse(w, "创建用户失败", "", http.StatusInternalServerError)
		return
	}

	if h.tokens != nil {
		token, err := h.tokens.Issue(user.ID, true)
		if err != nil {
			zap.S().Errorf("签发令牌失败: %v", err)
			sendErrorResponse(w, "签发令牌失败", "", http.StatusInternalServerError)
			return
		}
		user.Token = token
	}

	zap.S().Infof("创建游客: %s", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// handleUser 处理 /api/users/{id}
func (h *UsersHandler) handleUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if userID == "" || strings.Contains(userID, "/") {
		sendErrorResponse(w, "无效的用户ID", "", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetUser(w, r, userID)
	case http.MethodPatch:
		h.handleUpdateUser(w, r, userID)
	default:
		sendErrorResponse(w, "仅支持GET和PATCH方法", "", http.StatusMethodNotAllowed)
	}
}

func (h *UsersHandler) handleGetUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.sendUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// handleUpdateUser 更新名称
func (h *UsersHandler) handleUpdateUser(w http.ResponseWriter, r *http.Request, userID string) {
	if err := authorize(r, h.tokens, h.requireToken, userID); err != nil {
		sendRoomError(w, err)
		return
	}

	var req models.UpdateUserRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, "无效的请求格式", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}
	if req.Name == nil {
		sendErrorResponse(w, "至少需要提供一个更新字段", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}
	name, ok := cleanName(*req.Name)
	if !ok || name == "" {
		sendErrorResponse(w, "名称不能为空且不能超过50个字符", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.users.UpdateName(ctx, userID, name)
	if err != nil {
		h.sendUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (h *UsersHandler) sendUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUserNotFound) {
		sendErrorResponse(w, "用户不存在", "", http.StatusNotFound)
		return
	}
	zap.S().Errorf("用户请求失败: %v", err)
	sendErrorResponse(w, "服务器错误", "", http.StatusInternalServerError)
}

// cleanName 去掉首尾空白并检查长度
func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, utf8.RuneCountInString(name) <= maxNameLength
}
