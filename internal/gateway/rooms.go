package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/game"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"go.uber.org/zap"
)

// RoomRegistry 房间注册表，由 game.GameServer 实现
type RoomRegistry interface {
	CreateRoom(ctx context.Context, mode models.GameMode, creator models.User) (*game.Room, error)
	JoinRoom(ctx context.Context, inviteCode string, user models.User) (*game.Room, error)
	GetRoom(roomID string) (*game.Room, bool)
	GetRoomByInviteCode(code string) (*game.Room, bool)
}

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	GameMode models.GameMode `json:"gameMode"`
	UserID   string          `json:"userId"`
}

// JoinRoomRequest 加入房间请求，roomId 填邀请码
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomResponse 房间和实时通道地址
type RoomResponse struct {
	Room      models.Room `json:"room"`
	SocketURL string      `json:"socketUrl"`
}

// RoomsHandler 房间处理器
type RoomsHandler struct {
	rooms        RoomRegistry
	tokens       TokenService
	socketURL    string
	requireToken bool
}

// NewRoomsHandler 创建房间处理器
func NewRoomsHandler(rooms RoomRegistry, tokens TokenService, socketURL string, requireToken bool) *RoomsHandler {
	return &RoomsHandler{
		rooms:        rooms,
		tokens:       tokens,
		socketURL:    socketURL,
		requireToken: requireToken,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *RoomsHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", h.handleCreateRoom)
	mux.HandleFunc("/api/rooms/join", h.handleJoinRoom)
	mux.HandleFunc("/api/rooms/invite/", h.handleGetByInvite)
	mux.HandleFunc("/api/rooms/", h.handleGetRoom)
}

// handleCreateRoom 创建房间
func (h *RoomsHandler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendErrorResponse(w, "仅支持POST方法", "", http.StatusMethodNotAllowed)
		return
	}

	var req CreateRoomRequest
	if err := decodeBody(r, &req); err != nil || req.UserID == "" {
		sendErrorResponse(w, "无效的请求格式", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}
	if err := authorize(r, h.tokens, h.requireToken, req.UserID); err != nil {
		sendRoomError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	room, err := h.rooms.CreateRoom(ctx, req.GameMode, models.User{ID: req.UserID})
	if err != nil {
		sendRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RoomResponse{
		Room:      room.Snapshot(req.UserID),
		SocketURL: h.socketURL,
	})
}

// handleJoinRoom 通过邀请码加入房间
func (h *RoomsHandler) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendErrorResponse(w, "仅支持POST方法", "", http.StatusMethodNotAllowed)
		return
	}

	var req JoinRoomRequest
	if err := decodeBody(r, &req); err != nil || req.UserID == "" || strings.TrimSpace(req.RoomID) == "" {
		sendErrorResponse(w, "无效的请求格式", "INVALID_PAYLOAD", http.StatusBadRequest)
		return
	}
	if err := authorize(r, h.tokens, h.requireToken, req.UserID); err != nil {
		sendRoomError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	room, err := h.rooms.JoinRoom(ctx, req.RoomID, models.User{ID: req.UserID})
	if err != nil {
		zap.S().Debugf("加入房间失败: %s, %v", req.RoomID, err)
		sendRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RoomResponse{
		Room:      room.Snapshot(req.UserID),
		SocketURL: h.socketURL,
	})
}

// handleGetRoom 按ID查询房间
func (h *RoomsHandler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "仅支持GET方法", "", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		sendRoomError(w, game.ErrRoomNotFound)
		return
	}

	room, ok := h.rooms.GetRoom(roomID)
	if !ok {
		sendRoomError(w, game.ErrRoomNotFound)
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot(r.URL.Query().Get("userId")))
}

// handleGetByInvite 按邀请码查询房间
func (h *RoomsHandler) handleGetByInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "仅支持GET方法", "", http.StatusMethodNotAllowed)
		return
	}

	code := strings.TrimPrefix(r.URL.Path, "/api/rooms/invite/")
	room, ok := h.rooms.GetRoomByInviteCode(code)
	if code == "" || !ok {
		sendRoomError(w, game.ErrRoomNotFound)
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot(r.URL.Query().Get("userId")))
}
