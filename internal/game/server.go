package game

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/config"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// GameServer 房间权威服务器
type GameServer struct {
	config      *config.Config
	rooms       map[string]*Room
	invites     map[string]*Room
	roomsMutex  sync.RWMutex
	httpServer  *http.Server
	connections map[string]*PlayerConnection
	connMutex   sync.RWMutex
	scheduler   gocron.Scheduler

	users    UserDirectory
	recorder MatchRecorder
	tokens   TokenVerifier

	runMutex  sync.Mutex
	isRunning bool
}

// Option 服务器可选依赖
type Option func(*GameServer)

// WithUserDirectory 用于补全玩家名称
func WithUserDirectory(d UserDirectory) Option {
	return func(s *GameServer) { s.users = d }
}

// WithRecorder 对局结束后保存
func WithRecorder(r MatchRecorder) Option {
	return func(s *GameServer) { s.recorder = r }
}

// WithTokenVerifier 握手时校验令牌
func WithTokenVerifier(v TokenVerifier) Option {
	return func(s *GameServer) { s.tokens = v }
}

// NewGameServer 创建新的游戏服务器
func NewGameServer(cfg *config.Config, opts ...Option) *GameServer {
	s := &GameServer{
		config:      cfg,
		rooms:       make(map[string]*Room),
		invites:     make(map[string]*Room),
		connections: make(map[string]*PlayerConnection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 启动游戏服务器
func (s *GameServer) Start() error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("服务器已经在运行")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("创建调度器失败: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.config.Game.CleanupInterval),
		gocron.NewTask(s.cleanupRooms),
		gocron.WithName("room-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("注册房间清理任务失败: %w", err)
	}
	s.scheduler = scheduler
	s.scheduler.Start()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.GamePort),
		Handler: s.Handler(),
	}

	go func() {
		zap.S().Infof("游戏服务器启动，监听端口: %d", s.config.Server.GamePort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalf("HTTP服务器错误: %v", err)
		}
	}()

	s.isRunning = true
	return nil
}

// Stop 停止游戏服务器
func (s *GameServer) Stop() error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	if !s.isRunning {
		return nil
	}

	if err := s.scheduler.Shutdown(); err != nil {
		zap.S().Warnf("调度器关闭错误: %v", err)
	}

	// 关闭所有房间
	s.roomsMutex.Lock()
	for _, room := range s.rooms {
		room.Close()
	}
	s.roomsMutex.Unlock()

	// 断开所有连接
	s.connMutex.RLock()
	for _, conn := range s.connections {
		if conn.kick != nil {
			conn.kick()
		}
	}
	s.connMutex.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP服务器关闭错误: %w", err)
	}

	s.isRunning = false
	zap.S().Info("游戏服务器已停止")
	return nil
}

// Handler 创建HTTP处理器
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket 连接端点
	mux.HandleFunc("/ws", s.handleWSConnection)

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

func (s *GameServer) roomOptions() RoomOptions {
	return RoomOptions{
		GracePeriod:     s.config.Game.GracePeriod,
		AttachTimeout:   s.config.Game.AttachTimeout,
		EmptyRoomTTL:    s.config.Game.EmptyRoomTTL,
		FinishedRoomTTL: s.config.Game.FinishedRoomTTL,
		Recorder:        s.recorder,
	}
}

// CreateRoom 创建房间，创建者直接入座
func (s *GameServer) CreateRoom(ctx context.Context, mode models.GameMode, creator models.User) (*Room, error) {
	if mode == "" {
		mode = models.ModeClassic
	}
	if !mode.Valid() {
		return nil, ErrInvalidGameMode
	}
	if creator.ID == "" {
		return nil, wrapRoomError(ErrInvalidPayload, fmt.Errorf("缺少 userId"))
	}
	creator = s.resolveUser(ctx, creator)

	s.roomsMutex.Lock()
	if limit := s.config.Server.MaxRoomCount; limit > 0 && len(s.rooms) >= limit {
		s.roomsMutex.Unlock()
		return nil, fmt.Errorf("房间数量已达上限 %d", limit)
	}
	code, err := uniqueInviteCode(s.config.Game.InviteCodeLength, func(c string) bool {
		_, taken := s.invites[c]
		return taken
	})
	if err != nil {
		s.roomsMutex.Unlock()
		return nil, fmt.Errorf("生成邀请码失败: %w", err)
	}

	room := NewRoom(code, mode, creator.ID, s.roomOptions())
	s.rooms[room.ID] = room
	s.invites[code] = room
	s.roomsMutex.Unlock()

	if _, err := room.Admit(creator); err != nil {
		return nil, err
	}

	zap.S().Infof("创建房间: %s, 邀请码: %s, 模式: %s", room.ID, code, mode)
	return room, nil
}

// JoinRoom 通过邀请码入座，也接受房间 id
func (s *GameServer) JoinRoom(ctx context.Context, inviteCode string, user models.User) (*Room, error) {
	if user.ID == "" {
		return nil, wrapRoomError(ErrInvalidPayload, fmt.Errorf("缺少 userId"))
	}

	room, ok := s.GetRoomByInviteCode(inviteCode)
	if !ok {
		room, ok = s.GetRoom(inviteCode)
	}
	if !ok {
		return nil, ErrRoomNotFound
	}

	if _, err := room.Admit(s.resolveUser(ctx, user)); err != nil {
		return nil, err
	}
	return room, nil
}

// resolveUser 用目录中的资料补全名称
func (s *GameServer) resolveUser(ctx context.Context, user models.User) models.User {
	if user.Name != "" || s.users == nil {
		return user.Public()
	}
	return s.lookupUser(ctx, user.ID)
}

// GetRoom 获取房间
func (s *GameServer) GetRoom(roomID string) (*Room, bool) {
	s.roomsMutex.RLock()
	defer s.roomsMutex.RUnlock()

	room, exists := s.rooms[roomID]
	return room, exists
}

// GetRoomByInviteCode 按邀请码查找房间
func (s *GameServer) GetRoomByInviteCode(code string) (*Room, bool) {
	s.roomsMutex.RLock()
	defer s.roomsMutex.RUnlock()

	room, exists := s.invites[NormalizeInviteCode(code)]
	return room, exists
}

// RoomCount 当前房间数
func (s *GameServer) RoomCount() int {
	s.roomsMutex.RLock()
	defer s.roomsMutex.RUnlock()
	return len(s.rooms)
}

// cleanupRooms 清理空闲房间
func (s *GameServer) cleanupRooms() {
	s.cleanupRoomsAt(time.Now())
}

func (s *GameServer) cleanupRoomsAt(now time.Time) int {
	s.roomsMutex.Lock()
	defer s.roomsMutex.Unlock()

	removed := 0
	for id, room := range s.rooms {
		if room.ShouldCleanup(now) {
			zap.S().Infof("清理空闲房间: %s", id)
			room.Close()
			delete(s.rooms, id)
			delete(s.invites, room.InviteCode)
			removed++
		}
	}
	return removed
}
