// websocket.go

package game

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写入超时时间
	writeWait = 10 * time.Second

	// 读取超时时间
	pongWait = 60 * time.Second

	// 发送 ping 的间隔时间
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024

	// 发送队列长度
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 允许所有跨域请求
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PlayerConnection 玩家连接
type PlayerConnection struct {
	ID     string
	UserID string
	Send   chan []byte

	mu     sync.Mutex
	closed bool
	room   *Room
	kick   func()
}

func newPlayerConnection(userID string, kick func()) *PlayerConnection {
	return &PlayerConnection{
		ID:     uuid.New().String(),
		UserID: userID,
		Send:   make(chan []byte, sendBufferSize),
		kick:   kick,
	}
}

// deliver 把事件放入发送队列，队列满时断开连接
func (c *PlayerConnection) deliver(env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		zap.S().Errorf("序列化消息失败: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.Send <- data:
	default:
		zap.S().Warnf("连接 %s 发送队列已满，断开", c.ID)
		if c.kick != nil {
			go c.kick()
		}
	}
}

func (c *PlayerConnection) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// clearRoom 仅当连接仍绑定在 r 上时解绑
func (c *PlayerConnection) clearRoom(r *Room) {
	c.mu.Lock()
	if c.room == r {
		c.room = nil
	}
	c.mu.Unlock()
}

// CurrentRoom 连接当前所在的房间
func (c *PlayerConnection) CurrentRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// close 关闭发送通道，返回是否为首次关闭
func (c *PlayerConnection) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

// handleWSConnection 处理WebSocket连接
func (s *GameServer) handleWSConnection(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	token := r.URL.Query().Get("token")

	if userID == "" {
		http.Error(w, "缺少 userId", http.StatusUnauthorized)
		return
	}
	if err := s.verifyToken(userID, token); err != nil {
		zap.S().Warnf("玩家 %s 握手失败: %v", userID, err)
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorf("WebSocket升级失败: %v", err)
		return
	}

	player := newPlayerConnection(userID, func() { conn.Close() })

	s.connMutex.Lock()
	s.connections[player.ID] = player
	s.connMutex.Unlock()

	zap.S().Infof("玩家 %s 已连接 (%s)", userID, player.ID)

	go s.writePump(conn, player)
	go s.readPump(conn, player)
}

func (s *GameServer) verifyToken(userID, token string) error {
	if token == "" {
		if s.config.Auth.RequireToken {
			return errors.New("缺少令牌")
		}
		return nil
	}
	if s.tokens == nil {
		return nil
	}
	return s.tokens.ValidateFor(token, userID)
}

// readPump 从WebSocket读取数据，按到达顺序逐条处理
func (s *GameServer) readPump(conn *websocket.Conn, player *PlayerConnection) {
	defer func() {
		s.closeConnection(player)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.S().Warnf("WebSocket错误: %v", err)
			}
			break
		}

		s.handleMessage(player, message)
	}
}

// writePump 向WebSocket写入数据，每条消息一帧
func (s *GameServer) writePump(conn *websocket.Conn, player *PlayerConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-player.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeConnection 关闭玩家连接，座位进入断线宽限期
func (s *GameServer) closeConnection(player *PlayerConnection) {
	s.connMutex.Lock()
	if _, ok := s.connections[player.ID]; !ok {
		s.connMutex.Unlock()
		return
	}
	delete(s.connections, player.ID)
	s.connMutex.Unlock()

	if room := player.CurrentRoom(); room != nil {
		room.Detach(player)
	}
	player.close()

	zap.S().Infof("玩家 %s 已断开连接 (%s)", player.UserID, player.ID)
}

type messageHandler func(s *GameServer, player *PlayerConnection, env protocol.Envelope) error

// messageHandlers 上行事件分发表
var messageHandlers = map[protocol.EventType]messageHandler{
	protocol.EventJoinRoom:    (*GameServer).handleJoinRoom,
	protocol.EventLeaveRoom:   (*GameServer).handleLeaveRoom,
	protocol.EventPlayerReady: (*GameServer).handlePlayerReady,
	protocol.EventMakePlay:    (*GameServer).handleMakePlay,
	protocol.EventRematch:     (*GameServer).handleRematch,
}

// handleMessage 处理接收到的消息
func (s *GameServer) handleMessage(player *PlayerConnection, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.sendError(player, wrapRoomError(ErrInvalidPayload, err))
		return
	}

	handler, ok := messageHandlers[env.Type]
	if !ok {
		zap.S().Debugf("未知消息类型: %s", env.Type)
		s.sendError(player, ErrInvalidPayload)
		return
	}

	if err := handler(s, player, env); err != nil {
		zap.S().Debugf("玩家 %s 的 %s 被拒绝: %v", player.UserID, env.Type, err)
		s.sendError(player, err)
	}
}

// sendError 下发 game-error
func (s *GameServer) sendError(player *PlayerConnection, err error) {
	code, ok := CodeOf(err)
	if !ok {
		code = protocol.CodeInvalidPayload
	}
	player.deliver(protocol.MustNew(protocol.EventGameError, protocol.GameError{
		Message: protocol.Message(code, ""),
		Code:    code,
	}))
}

// decodeRoomIntent 解析并校验房间类请求
func (s *GameServer) decodeRoomIntent(player *PlayerConnection, env protocol.Envelope) (protocol.RoomIntent, error) {
	var intent protocol.RoomIntent
	if err := protocol.DecodePayload(env, &intent); err != nil {
		return intent, wrapRoomError(ErrInvalidPayload, err)
	}
	if err := intent.Validate(); err != nil {
		return intent, wrapRoomError(ErrInvalidPayload, err)
	}
	if intent.UserID != player.UserID {
		return intent, ErrUnauthorized
	}
	return intent, nil
}

// handleJoinRoom roomId 可以是房间 id 也可以是邀请码
func (s *GameServer) handleJoinRoom(player *PlayerConnection, env protocol.Envelope) error {
	intent, err := s.decodeRoomIntent(player, env)
	if err != nil {
		return err
	}

	room, ok := s.GetRoom(intent.RoomID)
	if !ok {
		room, ok = s.GetRoomByInviteCode(intent.RoomID)
	}
	if !ok {
		return ErrRoomNotFound
	}

	// 切换房间时先离开旧房间
	if old := player.CurrentRoom(); old != nil && old != room {
		if err := old.Leave(player.UserID); err != nil && !errors.Is(err, ErrNotInRoom) {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return room.Attach(s.lookupUser(ctx, player.UserID), player)
}

func (s *GameServer) handleLeaveRoom(player *PlayerConnection, env protocol.Envelope) error {
	intent, err := s.decodeRoomIntent(player, env)
	if err != nil {
		return err
	}
	room, ok := s.GetRoom(intent.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	return room.Leave(intent.UserID)
}

func (s *GameServer) handlePlayerReady(player *PlayerConnection, env protocol.Envelope) error {
	intent, err := s.decodeRoomIntent(player, env)
	if err != nil {
		return err
	}
	room, ok := s.GetRoom(intent.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	return room.Ready(intent.UserID)
}

func (s *GameServer) handleMakePlay(player *PlayerConnection, env protocol.Envelope) error {
	var intent protocol.MakePlayIntent
	if err := protocol.DecodePayload(env, &intent); err != nil {
		return wrapRoomError(ErrInvalidPayload, err)
	}
	if err := intent.Validate(); err != nil {
		return wrapRoomError(ErrInvalidPayload, err)
	}
	if intent.UserID != player.UserID {
		return ErrUnauthorized
	}

	room, ok := s.GetRoom(intent.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	return room.MakePlay(intent.UserID, intent.Choice)
}

func (s *GameServer) handleRematch(player *PlayerConnection, env protocol.Envelope) error {
	intent, err := s.decodeRoomIntent(player, env)
	if err != nil {
		return err
	}
	room, ok := s.GetRoom(intent.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	return room.Rematch(intent.UserID)
}

// lookupUser 查不到资料时按游客处理
func (s *GameServer) lookupUser(ctx context.Context, userID string) models.User {
	if s.users != nil {
		user, err := s.users.GetUser(ctx, userID)
		if err == nil && user != nil {
			return user.Public()
		}
		if err != nil {
			zap.S().Debugf("查询玩家 %s 失败: %v", userID, err)
		}
	}
	return models.User{ID: userID, IsGuest: true}
}
