// Package session 管理客户端到房间服务器的实时连接
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/client/store"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
	"github.com/GabrielFeijo/jokenpo/internal/rules"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写超时
	writeWait = 10 * time.Second
	// 读取消息的最大大小
	maxMessageSize = 64 * 1024
)

var (
	ErrNotConnected     = errors.New("未连接到服务器")
	ErrAlreadyConnected = errors.New("已连接到其他服务器")
	ErrConnecting       = errors.New("正在连接中")
	ErrDisconnected     = errors.New("连接已主动断开")
	ErrNoActiveMatch    = errors.New("当前没有进行中的对局")
	ErrAlreadyChose     = errors.New("本局已经出过招")
)

// Credentials 握手参数
type Credentials struct {
	UserID string
	Token  string
}

// Options 会话配置
type Options struct {
	Notifier          Notifier
	AnimationDuration time.Duration
	DialTimeout       time.Duration
}

// Session 客户端连接会话
type Session struct {
	store     *store.Store
	notifier  Notifier
	dialer    *websocket.Dialer
	animation time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	endpoint   string
	dialCancel context.CancelCauseFunc
	done       chan struct{}
	animTimer  *time.Timer

	writeMu sync.Mutex
}

// New 创建会话
func New(st *store.Store, opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(nil)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Session{
		store:     st,
		notifier:  opts.Notifier,
		animation: opts.AnimationDuration,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
		},
	}
}

// IsConnected 是否已连接
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Connect 握手完成后返回，失败时记录 connectionError，不会自动重试
func (s *Session) Connect(ctx context.Context, endpoint string, creds *Credentials) error {
	s.mu.Lock()
	if s.conn != nil {
		same := s.endpoint == endpoint
		s.mu.Unlock()
		if same {
			return nil
		}
		return ErrAlreadyConnected
	}
	if s.dialCancel != nil {
		s.mu.Unlock()
		return ErrConnecting
	}
	dialCtx, cancel := context.WithCancelCause(ctx)
	s.dialCancel = cancel
	s.mu.Unlock()

	target, err := dialURL(endpoint, creds)
	var conn *websocket.Conn
	if err == nil {
		conn, _, err = s.dialer.DialContext(dialCtx, target, nil)
	}

	s.mu.Lock()
	s.dialCancel = nil
	canceled := dialCtx.Err() != nil
	cause := context.Cause(dialCtx)
	cancel(nil)
	if err == nil && canceled {
		conn.Close()
		err = cause
	}
	if errors.Is(cause, ErrDisconnected) {
		// 握手期间调用了 Disconnect，不算连接错误
		s.mu.Unlock()
		return fmt.Errorf("连接 %s 失败: %w", endpoint, ErrDisconnected)
	}
	if err != nil {
		s.mu.Unlock()
		s.store.SetConnectionStatus(false, err.Error())
		return fmt.Errorf("连接 %s 失败: %w", endpoint, err)
	}

	conn.SetReadLimit(maxMessageSize)
	done := make(chan struct{})
	s.conn = conn
	s.endpoint = endpoint
	s.done = done
	s.mu.Unlock()

	s.store.SetConnectionStatus(true, "")
	zap.S().Infof("已连接到 %s", endpoint)

	go s.readLoop(conn, done)
	return nil
}

// dialURL 把用户ID和令牌放进查询参数
func dialURL(endpoint string, creds *Credentials) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("无效的地址: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if creds != nil {
		q := u.Query()
		if creds.UserID != "" {
			q.Set("userId", creds.UserID)
		}
		if creds.Token != "" {
			q.Set("token", creds.Token)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Disconnect 断开连接，可重复调用，也会取消进行中的握手
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.dialCancel != nil {
		s.dialCancel(ErrDisconnected)
	}
	conn, done := s.conn, s.done
	s.conn = nil
	s.endpoint = ""
	s.done = nil
	if s.animTimer != nil {
		s.animTimer.Stop()
		s.animTimer = nil
	}
	s.mu.Unlock()

	if conn == nil {
		return
	}

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	conn.Close()

	select {
	case <-done:
	case <-time.After(writeWait):
	}

	s.store.SetConnectionStatus(false, "")
	zap.S().Info("已断开连接")
}

// readLoop 按到达顺序逐条应用下行事件
func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(conn, err)
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			zap.S().Warnf("忽略无法解析的消息: %v", err)
			continue
		}
		event, err := protocol.DecodeInbound(env)
		if err != nil {
			zap.S().Warnf("忽略消息 %s: %v", env.Type, err)
			continue
		}
		event.Dispatch(s)
	}
}

// connectionLost 连接被动断开
func (s *Session) connectionLost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
		s.endpoint = ""
		s.done = nil
	}
	s.mu.Unlock()

	if !current {
		return
	}
	conn.Close()

	msg := ""
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		msg = err.Error()
	}
	s.store.SetConnectionStatus(false, msg)
	zap.S().Warnf("连接已断开: %v", err)
}

// send 发送一条上行消息
func (s *Session) send(et protocol.EventType, payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	env, err := protocol.New(et, payload)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送 %s 失败: %w", et, err)
	}
	return nil
}

// JoinRoom 加入房间
func (s *Session) JoinRoom(roomID, userID string) error {
	return s.send(protocol.EventJoinRoom, protocol.RoomIntent{RoomID: roomID, UserID: userID})
}

// LeaveRoom 离开房间
func (s *Session) LeaveRoom(roomID, userID string) error {
	return s.send(protocol.EventLeaveRoom, protocol.RoomIntent{RoomID: roomID, UserID: userID})
}

// PlayerReady 准备，本地立即标记
func (s *Session) PlayerReady(roomID, userID string) error {
	if err := s.send(protocol.EventPlayerReady, protocol.RoomIntent{RoomID: roomID, UserID: userID}); err != nil {
		return err
	}
	s.store.SetReady(true)
	return nil
}

// MakePlay 出招，本地立即记录 myChoice
func (s *Session) MakePlay(roomID, userID string, choice models.Choice) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	st := s.store.Snapshot()
	if st.CurrentMatch == nil || st.CurrentMatch.Status != models.MatchPlaying {
		return ErrNoActiveMatch
	}
	if st.MyChoice != "" {
		return ErrAlreadyChose
	}
	mode := st.CurrentMatch.GameMode
	if mode == "" {
		mode = st.GameMode
	}
	if err := rules.Validate(mode, choice); err != nil {
		return err
	}

	if err := s.send(protocol.EventMakePlay, protocol.MakePlayIntent{RoomID: roomID, UserID: userID, Choice: choice}); err != nil {
		return err
	}
	s.store.SetMyChoice(choice)
	return nil
}

// RequestRematch 再来一局，本地立即清空本轮
func (s *Session) RequestRematch(roomID, userID string) error {
	if err := s.send(protocol.EventRematch, protocol.RoomIntent{RoomID: roomID, UserID: userID}); err != nil {
		return err
	}
	s.store.PlayAgain()
	return nil
}

// startAnimation 结果动画，到时自动结束
func (s *Session) startAnimation() {
	if s.animation <= 0 {
		return
	}
	s.store.SetAnimating(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.animTimer != nil {
		s.animTimer.Stop()
	}
	s.animTimer = time.AfterFunc(s.animation, func() {
		s.store.SetAnimating(false)
	})
}
