// Package recovery 刷新或重连后恢复房间状态
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GabrielFeijo/jokenpo/internal/client/api"
	"github.com/GabrielFeijo/jokenpo/internal/client/session"
	"github.com/GabrielFeijo/jokenpo/internal/client/store"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"go.uber.org/zap"
)

var (
	ErrMissingRoomCode = errors.New("缺少房间码")
	ErrCreateUser      = errors.New("创建用户失败")
	ErrRecoverFailed   = errors.New("恢复对局状态失败")
)

// Facade 恢复需要的接口调用
type Facade interface {
	CreateGuestUser(ctx context.Context, name string) (models.User, error)
	JoinRoom(ctx context.Context, inviteCode, userID string) (api.RoomResponse, error)
}

// Channel 实时通道
type Channel interface {
	IsConnected() bool
	Connect(ctx context.Context, endpoint string, creds *session.Credentials) error
	JoinRoom(roomID, userID string) error
	LeaveRoom(roomID, userID string) error
	Disconnect()
}

// State 恢复进度
type State struct {
	IsRecovering  bool
	RecoveryError string
	RoomCode      string
}

// Coordinator 恢复协调器
type Coordinator struct {
	store   *store.Store
	facade  Facade
	channel Channel

	mu    sync.Mutex
	state State
}

// NewCoordinator 创建恢复协调器
func NewCoordinator(st *store.Store, facade Facade, channel Channel) *Coordinator {
	return &Coordinator{
		store:   st,
		facade:  facade,
		channel: channel,
	}
}

// State 当前恢复进度
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}

// Recover 用房间码恢复：必要时创建游客，通过接口入座，再连接实时通道。失败不重试
func (c *Coordinator) Recover(ctx context.Context, roomCode string) (err error) {
	code := api.NormalizeInviteCode(roomCode)
	c.setState(func(s *State) {
		s.IsRecovering = true
		s.RecoveryError = ""
		s.RoomCode = code
	})
	defer func() {
		c.setState(func(s *State) {
			s.IsRecovering = false
			if err != nil {
				s.RecoveryError = rootCause(err).Error()
			}
		})
	}()

	if code == "" {
		return ErrMissingRoomCode
	}

	st := c.store.Snapshot()
	if c.alreadyInRoom(st, code) {
		return nil
	}

	user := st.CurrentUser
	if user == nil {
		created, err := c.facade.CreateGuestUser(ctx, "")
		if err != nil {
			zap.S().Errorf("创建游客失败: %v", err)
			return fmt.Errorf("%w: %w", ErrCreateUser, err)
		}
		c.store.SetUser(created)
		user = &created
	}

	resp, err := c.facade.JoinRoom(ctx, code, user.ID)
	if err != nil {
		return c.failed(err)
	}
	c.store.ResyncRoom(resp.Room)

	creds := &session.Credentials{UserID: user.ID, Token: user.Token}
	if err := c.channel.Connect(ctx, resp.SocketURL, creds); err != nil {
		return c.failed(err)
	}
	if err := c.channel.JoinRoom(resp.Room.ID, user.ID); err != nil {
		return c.failed(err)
	}

	zap.S().Infof("已恢复房间 %s", code)
	return nil
}

// alreadyInRoom 已连接且本地已在该房间
func (c *Coordinator) alreadyInRoom(st store.State, code string) bool {
	if !c.channel.IsConnected() || st.CurrentUser == nil || st.CurrentRoom == nil {
		return false
	}
	return st.CurrentRoom.InviteCode == code && st.CurrentRoom.HasPlayer(st.CurrentUser.ID)
}

func (c *Coordinator) failed(err error) error {
	zap.S().Errorf("恢复对局状态失败: %v", err)
	return fmt.Errorf("%w: %w", ErrRecoverFailed, err)
}

// ReturnToLobby 通知离开房间，断开连接并清空对局
func (c *Coordinator) ReturnToLobby() {
	st := c.store.Snapshot()
	if c.channel.IsConnected() && st.CurrentRoom != nil && st.CurrentUser != nil {
		if err := c.channel.LeaveRoom(st.CurrentRoom.ID, st.CurrentUser.ID); err != nil {
			zap.S().Warnf("离开房间 %s 失败: %v", st.CurrentRoom.ID, err)
		}
	}
	c.channel.Disconnect()
	c.store.ResetGame()
	c.setState(func(s *State) { *s = State{} })
}

// rootCause 取对外展示的哨兵错误
func rootCause(err error) error {
	for _, target := range []error{ErrMissingRoomCode, ErrCreateUser, ErrRecoverFailed} {
		if errors.Is(err, target) {
			return target
		}
	}
	return err
}
