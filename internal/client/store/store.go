// Package store 客户端状态存储
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"go.uber.org/zap"
)

// ErrNoUser 本地没有用户
var ErrNoUser = errors.New("本地没有用户")

// Listener 状态变化回调，按提交顺序调用，回调内不能修改 Store
type Listener func(next, prev State)

// Store 客户端状态，由组合根创建后注入各个组件
type Store struct {
	// dispatchMu 保证监听者按提交顺序收到变化
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State

	listeners map[int]Listener
	nextID    int

	persister Persister
}

// New 创建状态存储，persister 可以为 nil
func New(persister Persister) *Store {
	return &Store{
		state:     initialState(),
		listeners: make(map[int]Listener),
		persister: persister,
	}
}

// Subscribe 订阅状态变化，返回取消函数
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot 当前状态的副本
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// update 在锁内修改状态，提交后通知监听者并持久化
func (s *Store) update(fn func(st *State)) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state.clone()
	fn(&s.state)
	next := s.state.clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next, prev)
	}
	s.persist(next)
}

func (s *Store) persist(st State) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(context.Background(), NewRecord(st)); err != nil {
		zap.S().Warnf("保存客户端状态失败: %v", err)
	}
}

// Rehydrate 从持久化记录恢复状态
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	rec, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if rec.Version != RecordVersion {
		zap.S().Warnf("忽略版本为 %d 的客户端状态", rec.Version)
		return nil
	}
	s.update(func(st *State) {
		rec.State.applyTo(st)
	})
	return nil
}

// SetUser 设置当前用户
func (s *Store) SetUser(user models.User) {
	s.update(func(st *State) { st.CurrentUser = &user })
}

// SetRoom 设置当前房间
func (s *Store) SetRoom(room *models.Room) {
	s.update(func(st *State) { st.CurrentRoom = cloneRoom(room) })
}

// SetConnectionStatus 设置连接状态，connErr 为空表示没有错误
func (s *Store) SetConnectionStatus(connected bool, connErr string) {
	s.update(func(st *State) {
		st.IsConnected = connected
		st.ConnectionError = connErr
	})
}

// SetMatch 设置当前对局
func (s *Store) SetMatch(match *models.Match) {
	s.update(func(st *State) { st.setMatch(match) })
}

func (s *Store) SetMyChoice(choice models.Choice) {
	s.update(func(st *State) { st.MyChoice = choice })
}

func (s *Store) SetConfirmedChoice(choice models.Choice) {
	s.update(func(st *State) { st.ConfirmedChoice = choice })
}

// ConfirmMyPlay 服务端确认了自己的出招
func (s *Store) ConfirmMyPlay(choice models.Choice) {
	s.update(func(st *State) {
		st.ConfirmedChoice = choice
		if choice != "" {
			st.MyChoice = choice
		}
	})
}

func (s *Store) SetOpponentChoice(choice models.Choice) {
	s.update(func(st *State) { st.OpponentChoice = choice })
}

func (s *Store) SetOpponentCommitted(committed bool) {
	s.update(func(st *State) { st.OpponentCommitted = committed })
}

func (s *Store) SetGameResult(result models.GameResult) {
	s.update(func(st *State) { st.GameResult = result })
}

func (s *Store) SetReady(ready bool) {
	s.update(func(st *State) { st.IsReady = ready })
}

func (s *Store) SetOpponentReady(ready bool) {
	s.update(func(st *State) { st.OpponentReady = ready })
}

// UpdateScore 计分增量
func (s *Store) UpdateScore(delta int) {
	s.update(func(st *State) { st.Score += delta })
}

func (s *Store) SetGameMode(mode models.GameMode) {
	s.update(func(st *State) { st.GameMode = mode })
}

func (s *Store) SetShowRules(show bool) {
	s.update(func(st *State) { st.ShowRules = show })
}

func (s *Store) SetAnimating(animating bool) {
	s.update(func(st *State) { st.IsAnimating = animating })
}

// ResetGame 回到大厅，保留用户、模式和界面设置
func (s *Store) ResetGame() {
	s.update(func(st *State) {
		st.CurrentRoom = nil
		st.setMatch(nil)
		st.clearRound()
		st.IsReady = false
		st.OpponentReady = false
		st.IsConnected = false
		st.ConnectionError = ""
		st.Score = 0
		st.revealedMatchID = ""
	})
}

// PlayAgain 清空本轮出招、结果和动画
func (s *Store) PlayAgain() {
	s.update(func(st *State) {
		st.clearRound()
		st.IsAnimating = false
	})
}

// BeginMatch game-started：设置新对局并清空本轮
func (s *Store) BeginMatch(match models.Match) {
	s.update(func(st *State) {
		st.setMatch(&match)
		st.clearRound()
		st.IsAnimating = false
	})
}

// ApplyRoomSnapshot 用 room-updated 快照校准本地状态，保留尚未确认的出招
func (s *Store) ApplyRoomSnapshot(room models.Room) {
	s.update(func(st *State) { st.applySnapshot(room, false) })
}

// ResyncRoom 入座或重连后的完整快照，本局没有出招记录时丢弃本地的出招
func (s *Store) ResyncRoom(room models.Room) {
	s.update(func(st *State) { st.applySnapshot(room, true) })
}

func (st *State) applySnapshot(room models.Room, fresh bool) {
	st.CurrentRoom = cloneRoom(&room)
	st.GameMode = room.GameMode

	me := st.userID()
	if me != "" {
		st.IsReady = room.IsReady(me)
		st.OpponentReady = false
		for _, id := range room.ReadyPlayerIDs {
			if id != me {
				st.OpponentReady = true
			}
		}
	}

	m := room.CurrentMatch
	if m == nil {
		if st.CurrentMatch != nil {
			st.setMatch(nil)
			st.clearRound()
		}
		return
	}

	switch m.Status {
	case models.MatchFinished:
		if result, ok := m.LatestResult(); ok {
			st.applyMatchFinished(*m, result, m.Plays)
			return
		}
		st.setMatch(m)
	default:
		if st.CurrentMatch == nil || st.CurrentMatch.ID != m.ID {
			st.clearRound()
		}
		st.setMatch(m)
		st.adoptPlays(m.Plays, fresh)
	}
}

// adoptPlays 从进行中对局的出招恢复本轮状态，对手的出招内容不可见
func (st *State) adoptPlays(plays []models.Play, fresh bool) {
	me := st.userID()
	played := false
	for _, p := range plays {
		if p.PlayerID == me {
			played = true
			if p.Choice != "" {
				st.ConfirmedChoice = p.Choice
				st.MyChoice = p.Choice
			}
			continue
		}
		st.OpponentCommitted = true
	}
	if fresh && !played && me != "" {
		st.MyChoice = ""
		st.ConfirmedChoice = ""
	}
}

// ApplyMatchFinished 公布结果。同一局只计分一次，applied 表示本次是否新公布
func (s *Store) ApplyMatchFinished(match models.Match, result models.MatchResult, plays []models.Play) (gr models.GameResult, applied bool, err error) {
	s.update(func(st *State) {
		if st.CurrentUser == nil {
			err = ErrNoUser
			return
		}
		gr, applied = st.applyMatchFinished(match, result, plays)
	})
	return gr, applied, err
}

func (st *State) applyMatchFinished(match models.Match, result models.MatchResult, plays []models.Play) (models.GameResult, bool) {
	if len(match.Results) == 0 {
		match.Results = []models.MatchResult{result}
	}

	me := st.userID()
	if me == "" {
		st.setMatch(&match)
		return "", false
	}

	// 已公布过的对局只更新快照，不覆盖再来一局的乐观重置
	if st.revealedMatchID == match.ID {
		st.setMatch(&match)
		return st.GameResult, false
	}
	// 从持久化记录恢复的结果
	if st.CurrentMatch != nil && st.CurrentMatch.ID == match.ID && st.GameResult != "" {
		st.revealedMatchID = match.ID
		st.setMatch(&match)
		return st.GameResult, false
	}

	st.setMatch(&match)
	for _, p := range plays {
		if p.PlayerID == me {
			st.ConfirmedChoice = p.Choice
			if st.MyChoice == "" {
				st.MyChoice = p.Choice
			}
		} else {
			st.OpponentChoice = p.Choice
			st.OpponentCommitted = true
		}
	}

	gr := models.ResultFor(result, me)
	st.GameResult = gr
	st.Score += gr.ScoreDelta()
	st.revealedMatchID = match.ID
	return gr, true
}

// CanStartGame 双方都已准备且房间满员
func (s *Store) CanStartGame() bool {
	st := s.Snapshot()
	return st.IsReady && st.OpponentReady && st.CurrentRoom != nil && len(st.CurrentRoom.Players) == models.MaxPlayers
}

// IsMyChoicePending 已出招但服务端尚未确认
func (s *Store) IsMyChoicePending() bool {
	st := s.Snapshot()
	return st.MyChoice != "" && st.ConfirmedChoice == ""
}

// AuthoritativeScore 从最新结果读取房间累计分，ok 为 false 表示还没有结果
func (s *Store) AuthoritativeScore() (mine, theirs int, ok bool) {
	st := s.Snapshot()
	if st.CurrentUser == nil || st.CurrentRoom == nil {
		return 0, 0, false
	}

	result, ok := st.CurrentMatch.LatestResult()
	if !ok {
		result, ok = st.CurrentRoom.CurrentMatch.LatestResult()
	}
	if !ok {
		return 0, 0, false
	}

	switch st.CurrentRoom.SeatOf(st.CurrentUser.ID) {
	case 0:
		return result.Player1Score, result.Player2Score, true
	case 1:
		return result.Player2Score, result.Player1Score, true
	default:
		return 0, 0, false
	}
}
