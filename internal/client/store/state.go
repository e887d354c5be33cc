package store

import (
	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// State 客户端本地状态
type State struct {
	CurrentUser     *models.User
	CurrentRoom     *models.Room
	IsConnected     bool
	ConnectionError string
	CurrentMatch    *models.Match

	// MyChoice 本地乐观记录，ConfirmedChoice 为服务端确认的出招
	MyChoice        models.Choice
	ConfirmedChoice models.Choice
	// OpponentChoice 只在 match-finished 公布后设置
	OpponentChoice    models.Choice
	OpponentCommitted bool

	GameResult models.GameResult
	IsPlaying  bool
	IsReady    bool
	// OpponentReady 对手已准备
	OpponentReady bool
	// Score 展示用计分，以 AuthoritativeScore 为准
	Score int

	GameMode    models.GameMode
	ShowRules   bool
	IsAnimating bool

	// revealedMatchID 已公布结果的对局
	revealedMatchID string
}

// initialState 初始状态
func initialState() State {
	return State{GameMode: models.ModeClassic}
}

// clone 深拷贝，监听者拿到的状态互不影响
func (s State) clone() State {
	if s.CurrentUser != nil {
		u := *s.CurrentUser
		s.CurrentUser = &u
	}
	s.CurrentRoom = cloneRoom(s.CurrentRoom)
	s.CurrentMatch = s.CurrentMatch.Clone()
	return s
}

func cloneRoom(r *models.Room) *models.Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = append([]models.User(nil), r.Players...)
	c.ReadyPlayerIDs = append([]string(nil), r.ReadyPlayerIDs...)
	c.CurrentMatch = r.CurrentMatch.Clone()
	return &c
}

// userID 当前用户ID
func (s State) userID() string {
	if s.CurrentUser == nil {
		return ""
	}
	return s.CurrentUser.ID
}

// clearRound 清空本轮出招和结果
func (s *State) clearRound() {
	s.MyChoice = ""
	s.ConfirmedChoice = ""
	s.OpponentChoice = ""
	s.OpponentCommitted = false
	s.GameResult = ""
}

// setMatch 保持 IsPlaying 与 CurrentMatch 一致
func (s *State) setMatch(m *models.Match) {
	s.CurrentMatch = m.Clone()
	s.IsPlaying = m != nil
}
