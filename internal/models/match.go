package models

import (
	"time"
)

// Choice 出招
type Choice string

const (
	Rock     Choice = "ROCK"
	Paper    Choice = "PAPER"
	Scissors Choice = "SCISSORS"
	Lizard   Choice = "LIZARD"
	Spock    Choice = "SPOCK"
)

// AllChoices 五种出招，按固定顺序
var AllChoices = []Choice{Rock, Paper, Scissors, Lizard, Spock}

// MatchStatus 对局状态
type MatchStatus string

const (
	MatchWaiting  MatchStatus = "WAITING"
	MatchPlaying  MatchStatus = "PLAYING"
	MatchFinished MatchStatus = "FINISHED"
)

// GameResult 客户端视角的结果
type GameResult string

const (
	ResultWin  GameResult = "WIN"
	ResultLose GameResult = "LOSE"
	ResultDraw GameResult = "DRAW"
)

// Match 一局对战
type Match struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"roomId"`
	GameMode  GameMode      `json:"gameMode"`
	Status    MatchStatus   `json:"status"`
	Plays     []Play        `json:"plays"`
	Results   []MatchResult `json:"results,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Play 一次出招，创建后不可修改
type Play struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"matchId"`
	PlayerID  string    `json:"playerId"`
	Choice    Choice    `json:"choice"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchResult 对局结果，分数为房间内累计分
type MatchResult struct {
	ID            string    `json:"id"`
	MatchID       string    `json:"matchId"`
	WinnerID      string    `json:"winnerId,omitempty"`
	LoserPlayerID string    `json:"loserPlayerId,omitempty"`
	IsDraw        bool      `json:"isDraw"`
	Player1Score  int       `json:"player1Score"`
	Player2Score  int       `json:"player2Score"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PlayOf 返回玩家在本局的出招
func (m *Match) PlayOf(playerID string) (Play, bool) {
	if m == nil {
		return Play{}, false
	}
	for _, p := range m.Plays {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Play{}, false
}

// LatestResult 最新结果，下标 0
func (m *Match) LatestResult() (MatchResult, bool) {
	if m == nil || len(m.Results) == 0 {
		return MatchResult{}, false
	}
	return m.Results[0], true
}

// Clone 深拷贝
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Plays = append([]Play(nil), m.Plays...)
	if m.Results != nil {
		c.Results = append([]MatchResult(nil), m.Results...)
	}
	return &c
}

// ResultFor 从结果推导某个玩家的胜负
func ResultFor(result MatchResult, userID string) GameResult {
	switch {
	case result.IsDraw:
		return ResultDraw
	case result.WinnerID == userID:
		return ResultWin
	default:
		return ResultLose
	}
}

// ScoreDelta 胜负对应的计分增量
func (g GameResult) ScoreDelta() int {
	switch g {
	case ResultWin:
		return 1
	case ResultLose:
		return -1
	default:
		return 0
	}
}
