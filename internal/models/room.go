package models

import (
	"time"
)

// GameMode 游戏模式
type GameMode string

const (
	// ModeClassic 经典模式（石头剪刀布）
	ModeClassic GameMode = "CLASSIC"
	// ModeExtended 扩展模式（加入蜥蜴和史波克）
	ModeExtended GameMode = "EXTENDED"
)

// Valid 是否为已知模式
func (m GameMode) Valid() bool {
	return m == ModeClassic || m == ModeExtended
}

// RoomStatus 房间状态
type RoomStatus string

const (
	// RoomWaiting 等待玩家（0或1人）
	RoomWaiting RoomStatus = "WAITING"
	// RoomReady 两名玩家已就座
	RoomReady RoomStatus = "READY"
	// RoomPlaying 对局进行中
	RoomPlaying RoomStatus = "PLAYING"
	// RoomFinished 本局已出结果
	RoomFinished RoomStatus = "FINISHED"
)

// MaxPlayers 每个房间的座位数
const MaxPlayers = 2

// Room 游戏房间快照
type Room struct {
	ID             string     `json:"id"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	GameMode       GameMode   `json:"gameMode"`
	Status         RoomStatus `json:"status"`
	Players        []User     `json:"players"`
	CurrentMatch   *Match     `json:"currentMatch,omitempty"`
	InviteCode     string     `json:"inviteCode"`
	ReadyPlayerIDs []string   `json:"readyPlayerIds,omitempty"`
}

// HasPlayer 用户是否在房间内
func (r *Room) HasPlayer(userID string) bool {
	return r.SeatOf(userID) >= 0
}

// SeatOf 返回用户的座位下标，不在房间内返回 -1
func (r *Room) SeatOf(userID string) int {
	if r == nil {
		return -1
	}
	for i, p := range r.Players {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

// IsReady 用户是否已准备
func (r *Room) IsReady(userID string) bool {
	if r == nil {
		return false
	}
	for _, id := range r.ReadyPlayerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Opponent 返回对手，不存在时返回 nil
func (r *Room) Opponent(userID string) *User {
	if r == nil {
		return nil
	}
	for i := range r.Players {
		if r.Players[i].ID != userID {
			return &r.Players[i]
		}
	}
	return nil
}
