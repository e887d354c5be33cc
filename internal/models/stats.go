// stats.go

package models

import (
	"time"
)

// GameStats 玩家战绩统计
type GameStats struct {
	TotalMatches   int     `json:"totalMatches"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	Draws          int     `json:"draws"`
	WinRate        float64 `json:"winRate"`
	FavoriteChoice Choice  `json:"favoriteChoice,omitempty"`
}

// GlobalStats 全局统计
type GlobalStats struct {
	TotalMatches      int    `json:"totalMatches"`
	TotalPlayers      int    `json:"totalPlayers"`
	MostPopularChoice Choice `json:"mostPopularChoice,omitempty"`
}

// UserStatsResponse 玩家战绩响应
type UserStatsResponse struct {
	UserStats   GameStats   `json:"userStats"`
	GlobalStats GlobalStats `json:"globalStats"`
}

// DashboardFilters 仪表盘筛选条件
type DashboardFilters struct {
	UserID    string     `json:"userId,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	GameMode  GameMode   `json:"gameMode,omitempty"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}

// Normalize 修正分页参数
func (f *DashboardFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
}

// Offset 分页偏移
func (f DashboardFilters) Offset() int {
	return (f.Page - 1) * f.Limit
}

// MatchPage 分页的对局列表
type MatchPage struct {
	Matches []Match `json:"matches"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
	Page    int     `json:"page"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name,omitempty"`
	Wins   float64 `json:"wins"`
	Rank   int     `json:"rank"`
}
