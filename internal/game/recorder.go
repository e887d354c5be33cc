package game

import (
	"context"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// FinishedMatch 一局结束后交给持久化层的数据
type FinishedMatch struct {
	Match      models.Match
	Players    []models.User
	FinishedAt time.Time
}

// MatchRecorder 保存已结束的对局
type MatchRecorder interface {
	RecordMatch(ctx context.Context, fm FinishedMatch) error
}

// UserDirectory 按 id 查询用户资料
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// TokenVerifier 校验连接携带的游客令牌
type TokenVerifier interface {
	ValidateFor(token, userID string) error
}
