// service.go

package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/game"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Store 对局持久化
type Store interface {
	SaveMatch(ctx context.Context, fm game.FinishedMatch) error
	UserStats(ctx context.Context, userID string) (models.GameStats, error)
	GlobalStats(ctx context.Context) (models.GlobalStats, error)
	WinCounts(ctx context.Context, limit int) (map[string]int, error)
	Dashboard(ctx context.Context, filters models.DashboardFilters) (models.MatchPage, error)
	History(ctx context.Context, userID string, page, limit int) (models.MatchPage, error)
}

// Ranking 实时排行
type Ranking interface {
	RecordMatch(ctx context.Context, match models.Match, players []models.User) error
	Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	PopularChoice(ctx context.Context) (models.Choice, error)
	Rebuild(ctx context.Context, wins map[string]int) error
}

// rebuildLimit 重建排行榜时读取的玩家数
const rebuildLimit = 1000

// Service 对局记录与战绩服务
type Service struct {
	store   Store
	ranking Ranking
	refresh time.Duration

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewService 创建服务，ranking 为空时只使用数据库
func NewService(store Store, ranking Ranking, refresh time.Duration) *Service {
	return &Service{
		store:   store,
		ranking: ranking,
		refresh: refresh,
	}
}

// RecordMatch 保存已结束的对局，排行更新失败只记录日志
func (s *Service) RecordMatch(ctx context.Context, fm game.FinishedMatch) error {
	if err := s.store.SaveMatch(ctx, fm); err != nil {
		return err
	}

	if s.ranking != nil {
		if err := s.ranking.RecordMatch(ctx, fm.Match, fm.Players); err != nil {
			zap.S().Warnf("更新排行榜失败: %v", err)
		}
	}

	zap.S().Debugf("对局 %s 已保存", fm.Match.ID)
	return nil
}

// UserStats 玩家战绩和全局统计
func (s *Service) UserStats(ctx context.Context, userID string) (models.UserStatsResponse, error) {
	userStats, err := s.store.UserStats(ctx, userID)
	if err != nil {
		return models.UserStatsResponse{}, err
	}
	global, err := s.GlobalStats(ctx)
	if err != nil {
		return models.UserStatsResponse{}, err
	}
	return models.UserStatsResponse{UserStats: userStats, GlobalStats: global}, nil
}

// GlobalStats 全局统计，热门出招优先取 Redis 计数
func (s *Service) GlobalStats(ctx context.Context) (models.GlobalStats, error) {
	stats, err := s.store.GlobalStats(ctx)
	if err != nil {
		return stats, err
	}

	if s.ranking != nil {
		choice, err := s.ranking.PopularChoice(ctx)
		if err != nil {
			zap.S().Warnf("读取出招计数失败，使用数据库结果: %v", err)
		} else if choice != "" {
			stats.MostPopularChoice = choice
		}
	}
	return stats, nil
}

// Dashboard 分页查询对局
func (s *Service) Dashboard(ctx context.Context, filters models.DashboardFilters) (models.MatchPage, error) {
	filters.Normalize()
	return s.store.Dashboard(ctx, filters)
}

// History 玩家对局历史
func (s *Service) History(ctx context.Context, userID string, page, limit int) (models.MatchPage, error) {
	f := models.DashboardFilters{UserID: userID, Page: page, Limit: limit}
	f.Normalize()
	return s.store.History(ctx, userID, f.Page, f.Limit)
}

// Leaderboard 胜场排行
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if s.ranking == nil {
		return nil, fmt.Errorf("排行榜未启用")
	}
	return s.ranking.Top(ctx, limit)
}

// RefreshLeaderboard 从数据库重建排行
func (s *Service) RefreshLeaderboard(ctx context.Context) error {
	if s.ranking == nil {
		return nil
	}
	wins, err := s.store.WinCounts(ctx, rebuildLimit)
	if err != nil {
		return err
	}
	return s.ranking.Rebuild(ctx, wins)
}

// Start 启动排行榜定时重建
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ranking == nil || s.refresh <= 0 || s.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("创建调度器失败: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.refresh),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.RefreshLeaderboard(ctx); err != nil {
				zap.S().Warnf("重建排行榜失败: %v", err)
			}
		}),
		gocron.WithName("leaderboard-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("注册排行榜任务失败: %w", err)
	}

	s.scheduler = scheduler
	s.scheduler.Start()
	zap.S().Infof("排行榜每 %v 重建一次", s.refresh)
	return nil
}

// Stop 停止定时任务
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Shutdown(); err != nil {
		zap.S().Warnf("调度器关闭错误: %v", err)
	}
	s.scheduler = nil
}
