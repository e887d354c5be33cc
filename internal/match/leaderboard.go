package match

import (
	"context"
	"fmt"
	"strconv"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/go-redis/redis/v8"
)

// 排行榜Redis键名
const (
	LeaderboardWinsKey = "rps:leaderboard:wins"
	ChoiceCountersKey  = "rps:choices"
	PlayerNamesKey     = "rps:player:names"
)

// Leaderboard Redis 胜场排行与出招计数
type Leaderboard struct {
	client *redis.Client
}

// NewLeaderboard 创建排行榜
func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// RecordMatch 累加胜场和出招次数
func (l *Leaderboard) RecordMatch(ctx context.Context, match models.Match, players []models.User) error {
	pipe := l.client.TxPipeline()

	if res, ok := match.LatestResult(); ok && !res.IsDraw && res.WinnerID != "" {
		pipe.ZIncrBy(ctx, LeaderboardWinsKey, 1, res.WinnerID)
	}
	for _, p := range match.Plays {
		pipe.HIncrBy(ctx, ChoiceCountersKey, string(p.Choice), 1)
	}
	for _, u := range players {
		if u.Name != "" {
			pipe.HSet(ctx, PlayerNamesKey, u.ID, u.Name)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("更新排行榜失败: %w", err)
	}
	return nil
}

// Top 胜场最多的玩家
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	members, err := l.client.ZRevRangeWithScores(ctx, LeaderboardWinsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(members))
	ids := make([]string, 0, len(members))
	for i, m := range members {
		id, _ := m.Member.(string)
		ids = append(ids, id)
		entries = append(entries, models.LeaderboardEntry{UserID: id, Wins: m.Score, Rank: i + 1})
	}

	if len(ids) > 0 {
		names, err := l.client.HMGet(ctx, PlayerNamesKey, ids...).Result()
		if err == nil {
			for i, n := range names {
				if s, ok := n.(string); ok {
					entries[i].Name = s
				}
			}
		}
	}
	return entries, nil
}

// Rank 玩家排名，不在榜上返回 -1
func (l *Leaderboard) Rank(ctx context.Context, userID string) (int, error) {
	rank, err := l.client.ZRevRank(ctx, LeaderboardWinsKey, userID).Result()
	if err != nil {
		if err == redis.Nil {
			return -1, nil
		}
		return -1, err
	}
	return int(rank) + 1, nil
}

// PopularChoice 出现次数最多的出招
func (l *Leaderboard) PopularChoice(ctx context.Context) (models.Choice, error) {
	counts, err := l.client.HGetAll(ctx, ChoiceCountersKey).Result()
	if err != nil {
		return "", err
	}
	return mostFrequent(counts), nil
}

// Rebuild 用数据库中的胜场重建排行
func (l *Leaderboard) Rebuild(ctx context.Context, wins map[string]int) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, LeaderboardWinsKey)
	for id, n := range wins {
		pipe.ZAdd(ctx, LeaderboardWinsKey, &redis.Z{Score: float64(n), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("重建排行榜失败: %w", err)
	}
	return nil
}

// mostFrequent 次数相同时按固定顺序取第一个
func mostFrequent(counts map[string]string) models.Choice {
	var best models.Choice
	bestN := int64(0)
	for _, c := range models.AllChoices {
		n, err := strconv.ParseInt(counts[string(c)], 10, 64)
		if err != nil {
			continue
		}
		if n > bestN {
			best, bestN = c, n
		}
	}
	return best
}
