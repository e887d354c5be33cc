// repository.go

package match

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/GabrielFeijo/jokenpo/internal/game"
	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// Repository 对局的 PostgreSQL 存储
type Repository struct {
	db *sql.DB
}

// NewRepository 创建对局存储
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveMatch 在一个事务中写入对局、出招和结果，重复写入会被忽略
func (r *Repository) SaveMatch(ctx context.Context, fm game.FinishedMatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, room_id, game_mode, status, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, fm.Match.ID, fm.Match.RoomID, fm.Match.GameMode, fm.Match.Status, fm.Match.CreatedAt, fm.FinishedAt)
	if err != nil {
		return fmt.Errorf("写入对局失败: %w", err)
	}

	for _, p := range fm.Match.Plays {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plays (id, match_id, player_id, choice, played_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (match_id, player_id) DO NOTHING
		`, p.ID, p.MatchID, p.PlayerID, p.Choice, p.Timestamp)
		if err != nil {
			return fmt.Errorf("写入出招失败: %w", err)
		}
	}

	for _, res := range fm.Match.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO match_results (id, match_id, winner_id, loser_id, is_draw, player1_score, player2_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (match_id) DO NOTHING
		`, res.ID, res.MatchID, nullString(res.WinnerID), nullString(res.LoserPlayerID),
			res.IsDraw, res.Player1Score, res.Player2Score, res.CreatedAt)
		if err != nil {
			return fmt.Errorf("写入对局结果失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// UserStats 玩家战绩
func (r *Repository) UserStats(ctx context.Context, userID string) (models.GameStats, error) {
	var stats models.GameStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN mr.winner_id = $1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN mr.loser_id = $1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN mr.is_draw THEN 1 ELSE 0 END), 0)
		FROM plays p
		JOIN match_results mr ON mr.match_id = p.match_id
		WHERE p.player_id = $1
	`, userID).Scan(&stats.TotalMatches, &stats.Wins, &stats.Losses, &stats.Draws)
	if err != nil {
		return stats, fmt.Errorf("查询玩家战绩失败: %w", err)
	}
	stats.WinRate = winRate(stats.Wins, stats.TotalMatches)

	var favorite sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT choice FROM plays
		WHERE player_id = $1
		GROUP BY choice
		ORDER BY COUNT(*) DESC, choice
		LIMIT 1
	`, userID).Scan(&favorite)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("查询常用出招失败: %w", err)
	}
	stats.FavoriteChoice = models.Choice(favorite.String)

	return stats, nil
}

// GlobalStats 全局统计
func (r *Repository) GlobalStats(ctx context.Context) (models.GlobalStats, error) {
	var stats models.GlobalStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM match_results),
			(SELECT COUNT(DISTINCT player_id) FROM plays)
	`).Scan(&stats.TotalMatches, &stats.TotalPlayers)
	if err != nil {
		return stats, fmt.Errorf("查询全局统计失败: %w", err)
	}

	var popular sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT choice FROM plays
		GROUP BY choice
		ORDER BY COUNT(*) DESC, choice
		LIMIT 1
	`).Scan(&popular)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("查询热门出招失败: %w", err)
	}
	stats.MostPopularChoice = models.Choice(popular.String)

	return stats, nil
}

// WinCounts 每个玩家的胜场，用于重建排行榜
func (r *Repository) WinCounts(ctx context.Context, limit int) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT winner_id, COUNT(*) FROM match_results
		WHERE winner_id IS NOT NULL
		GROUP BY winner_id
		ORDER BY COUNT(*) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询胜场失败: %w", err)
	}
	defer rows.Close()

	wins := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("扫描胜场失败: %w", err)
		}
		wins[id] = n
	}
	return wins, rows.Err()
}

// Dashboard 按条件分页查询已结束的对局
func (r *Repository) Dashboard(ctx context.Context, filters models.DashboardFilters) (models.MatchPage, error) {
	filters.Normalize()
	where, args := dashboardWhere(filters)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM matches m "+where, args...).Scan(&total); err != nil {
		return models.MatchPage{}, fmt.Errorf("查询对局总数失败: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.room_id, m.game_mode, m.status, m.created_at
		FROM matches m
		%s
		ORDER BY m.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	matches, err := r.queryMatches(ctx, query, append(args, filters.Limit, filters.Offset())...)
	if err != nil {
		return models.MatchPage{}, err
	}
	return newPage(matches, total, filters), nil
}

// History 玩家的对局历史
func (r *Repository) History(ctx context.Context, userID string, page, limit int) (models.MatchPage, error) {
	return r.Dashboard(ctx, models.DashboardFilters{UserID: userID, Page: page, Limit: limit})
}

// dashboardWhere 构造筛选条件
func dashboardWhere(f models.DashboardFilters) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	conds = append(conds, "m.status = 'FINISHED'")
	if f.UserID != "" {
		add("EXISTS (SELECT 1 FROM plays p WHERE p.match_id = m.id AND p.player_id = $%d)", f.UserID)
	}
	if f.GameMode != "" {
		add("m.game_mode = $%d", string(f.GameMode))
	}
	if f.StartDate != nil {
		add("m.created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("m.created_at <= $%d", *f.EndDate)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repository) queryMatches(ctx context.Context, query string, args ...interface{}) ([]models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询对局失败: %w", err)
	}
	defer rows.Close()

	matches := []models.Match{}
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.ID, &m.RoomID, &m.GameMode, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描对局失败: %w", err)
		}
		m.Plays = []models.Play{}
		index[m.ID] = len(matches)
		ids = append(ids, m.ID)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历对局失败: %w", err)
	}
	if len(ids) == 0 {
		return matches, nil
	}

	if err := r.attachPlays(ctx, ids, matches, index); err != nil {
		return nil, err
	}
	if err := r.attachResults(ctx, ids, matches, index); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *Repository) attachPlays(ctx context.Context, ids []string, matches []models.Match, index map[string]int) error {
	in, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, player_id, choice, played_at
		FROM plays WHERE match_id IN (`+in+`)
		ORDER BY played_at
	`, args...)
	if err != nil {
		return fmt.Errorf("查询出招失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Play
		if err := rows.Scan(&p.ID, &p.MatchID, &p.PlayerID, &p.Choice, &p.Timestamp); err != nil {
			return fmt.Errorf("扫描出招失败: %w", err)
		}
		i := index[p.MatchID]
		matches[i].Plays = append(matches[i].Plays, p)
	}
	return rows.Err()
}

func (r *Repository) attachResults(ctx context.Context, ids []string, matches []models.Match, index map[string]int) error {
	in, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, winner_id, loser_id, is_draw, player1_score, player2_score, created_at
		FROM match_results WHERE match_id IN (`+in+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("查询对局结果失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res models.MatchResult
		var winner, loser sql.NullString
		if err := rows.Scan(&res.ID, &res.MatchID, &winner, &loser, &res.IsDraw,
			&res.Player1Score, &res.Player2Score, &res.CreatedAt); err != nil {
			return fmt.Errorf("扫描对局结果失败: %w", err)
		}
		res.WinnerID, res.LoserPlayerID = winner.String, loser.String
		i := index[res.MatchID]
		matches[i].Results = append(matches[i].Results, res)
	}
	return rows.Err()
}

func inClause(ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func newPage(matches []models.Match, total int, f models.DashboardFilters) models.MatchPage {
	return models.MatchPage{
		Matches: matches,
		Total:   total,
		HasMore: f.Offset()+len(matches) < total,
		Page:    f.Page,
	}
}

func winRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) * 100.0 / float64(total)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
