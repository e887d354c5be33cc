package match

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/game"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved     []game.FinishedMatch
	saveErr   error
	user      models.GameStats
	global    models.GlobalStats
	wins      map[string]int
	page      models.MatchPage
	lastQuery models.DashboardFilters
}

func (f *fakeStore) SaveMatch(_ context.Context, fm game.FinishedMatch) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, fm)
	return nil
}

func (f *fakeStore) UserStats(context.Context, string) (models.GameStats, error) {
	return f.user, nil
}

func (f *fakeStore) GlobalStats(context.Context) (models.GlobalStats, error) {
	return f.global, nil
}

func (f *fakeStore) WinCounts(context.Context, int) (map[string]int, error) {
	return f.wins, nil
}

func (f *fakeStore) Dashboard(_ context.Context, filters models.DashboardFilters) (models.MatchPage, error) {
	f.lastQuery = filters
	return f.page, nil
}

func (f *fakeStore) History(_ context.Context, userID string, page, limit int) (models.MatchPage, error) {
	f.lastQuery = models.DashboardFilters{UserID: userID, Page: page, Limit: limit}
	return f.page, nil
}

type fakeRanking struct {
	recorded []models.Match
	rebuilt  map[string]int
	popular  models.Choice
	err      error
}

func (f *fakeRanking) RecordMatch(_ context.Context, m models.Match, _ []models.User) error {
	f.recorded = append(f.recorded, m)
	return f.err
}

func (f *fakeRanking) Top(context.Context, int) ([]models.LeaderboardEntry, error) {
	return []models.LeaderboardEntry{{UserID: "u1", Wins: 3, Rank: 1}}, nil
}

func (f *fakeRanking) PopularChoice(context.Context) (models.Choice, error) {
	return f.popular, f.err
}

func (f *fakeRanking) Rebuild(_ context.Context, wins map[string]int) error {
	f.rebuilt = wins
	return nil
}

func finished() game.FinishedMatch {
	return game.FinishedMatch{
		Match: models.Match{
			ID:     "m1",
			Status: models.MatchFinished,
			Plays: []models.Play{
				{ID: "p1", MatchID: "m1", PlayerID: "u1", Choice: models.Rock},
				{ID: "p2", MatchID: "m1", PlayerID: "u2", Choice: models.Scissors},
			},
			Results: []models.MatchResult{{ID: "r1", MatchID: "m1", WinnerID: "u1", LoserPlayerID: "u2", Player1Score: 1}},
		},
		FinishedAt: time.Now(),
	}
}

func TestService_RecordMatch(t *testing.T) {
	store := &fakeStore{}
	ranking := &fakeRanking{err: errors.New("redis down")}
	s := NewService(store, ranking, 0)

	// 排行更新失败不影响保存结果
	require.NoError(t, s.RecordMatch(context.Background(), finished()))
	assert.Len(t, store.saved, 1)
	assert.Len(t, ranking.recorded, 1)

	store.saveErr = errors.New("db down")
	assert.Error(t, s.RecordMatch(context.Background(), finished()))
	assert.Len(t, ranking.recorded, 1)
}

func TestService_GlobalStatsPrefersRanking(t *testing.T) {
	store := &fakeStore{global: models.GlobalStats{TotalMatches: 4, TotalPlayers: 3, MostPopularChoice: models.Paper}}

	s := NewService(store, &fakeRanking{popular: models.Spock}, 0)
	stats, err := s.GlobalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Spock, stats.MostPopularChoice)

	s = NewService(store, &fakeRanking{err: errors.New("redis down")}, 0)
	stats, err = s.GlobalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Paper, stats.MostPopularChoice)

	s = NewService(store, nil, 0)
	resp, err := s.UserStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, resp.GlobalStats.TotalMatches)
}

func TestService_HistoryNormalizesPaging(t *testing.T) {
	store := &fakeStore{}
	s := NewService(store, nil, 0)

	_, err := s.History(context.Background(), "u1", 0, 500)
	require.NoError(t, err)
	assert.Equal(t, models.DashboardFilters{UserID: "u1", Page: 1, Limit: 10}, store.lastQuery)
}

func TestService_RefreshLeaderboard(t *testing.T) {
	store := &fakeStore{wins: map[string]int{"u1": 3, "u2": 1}}
	ranking := &fakeRanking{}
	s := NewService(store, ranking, time.Minute)

	require.NoError(t, s.RefreshLeaderboard(context.Background()))
	assert.Equal(t, store.wins, ranking.rebuilt)

	_, err := NewService(store, nil, 0).Leaderboard(context.Background(), 10)
	assert.Error(t, err)
}

func TestService_StartStop(t *testing.T) {
	ranking := &fakeRanking{}
	s := NewService(&fakeStore{wins: map[string]int{"u1": 1}}, ranking, time.Hour)
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestDashboardWhere(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := dashboardWhere(models.DashboardFilters{
		UserID:    "u1",
		GameMode:  models.ModeExtended,
		StartDate: &start,
	})

	assert.True(t, strings.HasPrefix(where, "WHERE m.status = 'FINISHED'"))
	assert.Contains(t, where, "p.player_id = $1")
	assert.Contains(t, where, "m.game_mode = $2")
	assert.Contains(t, where, "m.created_at >= $3")
	assert.NotContains(t, where, "$4")
	assert.Equal(t, []interface{}{"u1", "EXTENDED", start}, args)
}

func TestNewPageHasMore(t *testing.T) {
	f := models.DashboardFilters{Page: 1, Limit: 2}
	page := newPage(make([]models.Match, 2), 5, f)
	assert.True(t, page.HasMore)

	f.Page = 3
	page = newPage(make([]models.Match, 1), 5, f)
	assert.False(t, page.HasMore)
}

func TestMostFrequent(t *testing.T) {
	assert.Equal(t, models.Paper, mostFrequent(map[string]string{"ROCK": "2", "PAPER": "5", "SPOCK": "5"}))
	assert.Equal(t, models.Choice(""), mostFrequent(map[string]string{}))
}

func TestMatchHandler_History(t *testing.T) {
	store := &fakeStore{page: models.MatchPage{Matches: []models.Match{{ID: "m1"}}, Total: 1, Page: 2}}
	h := NewMatchHandler(NewService(store, nil, 0))
	mux := http.NewServeMux()
	h.RegisterHandlers(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/history/u1?page=2&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page models.MatchPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, models.DashboardFilters{UserID: "u1", Page: 2, Limit: 5}, store.lastQuery)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/matches/history/u1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/history/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
