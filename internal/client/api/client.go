// Package api 请求/响应接口的 HTTP 客户端
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// Error 服务端返回的错误
type Error struct {
	Status  int
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("请求失败 (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("请求失败 (%d): %s", e.Status, e.Message)
}

// RoomResponse 创建或加入房间的响应
type RoomResponse struct {
	Room      models.Room `json:"room"`
	SocketURL string      `json:"socketUrl"`
}

// Client 接口客户端
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient baseURL 不含 /api
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken 之后的请求都带上令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CreateGuestUser 创建游客，响应中的令牌会被记住
func (c *Client) CreateGuestUser(ctx context.Context, name string) (models.User, error) {
	var user models.User
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	if err := c.do(ctx, http.MethodPost, "/users/guest", nil, body, &user); err != nil {
		return models.User{}, err
	}
	if user.Token != "" {
		c.SetToken(user.Token)
	}
	return user, nil
}

// UpdateUser 更新用户名称
func (c *Client) UpdateUser(ctx context.Context, id string, req models.UpdateUserRequest) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), nil, req, &user)
	return user, err
}

// CreateRoom 创建房间
func (c *Client) CreateRoom(ctx context.Context, mode models.GameMode, userID string) (RoomResponse, error) {
	var resp RoomResponse
	err := c.do(ctx, http.MethodPost, "/rooms", nil, map[string]string{
		"gameMode": string(mode),
		"userId":   userID,
	}, &resp)
	return resp, err
}

// JoinRoom 通过邀请码加入房间
func (c *Client) JoinRoom(ctx context.Context, inviteCode, userID string) (RoomResponse, error) {
	var resp RoomResponse
	err := c.do(ctx, http.MethodPost, "/rooms/join", nil, map[string]string{
		"roomId": NormalizeInviteCode(inviteCode),
		"userId": userID,
	}, &resp)
	return resp, err
}

// GetRoomByID 按ID查询房间
func (c *Client) GetRoomByID(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, nil, &room)
	return room, err
}

// GetRoomByInviteCode 按邀请码查询房间
func (c *Client) GetRoomByInviteCode(ctx context.Context, code string) (models.Room, error) {
	var room models.Room
	err := c.do(ctx, http.MethodGet, "/rooms/invite/"+url.PathEscape(NormalizeInviteCode(code)), nil, nil, &room)
	return room, err
}

// GetUserStats 玩家战绩
func (c *Client) GetUserStats(ctx context.Context, userID string) (models.UserStatsResponse, error) {
	var stats models.UserStatsResponse
	err := c.do(ctx, http.MethodGet, "/stats/user/"+url.PathEscape(userID), nil, nil, &stats)
	return stats, err
}

// GetGlobalStats 全局统计
func (c *Client) GetGlobalStats(ctx context.Context) (models.GlobalStats, error) {
	var stats models.GlobalStats
	err := c.do(ctx, http.MethodGet, "/stats/global", nil, nil, &stats)
	return stats, err
}

// GetDashboardData 仪表盘
func (c *Client) GetDashboardData(ctx context.Context, f models.DashboardFilters) (models.MatchPage, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("userId", f.UserID)
	}
	if f.GameMode != "" {
		q.Set("gameMode", string(f.GameMode))
	}
	if f.StartDate != nil {
		q.Set("startDate", f.StartDate.Format(time.RFC3339))
	}
	if f.EndDate != nil {
		q.Set("endDate", f.EndDate.Format(time.RFC3339))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var page models.MatchPage
	err := c.do(ctx, http.MethodGet, "/stats/dashboard", q, nil, &page)
	return page, err
}

// GetMatchHistory 对局历史
func (c *Client) GetMatchHistory(ctx context.Context, userID string, page, limit int) (models.MatchPage, error) {
	q := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	var result models.MatchPage
	err := c.do(ctx, http.MethodGet, "/matches/history/"+url.PathEscape(userID), q, nil, &result)
	return result, err
}

// GetLeaderboard 胜场排行
func (c *Client) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := c.do(ctx, http.MethodGet, "/stats/leaderboard", url.Values{"limit": {strconv.Itoa(limit)}}, nil, &entries)
	return entries, err
}

// do 发送请求并解析 JSON 响应
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s 失败: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// NormalizeInviteCode 去掉空白并转为大写
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
