package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/go-redis/redis/v8"
)

const (
	// RecordName 持久化记录名
	RecordName = "rps-game-state"
	// RecordVersion 持久化记录版本
	RecordVersion = 0
)

// PersistedState 持久化的字段子集
type PersistedState struct {
	CurrentUser    *models.User       `json:"currentUser"`
	CurrentRoom    *models.Room       `json:"currentRoom"`
	CurrentMatch   *models.Match      `json:"currentMatch"`
	MyChoice       *models.Choice     `json:"myChoice"`
	OpponentChoice *models.Choice     `json:"opponentChoice"`
	GameResult     *models.GameResult `json:"gameResult"`
	Score          int                `json:"score"`
	GameMode       models.GameMode    `json:"gameMode"`
	IsReady        bool               `json:"isReady"`
	OpponentReady  bool               `json:"opponentReady"`
}

// Record 带版本的持久化记录
type Record struct {
	State   PersistedState `json:"state"`
	Version int            `json:"version"`
}

// NewRecord 从状态生成记录
func NewRecord(st State) Record {
	return Record{
		State: PersistedState{
			CurrentUser:    st.CurrentUser,
			CurrentRoom:    st.CurrentRoom,
			CurrentMatch:   st.CurrentMatch,
			MyChoice:       nullable(st.MyChoice),
			OpponentChoice: nullable(st.OpponentChoice),
			GameResult:     nullable(st.GameResult),
			Score:          st.Score,
			GameMode:       st.GameMode,
			IsReady:        st.IsReady,
			OpponentReady:  st.OpponentReady,
		},
		Version: RecordVersion,
	}
}

func (p PersistedState) applyTo(st *State) {
	st.CurrentUser = p.CurrentUser
	st.CurrentRoom = p.CurrentRoom
	st.setMatch(p.CurrentMatch)
	st.MyChoice = deref(p.MyChoice)
	st.OpponentChoice = deref(p.OpponentChoice)
	st.GameResult = deref(p.GameResult)
	st.Score = p.Score
	if p.GameMode.Valid() {
		st.GameMode = p.GameMode
	}
	st.IsReady = p.IsReady
	st.OpponentReady = p.OpponentReady
}

func nullable[T ~string](v T) *T {
	if v == "" {
		return nil
	}
	return &v
}

func deref[T ~string](v *T) T {
	if v == nil {
		return ""
	}
	return *v
}

// Persister 持久化后端，记录不存在时 Load 返回 nil, nil
type Persister interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
}

// FilePersister 保存为本地 JSON 文件
type FilePersister struct {
	path string
}

// NewFilePersister 创建文件持久化
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load 读取记录
func (p *FilePersister) Load(ctx context.Context) (*Record, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	}
	return decodeRecord(data)
}

// Save 先写临时文件再重命名
func (p *FilePersister) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("替换状态文件失败: %w", err)
	}
	return nil
}

// RedisPersister 保存在 Redis 字符串键中
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister 创建 Redis 持久化，scope 用于区分同一 Redis 上的多个客户端
func NewRedisPersister(client *redis.Client, scope string) *RedisPersister {
	key := RecordName
	if scope != "" {
		key += ":" + scope
	}
	return &RedisPersister{client: client, key: key}
}

// Load 读取记录
func (p *RedisPersister) Load(ctx context.Context) (*Record, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取Redis状态失败: %w", err)
	}
	return decodeRecord(data)
}

// Save 写入记录
func (p *RedisPersister) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("写入Redis状态失败: %w", err)
	}
	return nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("解析状态记录失败: %w", err)
	}
	return &rec, nil
}
