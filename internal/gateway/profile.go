package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("用户不存在")

// UserStore 用户资料存储
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateName(ctx context.Context, id, name string) (*models.User, error)
}

// UserRepository 用户的 PostgreSQL 存储，同时为房间提供玩家名称
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository 创建用户存储
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser 写入新用户
func (r *UserRepository) CreateUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, is_guest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, user.ID, nullString(user.Name), user.IsGuest, time.Now())
	if err != nil {
		return fmt.Errorf("创建用户失败: %w", err)
	}
	return nil
}

// GetUser 根据ID获取用户
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_guest FROM users WHERE id = $1
	`, id).Scan(&user.ID, &name, &user.IsGuest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	user.Name = name.String
	return &user, nil
}

// UpdateName 更新用户名称
func (r *UserRepository) UpdateName(ctx context.Context, id, name string) (*models.User, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = $1, updated_at = $2 WHERE id = $3
	`, nullString(name), time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("更新用户失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUserNotFound
	}
	return r.GetUser(ctx, id)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
