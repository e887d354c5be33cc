package models

import (
	"time"
)

// User 玩家身份，由服务端签发
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGuest bool   `json:"isGuest"`
	// Token 仅出现在游客签发响应和客户端本地缓存中
	Token string `json:"token,omitempty"`
}

// Public 返回去掉令牌的副本，用于房间快照
func (u User) Public() User {
	u.Token = ""
	return u
}

// DisplayName 展示用名称
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return "玩家"
}

// UserRecord 数据库中的用户记录
type UserRecord struct {
	User
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateUserRequest 用户部分更新
type UpdateUserRequest struct {
	Name *string `json:"name,omitempty"`
}
