package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const inviteCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxInviteAttempts 碰撞重试次数
const maxInviteAttempts = 32

// GenerateInviteCode 生成邀请码
func GenerateInviteCode(length int) (string, error) {
	code := make([]byte, length)
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(inviteCharset))))
		if err != nil {
			return "", err
		}
		code[i] = inviteCharset[num.Int64()]
	}
	return string(code), nil
}

// uniqueInviteCode 生成未被占用的邀请码
func uniqueInviteCode(length int, taken func(string) bool) (string, error) {
	for i := 0; i < maxInviteAttempts; i++ {
		code, err := GenerateInviteCode(length)
		if err != nil {
			return "", err
		}
		if !taken(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("邀请码连续 %d 次碰撞", maxInviteAttempts)
}

// NormalizeInviteCode 去空白并转大写
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
