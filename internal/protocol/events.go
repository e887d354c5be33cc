// Package protocol 定义客户端与服务端之间的实时通道协议。
//
// 每一帧是一个 JSON 信封 {"type": <事件名>, "payload": {...}}，
// 事件名和载荷字段与前端保持一致，不可更改。
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// EventType 事件名
type EventType string

// 客户端 -> 服务端
const (
	EventJoinRoom    EventType = "join-room"
	EventLeaveRoom   EventType = "leave-room"
	EventPlayerReady EventType = "player-ready"
	EventMakePlay    EventType = "make-play"
	EventRematch     EventType = "rematch"
)

// 服务端 -> 客户端
const (
	EventRoomJoined    EventType = "room-joined"
	EventRoomUpdated   EventType = "room-updated"
	EventPlayerJoined  EventType = "player-joined"
	EventPlayerLeft    EventType = "player-left"
	EventGameStarted   EventType = "game-started"
	EventPlayMade      EventType = "play-made"
	EventMatchFinished EventType = "match-finished"
	EventGameError     EventType = "game-error"
)

// Envelope 消息结构
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RoomIntent join-room / leave-room / player-ready / rematch 的载荷
type RoomIntent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// MakePlayIntent make-play 的载荷
type MakePlayIntent struct {
	RoomID string        `json:"roomId"`
	UserID string        `json:"userId"`
	Choice models.Choice `json:"choice"`
}

// Validate 基本字段检查
func (i RoomIntent) Validate() error {
	if i.RoomID == "" || i.UserID == "" {
		return fmt.Errorf("roomId 和 userId 不能为空")
	}
	return nil
}

// Validate 基本字段检查
func (i MakePlayIntent) Validate() error {
	if i.RoomID == "" || i.UserID == "" || i.Choice == "" {
		return fmt.Errorf("roomId、userId 和 choice 不能为空")
	}
	return nil
}

// New 构造信封
func New(t EventType, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("序列化 %s 载荷失败: %w", t, err)
	}
	return Envelope{Type: t, Payload: data}, nil
}

// MustNew 构造信封，载荷均为本包内的结构体，序列化不会失败
func MustNew(t EventType, payload interface{}) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Encode 序列化为一帧
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode 解析一帧
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("解析消息失败: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("消息缺少 type 字段")
	}
	return env, nil
}

// DecodePayload 解析载荷
func DecodePayload(env Envelope, v interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s 缺少载荷", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("解析 %s 载荷失败: %w", env.Type, err)
	}
	return nil
}
