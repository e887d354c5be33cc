package protocol

import (
	"fmt"

	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// RoomJoined room-joined
type RoomJoined struct {
	Room models.Room `json:"room"`
}

// RoomUpdated room-updated
type RoomUpdated struct {
	Room models.Room `json:"room"`
}

// PlayerJoined player-joined
type PlayerJoined struct {
	User models.User `json:"user"`
}

// PlayerLeft player-left
type PlayerLeft struct {
	UserID string `json:"userId,omitempty"`
}

// GameStarted game-started
type GameStarted struct {
	Match models.Match `json:"match"`
}

// PlayMade play-made，对手收到的 choice 为空
type PlayMade struct {
	Play models.Play `json:"play"`
}

// MatchFinished match-finished，唯一公开双方出招的事件
type MatchFinished struct {
	Match  models.Match       `json:"match"`
	Result models.MatchResult `json:"result"`
	Plays  []models.Play      `json:"plays"`
}

// GameError game-error
type GameError struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

// InboundHandler 每种下行事件一个方法，新增事件时所有实现都必须补上
type InboundHandler interface {
	OnRoomJoined(RoomJoined)
	OnRoomUpdated(RoomUpdated)
	OnPlayerJoined(PlayerJoined)
	OnPlayerLeft(PlayerLeft)
	OnGameStarted(GameStarted)
	OnPlayMade(PlayMade)
	OnMatchFinished(MatchFinished)
	OnGameError(GameError)
}

// InboundEvent 下行事件
type InboundEvent interface {
	EventType() EventType
	Dispatch(h InboundHandler)
}

func (RoomJoined) EventType() EventType    { return EventRoomJoined }
func (RoomUpdated) EventType() EventType   { return EventRoomUpdated }
func (PlayerJoined) EventType() EventType  { return EventPlayerJoined }
func (PlayerLeft) EventType() EventType    { return EventPlayerLeft }
func (GameStarted) EventType() EventType   { return EventGameStarted }
func (PlayMade) EventType() EventType      { return EventPlayMade }
func (MatchFinished) EventType() EventType { return EventMatchFinished }
func (GameError) EventType() EventType     { return EventGameError }

func (e RoomJoined) Dispatch(h InboundHandler)    { h.OnRoomJoined(e) }
func (e RoomUpdated) Dispatch(h InboundHandler)   { h.OnRoomUpdated(e) }
func (e PlayerJoined) Dispatch(h InboundHandler)  { h.OnPlayerJoined(e) }
func (e PlayerLeft) Dispatch(h InboundHandler)    { h.OnPlayerLeft(e) }
func (e GameStarted) Dispatch(h InboundHandler)   { h.OnGameStarted(e) }
func (e PlayMade) Dispatch(h InboundHandler)      { h.OnPlayMade(e) }
func (e MatchFinished) Dispatch(h InboundHandler) { h.OnMatchFinished(e) }
func (e GameError) Dispatch(h InboundHandler)     { h.OnGameError(e) }

// inboundDecoders 下行事件分发表
var inboundDecoders = map[EventType]func(Envelope) (InboundEvent, error){
	EventRoomJoined:    decodeAs[RoomJoined],
	EventRoomUpdated:   decodeAs[RoomUpdated],
	EventPlayerJoined:  decodeAs[PlayerJoined],
	EventPlayerLeft:    decodeOptional[PlayerLeft],
	EventGameStarted:   decodeAs[GameStarted],
	EventPlayMade:      decodeAs[PlayMade],
	EventMatchFinished: decodeAs[MatchFinished],
	EventGameError:     decodeAs[GameError],
}

// ErrUnknownEvent 未登记的事件
type ErrUnknownEvent struct {
	Type EventType
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("未知事件类型: %s", e.Type)
}

// InboundTypes 已登记的下行事件
func InboundTypes() []EventType {
	types := make([]EventType, 0, len(inboundDecoders))
	for t := range inboundDecoders {
		types = append(types, t)
	}
	return types
}

// DecodeInbound 把信封解析为具体的下行事件
func DecodeInbound(env Envelope) (InboundEvent, error) {
	decode, ok := inboundDecoders[env.Type]
	if !ok {
		return nil, &ErrUnknownEvent{Type: env.Type}
	}
	return decode(env)
}

func decodeAs[T InboundEvent](env Envelope) (InboundEvent, error) {
	var v T
	if err := DecodePayload(env, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeOptional 允许空载荷
func decodeOptional[T InboundEvent](env Envelope) (InboundEvent, error) {
	var v T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return v, nil
	}
	if err := DecodePayload(env, &v); err != nil {
		return nil, err
	}
	return v, nil
}
