package game

import (
	"errors"
	"fmt"

	"github.com/GabrielFeijo/jokenpo/internal/protocol"
)

// RoomError 房间操作被拒绝，Code 会原样下发给客户端
type RoomError struct {
	Code    protocol.ErrorCode
	Message string
	Err     error
}

func (e *RoomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RoomError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较
func (e *RoomError) Is(target error) bool {
	t, ok := target.(*RoomError)
	return ok && t.Code == e.Code
}

var (
	ErrRoomFull        = &RoomError{Code: protocol.CodeRoomFull, Message: "房间已满"}
	ErrRoomNotFound    = &RoomError{Code: protocol.CodeRoomNotFound, Message: "房间不存在"}
	ErrAlreadyInRoom   = &RoomError{Code: protocol.CodeAlreadyInRoom, Message: "已在房间中"}
	ErrGameInProgress  = &RoomError{Code: protocol.CodeGameInProgress, Message: "对局进行中"}
	ErrNotInRoom       = &RoomError{Code: protocol.CodeNotInRoom, Message: "不在房间中"}
	ErrMatchNotActive  = &RoomError{Code: protocol.CodeMatchNotActive, Message: "没有进行中的对局"}
	ErrInvalidChoice   = &RoomError{Code: protocol.CodeInvalidChoice, Message: "出招不合法"}
	ErrInvalidPayload  = &RoomError{Code: protocol.CodeInvalidPayload, Message: "请求格式错误"}
	ErrUnauthorized    = &RoomError{Code: protocol.CodeUnauthorized, Message: "身份校验失败"}
	ErrInvalidGameMode = &RoomError{Code: protocol.CodeInvalidGameMode, Message: "未知的游戏模式"}
)

// wrapRoomError 带上原因的同码错误
func wrapRoomError(base *RoomError, err error) *RoomError {
	return &RoomError{Code: base.Code, Message: base.Message, Err: err}
}

// CodeOf 提取错误码
func CodeOf(err error) (protocol.ErrorCode, bool) {
	var re *RoomError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
