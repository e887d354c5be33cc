package protocol

// ErrorCode game-error 事件中的稳定错误码
type ErrorCode string

const (
	CodeRoomFull        ErrorCode = "ROOM_FULL"
	CodeRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"
	CodeAlreadyInRoom   ErrorCode = "ALREADY_IN_ROOM"
	CodeGameInProgress  ErrorCode = "GAME_IN_PROGRESS"
	CodeNotInRoom       ErrorCode = "NOT_IN_ROOM"
	CodeMatchNotActive  ErrorCode = "MATCH_NOT_ACTIVE"
	CodeInvalidChoice   ErrorCode = "INVALID_CHOICE"
	CodeInvalidPayload  ErrorCode = "INVALID_PAYLOAD"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeInvalidGameMode ErrorCode = "INVALID_GAME_MODE"
)

// GenericMessage 未知错误码的兜底提示
const GenericMessage = "服务器错误"

var messages = map[ErrorCode]string{
	CodeRoomFull:        "这个房间已满，最多两名玩家",
	CodeRoomNotFound:    "房间不存在",
	CodeAlreadyInRoom:   "你已经在这个房间里了",
	CodeGameInProgress:  "对局正在进行中",
	CodeNotInRoom:       "你不在这个房间里",
	CodeMatchNotActive:  "当前没有进行中的对局",
	CodeInvalidChoice:   "当前模式不允许这个出招",
	CodeInvalidPayload:  "请求格式错误",
	CodeUnauthorized:    "身份校验失败",
	CodeInvalidGameMode: "未知的游戏模式",
}

// Codes 所有已知错误码
func Codes() []ErrorCode {
	return []ErrorCode{
		CodeRoomFull, CodeRoomNotFound, CodeAlreadyInRoom, CodeGameInProgress,
		CodeNotInRoom, CodeMatchNotActive, CodeInvalidChoice, CodeInvalidPayload,
		CodeUnauthorized, CodeInvalidGameMode,
	}
}

// Known 是否为已知错误码
func (c ErrorCode) Known() bool {
	_, ok := messages[c]
	return ok
}

// Message 返回错误码对应的提示，未知错误码优先使用服务端消息
func Message(code ErrorCode, fallback string) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	if fallback != "" {
		return fallback
	}
	return GenericMessage
}
