package session

import (
	"fmt"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
)

var _ protocol.InboundHandler = (*Session)(nil)

var resultMessages = map[models.GameResult]string{
	models.ResultWin:  "你赢了！",
	models.ResultLose: "你输了！",
	models.ResultDraw: "平局！",
}

// OnRoomJoined 入座后的快照是权威状态
func (s *Session) OnRoomJoined(e protocol.RoomJoined) {
	s.store.ResyncRoom(e.Room)
}

func (s *Session) OnRoomUpdated(e protocol.RoomUpdated) {
	s.store.ApplyRoomSnapshot(e.Room)
}

func (s *Session) OnPlayerJoined(e protocol.PlayerJoined) {
	s.notifier.Notify(Notification{
		Kind:    KindSuccess,
		Message: fmt.Sprintf("%s 加入了房间", e.User.DisplayName()),
	})
}

// OnPlayerLeft 对手离开，双方的准备标记都失效
func (s *Session) OnPlayerLeft(e protocol.PlayerLeft) {
	s.notifier.Notify(Notification{Kind: KindError, Message: "对手离开了房间"})
	s.store.SetReady(false)
	s.store.SetOpponentReady(false)
}

func (s *Session) OnGameStarted(e protocol.GameStarted) {
	s.store.BeginMatch(e.Match)
	s.notifier.Notify(Notification{Kind: KindSuccess, Message: "对局开始，请出招！"})
}

// OnPlayMade 对手的出招只标记为已出，内容等 match-finished 公布
func (s *Session) OnPlayMade(e protocol.PlayMade) {
	st := s.store.Snapshot()
	if st.CurrentUser == nil {
		return
	}
	if e.Play.PlayerID == st.CurrentUser.ID {
		s.store.ConfirmMyPlay(e.Play.Choice)
		return
	}
	s.store.SetOpponentCommitted(true)
}

func (s *Session) OnMatchFinished(e protocol.MatchFinished) {
	result, applied, err := s.store.ApplyMatchFinished(e.Match, e.Result, e.Plays)
	if err != nil || !applied {
		return
	}
	s.startAnimation()
	kind := KindSuccess
	if result == models.ResultLose {
		kind = KindError
	}
	s.notifier.Notify(Notification{Kind: kind, Message: resultMessages[result]})
}

// OnGameError 只提示，不改变状态
func (s *Session) OnGameError(e protocol.GameError) {
	s.notifier.Notify(Notification{
		Kind:    KindError,
		Message: protocol.Message(e.Code, e.Message),
		Code:    string(e.Code),
	})
}
