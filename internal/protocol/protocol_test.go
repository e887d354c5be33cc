package protocol

import (
	"encoding/json"
	"testing"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 记录收到的事件类型
type recorder struct {
	got []EventType
}

func (r *recorder) OnRoomJoined(RoomJoined)       { r.got = append(r.got, EventRoomJoined) }
func (r *recorder) OnRoomUpdated(RoomUpdated)     { r.got = append(r.got, EventRoomUpdated) }
func (r *recorder) OnPlayerJoined(PlayerJoined)   { r.got = append(r.got, EventPlayerJoined) }
func (r *recorder) OnPlayerLeft(PlayerLeft)       { r.got = append(r.got, EventPlayerLeft) }
func (r *recorder) OnGameStarted(GameStarted)     { r.got = append(r.got, EventGameStarted) }
func (r *recorder) OnPlayMade(PlayMade)           { r.got = append(r.got, EventPlayMade) }
func (r *recorder) OnMatchFinished(MatchFinished) { r.got = append(r.got, EventMatchFinished) }
func (r *recorder) OnGameError(GameError)         { r.got = append(r.got, EventGameError) }

func TestEnvelopeWireFormat(t *testing.T) {
	env := MustNew(EventMakePlay, MakePlayIntent{RoomID: "r1", UserID: "u1", Choice: models.Rock})
	data, err := Encode(env)
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"make-play","payload":{"roomId":"r1","userId":"u1","choice":"ROCK"}}`, string(data))
}

func TestDecodeInbound_DispatchesEveryEvent(t *testing.T) {
	frames := []string{
		`{"type":"room-joined","payload":{"room":{"id":"r1","status":"WAITING","players":[]}}}`,
		`{"type":"room-updated","payload":{"room":{"id":"r1","status":"READY","players":[]}}}`,
		`{"type":"player-joined","payload":{"user":{"id":"u2","isGuest":true}}}`,
		`{"type":"player-left","payload":{}}`,
		`{"type":"game-started","payload":{"match":{"id":"m1","status":"PLAYING","plays":[]}}}`,
		`{"type":"play-made","payload":{"play":{"id":"p1","playerId":"u2","choice":""}}}`,
		`{"type":"match-finished","payload":{"match":{"id":"m1","status":"FINISHED"},"result":{"isDraw":true},"plays":[]}}`,
		`{"type":"game-error","payload":{"message":"full","code":"ROOM_FULL"}}`,
	}

	r := &recorder{}
	for _, frame := range frames {
		env, err := Decode([]byte(frame))
		require.NoError(t, err)
		ev, err := DecodeInbound(env)
		require.NoError(t, err, frame)
		ev.Dispatch(r)
	}

	assert.Equal(t, []EventType{
		EventRoomJoined, EventRoomUpdated, EventPlayerJoined, EventPlayerLeft,
		EventGameStarted, EventPlayMade, EventMatchFinished, EventGameError,
	}, r.got)
	assert.Len(t, InboundTypes(), len(frames))
}

func TestDecodeInbound_PlayerLeftWithoutPayload(t *testing.T) {
	ev, err := DecodeInbound(Envelope{Type: EventPlayerLeft})
	require.NoError(t, err)
	assert.Equal(t, PlayerLeft{}, ev)
}

func TestDecodeInbound_Unknown(t *testing.T) {
	_, err := DecodeInbound(Envelope{Type: "round-result", Payload: json.RawMessage(`{}`)})
	var unknown *ErrUnknownEvent
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, EventType("round-result"), unknown.Type)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	_, err = DecodeInbound(Envelope{Type: EventRoomJoined, Payload: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

func TestMessage_TotalOverCodes(t *testing.T) {
	seen := map[string]ErrorCode{}
	for _, code := range Codes() {
		assert.True(t, code.Known())
		msg := Message(code, "")
		assert.NotEqual(t, GenericMessage, msg, code)
		if prev, dup := seen[msg]; dup {
			t.Errorf("%s 与 %s 使用了相同的提示", code, prev)
		}
		seen[msg] = code
	}
}

func TestMessage_UnknownFallsBack(t *testing.T) {
	assert.Equal(t, "boom", Message("SOMETHING_ELSE", "boom"))
	assert.Equal(t, GenericMessage, Message("SOMETHING_ELSE", ""))
}

func TestIntentValidate(t *testing.T) {
	assert.NoError(t, RoomIntent{RoomID: "r", UserID: "u"}.Validate())
	assert.Error(t, RoomIntent{RoomID: "r"}.Validate())
	assert.Error(t, MakePlayIntent{RoomID: "r", UserID: "u"}.Validate())
}
