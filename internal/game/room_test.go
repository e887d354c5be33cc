package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.User{ID: "u1", Name: "Alice", IsGuest: true, Token: "secret"}
	bob   = models.User{ID: "u2", Name: "Bob", IsGuest: true}
	carol = models.User{ID: "u3", Name: "Carol", IsGuest: true}
)

type fakeRecorder struct {
	mu      sync.Mutex
	matches []FinishedMatch
	done    chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{done: make(chan struct{}, 16)}
}

func (f *fakeRecorder) RecordMatch(_ context.Context, fm FinishedMatch) error {
	f.mu.Lock()
	f.matches = append(f.matches, fm)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

func drain(c *PlayerConnection) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case data := <-c.Send:
			env, err := protocol.Decode(data)
			if err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func typesOf(envs []protocol.Envelope) []protocol.EventType {
	types := make([]protocol.EventType, 0, len(envs))
	for _, e := range envs {
		types = append(types, e.Type)
	}
	return types
}

func countType(envs []protocol.Envelope, t protocol.EventType) int {
	n := 0
	for _, e := range envs {
		if e.Type == t {
			n++
		}
	}
	return n
}

func findType(t *testing.T, envs []protocol.Envelope, et protocol.EventType) protocol.Envelope {
	t.Helper()
	for _, e := range envs {
		if e.Type == et {
			return e
		}
	}
	t.Fatalf("没有收到 %s，实际: %v", et, typesOf(envs))
	return protocol.Envelope{}
}

func seatedRoom(t *testing.T, mode models.GameMode, opts RoomOptions) (*Room, *PlayerConnection, *PlayerConnection) {
	t.Helper()
	room := NewRoom("ABC123", mode, alice.ID, opts)
	c1 := newPlayerConnection(alice.ID, nil)
	c2 := newPlayerConnection(bob.ID, nil)
	require.NoError(t, room.Attach(alice, c1))
	require.NoError(t, room.Attach(bob, c2))
	drain(c1)
	drain(c2)
	return room, c1, c2
}

func startedRoom(t *testing.T, mode models.GameMode, opts RoomOptions) (*Room, *PlayerConnection, *PlayerConnection) {
	t.Helper()
	room, c1, c2 := seatedRoom(t, mode, opts)
	require.NoError(t, room.Ready(alice.ID))
	require.NoError(t, room.Ready(bob.ID))
	drain(c1)
	drain(c2)
	return room, c1, c2
}

func TestRoom_AdmitTransitions(t *testing.T) {
	room := NewRoom("ABC123", models.ModeClassic, alice.ID, RoomOptions{})

	snap, err := room.Admit(alice)
	require.NoError(t, err)
	assert.Equal(t, models.RoomWaiting, snap.Status)
	assert.Empty(t, snap.Players[0].Token, "快照不能带出令牌")

	snap, err = room.Admit(bob)
	require.NoError(t, err)
	assert.Equal(t, models.RoomReady, snap.Status)
	assert.Len(t, snap.Players, 2)

	// 已入座的用户重复加入不会占用新座位
	snap, err = room.Admit(alice)
	require.NoError(t, err)
	assert.Len(t, snap.Players, 2)

	_, err = room.Admit(carol)
	assert.True(t, errors.Is(err, ErrRoomFull))
	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, protocol.CodeRoomFull, code)
}

func TestRoom_AttachEvents(t *testing.T) {
	room := NewRoom("ABC123", models.ModeClassic, alice.ID, RoomOptions{})
	c1 := newPlayerConnection(alice.ID, nil)
	c2 := newPlayerConnection(bob.ID, nil)

	require.NoError(t, room.Attach(alice, c1))
	assert.Equal(t, []protocol.EventType{protocol.EventRoomJoined, protocol.EventRoomUpdated}, typesOf(drain(c1)))

	require.NoError(t, room.Attach(bob, c2))
	first := drain(c1)
	assert.Equal(t, protocol.EventPlayerJoined, first[0].Type)
	var joined protocol.PlayerJoined
	require.NoError(t, protocol.DecodePayload(first[0], &joined))
	assert.Equal(t, bob.ID, joined.User.ID)

	second := drain(c2)
	assert.Equal(t, protocol.EventRoomJoined, second[0].Type)
	var rj protocol.RoomJoined
	require.NoError(t, protocol.DecodePayload(second[0], &rj))
	assert.Equal(t, models.RoomReady, rj.Room.Status)

	// 同一连接重复加入
	err := room.Attach(bob, c2)
	assert.True(t, errors.Is(err, ErrAlreadyInRoom))
	assert.Same(t, room, c2.CurrentRoom())
}

func TestRoom_ReadyStartsMatch(t *testing.T) {
	room, c1, c2 := seatedRoom(t, models.ModeClassic, RoomOptions{})

	require.NoError(t, room.Ready(alice.ID))
	// 重复准备不产生新的开局
	require.NoError(t, room.Ready(alice.ID))
	assert.Equal(t, models.RoomReady, room.Status())
	drain(c1)
	assert.Zero(t, countType(drain(c2), protocol.EventGameStarted))

	require.NoError(t, room.Ready(bob.ID))
	assert.Equal(t, models.RoomPlaying, room.Status())

	for _, c := range []*PlayerConnection{c1, c2} {
		envs := drain(c)
		assert.Equal(t, []protocol.EventType{protocol.EventGameStarted, protocol.EventRoomUpdated}, typesOf(envs))

		var started protocol.GameStarted
		require.NoError(t, protocol.DecodePayload(envs[0], &started))
		assert.Equal(t, models.MatchPlaying, started.Match.Status)
		assert.Empty(t, started.Match.Plays)
	}

	snap := room.Snapshot(alice.ID)
	assert.Empty(t, snap.ReadyPlayerIDs, "开局后准备标记清空")

	assert.True(t, errors.Is(room.Ready(alice.ID), ErrGameInProgress))
	assert.True(t, errors.Is(room.Ready(carol.ID), ErrNotInRoom))
}

func TestRoom_MakePlayGuards(t *testing.T) {
	room, _, _ := seatedRoom(t, models.ModeClassic, RoomOptions{})
	assert.True(t, errors.Is(room.MakePlay(alice.ID, models.Rock), ErrMatchNotActive))

	room, c1, c2 := startedRoom(t, models.ModeClassic, RoomOptions{})
	assert.True(t, errors.Is(room.MakePlay(alice.ID, models.Lizard), ErrInvalidChoice))
	assert.True(t, errors.Is(room.MakePlay(carol.ID, models.Rock), ErrNotInRoom))

	require.NoError(t, room.MakePlay(alice.ID, models.Rock))
	// 第二次出招被忽略
	require.NoError(t, room.MakePlay(alice.ID, models.Paper))

	snap := room.Snapshot(alice.ID)
	require.Len(t, snap.CurrentMatch.Plays, 1)
	assert.Equal(t, models.Rock, snap.CurrentMatch.Plays[0].Choice)

	own := drain(c1)
	require.Equal(t, []protocol.EventType{protocol.EventPlayMade}, typesOf(own))
	var mine protocol.PlayMade
	require.NoError(t, protocol.DecodePayload(own[0], &mine))
	assert.Equal(t, models.Rock, mine.Play.Choice)

	other := drain(c2)
	require.Equal(t, []protocol.EventType{protocol.EventPlayMade}, typesOf(other))
	var theirs protocol.PlayMade
	require.NoError(t, protocol.DecodePayload(other[0], &theirs))
	assert.Equal(t, alice.ID, theirs.Play.PlayerID)
	assert.Empty(t, theirs.Play.Choice, "对手看不到出招")

	// 对局进行中的快照同样隐藏对手出招
	assert.Empty(t, room.Snapshot(bob.ID).CurrentMatch.Plays[0].Choice)
}

func TestRoom_FinishScenarios(t *testing.T) {
	tests := []struct {
		name   string
		mode   models.GameMode
		a, b   models.Choice
		winner string
		draw   bool
	}{
		{"classic rock beats scissors", models.ModeClassic, models.Rock, models.Scissors, alice.ID, false},
		{"paper draw", models.ModeClassic, models.Paper, models.Paper, "", true},
		{"lizard poisons spock", models.ModeExtended, models.Lizard, models.Spock, alice.ID, false},
		{"spock loses to lizard", models.ModeExtended, models.Spock, models.Lizard, bob.ID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFakeRecorder()
			room, c1, c2 := startedRoom(t, tt.mode, RoomOptions{Recorder: rec})

			require.NoError(t, room.MakePlay(alice.ID, tt.a))
			require.NoError(t, room.MakePlay(bob.ID, tt.b))
			assert.Equal(t, models.RoomFinished, room.Status())

			for _, c := range []*PlayerConnection{c1, c2} {
				envs := drain(c)
				assert.Equal(t, 1, countType(envs, protocol.EventMatchFinished))

				var mf protocol.MatchFinished
				require.NoError(t, protocol.DecodePayload(findType(t, envs, protocol.EventMatchFinished), &mf))
				assert.Equal(t, tt.draw, mf.Result.IsDraw)
				assert.Equal(t, tt.winner, mf.Result.WinnerID)
				assert.Equal(t, models.MatchFinished, mf.Match.Status)
				require.Len(t, mf.Plays, 2)
				assert.Equal(t, tt.a, mf.Plays[0].Choice)
				assert.Equal(t, tt.b, mf.Plays[1].Choice)
			}

			select {
			case <-rec.done:
			case <-time.After(time.Second):
				t.Fatal("对局没有被保存")
			}
			assert.Equal(t, 1, rec.count())
		})
	}
}

func TestRoom_ConcurrentPlaysFinishOnce(t *testing.T) {
	room, c1, _ := startedRoom(t, models.ModeClassic, RoomOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = room.MakePlay(alice.ID, models.Rock)
		}()
		go func() {
			defer wg.Done()
			_ = room.MakePlay(bob.ID, models.Paper)
		}()
	}
	wg.Wait()

	envs := drain(c1)
	assert.Equal(t, 1, countType(envs, protocol.EventMatchFinished))
	assert.Equal(t, 2, countType(envs, protocol.EventPlayMade))
}

func TestRoom_RematchKeepsCumulativeScore(t *testing.T) {
	room, c1, _ := startedRoom(t, models.ModeClassic, RoomOptions{})
	require.NoError(t, room.MakePlay(alice.ID, models.Rock))
	require.NoError(t, room.MakePlay(bob.ID, models.Scissors))

	require.NoError(t, room.Rematch(alice.ID))
	assert.Equal(t, models.RoomFinished, room.Status())
	// 已结束时准备等同于再来一局
	require.NoError(t, room.Ready(bob.ID))
	assert.Equal(t, models.RoomPlaying, room.Status())

	require.NoError(t, room.MakePlay(alice.ID, models.Paper))
	require.NoError(t, room.MakePlay(bob.ID, models.Rock))

	var mf protocol.MatchFinished
	envs := drain(c1)
	var last protocol.Envelope
	for _, e := range envs {
		if e.Type == protocol.EventMatchFinished {
			last = e
		}
	}
	require.NoError(t, protocol.DecodePayload(last, &mf))
	assert.Equal(t, 2, mf.Result.Player1Score)
	assert.Equal(t, 0, mf.Result.Player2Score)
}

func TestRoom_RematchGuards(t *testing.T) {
	room, _, _ := seatedRoom(t, models.ModeClassic, RoomOptions{})
	assert.True(t, errors.Is(room.Rematch(alice.ID), ErrMatchNotActive))

	room, _, _ = startedRoom(t, models.ModeClassic, RoomOptions{})
	assert.True(t, errors.Is(room.Rematch(alice.ID), ErrGameInProgress))
	assert.True(t, errors.Is(room.Rematch(carol.ID), ErrNotInRoom))
}

func TestRoom_LeaveResetsRoom(t *testing.T) {
	room, c1, c2 := startedRoom(t, models.ModeClassic, RoomOptions{})
	require.NoError(t, room.MakePlay(alice.ID, models.Rock))
	drain(c2)

	require.NoError(t, room.Leave(alice.ID))
	assert.Equal(t, models.RoomWaiting, room.Status())
	assert.Nil(t, c1.CurrentRoom())

	envs := drain(c2)
	assert.Equal(t, []protocol.EventType{protocol.EventPlayerLeft, protocol.EventRoomUpdated}, typesOf(envs))
	var left protocol.PlayerLeft
	require.NoError(t, protocol.DecodePayload(envs[0], &left))
	assert.Equal(t, alice.ID, left.UserID)

	snap := room.Snapshot(bob.ID)
	assert.Nil(t, snap.CurrentMatch)
	assert.Len(t, snap.Players, 1)

	assert.True(t, errors.Is(room.Leave(alice.ID), ErrNotInRoom))

	// 离开后房间可以重新接纳玩家
	_, err := room.Admit(carol)
	require.NoError(t, err)
	assert.Equal(t, models.RoomReady, room.Status())
}

func TestRoom_AdmitRejectedWhilePlaying(t *testing.T) {
	room, _, _ := startedRoom(t, models.ModeClassic, RoomOptions{})
	_, err := room.Admit(carol)
	assert.True(t, errors.Is(err, ErrGameInProgress))
}

func TestRoom_DetachGracePeriod(t *testing.T) {
	room, c1, c2 := seatedRoom(t, models.ModeClassic, RoomOptions{GracePeriod: 30 * time.Millisecond})

	room.Detach(c1)
	assert.Equal(t, 2, room.PlayerCount())

	require.Eventually(t, func() bool { return room.PlayerCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.EventPlayerLeft, drain(c2)[0].Type)
}

func TestRoom_ReattachCancelsGrace(t *testing.T) {
	room, c1, _ := seatedRoom(t, models.ModeClassic, RoomOptions{GracePeriod: 30 * time.Millisecond})

	room.Detach(c1)
	c3 := newPlayerConnection(alice.ID, nil)
	require.NoError(t, room.Attach(alice, c3))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 2, room.PlayerCount())
	assert.Equal(t, protocol.EventRoomJoined, drain(c3)[0].Type)
}

func TestRoom_DetachWithoutGraceLeavesImmediately(t *testing.T) {
	room, c1, _ := seatedRoom(t, models.ModeClassic, RoomOptions{})
	room.Detach(c1)
	assert.Equal(t, 1, room.PlayerCount())
}

func TestRoom_UnattachedSeatExpires(t *testing.T) {
	room := NewRoom("ABC123", models.ModeClassic, alice.ID, RoomOptions{AttachTimeout: 100 * time.Millisecond})
	_, err := room.Admit(alice)
	require.NoError(t, err)

	c2 := newPlayerConnection(bob.ID, nil)
	require.NoError(t, room.Attach(bob, c2))
	_, err = room.Admit(carol)
	assert.True(t, errors.Is(err, ErrRoomFull))
	drain(c2)

	// alice 一直没有连接，座位被释放
	require.Eventually(t, func() bool { return room.PlayerCount() == 1 }, time.Second, 5*time.Millisecond)

	var left protocol.PlayerLeft
	require.NoError(t, protocol.DecodePayload(findType(t, drain(c2), protocol.EventPlayerLeft), &left))
	assert.Equal(t, alice.ID, left.UserID)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, room.PlayerCount(), "已连接的座位不受影响")

	_, err = room.Admit(carol)
	assert.NoError(t, err)
}

func TestRoom_AttachCancelsAttachTimeout(t *testing.T) {
	room := NewRoom("ABC123", models.ModeClassic, alice.ID, RoomOptions{AttachTimeout: 30 * time.Millisecond})
	_, err := room.Admit(alice)
	require.NoError(t, err)
	require.NoError(t, room.Attach(alice, newPlayerConnection(alice.ID, nil)))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, room.PlayerCount())
}

func TestRoom_ShouldCleanup(t *testing.T) {
	opts := RoomOptions{GracePeriod: time.Hour, EmptyRoomTTL: time.Minute, FinishedRoomTTL: 2 * time.Minute}
	now := time.Now()

	empty := NewRoom("EMPTY1", models.ModeClassic, alice.ID, opts)
	assert.False(t, empty.ShouldCleanup(now))
	assert.True(t, empty.ShouldCleanup(now.Add(2*time.Minute)))

	room, c1, c2 := startedRoom(t, models.ModeClassic, opts)
	defer room.Close()
	assert.False(t, room.ShouldCleanup(now.Add(time.Hour)), "进行中的对局不清理")

	require.NoError(t, room.MakePlay(alice.ID, models.Rock))
	require.NoError(t, room.MakePlay(bob.ID, models.Rock))
	assert.False(t, room.ShouldCleanup(now.Add(3*time.Minute)), "还有在线连接")

	room.Detach(c1)
	room.Detach(c2)
	assert.False(t, room.ShouldCleanup(now.Add(time.Minute)))
	assert.True(t, room.ShouldCleanup(now.Add(3*time.Minute)))

	// 入座后从未连接的房间按空房间处理
	idle := NewRoom("IDLE01", models.ModeClassic, alice.ID, opts)
	_, err := idle.Admit(alice)
	require.NoError(t, err)
	assert.False(t, idle.ShouldCleanup(now.Add(30*time.Second)))
	assert.True(t, idle.ShouldCleanup(now.Add(2*time.Minute)))

	closed := NewRoom("CLOSED", models.ModeClassic, alice.ID, opts)
	closed.Close()
	assert.True(t, closed.ShouldCleanup(now))
	_, err = closed.Admit(alice)
	assert.True(t, errors.Is(err, ErrRoomNotFound))
}
