package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/client/store"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
	"github.com/GabrielFeijo/jokenpo/internal/rules"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.User{ID: "u1", Name: "Alice", IsGuest: true}
	bob   = models.User{ID: "u2", Name: "Bob", IsGuest: true}
)

// fakeServer 记录收到的上行消息
type fakeServer struct {
	ts       *httptest.Server
	received chan protocol.Envelope
	conns    chan *websocket.Conn
	queries  chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		received: make(chan protocol.Envelope, 16),
		conns:    make(chan *websocket.Conn, 4),
		queries:  make(chan string, 4),
	}
	upgrader := websocket.Upgrader{}
	fs.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.queries <- r.URL.RawQuery
		fs.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if env, err := protocol.Decode(data); err == nil {
				fs.received <- env
			}
		}
	}))
	t.Cleanup(fs.ts.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.ts.URL, "http")
}

func (fs *fakeServer) next(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-fs.received:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到上行消息")
		return protocol.Envelope{}
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func newSession(t *testing.T, user models.User) (*Session, *store.Store, *recordingNotifier) {
	t.Helper()
	st := store.New(nil)
	st.SetUser(user)
	notes := &recordingNotifier{}
	s := New(st, Options{Notifier: notes, AnimationDuration: 100 * time.Millisecond, DialTimeout: time.Second})
	t.Cleanup(s.Disconnect)
	return s, st, notes
}

func twoPlayerRoom(mode models.GameMode) models.Room {
	return models.Room{ID: "r1", InviteCode: "ABC123", GameMode: mode, Status: models.RoomReady, Players: []models.User{alice, bob}}
}

func TestSession_IntentsRequireConnection(t *testing.T) {
	s, st, _ := newSession(t, alice)
	st.BeginMatch(models.Match{ID: "m1", Status: models.MatchPlaying, GameMode: models.ModeClassic})
	before := st.Snapshot()

	assert.ErrorIs(t, s.JoinRoom("r1", alice.ID), ErrNotConnected)
	assert.ErrorIs(t, s.LeaveRoom("r1", alice.ID), ErrNotConnected)
	assert.ErrorIs(t, s.PlayerReady("r1", alice.ID), ErrNotConnected)
	assert.ErrorIs(t, s.MakePlay("r1", alice.ID, models.Rock), ErrNotConnected)
	assert.ErrorIs(t, s.RequestRematch("r1", alice.ID), ErrNotConnected)

	assert.Equal(t, before, st.Snapshot())
}

func TestSession_ConnectAndIntents(t *testing.T) {
	fs := newFakeServer(t)
	s, st, _ := newSession(t, alice)

	require.NoError(t, s.Connect(context.Background(), fs.url()+"/ws", &Credentials{UserID: alice.ID, Token: "tok"}))
	assert.True(t, st.Snapshot().IsConnected)
	assert.Equal(t, "token=tok&userId=u1", <-fs.queries)

	require.NoError(t, s.JoinRoom("r1", alice.ID))
	env := fs.next(t)
	assert.Equal(t, protocol.EventJoinRoom, env.Type)
	assert.JSONEq(t, `{"roomId":"r1","userId":"u1"}`, string(env.Payload))

	require.NoError(t, s.PlayerReady("r1", alice.ID))
	assert.Equal(t, protocol.EventPlayerReady, fs.next(t).Type)
	assert.True(t, st.Snapshot().IsReady)

	// 没有进行中的对局
	assert.ErrorIs(t, s.MakePlay("r1", alice.ID, models.Rock), ErrNoActiveMatch)

	st.ApplyRoomSnapshot(twoPlayerRoom(models.ModeClassic))
	st.BeginMatch(models.Match{ID: "m1", Status: models.MatchPlaying, GameMode: models.ModeClassic})
	assert.ErrorIs(t, s.MakePlay("r1", alice.ID, models.Spock), rules.ErrInvalidChoice)
	assert.Empty(t, st.Snapshot().MyChoice)

	require.NoError(t, s.MakePlay("r1", alice.ID, models.Rock))
	env = fs.next(t)
	assert.Equal(t, protocol.EventMakePlay, env.Type)
	assert.JSONEq(t, `{"roomId":"r1","userId":"u1","choice":"ROCK"}`, string(env.Payload))
	assert.Equal(t, models.Rock, st.Snapshot().MyChoice)
	assert.True(t, st.IsMyChoicePending())

	assert.ErrorIs(t, s.MakePlay("r1", alice.ID, models.Paper), ErrAlreadyChose)
	assert.Equal(t, models.Rock, st.Snapshot().MyChoice)

	require.NoError(t, s.RequestRematch("r1", alice.ID))
	assert.Equal(t, protocol.EventRematch, fs.next(t).Type)
	assert.Empty(t, st.Snapshot().MyChoice)
}

func TestSession_ReentrantConnect(t *testing.T) {
	fs := newFakeServer(t)
	other := newFakeServer(t)
	s, _, _ := newSession(t, alice)

	endpoint := fs.url() + "/ws"
	require.NoError(t, s.Connect(context.Background(), endpoint, nil))
	require.NoError(t, s.Connect(context.Background(), endpoint, nil))
	assert.ErrorIs(t, s.Connect(context.Background(), other.url()+"/ws", nil), ErrAlreadyConnected)
	assert.Eventually(t, func() bool { return len(fs.conns) == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, other.conns)
}

func TestSession_ConnectFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ts.Close()

	s, st, _ := newSession(t, alice)
	err := s.Connect(context.Background(), endpoint, nil)
	require.Error(t, err)

	snap := st.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.NotEmpty(t, snap.ConnectionError)
	assert.False(t, s.IsConnected())
}

func TestSession_DisconnectIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	s, st, _ := newSession(t, alice)

	s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), fs.url()+"/ws", nil))
	s.Disconnect()
	s.Disconnect()

	assert.False(t, s.IsConnected())
	snap := st.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.Empty(t, snap.ConnectionError)
	assert.ErrorIs(t, s.JoinRoom("r1", alice.ID), ErrNotConnected)

	// 断开后可以重新连接
	require.NoError(t, s.Connect(context.Background(), fs.url()+"/ws", nil))
	assert.True(t, s.IsConnected())
}

// stallingServer 收到握手请求后一直不响应
func stallingServer(t *testing.T) (string, <-chan struct{}) {
	t.Helper()
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", arrived
}

func TestSession_DisconnectCancelsPendingDial(t *testing.T) {
	endpoint, arrived := stallingServer(t)
	s, st, _ := newSession(t, alice)

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background(), endpoint, nil) }()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("握手请求没有到达")
	}
	assert.ErrorIs(t, s.Connect(context.Background(), endpoint, nil), ErrConnecting)

	s.Disconnect()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect 没有取消握手")
	}
	assert.False(t, s.IsConnected())
	assert.Empty(t, st.Snapshot().ConnectionError, "主动断开不是连接错误")
}

func TestSession_DialTimeoutIsConnectionError(t *testing.T) {
	endpoint, _ := stallingServer(t)
	s, st, _ := newSession(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Connect(ctx, endpoint, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDisconnected)
	assert.NotEmpty(t, st.Snapshot().ConnectionError)
}

func TestSession_ServerClose(t *testing.T) {
	fs := newFakeServer(t)
	s, st, _ := newSession(t, alice)
	require.NoError(t, s.Connect(context.Background(), fs.url()+"/ws", nil))

	conn := <-fs.conns
	conn.Close()

	assert.Eventually(t, func() bool { return !s.IsConnected() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, st.Snapshot().IsConnected)
}

func TestSession_InboundDispatchOverWire(t *testing.T) {
	fs := newFakeServer(t)
	s, st, notes := newSession(t, alice)
	require.NoError(t, s.Connect(context.Background(), fs.url()+"/ws", nil))
	conn := <-fs.conns

	push := func(et protocol.EventType, payload interface{}) {
		data, err := protocol.Encode(protocol.MustNew(et, payload))
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}

	push(protocol.EventRoomJoined, protocol.RoomJoined{Room: twoPlayerRoom(models.ModeExtended)})
	push("unknown-event", map[string]string{})
	push(protocol.EventPlayerJoined, protocol.PlayerJoined{User: bob})

	assert.Eventually(t, func() bool { return len(notes.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	snap := st.Snapshot()
	require.NotNil(t, snap.CurrentRoom)
	assert.Equal(t, models.ModeExtended, snap.GameMode)
	assert.Contains(t, notes.all()[0].Message, "Bob")
}

func TestSession_RevealOrdering(t *testing.T) {
	s, st, notes := newSession(t, alice)
	st.ApplyRoomSnapshot(twoPlayerRoom(models.ModeClassic))

	s.OnGameStarted(protocol.GameStarted{Match: models.Match{ID: "m1", Status: models.MatchPlaying}})

	// 即使载荷里带了出招，单独的 play-made 也不会公开对手出招
	s.OnPlayMade(protocol.PlayMade{Play: models.Play{ID: "p2", MatchID: "m1", PlayerID: bob.ID, Choice: models.Scissors}})
	snap := st.Snapshot()
	assert.True(t, snap.OpponentCommitted)
	assert.Empty(t, snap.OpponentChoice)

	st.SetMyChoice(models.Rock)
	s.OnPlayMade(protocol.PlayMade{Play: models.Play{ID: "p1", MatchID: "m1", PlayerID: alice.ID, Choice: models.Rock}})
	assert.Equal(t, models.Rock, st.Snapshot().ConfirmedChoice)

	plays := []models.Play{
		{ID: "p1", MatchID: "m1", PlayerID: alice.ID, Choice: models.Rock},
		{ID: "p2", MatchID: "m1", PlayerID: bob.ID, Choice: models.Scissors},
	}
	result := models.MatchResult{ID: "res1", MatchID: "m1", WinnerID: alice.ID, LoserPlayerID: bob.ID, Player1Score: 1}
	finished := models.Match{ID: "m1", Status: models.MatchFinished, Plays: plays, Results: []models.MatchResult{result}}

	s.OnMatchFinished(protocol.MatchFinished{Match: finished, Result: result, Plays: plays})
	snap = st.Snapshot()
	assert.Equal(t, models.Scissors, snap.OpponentChoice)
	assert.Equal(t, models.ResultWin, snap.GameResult)
	assert.Equal(t, 1, snap.Score)
	assert.True(t, snap.IsAnimating)
	assert.Eventually(t, func() bool { return !st.Snapshot().IsAnimating }, time.Second, 5*time.Millisecond)

	// 重复的 match-finished 不重复计分和提示
	count := len(notes.all())
	s.OnMatchFinished(protocol.MatchFinished{Match: finished, Result: result, Plays: plays})
	assert.Equal(t, 1, st.Snapshot().Score)
	assert.Len(t, notes.all(), count)
}

func TestSession_PlayerLeftClearsReadiness(t *testing.T) {
	s, st, notes := newSession(t, alice)
	st.SetReady(true)
	st.SetOpponentReady(true)

	s.OnPlayerLeft(protocol.PlayerLeft{UserID: bob.ID})

	snap := st.Snapshot()
	assert.False(t, snap.IsReady)
	assert.False(t, snap.OpponentReady)
	require.Len(t, notes.all(), 1)
	assert.Equal(t, KindError, notes.all()[0].Kind)
}

func TestSession_GameErrorOnlyNotifies(t *testing.T) {
	s, st, notes := newSession(t, alice)
	st.ApplyRoomSnapshot(twoPlayerRoom(models.ModeClassic))
	before := st.Snapshot()

	s.OnGameError(protocol.GameError{Message: "full", Code: protocol.CodeRoomFull})
	s.OnGameError(protocol.GameError{Message: "自定义", Code: "SOMETHING_NEW"})

	assert.Equal(t, before, st.Snapshot())
	got := notes.all()
	require.Len(t, got, 2)
	assert.Equal(t, protocol.Message(protocol.CodeRoomFull, ""), got[0].Message)
	assert.Equal(t, "ROOM_FULL", got[0].Code)
	assert.Equal(t, "自定义", got[1].Message)
}
