package game

import (
	"context"
	"sync"
	"time"

	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/protocol"
	"github.com/GabrielFeijo/jokenpo/internal/rules"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Seat 房间中的一个座位
type Seat struct {
	User  models.User
	Ready bool
	Conn  *PlayerConnection

	disconnectGen int
	graceTimer    *time.Timer
}

// RoomOptions 房间策略
type RoomOptions struct {
	GracePeriod     time.Duration
	AttachTimeout   time.Duration
	EmptyRoomTTL    time.Duration
	FinishedRoomTTL time.Duration
	Recorder        MatchRecorder
}

// Room 游戏房间，所有状态变更都在 mu 内串行完成，
// 下发的事件也在锁内入队，保证同一房间的事件顺序与状态变更顺序一致。
type Room struct {
	ID         string
	InviteCode string
	Mode       models.GameMode
	CreatedBy  string
	CreatedAt  time.Time

	opts RoomOptions
	now  func() time.Time

	mu           sync.Mutex
	status       models.RoomStatus
	seats        []*Seat
	match        *models.Match
	scores       map[string]int
	lastActivity time.Time
	closed       bool
}

// NewRoom 创建新房间
func NewRoom(inviteCode string, mode models.GameMode, createdBy string, opts RoomOptions) *Room {
	now := time.Now()
	return &Room{
		ID:           uuid.New().String(),
		InviteCode:   inviteCode,
		Mode:         mode,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		opts:         opts,
		now:          time.Now,
		status:       models.RoomWaiting,
		scores:       make(map[string]int),
		lastActivity: now,
	}
}

// Status 当前房间状态
func (r *Room) Status() models.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PlayerCount 座位上的玩家数
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seats)
}

// Snapshot 以 viewer 视角生成房间快照
func (r *Room) Snapshot(viewer string) models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(viewer)
}

// Admit 让用户入座，已入座的用户直接返回快照
func (r *Room) Admit(user models.User) (models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.admitLocked(user); err != nil {
		return models.Room{}, err
	}
	return r.snapshotLocked(user.ID), nil
}

// Attach 把连接绑定到用户的座位，必要时先入座
func (r *Room) Attach(user models.User, conn *PlayerConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	seat := r.seatLocked(user.ID)
	if seat != nil && seat.Conn == conn {
		return ErrAlreadyInRoom
	}

	if seat == nil {
		if _, err := r.admitLocked(user); err != nil {
			return err
		}
		seat = r.seatLocked(user.ID)
	}

	if old := seat.Conn; old != nil && old != conn {
		old.clearRoom(r)
	}
	r.stopGraceLocked(seat)
	seat.Conn = conn
	conn.setRoom(r)
	r.lastActivity = r.now()

	conn.deliver(protocol.MustNew(protocol.EventRoomJoined, protocol.RoomJoined{Room: r.snapshotLocked(user.ID)}))
	r.broadcastRoomUpdatedLocked()

	zap.S().Infof("玩家 %s 连接到房间 %s", user.ID, r.ID)
	return nil
}

// Ready 设置准备标记，双方都准备后开局
func (r *Room) Ready(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seat := r.seatLocked(userID)
	if seat == nil {
		return ErrNotInRoom
	}

	if r.match != nil {
		switch r.match.Status {
		case models.MatchPlaying:
			return ErrGameInProgress
		case models.MatchFinished:
			r.rematchLocked(seat)
			return nil
		}
	}

	if seat.Ready {
		return nil
	}
	seat.Ready = true
	r.lastActivity = r.now()

	if r.allReadyLocked() {
		r.startMatchLocked()
		return nil
	}
	r.broadcastRoomUpdatedLocked()
	return nil
}

// Rematch 再来一局，只在上一局结束后有效
func (r *Room) Rematch(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seat := r.seatLocked(userID)
	if seat == nil {
		return ErrNotInRoom
	}
	if r.match == nil {
		return ErrMatchNotActive
	}
	if r.match.Status != models.MatchFinished {
		return ErrGameInProgress
	}

	r.rematchLocked(seat)
	return nil
}

// MakePlay 提交出招，同一局重复提交直接忽略
func (r *Room) MakePlay(userID string, choice models.Choice) error {
	finished, err := r.makePlay(userID, choice)
	if err != nil {
		return err
	}
	if finished != nil {
		r.record(*finished)
	}
	return nil
}

func (r *Room) makePlay(userID string, choice models.Choice) (*FinishedMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seat := r.seatLocked(userID)
	if seat == nil {
		return nil, ErrNotInRoom
	}
	if r.match == nil || r.match.Status != models.MatchPlaying {
		return nil, ErrMatchNotActive
	}
	if err := rules.Validate(r.Mode, choice); err != nil {
		return nil, wrapRoomError(ErrInvalidChoice, err)
	}
	if _, played := r.match.PlayOf(userID); played {
		zap.S().Debugf("玩家 %s 在对局 %s 中重复出招，已忽略", userID, r.match.ID)
		return nil, nil
	}

	play := models.Play{
		ID:        uuid.New().String(),
		MatchID:   r.match.ID,
		PlayerID:  userID,
		Choice:    choice,
		Timestamp: r.now(),
	}
	r.match.Plays = append(r.match.Plays, play)
	r.lastActivity = play.Timestamp

	for _, s := range r.seats {
		visible := play
		if s.User.ID != userID {
			visible.Choice = ""
		}
		r.sendLocked(s, protocol.MustNew(protocol.EventPlayMade, protocol.PlayMade{Play: visible}))
	}

	if len(r.seats) == models.MaxPlayers && len(r.match.Plays) == models.MaxPlayers {
		return r.finishLocked(), nil
	}
	return nil, nil
}

// Leave 玩家离开房间
func (r *Room) Leave(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.seatIndexLocked(userID)
	if idx < 0 {
		return ErrNotInRoom
	}
	r.leaveLocked(idx)
	return nil
}

// Detach 连接断开，宽限期后视为离开
func (r *Room) Detach(conn *PlayerConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for idx, seat := range r.seats {
		if seat.Conn != conn {
			continue
		}

		seat.Conn = nil
		if r.opts.GracePeriod <= 0 {
			r.leaveLocked(idx)
			return
		}

		r.armSeatTimerLocked(seat, r.opts.GracePeriod)
		zap.S().Infof("玩家 %s 断开，%v 内未重连将离开房间 %s", seat.User.ID, r.opts.GracePeriod, r.ID)
		return
	}
}

// armSeatTimerLocked 座位在 d 之后仍没有连接则离开房间
func (r *Room) armSeatTimerLocked(seat *Seat, d time.Duration) {
	r.stopGraceLocked(seat)
	gen := seat.disconnectGen
	userID := seat.User.ID
	seat.graceTimer = time.AfterFunc(d, func() {
		r.expireSeat(userID, gen)
	})
}

// expireSeat 宽限期结束仍未重连
func (r *Room) expireSeat(userID string, gen int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.seatIndexLocked(userID)
	if idx < 0 {
		return
	}
	seat := r.seats[idx]
	if seat.Conn != nil || seat.disconnectGen != gen {
		return
	}

	zap.S().Infof("玩家 %s 未连接超时，离开房间 %s", userID, r.ID)
	r.leaveLocked(idx)
}

// ShouldCleanup 检查房间是否应该被清理
func (r *Room) ShouldCleanup(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return true
	}

	idle := now.Sub(r.lastActivity)

	// 空房间超过 TTL
	if len(r.seats) == 0 {
		return idle > r.opts.EmptyRoomTTL
	}

	// 还有在线连接的房间交给宽限期处理
	if r.connectedLocked() {
		return false
	}

	// 已结束且长时间无人操作
	if r.status == models.RoomFinished && r.opts.FinishedRoomTTL > 0 {
		return idle > r.opts.FinishedRoomTTL
	}

	// 座位上都没有连接
	return r.opts.EmptyRoomTTL > 0 && idle > r.opts.EmptyRoomTTL
}

func (r *Room) connectedLocked() bool {
	for _, s := range r.seats {
		if s.Conn != nil {
			return true
		}
	}
	return false
}

// Close 停止房间
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, seat := range r.seats {
		r.stopGraceLocked(seat)
		if seat.Conn != nil {
			seat.Conn.clearRoom(r)
		}
	}

	zap.S().Infof("房间 %s 已关闭", r.ID)
}

// admitLocked 入座，返回是否为新入座
func (r *Room) admitLocked(user models.User) (bool, error) {
	if r.closed {
		return false, ErrRoomNotFound
	}
	if r.seatLocked(user.ID) != nil {
		return false, nil
	}
	if r.match != nil && r.match.Status == models.MatchPlaying {
		return false, ErrGameInProgress
	}
	if len(r.seats) >= models.MaxPlayers {
		return false, ErrRoomFull
	}

	public := user.Public()
	seat := &Seat{User: public}
	r.seats = append(r.seats, seat)
	r.lastActivity = r.now()

	// 通过HTTP入座但一直没有连接的座位，超时后释放
	if r.opts.AttachTimeout > 0 {
		r.armSeatTimerLocked(seat, r.opts.AttachTimeout)
	}
	r.refreshStatusLocked()

	for _, s := range r.seats {
		if s.User.ID != user.ID {
			r.sendLocked(s, protocol.MustNew(protocol.EventPlayerJoined, protocol.PlayerJoined{User: public}))
		}
	}
	r.broadcastRoomUpdatedLocked()

	zap.S().Infof("玩家 %s 加入房间 %s (%d/%d)", user.ID, r.ID, len(r.seats), models.MaxPlayers)
	return true, nil
}

func (r *Room) rematchLocked(seat *Seat) {
	if seat.Ready {
		return
	}
	seat.Ready = true
	r.lastActivity = r.now()

	if r.allReadyLocked() {
		r.startMatchLocked()
		return
	}
	r.broadcastRoomUpdatedLocked()
}

func (r *Room) allReadyLocked() bool {
	if len(r.seats) < models.MaxPlayers {
		return false
	}
	for _, s := range r.seats {
		if !s.Ready {
			return false
		}
	}
	return true
}

// startMatchLocked 开始新的一局
func (r *Room) startMatchLocked() {
	now := r.now()
	r.match = &models.Match{
		ID:        uuid.New().String(),
		RoomID:    r.ID,
		GameMode:  r.Mode,
		Status:    models.MatchPlaying,
		Plays:     []models.Play{},
		CreatedAt: now,
	}
	for _, s := range r.seats {
		s.Ready = false
	}
	r.lastActivity = now
	r.refreshStatusLocked()

	zap.S().Infof("房间 %s 对局 %s 开始", r.ID, r.match.ID)

	r.broadcastLocked(protocol.MustNew(protocol.EventGameStarted, protocol.GameStarted{Match: *r.match.Clone()}))
	r.broadcastRoomUpdatedLocked()
}

// finishLocked 双方都已出招，判定并公布结果
func (r *Room) finishLocked() *FinishedMatch {
	p1, p2 := r.seats[0].User.ID, r.seats[1].User.ID
	play1, _ := r.match.PlayOf(p1)
	play2, _ := r.match.PlayOf(p2)

	now := r.now()
	result := models.MatchResult{
		ID:        uuid.New().String(),
		MatchID:   r.match.ID,
		CreatedAt: now,
	}

	switch rules.Decide(play1.Choice, play2.Choice) {
	case rules.AWins:
		result.WinnerID, result.LoserPlayerID = p1, p2
	case rules.BWins:
		result.WinnerID, result.LoserPlayerID = p2, p1
	default:
		result.IsDraw = true
	}
	if !result.IsDraw {
		r.scores[result.WinnerID]++
	}
	result.Player1Score = r.scores[p1]
	result.Player2Score = r.scores[p2]

	r.match.Results = []models.MatchResult{result}
	r.match.Status = models.MatchFinished
	r.lastActivity = now
	r.refreshStatusLocked()

	match := r.match.Clone()
	plays := []models.Play{play1, play2}

	zap.L().Info("对局结束",
		zap.String("roomId", r.ID),
		zap.String("matchId", match.ID),
		zap.String("winnerId", result.WinnerID),
		zap.Bool("isDraw", result.IsDraw))

	r.broadcastLocked(protocol.MustNew(protocol.EventMatchFinished, protocol.MatchFinished{
		Match:  *match,
		Result: result,
		Plays:  plays,
	}))
	r.broadcastRoomUpdatedLocked()

	players := make([]models.User, 0, len(r.seats))
	for _, s := range r.seats {
		players = append(players, s.User)
	}
	return &FinishedMatch{Match: *match, Players: players, FinishedAt: now}
}

// leaveLocked 移除座位并重置房间
func (r *Room) leaveLocked(idx int) {
	seat := r.seats[idx]
	r.stopGraceLocked(seat)
	if seat.Conn != nil {
		seat.Conn.clearRoom(r)
	}

	r.seats = append(r.seats[:idx], r.seats[idx+1:]...)
	for _, s := range r.seats {
		s.Ready = false
	}
	r.match = nil
	r.scores = make(map[string]int)
	r.lastActivity = r.now()
	r.refreshStatusLocked()

	zap.S().Infof("玩家 %s 离开房间 %s", seat.User.ID, r.ID)
	if len(r.seats) == 0 {
		zap.S().Infof("房间 %s 已空，等待清理", r.ID)
		return
	}

	r.broadcastLocked(protocol.MustNew(protocol.EventPlayerLeft, protocol.PlayerLeft{UserID: seat.User.ID}))
	r.broadcastRoomUpdatedLocked()
}

func (r *Room) refreshStatusLocked() {
	switch {
	case r.match != nil && r.match.Status == models.MatchPlaying:
		r.status = models.RoomPlaying
	case r.match != nil && r.match.Status == models.MatchFinished:
		r.status = models.RoomFinished
	case len(r.seats) == models.MaxPlayers:
		r.status = models.RoomReady
	default:
		r.status = models.RoomWaiting
	}
}

func (r *Room) stopGraceLocked(seat *Seat) {
	if seat.graceTimer != nil {
		seat.graceTimer.Stop()
		seat.graceTimer = nil
	}
	seat.disconnectGen++
}

func (r *Room) seatIndexLocked(userID string) int {
	for i, s := range r.seats {
		if s.User.ID == userID {
			return i
		}
	}
	return -1
}

func (r *Room) seatLocked(userID string) *Seat {
	if idx := r.seatIndexLocked(userID); idx >= 0 {
		return r.seats[idx]
	}
	return nil
}

// snapshotLocked 进行中的对局只向 viewer 展示自己的出招
func (r *Room) snapshotLocked(viewer string) models.Room {
	room := models.Room{
		ID:         r.ID,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		GameMode:   r.Mode,
		Status:     r.status,
		Players:    make([]models.User, 0, len(r.seats)),
		InviteCode: r.InviteCode,
	}
	for _, s := range r.seats {
		room.Players = append(room.Players, s.User)
		if s.Ready {
			room.ReadyPlayerIDs = append(room.ReadyPlayerIDs, s.User.ID)
		}
	}

	if r.match != nil {
		match := r.match.Clone()
		if match.Status == models.MatchPlaying {
			for i := range match.Plays {
				if match.Plays[i].PlayerID != viewer {
					match.Plays[i].Choice = ""
				}
			}
		}
		room.CurrentMatch = match
	}
	return room
}

func (r *Room) sendLocked(seat *Seat, env protocol.Envelope) {
	if seat.Conn != nil {
		seat.Conn.deliver(env)
	}
}

func (r *Room) broadcastLocked(env protocol.Envelope) {
	for _, s := range r.seats {
		r.sendLocked(s, env)
	}
}

func (r *Room) broadcastRoomUpdatedLocked() {
	for _, s := range r.seats {
		r.sendLocked(s, protocol.MustNew(protocol.EventRoomUpdated, protocol.RoomUpdated{Room: r.snapshotLocked(s.User.ID)}))
	}
}

// record 异步保存对局
func (r *Room) record(fm FinishedMatch) {
	if r.opts.Recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.opts.Recorder.RecordMatch(ctx, fm); err != nil {
			zap.S().Warnf("保存对局 %s 失败: %v", fm.Match.ID, err)
		}
	}()
}
