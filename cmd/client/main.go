// main.go

package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GabrielFeijo/jokenpo/config"
	"github.com/GabrielFeijo/jokenpo/internal/client/api"
	"github.com/GabrielFeijo/jokenpo/internal/client/recovery"
	"github.com/GabrielFeijo/jokenpo/internal/client/session"
	"github.com/GabrielFeijo/jokenpo/internal/client/store"
	"github.com/GabrielFeijo/jokenpo/internal/models"
	"github.com/GabrielFeijo/jokenpo/internal/rules"
	"github.com/GabrielFeijo/jokenpo/pkg/db"
	"github.com/GabrielFeijo/jokenpo/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	roomCode := flag.String("room", "", "要加入的邀请码，为空时创建房间")
	mode := flag.String("mode", string(models.ModeClassic), "创建房间时的模式 (CLASSIC, EXTENDED)")
	name := flag.String("name", "", "玩家名称")
	choice := flag.String("choice", "", "固定出招，为空时随机")
	rounds := flag.Int("rounds", 1, "对局数")
	stateFile := flag.String("state", "", "本地状态文件，覆盖配置")
	redisState := flag.Bool("redis-state", false, "把客户端状态保存在 Redis")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cfg := &config.GlobalConfig
	if *stateFile != "" {
		cfg.Client.StateFile = *stateFile
	}

	if err := logger.Init(cfg.Server.LogLevel, cfg.Server.Debug); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 状态存储
	var persister store.Persister = store.NewFilePersister(cfg.Client.StateFile)
	if *redisState {
		client, err := db.NewRedisClient(&cfg.Redis)
		if err != nil {
			zap.S().Fatalf("连接Redis失败: %v", err)
		}
		defer client.Close()
		persister = store.NewRedisPersister(client, *name)
	}
	st := store.New(persister)
	if err := st.Rehydrate(ctx); err != nil {
		zap.S().Warnf("恢复本地状态失败: %v", err)
	}

	apiClient := api.NewClient(cfg.Client.APIBaseURL, cfg.Client.RequestTimeout)
	sess := session.New(st, session.Options{
		Notifier:          session.NewLogNotifier(zap.L()),
		AnimationDuration: cfg.Client.AnimationDuration,
		DialTimeout:       cfg.Client.DialTimeout,
	})
	coordinator := recovery.NewCoordinator(st, apiClient, sess)

	user, err := ensureUser(ctx, st, apiClient, *name)
	if err != nil {
		zap.S().Fatalf("准备玩家失败: %v", err)
	}

	code := *roomCode
	if code == "" {
		resp, err := apiClient.CreateRoom(ctx, models.GameMode(*mode), user.ID)
		if err != nil {
			zap.S().Fatalf("创建房间失败: %v", err)
		}
		code = resp.Room.InviteCode
		zap.S().Infof("房间已创建，邀请码: %s", code)
	}

	if err := coordinator.Recover(ctx, code); err != nil {
		zap.S().Fatalf("进入房间失败: %v", err)
	}

	b := &bot{
		store:   st,
		session: sess,
		choice:  models.Choice(*choice),
		rounds:  *rounds,
	}
	b.run(ctx)

	coordinator.ReturnToLobby()
	zap.S().Info("已返回大厅")
}

// ensureUser 本地没有用户时创建游客，并同步名称
func ensureUser(ctx context.Context, st *store.Store, client *api.Client, name string) (models.User, error) {
	if u := st.Snapshot().CurrentUser; u != nil {
		client.SetToken(u.Token)
		if name == "" || name == u.Name {
			return *u, nil
		}
		updated, err := client.UpdateUser(ctx, u.ID, models.UpdateUserRequest{Name: &name})
		if err != nil {
			return models.User{}, err
		}
		updated.Token = u.Token
		st.SetUser(updated)
		return updated, nil
	}

	user, err := client.CreateGuestUser(ctx, name)
	if err != nil {
		return models.User{}, err
	}
	st.SetUser(user)
	zap.S().Infof("已创建游客 %s", user.ID)
	return user, nil
}

// bot 根据状态自动准备、出招和再来一局
type bot struct {
	store   *store.Store
	session *session.Session
	choice  models.Choice
	rounds  int

	played    int
	lastMatch string
}

func (b *bot) run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.step() {
				return
			}
		}
	}
}

// step 返回 true 表示已完成全部对局
func (b *bot) step() bool {
	st := b.store.Snapshot()
	if st.CurrentRoom == nil || st.CurrentUser == nil || !st.IsConnected {
		return false
	}
	roomID, me := st.CurrentRoom.ID, st.CurrentUser.ID

	switch {
	case st.CurrentMatch == nil:
		if len(st.CurrentRoom.Players) == models.MaxPlayers && !st.IsReady {
			if err := b.session.PlayerReady(roomID, me); err != nil {
				zap.S().Warnf("准备失败: %v", err)
			}
		}

	case st.CurrentMatch.Status == models.MatchPlaying:
		if st.MyChoice == "" {
			if err := b.session.MakePlay(roomID, me, b.pick(st.GameMode)); err != nil {
				zap.S().Warnf("出招失败: %v", err)
			}
		}

	case st.CurrentMatch.Status == models.MatchFinished:
		if st.GameResult == "" || b.lastMatch == st.CurrentMatch.ID {
			return false
		}
		b.lastMatch = st.CurrentMatch.ID
		b.played++

		mine, theirs, _ := b.store.AuthoritativeScore()
		zap.L().Info("对局结束",
			zap.String("result", string(st.GameResult)),
			zap.String("myChoice", string(st.MyChoice)),
			zap.String("opponentChoice", string(st.OpponentChoice)),
			zap.Int("score", mine),
			zap.Int("opponentScore", theirs),
		)

		if b.played >= b.rounds {
			return true
		}
		if err := b.session.RequestRematch(roomID, me); err != nil {
			zap.S().Warnf("再来一局失败: %v", err)
		}
	}
	return false
}

func (b *bot) pick(mode models.GameMode) models.Choice {
	if b.choice != "" {
		return b.choice
	}
	choices := rules.Choices(mode)
	return choices[rand.Intn(len(choices))]
}
