package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pongarena/realtime/internal/channel"
	"github.com/pongarena/realtime/internal/match"
	"github.com/pongarena/realtime/internal/pong"
	"github.com/pongarena/realtime/internal/presence"
	"github.com/pongarena/realtime/internal/rest"
	"github.com/pongarena/realtime/internal/session"
	"github.com/pongarena/realtime/internal/tournament"
	"github.com/pongarena/realtime/pkg/types"
)

type config struct {
	wsURL    string
	apiURL   string
	token    string
	userID   int64
	username string
	logLevel string
}

func loadConfig() (config, error) {
	cfg := config{
		wsURL:    getenv("ARENA_WS_URL", "ws://localhost:8000/ws"),
		apiURL:   getenv("ARENA_API_URL", "http://localhost:8000/api"),
		token:    os.Getenv("ARENA_TOKEN"),
		username: os.Getenv("ARENA_USERNAME"),
		logLevel: getenv("ARENA_LOG_LEVEL", "info"),
	}
	if raw := os.Getenv("ARENA_USER_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("ARENA_USER_ID: %w", err)
		}
		cfg.userID = id
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func main() {
	local := flag.Bool("local", false, "run a local simulation match instead of connecting")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file, using environment")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := newLogger(cfg.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *local {
		runLocal(log)
		return
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("client exited", zap.Error(err))
	}
}

func run(cfg config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identity := types.Identity{UserID: cfg.userID, Username: cfg.username, Token: cfg.token}
	api := rest.NewClient(cfg.apiURL, cfg.token, log)
	registry := presence.NewRegistry(log)

	var orch *session.Orchestrator
	sup := channel.NewSupervisor(ctx, channel.Config{
		BaseURL: cfg.wsURL,
		Auth: func() (string, bool) {
			if orch == nil {
				return "", false
			}
			return orch.Token()
		},
		Log: log,
	})
	defer sup.Shutdown()

	orch = session.New(session.Config{
		Identity:  identity,
		Channels:  sup,
		API:       api,
		Registry:  registry,
		UI:        &consoleUI{log: log},
		Navigator: &consoleNav{log: log},
		Log:       log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := orch.Start(ctx); err != nil {
			return err
		}
		log.Info("session running", zap.Int64("user_id", identity.UserID))
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	// Synchronous teardown before exit: no reconnect timer survives.
	orch.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runLocal plays one self-driving local match and prints the score line, the
// variant with no channel and no reconnect logic.
func runLocal(log *zap.Logger) {
	notify := func(n match.Notice) {
		switch n.Kind {
		case match.NoticeScoreChanged:
			log.Info("score", zap.Int("left", n.Score[0]), zap.Int("right", n.Score[1]))
		case match.NoticeEnded:
			log.Info("match over", zap.Int("left", n.Score[0]), zap.Int("right", n.Score[1]))
		}
	}
	s := match.NewSession("local", notify, log)

	g := pong.NewGame(pong.DefaultConfig(), nil, s)
	g.SetPolicy(0, pong.FollowBall{DeadZone: 10})
	g.SetPolicy(1, pong.FollowBall{DeadZone: 64})
	g.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g.Run(ctx)

	st := g.Snapshot()
	if st.Ended {
		log.Info("winner", zap.Int("side", st.Winner))
	}
}

// consoleUI surfaces session notices as log lines; a real frontend would
// render them.
type consoleUI struct {
	log *zap.Logger
}

func (u *consoleUI) Info(msg string) { u.log.Info(msg) }

func (u *consoleUI) FriendInvited(from types.Player, friendshipID int64) {
	u.log.Info("friend invitation", zap.String("from", from.Username), zap.Int64("friendship_id", friendshipID))
}

func (u *consoleUI) FriendAccepted(by types.Player) {
	u.log.Info("friend request accepted", zap.String("by", by.Username))
}

func (u *consoleUI) GameInvited(from types.Player, invitationID int64) {
	u.log.Info("game invitation", zap.String("from", from.Username), zap.Int64("invitation_id", invitationID))
}

func (u *consoleUI) MatchNotice(matchTopic string, n match.Notice) {
	u.log.Info("match notice", zap.String("match", matchTopic), zap.String("kind", string(n.Kind)))
}

func (u *consoleUI) TournamentNotice(n tournament.Notice) {
	u.log.Info("tournament notice",
		zap.String("kind", string(n.Kind)),
		zap.String("participant", n.Participant.Username))
}

func (u *consoleUI) TournamentCreated(t types.Tournament) {
	u.log.Info("tournament created", zap.String("name", t.Name), zap.Int64("id", t.ID))
}

// consoleNav stands in for the router of a real frontend.
type consoleNav struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

func (n *consoleNav) Navigate(path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
	n.log.Info("navigate", zap.String("path", path))
}

func (n *consoleNav) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}
