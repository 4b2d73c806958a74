package pong

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pongarena/realtime/internal/match"
)

func newTestGame(t *testing.T, seed int64) (*Game, *match.Session) {
	t.Helper()
	session := match.NewSession("local", nil, nil)
	g := NewGame(DefaultConfig(), rand.New(rand.NewSource(seed)), session)
	return g, session
}

// run steps until the game ends or maxSteps is hit.
func run(t *testing.T, g *Game, maxSteps int) State {
	t.Helper()
	dt := g.cfg.Tick.Seconds()
	for i := 0; i < maxSteps; i++ {
		if g.Step(dt) {
			return g.Snapshot()
		}
	}
	return g.Snapshot()
}

func TestGame_BallExitsLeftScoresRight(t *testing.T) {
	g, _ := newTestGame(t, 1)
	g.Start()

	// Park both paddles out of the way and fire the ball straight left.
	g.mu.Lock()
	g.state.Paddles = [2]float64{0, 0}
	g.state.BallX = 100
	g.state.BallY = 300
	g.state.VelX = -300
	g.state.VelY = 0
	g.mu.Unlock()

	before := g.Snapshot().Score
	dt := g.cfg.Tick.Seconds()
	st := g.Snapshot()
	for i := 0; i < 200 && st.Score == before; i++ {
		g.Step(dt)
		st = g.Snapshot()
	}

	if st.Score[1] != before[1]+1 {
		t.Fatalf("right player should score on left exit: before %v, after %v", before, st.Score)
	}
	if st.Score[0] != before[0] {
		t.Fatalf("left player score must not change: before %v, after %v", before, st.Score)
	}
}

func TestGame_WinAtThreeEndsWithWinner(t *testing.T) {
	g, session := newTestGame(t, 2)
	g.Start()

	// Right seat can never return the ball; left never misses.
	g.SetPolicy(0, FollowBall{})
	g.mu.Lock()
	g.state.Paddles[1] = 0
	g.mu.Unlock()

	st := run(t, g, 100000)
	if !st.Ended {
		t.Fatalf("game did not end")
	}
	if st.Winner != 0 {
		t.Fatalf("want winner 0, got %d (score %v)", st.Winner, st.Score)
	}
	if st.Score[0] != g.cfg.WinScore {
		t.Fatalf("winner score %d, want %d", st.Score[0], g.cfg.WinScore)
	}

	snap := session.Snapshot()
	if snap.Phase != match.PhaseEnded {
		t.Fatalf("session phase after win: want %s, got %s", match.PhaseEnded, snap.Phase)
	}
	if snap.Score != st.Score {
		t.Fatalf("session score %v, engine score %v", snap.Score, st.Score)
	}
}

func TestGame_SessionSeesSameContractAsRemote(t *testing.T) {
	g, session := newTestGame(t, 3)
	g.Start()

	snap := session.Snapshot()
	if snap.Phase != match.PhaseInProgress {
		t.Fatalf("local start should reach in_progress, got %s", snap.Phase)
	}
	if !snap.Joined[0] || !snap.Joined[1] || !snap.Ready[0] || !snap.Ready[1] {
		t.Fatalf("local start should join and ready both seats: %+v", snap)
	}

	g.Step(g.cfg.Tick.Seconds())
	snap = session.Snapshot()
	if snap.Ball.X == 0 && snap.Ball.Y == 0 {
		t.Fatalf("gameState frames not reaching the session")
	}
}

func TestGame_ServeAngleFromFixedSet(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		g, _ := newTestGame(t, seed)
		g.Start()

		st := g.Snapshot()
		speed := math.Hypot(st.VelX, st.VelY)
		if math.Abs(speed-g.cfg.BaseSpeed) > 1e-9 {
			t.Fatalf("seed %d: serve speed %f, want %f", seed, speed, g.cfg.BaseSpeed)
		}

		angle := math.Abs(math.Atan2(st.VelY, st.VelX)) * 180 / math.Pi
		if angle > 90 {
			angle = 180 - angle // left-mirrored
		}
		ok := false
		for _, want := range serveAngles {
			if math.Abs(angle-want) < 1e-6 {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("seed %d: serve angle %f not in %v", seed, angle, serveAngles)
		}
	}
}

func TestGame_WallBounceReflectsVertical(t *testing.T) {
	g, _ := newTestGame(t, 4)
	g.Start()

	g.mu.Lock()
	g.state.BallX = 400
	g.state.BallY = g.cfg.BallRadius + 1
	g.state.VelX = 100
	g.state.VelY = -300
	g.mu.Unlock()

	g.Step(g.cfg.Tick.Seconds())

	st := g.Snapshot()
	if st.VelY <= 0 {
		t.Fatalf("ball should bounce off the top wall, vel y = %f", st.VelY)
	}
	if st.BallY < g.cfg.BallRadius {
		t.Fatalf("ball escaped the field: y = %f", st.BallY)
	}
}

func TestGame_RallySpeedsBallUp(t *testing.T) {
	g, _ := newTestGame(t, 5)
	g.Start()

	// Aim the ball at the left paddle, paddle held on the ball's line.
	g.mu.Lock()
	g.state.Paddles[0] = 300
	g.state.BallX = g.cfg.PaddleInset + g.cfg.BallRadius + 2
	g.state.BallY = 300
	g.state.VelX = -g.cfg.BaseSpeed
	g.state.VelY = 0
	g.mu.Unlock()

	g.Step(g.cfg.Tick.Seconds())

	st := g.Snapshot()
	if st.VelX <= 0 {
		t.Fatalf("ball should reflect off the paddle, vel x = %f", st.VelX)
	}
	speed := math.Hypot(st.VelX, st.VelY)
	if speed <= g.cfg.BaseSpeed {
		t.Fatalf("rally should nudge speed up: %f <= %f", speed, g.cfg.BaseSpeed)
	}
	if st.Rally != 1 {
		t.Fatalf("rally count: want 1, got %d", st.Rally)
	}
}

func TestGame_DeterministicUnderSeed(t *testing.T) {
	play := func() State {
		g, _ := newTestGame(t, 42)
		g.Start()
		g.SetPolicy(0, FollowBall{DeadZone: 8})
		g.SetPolicy(1, FollowBall{DeadZone: 40})
		return run(t, g, 200000)
	}

	a, b := play(), play()
	if a != b {
		t.Fatalf("same seed diverged:\n%+v\n%+v", a, b)
	}
}

func TestGame_StepBeforeStartIsNoop(t *testing.T) {
	g, session := newTestGame(t, 6)

	if ended := g.Step(g.cfg.Tick.Seconds()); ended {
		t.Fatalf("unstarted game reported ended")
	}
	if got := session.Snapshot().Phase; got != match.PhaseConnecting {
		t.Fatalf("unstarted game touched the session: %s", got)
	}
}
