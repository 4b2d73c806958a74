package pong

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pongarena/realtime/internal/match"
	"github.com/pongarena/realtime/pkg/types"
)

// Local match variants: same-device 2-player and vs-AI. No channel, no
// reconnect logic; a fixed-timestep simulation that feeds the shared match
// session the exact events a remote server would, so score/ended observers
// cannot tell the variants apart.

type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
)

type Config struct {
	Width        float64
	Height       float64
	PaddleHeight float64
	PaddleInset  float64 // distance from wall to paddle face
	PaddleSpeed  float64 // units per second
	BallRadius   float64
	BaseSpeed    float64 // serve speed, units per second
	SpeedRamp    float64 // added per rally, scaled logarithmically
	WinScore     int
	Tick         time.Duration
}

func DefaultConfig() Config {
	return Config{
		Width:        800,
		Height:       600,
		PaddleHeight: 100,
		PaddleInset:  30,
		PaddleSpeed:  360,
		BallRadius:   8,
		BaseSpeed:    300,
		SpeedRamp:    40,
		WinScore:     3,
		Tick:         16 * time.Millisecond,
	}
}

// Serve angles in degrees, mirrored left/right and up/down at random.
var serveAngles = []float64{30, 45, 60}

type State struct {
	BallX, BallY float64
	VelX, VelY   float64
	Paddles      [2]float64 // paddle center y, index = side
	Score        [2]int
	Rally        int
	Ended        bool
	Winner       int // meaningful only once Ended
}

// Policy decides paddle movement for a seat each tick. Injecting one turns a
// seat into an AI player; seats without a policy take SetInput.
type Policy interface {
	Move(s State, side int) Direction
}

// Game is the deterministic-by-seed simulation. All randomness flows through
// the injected rand source (serves only), so a seeded game replays exactly.
type Game struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	rng     *rand.Rand
	session *match.Session
	inputs  [2]Direction
	policy  [2]Policy
	started bool
}

func NewGame(cfg Config, rng *rand.Rand, session *match.Session) *Game {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g := &Game{cfg: cfg, rng: rng, session: session}
	g.state.Paddles = [2]float64{cfg.Height / 2, cfg.Height / 2}
	g.state.BallX = cfg.Width / 2
	g.state.BallY = cfg.Height / 2
	return g
}

// SetPolicy installs an AI for one seat. Must be called before Start.
func (g *Game) SetPolicy(side int, p Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy[side] = p
}

// SetInput sets the held direction for a manually controlled seat.
func (g *Game) SetInput(side int, dir Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs[side] = dir
}

// Start walks the session through the same handshake a server would drive,
// then serves. There is no connecting phase to wait out locally.
func (g *Game) Start() {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.serveLocked(g.rng.Intn(2) == 0)
	g.mu.Unlock()

	zero, one := 0, 1
	g.session.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: &zero})
	g.session.HandleEvent(types.GameEvent{Type: types.EvtPlayerConnected, Side: &one})
	g.session.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: &zero})
	g.session.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: &one})
}

// Run drives fixed-timestep ticks until the match ends or ctx is cancelled.
func (g *Game) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Tick)
	defer ticker.Stop()

	dt := g.cfg.Tick.Seconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.Step(dt) {
				return
			}
		}
	}
}

func (g *Game) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Step advances the simulation by dt seconds and reports whether the match
// has ended. Exported so tests can drive time directly.
func (g *Game) Step(dt float64) bool {
	g.mu.Lock()
	if !g.started || g.state.Ended {
		ended := g.state.Ended
		g.mu.Unlock()
		return ended
	}

	g.movePaddles(dt)
	g.moveBall(dt)
	scored, scorer := g.checkGoal()

	st := g.state
	g.mu.Unlock()

	g.session.HandleEvent(types.GameEvent{
		Type:    types.EvtGameState,
		Paddles: []types.Paddle{{Y: st.Paddles[0]}, {Y: st.Paddles[1]}},
		Ball:    &types.Ball{X: st.BallX, Y: st.BallY},
	})
	if scored {
		g.session.HandleEvent(types.GameEvent{Type: types.EvtScore, Score: []int{st.Score[0], st.Score[1]}})
		if st.Score[scorer] >= g.cfg.WinScore {
			g.session.HandleEvent(types.GameEvent{Type: types.EvtEndGame})
		}
	}
	return st.Ended
}

func (g *Game) movePaddles(dt float64) {
	half := g.cfg.PaddleHeight / 2
	for side := 0; side < 2; side++ {
		dir := g.inputs[side]
		if g.policy[side] != nil {
			dir = g.policy[side].Move(g.state, side)
		}
		switch dir {
		case DirUp:
			g.state.Paddles[side] -= g.cfg.PaddleSpeed * dt
		case DirDown:
			g.state.Paddles[side] += g.cfg.PaddleSpeed * dt
		}
		g.state.Paddles[side] = clamp(g.state.Paddles[side], half, g.cfg.Height-half)
	}
}

func (g *Game) moveBall(dt float64) {
	s := &g.state
	s.BallX += s.VelX * dt
	s.BallY += s.VelY * dt

	// Wall bounce.
	if s.BallY-g.cfg.BallRadius < 0 {
		s.BallY = g.cfg.BallRadius
		s.VelY = -s.VelY
	} else if s.BallY+g.cfg.BallRadius > g.cfg.Height {
		s.BallY = g.cfg.Height - g.cfg.BallRadius
		s.VelY = -s.VelY
	}

	half := g.cfg.PaddleHeight / 2
	leftFace := g.cfg.PaddleInset
	rightFace := g.cfg.Width - g.cfg.PaddleInset

	if s.VelX < 0 && s.BallX-g.cfg.BallRadius <= leftFace &&
		math.Abs(s.BallY-s.Paddles[0]) <= half {
		s.BallX = leftFace + g.cfg.BallRadius
		g.reflectLocked(1)
	} else if s.VelX > 0 && s.BallX+g.cfg.BallRadius >= rightFace &&
		math.Abs(s.BallY-s.Paddles[1]) <= half {
		s.BallX = rightFace - g.cfg.BallRadius
		g.reflectLocked(-1)
	}
}

// reflectLocked flips the ball off a paddle and nudges speed up on a gentle
// logarithmic curve per rally.
func (g *Game) reflectLocked(dirX float64) {
	s := &g.state
	s.Rally++
	speed := g.cfg.BaseSpeed + g.cfg.SpeedRamp*math.Log1p(float64(s.Rally))
	angle := math.Atan2(s.VelY, math.Abs(s.VelX))
	s.VelX = dirX * speed * math.Cos(angle)
	s.VelY = speed * math.Sin(angle)
}

// checkGoal awards a point when the ball exits a side. Exiting the left
// boundary scores for the right player and vice versa.
func (g *Game) checkGoal() (scored bool, scorer int) {
	s := &g.state
	switch {
	case s.BallX+g.cfg.BallRadius < 0:
		scorer = 1
	case s.BallX-g.cfg.BallRadius > g.cfg.Width:
		scorer = 0
	default:
		return false, 0
	}

	s.Score[scorer]++
	if s.Score[scorer] >= g.cfg.WinScore {
		s.Ended = true
		s.Winner = scorer
		return true, scorer
	}
	// Serve toward the player who conceded.
	g.serveLocked(scorer == 1)
	return true, scorer
}

// serveLocked resets the ball at center with a fresh serve angle. toLeft
// picks the horizontal mirror; the vertical mirror is random.
func (g *Game) serveLocked(toLeft bool) {
	s := &g.state
	s.Rally = 0
	s.BallX = g.cfg.Width / 2
	s.BallY = g.cfg.Height / 2

	angle := serveAngles[g.rng.Intn(len(serveAngles))] * math.Pi / 180
	vx := g.cfg.BaseSpeed * math.Cos(angle)
	vy := g.cfg.BaseSpeed * math.Sin(angle)
	if toLeft {
		vx = -vx
	}
	if g.rng.Intn(2) == 0 {
		vy = -vy
	}
	s.VelX, s.VelY = vx, vy
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
