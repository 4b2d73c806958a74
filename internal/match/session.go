package match

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pongarena/realtime/pkg/types"
)

type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseWaiting    Phase = "waiting_for_players"
	PhaseReadyCheck Phase = "ready_check"
	PhaseInProgress Phase = "in_progress"
	PhaseEnded      Phase = "ended"
)

// Notices are what the rendering layer consumes. The session never renders
// anything itself; it surfaces these and lets the consumer decide.
type NoticeKind string

const (
	// Opponent joined; surface the ready-up affordance.
	NoticeOpponentJoined NoticeKind = "opponent_joined"
	NoticeBothConnected  NoticeKind = "both_connected"
	// A side dropped mid-game. Self distinguishes own vs opponent.
	NoticeDisconnected NoticeKind = "disconnected"
	// Both sides ready; dismiss the ready affordance for both.
	NoticeReadyDismissed NoticeKind = "ready_dismissed"
	NoticeScoreChanged   NoticeKind = "score_changed"
	NoticeEnded          NoticeKind = "ended"
	// Application-level error event; status text only, not fatal here.
	NoticeStatus NoticeKind = "status"
)

type Notice struct {
	Kind    NoticeKind
	Side    int
	Self    bool
	Score   [2]int
	Message string
}

type Snapshot struct {
	MatchID string
	Phase   Phase
	Side    int // own seat, -1 until connection_established
	Joined  [2]bool
	Ready   [2]bool
	Score   [2]int
	Paddles [2]float64
	Ball    types.Ball
	Status  string
}

// Session drives one match. Remote matches feed it events decoded off the
// game channel; local variants synthesize the same events, so the observable
// contract is identical. Events for one session always arrive from a single
// goroutine (the channel reader or the simulation loop); the mutex covers
// concurrent Snapshot readers.
type Session struct {
	mu      sync.Mutex
	matchID string
	phase   Phase
	side    int
	joined  [2]bool
	ready   [2]bool
	score   [2]int
	paddles [2]float64
	ball    types.Ball
	status  string

	notify func(Notice)
	log    *zap.Logger
}

func NewSession(matchID string, notify func(Notice), log *zap.Logger) *Session {
	if notify == nil {
		notify = func(Notice) {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		matchID: matchID,
		phase:   PhaseConnecting,
		side:    -1,
		notify:  notify,
		log:     log,
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		MatchID: s.matchID,
		Phase:   s.phase,
		Side:    s.side,
		Joined:  s.joined,
		Ready:   s.ready,
		Score:   s.score,
		Paddles: s.paddles,
		Ball:    s.ball,
		Status:  s.status,
	}
}

// HandleEvent applies one inbound game event. Once ended, the phase is
// sticky: late events cannot resurrect the match.
func (s *Session) HandleEvent(ev types.GameEvent) {
	s.mu.Lock()
	notices := s.apply(ev)
	s.mu.Unlock()

	for _, n := range notices {
		s.notify(n)
	}
}

func (s *Session) apply(ev types.GameEvent) []Notice {
	if s.phase == PhaseEnded {
		s.log.Debug("event after end dropped",
			zap.String("match_id", s.matchID),
			zap.String("type", ev.Type))
		return nil
	}

	switch ev.Type {
	case types.EvtConnectionEstablished:
		if ev.Side == nil || !validSide(*ev.Side) {
			return s.drop(ev)
		}
		s.side = *ev.Side
		s.joined[s.side] = true
		if s.phase == PhaseConnecting {
			s.phase = PhaseWaiting
		}
		return s.afterJoin(s.side)

	case types.EvtPlayerConnected:
		if ev.Side == nil || !validSide(*ev.Side) {
			return s.drop(ev)
		}
		s.joined[*ev.Side] = true
		return s.afterJoin(*ev.Side)

	case types.EvtPlayerDisconnected:
		if ev.Side == nil || !validSide(*ev.Side) {
			return s.drop(ev)
		}
		if s.phase == PhaseInProgress {
			// The match may resume if the peer comes back; no transition.
			return []Notice{{Kind: NoticeDisconnected, Side: *ev.Side, Self: *ev.Side == s.side}}
		}
		s.joined[*ev.Side] = false
		s.ready[*ev.Side] = false
		return nil

	case types.EvtPlayerReady:
		if ev.Side == nil || !validSide(*ev.Side) {
			return s.drop(ev)
		}
		s.ready[*ev.Side] = true
		var notices []Notice
		// The first ready observed starts the game; repeats are no-ops.
		if s.phase == PhaseWaiting || s.phase == PhaseReadyCheck {
			s.phase = PhaseInProgress
		}
		if s.ready[0] && s.ready[1] {
			notices = append(notices, Notice{Kind: NoticeReadyDismissed})
		}
		return notices

	case types.EvtGameState:
		for i, p := range ev.Paddles {
			if i > 1 {
				break
			}
			s.paddles[i] = p.Y
		}
		if ev.Ball != nil {
			s.ball = *ev.Ball
		}
		return nil

	case types.EvtScore:
		if len(ev.Score) != 2 {
			return s.drop(ev)
		}
		s.score = [2]int{ev.Score[0], ev.Score[1]}
		return []Notice{{Kind: NoticeScoreChanged, Score: s.score}}

	case types.EvtEndGame:
		s.phase = PhaseEnded
		return []Notice{{Kind: NoticeEnded, Score: s.score}}

	case types.EvtError:
		s.status = ev.Message
		return []Notice{{Kind: NoticeStatus, Message: ev.Message}}

	default:
		return s.drop(ev)
	}
}

func (s *Session) afterJoin(side int) []Notice {
	var notices []Notice
	if s.side >= 0 && side != s.side {
		notices = append(notices, Notice{Kind: NoticeOpponentJoined, Side: side})
	}
	if s.joined[0] && s.joined[1] {
		notices = append(notices, Notice{Kind: NoticeBothConnected})
		if s.phase == PhaseWaiting {
			s.phase = PhaseReadyCheck
		}
	}
	return notices
}

func (s *Session) drop(ev types.GameEvent) []Notice {
	s.log.Warn("malformed game event dropped",
		zap.String("match_id", s.matchID),
		zap.String("type", ev.Type))
	return nil
}

func validSide(side int) bool { return side == 0 || side == 1 }
