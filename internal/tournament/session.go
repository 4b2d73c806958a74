package tournament

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pongarena/realtime/pkg/types"
)

type State string

const (
	StateNone            State = "no_tournament"
	StateJoining         State = "joining"
	StateBracketForming  State = "bracket_forming"
	StateBracketComplete State = "bracket_complete"
	StateCompleted       State = "completed"
)

type NoticeKind string

const (
	// Someone else joined; surface "X joined".
	NoticeJoined NoticeKind = "participant_joined"
	// The bracket filled; show it instead of the join list.
	NoticeShowBracket NoticeKind = "show_bracket"
	// Targeted at the local identity: its match is starting.
	NoticeYourMatch NoticeKind = "your_match"
	// Bracket results replaced wholesale after a game finished.
	NoticeSummaryUpdated NoticeKind = "summary_updated"
	// The final completed; the session has been cleared.
	NoticeCompleted NoticeKind = "completed"
)

type Notice struct {
	Kind        NoticeKind
	Participant types.Player
	GameURL     string
}

type Snapshot struct {
	State      State
	Tournament types.Tournament
}

// Session tracks the one tournament the identity is in. Once the final
// completes the session clears itself; anything arriving for the concluded
// tournament afterwards is a no-op.
type Session struct {
	mu     sync.Mutex
	selfID int64
	state  State
	t      *types.Tournament

	notify func(Notice)
	log    *zap.Logger
}

func NewSession(selfID int64, notify func(Notice), log *zap.Logger) *Session {
	if notify == nil {
		notify = func(Notice) {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		selfID: selfID,
		state:  StateNone,
		notify: notify,
		log:    log,
	}
}

// Seed installs the tournament returned by a create/join/current-tournament
// call and derives the starting state from how full it already is.
func (s *Session) Seed(t types.Tournament) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Finished() {
		// Joining a concluded tournament makes no sense; stay absent.
		s.log.Warn("seed ignored: tournament already finished", zap.Int64("tournament_id", t.ID))
		return
	}
	s.t = &t
	if len(t.Participants) >= t.ParticipantsAmount {
		s.state = StateBracketComplete
	} else {
		s.state = StateJoining
	}
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateNone
}

func (s *Session) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t == nil {
		return 0
	}
	return s.t.ID
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: s.state}
	if s.t != nil {
		snap.Tournament = *s.t
	}
	return snap
}

func (s *Session) HandleEvent(ev types.TournamentEvent) {
	s.mu.Lock()
	notices := s.apply(ev)
	s.mu.Unlock()

	for _, n := range notices {
		s.notify(n)
	}
}

func (s *Session) apply(ev types.TournamentEvent) []Notice {
	if s.state == StateNone {
		// Cleared or never seeded: a stale late message is a no-op.
		s.log.Debug("tournament event dropped: no active tournament", zap.String("type", ev.Type))
		return nil
	}

	switch ev.Type {
	case types.EvtTournamentJoin:
		return s.applyJoin(ev)

	case types.EvtTournamentStartGame:
		if ev.ParticipantID != s.selfID {
			// Targeted signal for somebody else's match.
			return nil
		}
		return []Notice{{Kind: NoticeYourMatch, GameURL: ev.GameURL}}

	case types.EvtTournamentGameOver:
		if ev.Tournament == nil {
			s.log.Warn("game_over without tournament payload dropped")
			return nil
		}
		// The payload carries updated semifinal/final results; replace
		// wholesale rather than merging.
		t := *ev.Tournament
		s.t = &t
		notices := []Notice{{Kind: NoticeSummaryUpdated}}
		if t.Finished() {
			s.clearLocked()
			notices = append(notices, Notice{Kind: NoticeCompleted})
		}
		return notices

	default:
		s.log.Warn("unknown tournament event dropped", zap.String("type", ev.Type))
		return nil
	}
}

// applyJoin appends unseen participants (set-like by id, rendering order is
// insertion order) and flips to the bracket once the tournament is full.
func (s *Session) applyJoin(ev types.TournamentEvent) []Notice {
	if ev.Tournament == nil {
		s.log.Warn("join without tournament payload dropped")
		return nil
	}

	var joined []types.Player
	for _, p := range ev.Tournament.Participants {
		if !s.t.HasParticipant(p.ID) {
			s.t.Participants = append(s.t.Participants, p)
			joined = append(joined, p)
		}
	}
	if ev.Tournament.ParticipantsAmount > 0 {
		s.t.ParticipantsAmount = ev.Tournament.ParticipantsAmount
	}

	if len(s.t.Participants) >= s.t.ParticipantsAmount {
		s.state = StateBracketComplete
		return []Notice{{Kind: NoticeShowBracket}}
	}

	s.state = StateBracketForming
	var notices []Notice
	for _, p := range joined {
		if p.ID == s.selfID {
			continue // own join needs no announcement
		}
		notices = append(notices, Notice{Kind: NoticeJoined, Participant: p})
	}
	return notices
}

// Clear drops the session, e.g. when the user leaves the tournament.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.state = StateNone
	s.t = nil
}
