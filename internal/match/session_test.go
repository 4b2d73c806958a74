package match

import (
	"testing"

	"github.com/pongarena/realtime/pkg/types"
)

func side(n int) *int { return &n }

type recorder struct {
	notices []Notice
}

func (r *recorder) notify(n Notice) { r.notices = append(r.notices, n) }

func (r *recorder) kinds() []NoticeKind {
	out := make([]NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recorder) has(kind NoticeKind) bool {
	for _, n := range r.notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func TestSession_FullHandshakeToInProgress(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerConnected, Side: side(1)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: side(1)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: side(0)})

	snap := s.Snapshot()
	if snap.Phase != PhaseInProgress {
		t.Fatalf("want phase %s, got %s", PhaseInProgress, snap.Phase)
	}
	if !snap.Ready[0] || !snap.Ready[1] {
		t.Fatalf("want both ready, got %v", snap.Ready)
	}
	if snap.Side != 0 {
		t.Fatalf("want own side 0, got %d", snap.Side)
	}
	if !rec.has(NoticeReadyDismissed) {
		t.Fatalf("ready affordance not dismissed; notices: %v", rec.kinds())
	}
}

func TestSession_BothConnectedFiresIffBothJoined(t *testing.T) {
	cases := []struct {
		name   string
		events []types.GameEvent
		want   bool
	}{
		{
			name: "only self joined",
			events: []types.GameEvent{
				{Type: types.EvtConnectionEstablished, Side: side(0)},
			},
			want: false,
		},
		{
			name: "opponent then self",
			events: []types.GameEvent{
				{Type: types.EvtPlayerConnected, Side: side(1)},
				{Type: types.EvtConnectionEstablished, Side: side(0)},
			},
			want: true,
		},
		{
			name: "self then opponent",
			events: []types.GameEvent{
				{Type: types.EvtConnectionEstablished, Side: side(0)},
				{Type: types.EvtPlayerConnected, Side: side(1)},
			},
			want: true,
		},
		{
			name: "opponent joined and left",
			events: []types.GameEvent{
				{Type: types.EvtConnectionEstablished, Side: side(0)},
				{Type: types.EvtPlayerConnected, Side: side(1)},
				{Type: types.EvtPlayerDisconnected, Side: side(1)},
			},
			want: true, // notice fired while both were joined
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			s := NewSession("m1", rec.notify, nil)
			for _, ev := range tc.events {
				s.HandleEvent(ev)
			}
			if got := rec.has(NoticeBothConnected); got != tc.want {
				t.Fatalf("both-connected fired=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestSession_OpponentJoinSurfacesReadyAffordance(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(1)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerConnected, Side: side(0)})

	if !rec.has(NoticeOpponentJoined) {
		t.Fatalf("expected opponent-joined notice, got %v", rec.kinds())
	}
}

func TestSession_DisconnectBeforeStartClearsSeat(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerConnected, Side: side(1)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerDisconnected, Side: side(1)})

	snap := s.Snapshot()
	if snap.Joined[1] || snap.Ready[1] {
		t.Fatalf("seat 1 should be cleared, got joined=%v ready=%v", snap.Joined, snap.Ready)
	}
	if rec.has(NoticeDisconnected) {
		t.Fatalf("pre-game disconnect must not surface a disconnect notice")
	}
}

func TestSession_DisconnectMidGameKeepsPhase(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerConnected, Side: side(1)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerDisconnected, Side: side(1)})

	snap := s.Snapshot()
	if snap.Phase != PhaseInProgress {
		t.Fatalf("mid-game disconnect must not change phase, got %s", snap.Phase)
	}
	if !snap.Joined[1] {
		t.Fatalf("mid-game disconnect must keep the seat marked joined")
	}
	found := false
	for _, n := range rec.notices {
		if n.Kind == NoticeDisconnected {
			found = true
			if n.Self {
				t.Fatalf("opponent disconnect flagged as self")
			}
		}
	}
	if !found {
		t.Fatalf("expected a disconnect notice, got %v", rec.kinds())
	}
}

func TestSession_StateAndScoreUpdates(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: side(0)})
	s.HandleEvent(types.GameEvent{
		Type:    types.EvtGameState,
		Paddles: []types.Paddle{{Y: 120}, {Y: 200}},
		Ball:    &types.Ball{X: 400, Y: 300},
	})
	s.HandleEvent(types.GameEvent{Type: types.EvtScore, Score: []int{1, 0}})

	snap := s.Snapshot()
	if snap.Paddles != [2]float64{120, 200} {
		t.Fatalf("paddles not replaced: %v", snap.Paddles)
	}
	if snap.Ball != (types.Ball{X: 400, Y: 300}) {
		t.Fatalf("ball not replaced: %v", snap.Ball)
	}
	if snap.Score != [2]int{1, 0} {
		t.Fatalf("score not replaced: %v", snap.Score)
	}
	if !rec.has(NoticeScoreChanged) {
		t.Fatalf("expected score-changed notice")
	}
}

func TestSession_EndedIsSticky(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtScore, Score: []int{3, 1}})
	s.HandleEvent(types.GameEvent{Type: types.EvtEndGame})

	// Late frames from a slow producer must not resurrect the match.
	s.HandleEvent(types.GameEvent{Type: types.EvtScore, Score: []int{3, 2}})
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerReady, Side: side(1)})

	snap := s.Snapshot()
	if snap.Phase != PhaseEnded {
		t.Fatalf("ended must be sticky, got %s", snap.Phase)
	}
	if snap.Score != [2]int{3, 1} {
		t.Fatalf("post-end score applied: %v", snap.Score)
	}
}

func TestSession_ErrorEventUpdatesStatusOnly(t *testing.T) {
	rec := &recorder{}
	s := NewSession("m1", rec.notify, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished, Side: side(0)})
	s.HandleEvent(types.GameEvent{Type: types.EvtError, Message: "opponent timeout"})

	snap := s.Snapshot()
	if snap.Status != "opponent timeout" {
		t.Fatalf("status not recorded: %q", snap.Status)
	}
	if snap.Phase != PhaseWaiting {
		t.Fatalf("error event must not transition phase, got %s", snap.Phase)
	}
}

func TestSession_MalformedEventsDropped(t *testing.T) {
	s := NewSession("m1", nil, nil)

	s.HandleEvent(types.GameEvent{Type: types.EvtConnectionEstablished}) // no side
	s.HandleEvent(types.GameEvent{Type: types.EvtPlayerConnected, Side: side(5)})
	s.HandleEvent(types.GameEvent{Type: "bogus"})
	s.HandleEvent(types.GameEvent{Type: types.EvtScore, Score: []int{1}})

	snap := s.Snapshot()
	if snap.Phase != PhaseConnecting || snap.Side != -1 {
		t.Fatalf("malformed events mutated state: %+v", snap)
	}
}
