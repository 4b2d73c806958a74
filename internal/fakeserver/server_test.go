package fakeserver

import (
	"context"
	"testing"
	"time"

	"github.com/pongarena/realtime/internal/channel"
	"github.com/pongarena/realtime/internal/presence"
	"github.com/pongarena/realtime/pkg/types"
)

// These tests run the real supervisor against a live websocket endpoint, the
// closest thing to the production wiring the repo can exercise locally.

func newLiveSupervisor(t *testing.T, srv *Server) *channel.Supervisor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := channel.NewSupervisor(ctx, channel.Config{
		BaseURL:        srv.URL(),
		Auth:           func() (string, bool) { return "tok", true },
		ReconnectDelay: 50 * time.Millisecond,
	})
	t.Cleanup(s.Shutdown)
	return s
}

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", within)
}

func TestLiveChannel_PresenceDeltaFlowsToRegistry(t *testing.T) {
	srv := New(nil)
	defer srv.Close()
	sup := newLiveSupervisor(t, srv)
	reg := presence.NewRegistry(nil)

	err := sup.Open("online-status", func(data []byte) {
		delta, err := types.ParsePresenceDelta(data)
		if err != nil {
			return
		}
		reg.ApplyDelta(delta)
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	waitFor(t, time.Second, func() bool { return srv.ClientCount("online-status") == 1 })
	srv.Push(context.Background(), "online-status",
		[]byte(`{"user_id":5,"username":"ada","is_online":true,"last_seen":"2026-08-29T10:00:00Z"}`))

	waitFor(t, time.Second, func() bool {
		e, ok := reg.Get(5)
		return ok && e.Online
	})
}

func TestLiveChannel_ReconnectAfterDrop(t *testing.T) {
	srv := New(nil)
	defer srv.Close()
	sup := newLiveSupervisor(t, srv)

	if err := sup.Open("online-status", func([]byte) {}); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, time.Second, func() bool { return srv.ClientCount("online-status") == 1 })

	srv.Drop("online-status")
	// The supervisor comes back on its fixed delay without being asked.
	waitFor(t, 2*time.Second, func() bool { return srv.ClientCount("online-status") == 1 })
}

func TestLiveChannel_OutboundEventsReachServer(t *testing.T) {
	srv := New(nil)
	defer srv.Close()
	sup := newLiveSupervisor(t, srv)

	if err := sup.Open("pong/1", func([]byte) {}); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, time.Second, func() bool { return srv.ClientCount("pong/1") == 1 })

	if err := sup.Send("pong/1", []byte(`{"type":"player_ready"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(srv.Sent("pong/1")) == 1 })
}
