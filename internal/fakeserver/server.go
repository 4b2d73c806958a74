// Package fakeserver is a scriptable stand-in for the platform's realtime
// backend, used by integration tests. It accepts the same
// {base}/{topic}/?token= connections the production server does and replays
// whatever payloads a test pushes per topic.
package fakeserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type client struct {
	id   string
	conn *websocket.Conn
}

type Server struct {
	httpSrv *httptest.Server
	log     *zap.Logger

	mu      sync.Mutex
	clients map[string][]*client // topic -> connected clients

	// inbound records every frame a client sent, per topic.
	inbound map[string][][]byte
}

func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:     log,
		clients: make(map[string][]*client),
		inbound: make(map[string][][]byte),
	}

	r := chi.NewRouter()
	r.Get("/ws/*", s.handleWS)
	s.httpSrv = httptest.NewServer(r)
	return s
}

// URL is the ws base the supervisor should dial, e.g. ws://127.0.0.1:1234/ws.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, clients := range s.clients {
		for _, c := range clients {
			_ = c.conn.Close(websocket.StatusGoingAway, "shutdown")
		}
	}
	clear(s.clients)
	s.mu.Unlock()
	s.httpSrv.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSuffix(chi.URLParam(r, "*"), "/")
	if r.URL.Query().Get("token") == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.clients[topic] = append(s.clients[topic], c)
	s.mu.Unlock()
	s.log.Info("fake server: client connected", zap.String("topic", topic), zap.String("client", c.id))

	// Reader: record outbound frames from the client until it goes away.
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			break
		}
		s.mu.Lock()
		s.inbound[topic] = append(s.inbound[topic], data)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.remove(topic, c)
	s.mu.Unlock()
	s.log.Info("fake server: client gone", zap.String("topic", topic), zap.String("client", c.id))
}

func (s *Server) remove(topic string, target *client) {
	clients := s.clients[topic]
	for i, c := range clients {
		if c == target {
			s.clients[topic] = append(clients[:i], clients[i+1:]...)
			return
		}
	}
}

// Push sends one payload to every client connected on topic.
func (s *Server) Push(ctx context.Context, topic string, payload []byte) {
	s.mu.Lock()
	clients := append([]*client(nil), s.clients[topic]...)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Write(ctx, websocket.MessageText, payload)
	}
}

// Drop abruptly closes every connection on topic, simulating a transport
// failure the client did not ask for.
func (s *Server) Drop(topic string) {
	s.mu.Lock()
	clients := s.clients[topic]
	delete(s.clients, topic)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusInternalError, "dropped")
	}
}

// ClientCount reports how many connections topic currently has.
func (s *Server) ClientCount(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients[topic])
}

// Sent returns the frames clients wrote on topic.
func (s *Server) Sent(topic string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.inbound[topic]))
	copy(out, s.inbound[topic])
	return out
}
