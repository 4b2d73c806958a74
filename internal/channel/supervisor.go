package channel

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotAuthenticated = errors.New("channel: identity not authenticated")
	ErrNotOpen          = errors.New("channel: not open")
)

// Handler receives every inbound frame of one channel, in arrival order, on
// that channel's reader goroutine. A payload the handler cannot parse must be
// dropped by the handler; the supervisor only guarantees it survives a
// panicking handler.
type Handler func(data []byte)

type Config struct {
	// BaseURL is the ws endpoint prefix; the dial target is
	// {BaseURL}/{topic}/?token={accessToken}.
	BaseURL string
	// Auth reports the current access token and whether the identity is
	// still authenticated. Checked on every open and again when a
	// reconnect timer fires.
	Auth func() (token string, ok bool)

	Dialer         Dialer
	DialTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 3s
	ReconnectDelay time.Duration // default 3s
	Log            *zap.Logger
}

type supMsg interface{ isSupMsg() }

type openMsg struct {
	topic   string
	handler Handler
	reply   chan error
}

type closeMsg struct {
	topic string
	reply chan struct{}
}

type closeAllMsg struct {
	reply chan struct{}
}

type sendMsg struct {
	topic string
	data  []byte
	reply chan error
}

type isOpenMsg struct {
	topic string
	reply chan bool
}

type connLost struct {
	topic string
	gen   uint64
}

type redial struct {
	topic string
	gen   uint64
}

func (openMsg) isSupMsg()     {}
func (closeMsg) isSupMsg()    {}
func (closeAllMsg) isSupMsg() {}
func (sendMsg) isSupMsg()     {}
func (isOpenMsg) isSupMsg()   {}
func (connLost) isSupMsg()    {}
func (redial) isSupMsg()      {}

// entry is one tracked channel. conn is nil while a reconnect is pending; the
// entry stays tracked so the topic still counts as open.
type entry struct {
	topic   string
	gen     uint64
	handler Handler
	conn    Conn
	timer   *time.Timer
	cancel  context.CancelFunc
}

// Supervisor owns every live channel of the current identity. All mutation
// happens on its loop goroutine; each channel's frames are dispatched from a
// dedicated reader goroutine.
type Supervisor struct {
	cfg     Config
	inbox   chan supMsg
	chans   map[string]*entry
	nextGen uint64
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSupervisor(parent context.Context, cfg Config) *Supervisor {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		cfg:    cfg,
		inbox:  make(chan supMsg, 64),
		chans:  make(map[string]*entry),
		log:    cfg.Log,
		ctx:    ctx,
		cancel: cancel,
	}
	go s.loop()
	return s
}

// Open dials the topic and starts dispatching its frames to handler. Already
// open topics (including those mid-reconnect) are a no-op. Without an
// authenticated identity it is a warning no-op reported as
// ErrNotAuthenticated.
func (s *Supervisor) Open(topic string, handler Handler) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- openMsg{topic: topic, handler: handler, reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Close tears one channel down for good: no reconnect fires afterwards. Safe
// to call on a topic that is already closed.
func (s *Supervisor) Close(topic string) {
	reply := make(chan struct{}, 1)
	select {
	case s.inbox <- closeMsg{topic: topic, reply: reply}:
		<-reply
	case <-s.ctx.Done():
	}
}

// CloseAll closes every tracked channel and clears tracking, so no stale
// reconnect timer survives. Must be called on logout and on teardown.
func (s *Supervisor) CloseAll() {
	reply := make(chan struct{}, 1)
	select {
	case s.inbox <- closeAllMsg{reply: reply}:
		<-reply
	case <-s.ctx.Done():
	}
}

// Send serializes one outbound message on an open channel.
func (s *Supervisor) Send(topic string, data []byte) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- sendMsg{topic: topic, data: data, reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// IsOpen reports whether the topic is tracked. A channel waiting on its
// reconnect timer still counts as open.
func (s *Supervisor) IsOpen(topic string) bool {
	reply := make(chan bool, 1)
	select {
	case s.inbox <- isOpenMsg{topic: topic, reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		return false
	}
}

// Shutdown stops the loop after closing everything.
func (s *Supervisor) Shutdown() {
	s.CloseAll()
	s.cancel()
}

func (s *Supervisor) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.closeAll()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case openMsg:
				msg.reply <- s.open(msg.topic, msg.handler)

			case closeMsg:
				s.close(msg.topic)
				msg.reply <- struct{}{}

			case closeAllMsg:
				s.closeAll()
				msg.reply <- struct{}{}

			case sendMsg:
				msg.reply <- s.send(msg.topic, msg.data)

			case isOpenMsg:
				_, ok := s.chans[msg.topic]
				msg.reply <- ok

			case connLost:
				s.onConnLost(msg)

			case redial:
				s.onRedial(msg)
			}
		}
	}
}

func (s *Supervisor) open(topic string, handler Handler) error {
	if _, ok := s.chans[topic]; ok {
		s.log.Debug("channel already open", zap.String("topic", topic))
		return nil
	}

	token, ok := s.cfg.Auth()
	if !ok {
		s.log.Warn("channel open skipped: not authenticated", zap.String("topic", topic))
		return ErrNotAuthenticated
	}

	conn, err := s.dial(topic, token)
	if err != nil {
		s.log.Error("channel dial failed", zap.String("topic", topic), zap.Error(err))
		return err
	}

	s.nextGen++
	e := &entry{topic: topic, gen: s.nextGen, handler: handler, conn: conn}
	s.chans[topic] = e
	s.startReader(e)
	s.log.Info("channel open", zap.String("topic", topic))
	return nil
}

func (s *Supervisor) dial(topic, token string) (Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
	defer cancel()
	target := s.cfg.BaseURL + "/" + topic + "/?token=" + url.QueryEscape(token)
	return s.cfg.Dialer.Dial(ctx, target)
}

func (s *Supervisor) startReader(e *entry) {
	ctx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel
	go s.read(ctx, e.topic, e.gen, e.conn, e.handler)
}

func (s *Supervisor) read(ctx context.Context, topic string, gen uint64, conn Conn, handler Handler) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			select {
			case s.inbox <- connLost{topic: topic, gen: gen}:
			case <-s.ctx.Done():
			}
			return
		}
		s.dispatch(topic, handler, data)
	}
}

// dispatch isolates the supervisor from a faulty handler: a panic is logged,
// never propagated.
func (s *Supervisor) dispatch(topic string, handler Handler, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("channel handler panic", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	handler(data)
}

func (s *Supervisor) close(topic string) {
	e, ok := s.chans[topic]
	if !ok {
		return
	}
	delete(s.chans, topic)
	s.stopEntry(e)
	s.log.Info("channel closed", zap.String("topic", topic))
}

func (s *Supervisor) closeAll() {
	for topic, e := range s.chans {
		s.stopEntry(e)
		s.log.Info("channel closed", zap.String("topic", topic))
	}
	clear(s.chans)
}

func (s *Supervisor) stopEntry(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
}

// onConnLost handles an unexpected close. The entry stays tracked and a
// single reconnect is scheduled after the fixed delay. Stale notifications
// from generations already closed or replaced are dropped.
func (s *Supervisor) onConnLost(msg connLost) {
	e, ok := s.chans[msg.topic]
	if !ok || e.gen != msg.gen {
		return
	}

	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	s.log.Warn("channel lost, reconnect scheduled",
		zap.String("topic", msg.topic),
		zap.Duration("delay", s.cfg.ReconnectDelay))

	topic, gen := msg.topic, msg.gen
	e.timer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		select {
		case s.inbox <- redial{topic: topic, gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

// onRedial fires when the reconnect timer elapses. Authentication is
// re-checked at fire time: a logged-out identity leaves the channel closed.
func (s *Supervisor) onRedial(msg redial) {
	e, ok := s.chans[msg.topic]
	if !ok || e.gen != msg.gen {
		return
	}
	e.timer = nil

	token, ok := s.cfg.Auth()
	if !ok {
		delete(s.chans, msg.topic)
		s.log.Info("reconnect skipped: not authenticated", zap.String("topic", msg.topic))
		return
	}

	conn, err := s.dial(msg.topic, token)
	if err != nil {
		s.log.Error("reconnect dial failed", zap.String("topic", msg.topic), zap.Error(err))
		// Retry on the same cadence while the identity holds.
		s.onConnLost(connLost{topic: msg.topic, gen: msg.gen})
		return
	}

	s.nextGen++
	e.gen = s.nextGen
	e.conn = conn
	s.startReader(e)
	s.log.Info("channel reconnected", zap.String("topic", msg.topic))
}

func (s *Supervisor) send(topic string, data []byte) error {
	e, ok := s.chans[topic]
	if !ok || e.conn == nil {
		return ErrNotOpen
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	defer cancel()
	return e.conn.Write(ctx, data)
}
