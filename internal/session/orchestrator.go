package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pongarena/realtime/internal/channel"
	"github.com/pongarena/realtime/internal/match"
	"github.com/pongarena/realtime/internal/presence"
	"github.com/pongarena/realtime/internal/tournament"
	"github.com/pongarena/realtime/pkg/types"
)

var ErrNotAuthenticated = errors.New("session: identity not authenticated")

const (
	topicPresence        = "online-status"
	topicOpenTournaments = "open-tournaments"
	matchPathPrefix      = "/game/"
	tournamentPath       = "/tournament"
)

// Channels is what the orchestrator needs from the channel supervisor. The
// orchestrator is the only component allowed to open or close channels.
type Channels interface {
	Open(topic string, handler channel.Handler) error
	Close(topic string)
	CloseAll()
	Send(topic string, data []byte) error
	IsOpen(topic string) bool
}

// API is the REST backend surface the handlers call.
type API interface {
	CurrentTournament(ctx context.Context) (*types.Tournament, error)
	CreateTournament(ctx context.Context, name string, amount int) (*types.Tournament, error)
	JoinTournament(ctx context.Context, id int64) (*types.Tournament, error)
	AcceptFriendInvite(ctx context.Context, friendshipID int64) error
	AcceptGameInvite(ctx context.Context, invitationID int64) (string, error)
	OnlineStatuses(ctx context.Context) ([]types.PresenceDelta, error)
}

// UI receives everything the rendering layer should surface. Implementations
// must not block.
type UI interface {
	Info(msg string)
	FriendInvited(from types.Player, friendshipID int64)
	FriendAccepted(by types.Player)
	GameInvited(from types.Player, invitationID int64)
	MatchNotice(matchTopic string, n match.Notice)
	TournamentNotice(n tournament.Notice)
	TournamentCreated(t types.Tournament)
}

// Navigator abstracts page navigation, the one side effect that leaves this
// layer.
type Navigator interface {
	Navigate(path string)
	Current() string
}

type Config struct {
	Identity  types.Identity
	Channels  Channels
	API       API
	Registry  *presence.Registry
	UI        UI
	Navigator Navigator
	Log       *zap.Logger
}

// Orchestrator owns the live channels and sessions of one authenticated
// identity. Nothing else may create or close a channel.
type Orchestrator struct {
	cfg      Config
	log      *zap.Logger
	loggedIn atomic.Bool

	mu        sync.Mutex
	matches   map[string]*match.Session // keyed by channel topic
	tour      *tournament.Session
	tourTopic string
	browse    *tournament.Browse
}

func New(cfg Config) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:     cfg,
		log:     cfg.Log,
		matches: make(map[string]*match.Session),
	}
	o.tour = tournament.NewSession(cfg.Identity.UserID, o.onTournamentNotice, cfg.Log)
	o.browse = tournament.NewBrowse(cfg.Identity.UserID, cfg.UI.TournamentCreated, cfg.Log)
	return o
}

// Token is the supervisor's auth source: the bearer token while logged in.
func (o *Orchestrator) Token() (string, bool) {
	return o.cfg.Identity.Token, o.loggedIn.Load()
}

func (o *Orchestrator) Presence() *presence.Registry { return o.cfg.Registry }

func (o *Orchestrator) Tournament() *tournament.Session { return o.tour }

func (o *Orchestrator) OpenTournaments() *tournament.Browse { return o.browse }

// Start opens the identity's standing channels. Safe to call again: topics
// already in the tracking set are not re-dialed.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.cfg.Identity.Authenticated() {
		o.log.Warn("session start skipped: not authenticated")
		return ErrNotAuthenticated
	}
	o.loggedIn.Store(true)

	self := o.cfg.Identity.UserID
	standing := []struct {
		topic   string
		handler channel.Handler
	}{
		{topicPresence, o.handlePresence},
		{fmt.Sprintf("friend-invitation/%d", self), o.handleFriend},
		{fmt.Sprintf("game-invitation/%d", self), o.handleGameInvite},
		{topicOpenTournaments, o.handleOpenTournaments},
	}
	for _, ch := range standing {
		if o.cfg.Channels.IsOpen(ch.topic) {
			continue
		}
		if err := o.cfg.Channels.Open(ch.topic, ch.handler); err != nil {
			return fmt.Errorf("open %s: %w", ch.topic, err)
		}
	}

	if err := o.bootstrapPresence(ctx); err != nil {
		// Deltas still flow; only the initial list is missing.
		o.log.Error("presence bootstrap failed", zap.Error(err))
	}

	// The tournament channel only exists while a current tournament does.
	current, err := o.cfg.API.CurrentTournament(ctx)
	if err != nil {
		o.log.Error("current tournament fetch failed", zap.Error(err))
		return nil
	}
	if current != nil {
		o.attachTournament(*current)
	}
	return nil
}

// Stop tears the whole session down: logout and page-unload path. CloseAll is
// synchronous, so no reconnect timer survives past this call.
func (o *Orchestrator) Stop() {
	o.loggedIn.Store(false)
	o.cfg.Channels.CloseAll()

	o.mu.Lock()
	o.matches = make(map[string]*match.Session)
	o.tourTopic = ""
	o.mu.Unlock()
	o.log.Info("session stopped")
}

func (o *Orchestrator) bootstrapPresence(ctx context.Context) error {
	deltas, err := o.cfg.API.OnlineStatuses(ctx)
	if err != nil {
		return err
	}
	if !o.loggedIn.Load() {
		return nil // torn down while the fetch was in flight
	}
	o.cfg.Registry.Bootstrap(deltas)
	return nil
}

// --- inbound routing -------------------------------------------------------

// The online-status channel pushes raw deltas without a type wrapper.
func (o *Orchestrator) handlePresence(data []byte) {
	delta, err := types.ParsePresenceDelta(data)
	if err != nil {
		o.log.Warn("presence payload dropped", zap.Error(err))
		return
	}
	o.cfg.Registry.ApplyDelta(delta)
}

func (o *Orchestrator) handleFriend(data []byte) {
	ev, err := types.ParseFriendEvent(data)
	if err != nil {
		o.log.Warn("friend payload dropped", zap.Error(err))
		return
	}
	switch ev.Type {
	case types.EvtFriendInvited:
		if ev.Friendship.Sender == nil {
			o.log.Warn("friend_invited without sender dropped")
			return
		}
		o.cfg.UI.FriendInvited(*ev.Friendship.Sender, ev.Friendship.ID)
	case types.EvtFriendAccepted:
		if ev.Friendship.Receiver == nil {
			o.log.Warn("friend_accepted without receiver dropped")
			return
		}
		o.cfg.UI.FriendAccepted(*ev.Friendship.Receiver)
	default:
		o.log.Warn("unknown friend event dropped", zap.String("type", ev.Type))
	}
}

func (o *Orchestrator) handleGameInvite(data []byte) {
	ev, err := types.ParseGameInviteEvent(data)
	if err != nil {
		o.log.Warn("game invite payload dropped", zap.Error(err))
		return
	}
	switch ev.Type {
	case types.EvtGameInvited:
		if ev.Invitation.Sender == nil {
			o.log.Warn("game_invited without sender dropped")
			return
		}
		o.cfg.UI.GameInvited(*ev.Invitation.Sender, ev.Invitation.ID)
	case types.EvtGameAccepted:
		if ev.Invitation.GameURL == "" {
			o.log.Warn("game_accepted without game_url dropped")
			return
		}
		o.enterMatch(ev.Invitation.GameURL)
	default:
		o.log.Warn("unknown game invite event dropped", zap.String("type", ev.Type))
	}
}

func (o *Orchestrator) handleOpenTournaments(data []byte) {
	ev, err := types.ParseOpenTournamentEvent(data)
	if err != nil {
		o.log.Warn("open tournament payload dropped", zap.Error(err))
		return
	}
	o.browse.HandleEvent(ev)
}

func (o *Orchestrator) tournamentHandler(data []byte) {
	ev, err := types.ParseTournamentEvent(data)
	if err != nil {
		o.log.Warn("tournament payload dropped", zap.Error(err))
		return
	}
	o.tour.HandleEvent(ev)
}

func (o *Orchestrator) onTournamentNotice(n tournament.Notice) {
	switch n.Kind {
	case tournament.NoticeYourMatch:
		o.enterMatch(n.GameURL)
	case tournament.NoticeSummaryUpdated:
		if strings.HasPrefix(o.cfg.Navigator.Current(), matchPathPrefix) {
			o.cfg.Navigator.Navigate(tournamentPath)
		}
	case tournament.NoticeCompleted:
		o.mu.Lock()
		topic := o.tourTopic
		o.tourTopic = ""
		o.mu.Unlock()
		if topic != "" {
			o.cfg.Channels.Close(topic)
		}
	}
	o.cfg.UI.TournamentNotice(n)
}

// --- match lifecycle -------------------------------------------------------

// enterMatch navigates to a match and opens its game channel. topic is the
// server-provided game URL, e.g. "pong/55".
func (o *Orchestrator) enterMatch(topic string) {
	s := o.startMatch(topic)
	if s == nil {
		return
	}
	o.cfg.Navigator.Navigate(matchPathPrefix + topic)
}

func (o *Orchestrator) startMatch(topic string) *match.Session {
	o.mu.Lock()
	if s, ok := o.matches[topic]; ok {
		o.mu.Unlock()
		return s
	}
	s := match.NewSession(topic, func(n match.Notice) { o.onMatchNotice(topic, n) }, o.log)
	o.matches[topic] = s
	o.mu.Unlock()

	err := o.cfg.Channels.Open(topic, func(data []byte) {
		ev, err := types.ParseGameEvent(data)
		if err != nil {
			o.log.Warn("game payload dropped", zap.String("topic", topic), zap.Error(err))
			return
		}
		s.HandleEvent(ev)
	})
	if err != nil {
		o.log.Error("match channel open failed", zap.String("topic", topic), zap.Error(err))
		o.dropMatch(topic)
		return nil
	}
	return s
}

func (o *Orchestrator) onMatchNotice(topic string, n match.Notice) {
	if n.Kind == match.NoticeEnded {
		// Clean shutdown right after endGame; not a failure, so no
		// reconnect may follow.
		o.cfg.Channels.Close(topic)
		o.dropMatch(topic)
	}
	o.cfg.UI.MatchNotice(topic, n)
}

func (o *Orchestrator) dropMatch(topic string) {
	o.mu.Lock()
	delete(o.matches, topic)
	o.mu.Unlock()
}

// Match returns the live session for a topic, if any.
func (o *Orchestrator) Match(topic string) (*match.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.matches[topic]
	return s, ok
}

// LeaveMatch closes a match channel when its page unmounts.
func (o *Orchestrator) LeaveMatch(topic string) {
	o.cfg.Channels.Close(topic)
	o.dropMatch(topic)
}

// --- outbound actions ------------------------------------------------------

func (o *Orchestrator) Ready(matchTopic string) error {
	data, _ := json.Marshal(types.NewReadyMessage())
	return o.cfg.Channels.Send(matchTopic, data)
}

func (o *Orchestrator) SendKey(matchTopic, key string, down bool) error {
	kind := "keyup"
	if down {
		kind = "keydown"
	}
	data, _ := json.Marshal(types.KeyMessage{Type: kind, Key: key})
	return o.cfg.Channels.Send(matchTopic, data)
}

func (o *Orchestrator) StartTournament() error {
	o.mu.Lock()
	topic := o.tourTopic
	o.mu.Unlock()
	if topic == "" {
		return errors.New("session: no tournament channel open")
	}
	data, _ := json.Marshal(types.NewStartMessage())
	return o.cfg.Channels.Send(topic, data)
}

// AcceptFriendInvite runs the REST call from a handler boundary: failures are
// surfaced as a transient notice and never affect channel state.
func (o *Orchestrator) AcceptFriendInvite(ctx context.Context, friendshipID int64) {
	if err := o.cfg.API.AcceptFriendInvite(ctx, friendshipID); err != nil {
		o.log.Error("friend accept failed", zap.Error(err))
		o.cfg.UI.Info("Could not accept the friend request.")
		return
	}
	o.cfg.UI.Info("Friend request accepted.")
}

// AcceptGameInvite accepts over REST and, if the session is still live when
// the call returns, enters the created match.
func (o *Orchestrator) AcceptGameInvite(ctx context.Context, invitationID int64) {
	gameURL, err := o.cfg.API.AcceptGameInvite(ctx, invitationID)
	if err != nil {
		o.log.Error("game accept failed", zap.Error(err))
		o.cfg.UI.Info("Could not accept the game invitation.")
		return
	}
	if !o.loggedIn.Load() {
		// Torn down while the call was in flight; do not resurrect state.
		return
	}
	o.enterMatch(gameURL)
}

// CreateTournament creates over REST, seeds the session and opens the
// tournament channel.
func (o *Orchestrator) CreateTournament(ctx context.Context, name string, amount int) error {
	t, err := o.cfg.API.CreateTournament(ctx, name, amount)
	if err != nil {
		o.cfg.UI.Info("Could not create the tournament.")
		return err
	}
	if !o.loggedIn.Load() {
		return nil
	}
	o.attachTournament(*t)
	return nil
}

// JoinTournament joins over REST, seeds the session and opens the channel.
func (o *Orchestrator) JoinTournament(ctx context.Context, id int64) error {
	t, err := o.cfg.API.JoinTournament(ctx, id)
	if err != nil {
		o.cfg.UI.Info("Could not join the tournament.")
		return err
	}
	if !o.loggedIn.Load() {
		return nil
	}
	o.attachTournament(*t)
	return nil
}

func (o *Orchestrator) attachTournament(t types.Tournament) {
	o.tour.Seed(t)
	topic := fmt.Sprintf("tournament/%d", t.ID)

	o.mu.Lock()
	o.tourTopic = topic
	o.mu.Unlock()

	if o.cfg.Channels.IsOpen(topic) {
		return
	}
	if err := o.cfg.Channels.Open(topic, o.tournamentHandler); err != nil {
		o.log.Error("tournament channel open failed", zap.String("topic", topic), zap.Error(err))
	}
}
