package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Every channel speaks the same envelope: {"type": <event-name>, ...fields}.
// The one exception is the online-status channel, which pushes raw presence
// deltas with no type wrapper (see PresenceDelta).

var ErrMissingType = errors.New("message has no type field")

// Inbound game channel events.
const (
	EvtConnectionEstablished = "connection_established"
	EvtPlayerConnected       = "player_connected"
	EvtPlayerDisconnected    = "player_disconnected"
	EvtPlayerReady           = "player_ready"
	EvtGameState             = "gameState"
	EvtScore                 = "score"
	EvtEndGame               = "endGame"
	EvtError                 = "error"
)

// Inbound friend-invitation channel events.
const (
	EvtFriendInvited  = "friend_invited"
	EvtFriendAccepted = "friend_accepted"
)

// Inbound game-invitation channel events.
const (
	EvtGameInvited  = "game_invited"
	EvtGameAccepted = "game_accepted"
)

// Inbound tournament channel events.
const (
	EvtTournamentJoin      = "join"
	EvtTournamentStartGame = "start_game"
	EvtTournamentGameOver  = "game_over"
)

type Paddle struct {
	Y float64 `json:"y"`
}

type Ball struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GameEvent is the decoded form of every message on a game channel. Side is a
// pointer so a missing field is distinguishable from side 0.
type GameEvent struct {
	Type    string   `json:"type"`
	Side    *int     `json:"side,omitempty"`
	Paddles []Paddle `json:"paddles,omitempty"`
	Ball    *Ball    `json:"ball,omitempty"`
	Score   []int    `json:"score,omitempty"`
	Message string   `json:"message,omitempty"`
}

func ParseGameEvent(data []byte) (GameEvent, error) {
	var ev GameEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return GameEvent{}, fmt.Errorf("parse game event: %w", err)
	}
	if ev.Type == "" {
		return GameEvent{}, ErrMissingType
	}
	return ev, nil
}

// Friendship carries whichever end of the relationship the event is about.
type Friendship struct {
	ID       int64   `json:"id,omitempty"`
	Sender   *Player `json:"sender,omitempty"`
	Receiver *Player `json:"receiver,omitempty"`
}

type FriendEvent struct {
	Type       string     `json:"type"`
	Friendship Friendship `json:"friendship"`
}

func ParseFriendEvent(data []byte) (FriendEvent, error) {
	var ev FriendEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return FriendEvent{}, fmt.Errorf("parse friend event: %w", err)
	}
	if ev.Type == "" {
		return FriendEvent{}, ErrMissingType
	}
	return ev, nil
}

// Invitation mirrors Friendship for game invites; GameURL is only present on
// acceptance and names the channel topic of the created match.
type Invitation struct {
	ID       int64   `json:"id,omitempty"`
	Sender   *Player `json:"sender,omitempty"`
	Receiver *Player `json:"receiver,omitempty"`
	GameURL  string  `json:"game_url,omitempty"`
}

type GameInviteEvent struct {
	Type       string     `json:"type"`
	Invitation Invitation `json:"invitation"`
}

func ParseGameInviteEvent(data []byte) (GameInviteEvent, error) {
	var ev GameInviteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return GameInviteEvent{}, fmt.Errorf("parse game invite event: %w", err)
	}
	if ev.Type == "" {
		return GameInviteEvent{}, ErrMissingType
	}
	return ev, nil
}

type TournamentEvent struct {
	Type          string      `json:"type"`
	Tournament    *Tournament `json:"tournament,omitempty"`
	ParticipantID int64       `json:"participant_id,omitempty"`
	GameURL       string      `json:"game_url,omitempty"`
}

func ParseTournamentEvent(data []byte) (TournamentEvent, error) {
	var ev TournamentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TournamentEvent{}, fmt.Errorf("parse tournament event: %w", err)
	}
	if ev.Type == "" {
		return TournamentEvent{}, ErrMissingType
	}
	return ev, nil
}

// OpenTournamentEvent is the system-wide broadcast for newly created
// tournaments. It carries no type discriminator, only the tournament.
type OpenTournamentEvent struct {
	Tournament *Tournament `json:"tournament"`
}

func ParseOpenTournamentEvent(data []byte) (OpenTournamentEvent, error) {
	var ev OpenTournamentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return OpenTournamentEvent{}, fmt.Errorf("parse open tournament event: %w", err)
	}
	if ev.Tournament == nil {
		return OpenTournamentEvent{}, errors.New("open tournament event without tournament")
	}
	return ev, nil
}

// PresenceDelta is the raw online-status payload: one user, no envelope.
type PresenceDelta struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
	LastSeen string `json:"last_seen"`
}

func ParsePresenceDelta(data []byte) (PresenceDelta, error) {
	var d PresenceDelta
	if err := json.Unmarshal(data, &d); err != nil {
		return PresenceDelta{}, fmt.Errorf("parse presence delta: %w", err)
	}
	if d.UserID == 0 {
		return PresenceDelta{}, errors.New("presence delta without user_id")
	}
	return d, nil
}

// Outbound events. The full outbound surface is small: ready-up and key
// transitions on a game channel, start on a tournament channel.

type ReadyMessage struct {
	Type string `json:"type"`
}

func NewReadyMessage() ReadyMessage { return ReadyMessage{Type: EvtPlayerReady} }

type KeyMessage struct {
	Type string `json:"type"` // "keydown" | "keyup"
	Key  string `json:"key"`
}

type StartMessage struct {
	Type string `json:"type"` // always "start"
}

func NewStartMessage() StartMessage { return StartMessage{Type: "start"} }
