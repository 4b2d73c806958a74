package types

import "fmt"

// Identity is the authenticated user every channel is authorized as. Immutable
// for the lifetime of a session.
type Identity struct {
	UserID   int64
	Username string
	Token    string
}

func (id Identity) Authenticated() bool { return id.Token != "" }

type Player struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type MatchStatus string

const (
	MatchNotStarted  MatchStatus = "not_started"
	MatchInProgress  MatchStatus = "in_progress"
	MatchCompleted   MatchStatus = "completed"
	MatchInterrupted MatchStatus = "interrupted"
)

// MatchSummary is one bracket slot. Winner is non-nil exactly when Status is
// completed, and must then be one of the two players.
type MatchSummary struct {
	Player1      *Player     `json:"player1"`
	Player2      *Player     `json:"player2"`
	Status       MatchStatus `json:"status"`
	ScorePlayer1 int         `json:"score_player1"`
	ScorePlayer2 int         `json:"score_player2"`
	Winner       *int64      `json:"winner"`
}

func (m MatchSummary) Validate() error {
	if (m.Status == MatchCompleted) != (m.Winner != nil) {
		return fmt.Errorf("match summary: winner set=%v but status=%s", m.Winner != nil, m.Status)
	}
	if m.Winner == nil {
		return nil
	}
	if m.Player1 != nil && *m.Winner == m.Player1.ID {
		return nil
	}
	if m.Player2 != nil && *m.Winner == m.Player2.ID {
		return nil
	}
	return fmt.Errorf("match summary: winner %d is not a participant", *m.Winner)
}

// Tournament is the REST/broadcast shape of a four-player bracket.
// Participants keep join order.
type Tournament struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	CreatorID          int64         `json:"creator_id"`
	Participants       []Player      `json:"participants"`
	ParticipantsAmount int           `json:"participants_amount"`
	Semifinal1         *MatchSummary `json:"semifinal_1"`
	Semifinal2         *MatchSummary `json:"semifinal_2"`
	FinalGame          *MatchSummary `json:"final_game"`
}

// Finished reports whether the bracket has concluded: exactly when the final
// has completed.
func (t *Tournament) Finished() bool {
	return t != nil && t.FinalGame != nil && t.FinalGame.Status == MatchCompleted
}

// HasParticipant is keyed by player id; rendering order stays insertion order.
func (t *Tournament) HasParticipant(id int64) bool {
	if t == nil {
		return false
	}
	for _, p := range t.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
