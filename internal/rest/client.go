package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pongarena/realtime/pkg/types"
)

// Client talks to the platform's REST backend. Every stateful transition the
// user originates (accepting invitations, creating or joining tournaments)
// goes through here; the channels are push-only apart from the tiny outbound
// event set.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   *zap.Logger
}

func NewClient(base, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   log,
	}
}

// CurrentTournament returns the tournament the identity is part of, or nil
// when there is none.
func (c *Client) CurrentTournament(ctx context.Context) (*types.Tournament, error) {
	var t types.Tournament
	found, err := c.do(ctx, http.MethodGet, "/tournament/current", nil, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTournament(ctx context.Context, name string, amount int) (*types.Tournament, error) {
	body := map[string]any{"name": name, "participants_amount": amount}
	var t types.Tournament
	if _, err := c.do(ctx, http.MethodPost, "/tournament", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) JoinTournament(ctx context.Context, id int64) (*types.Tournament, error) {
	var t types.Tournament
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tournament/%d/join", id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) AcceptFriendInvite(ctx context.Context, friendshipID int64) error {
	body := map[string]any{"friendship_id": friendshipID}
	_, err := c.do(ctx, http.MethodPost, "/friend-accept", body, nil)
	return err
}

// AcceptGameInvite accepts and returns the channel topic of the created
// match.
func (c *Client) AcceptGameInvite(ctx context.Context, invitationID int64) (string, error) {
	var out struct {
		GameURL string `json:"game_url"`
	}
	path := fmt.Sprintf("/game-invitation/%d/accept", invitationID)
	if _, err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.GameURL, nil
}

func (c *Client) InviteToGame(ctx context.Context, userID int64) error {
	body := map[string]any{"user_id": userID}
	_, err := c.do(ctx, http.MethodPost, "/game-invitation", body, nil)
	return err
}

// OnlineStatuses is the authoritative full fetch used to bootstrap the
// presence registry.
func (c *Client) OnlineStatuses(ctx context.Context) ([]types.PresenceDelta, error) {
	var out []types.PresenceDelta
	if _, err := c.do(ctx, http.MethodGet, "/online-status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do runs one request. found is false for a 404, letting callers model
// optional resources; any other non-2xx status is an error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (found bool, err error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("rest: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return false, fmt.Errorf("rest: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("rest: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("rest: decode %s %s: %w", method, path, err)
		}
	}
	return true, nil
}
