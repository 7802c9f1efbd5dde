// Package faceit resolves Faceit nicknames to skill levels through the
// Faceit Data API.
package faceit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://open.faceit.com/data/v4"

	// GameCS2 is preferred; GameCSGO is the legacy fallback.
	GameCS2  = "cs2"
	GameCSGO = "csgo"

	maxBodyBytes = 1 << 20
)

type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	// Transport is the base round tripper under the bearer token transport.
	Transport http.RoundTripper
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// Player is a resolved Faceit profile. Level is passed through as reported.
type Player struct {
	ID       string
	Nickname string
	Game     string
	Level    int
	Elo      int
}

type playerPayload struct {
	PlayerID string                 `json:"player_id"`
	Nickname string                 `json:"nickname"`
	Games    map[string]gamePayload `json:"games"`
}

type gamePayload struct {
	SkillLevel *int `json:"skill_level"`
	FaceitElo  int  `json:"faceit_elo"`
}

type errorPayload struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"})
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: base},
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Lookup resolves nickname as given and, when that is not found, once more
// lower-cased.
func (c *Client) Lookup(ctx context.Context, nickname string) (Player, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return Player{}, fmt.Errorf("empty nickname: %w", ErrNotFound)
	}

	player, err := c.fetch(ctx, nickname)
	if errors.Is(err, ErrNotFound) {
		lower := strings.ToLower(nickname)
		if lower == nickname {
			return Player{}, ErrNotFound
		}
		player, err = c.fetch(ctx, lower)
	}
	if err != nil {
		return Player{}, err
	}
	return player, nil
}

func (c *Client) fetch(ctx context.Context, nickname string) (Player, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Player{}, &ProviderError{Message: "rate limiter", Err: err}
	}

	endpoint := c.baseURL + "/players?nickname=" + url.QueryEscape(nickname)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Player{}, &ProviderError{Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Player{}, &ProviderError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Player{}, &ProviderError{Status: resp.StatusCode, Message: "read body", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Player{}, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Player{}, &ProviderError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	var payload playerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Player{}, &ProviderError{Status: resp.StatusCode, Message: "decode player", Err: err}
	}
	if payload.PlayerID == "" {
		return Player{}, &ProviderError{Status: resp.StatusCode, Message: "player payload has no player_id"}
	}

	for _, game := range []string{GameCS2, GameCSGO} {
		entry, ok := payload.Games[game]
		if !ok || entry.SkillLevel == nil {
			continue
		}
		return Player{
			ID:       payload.PlayerID,
			Nickname: payload.Nickname,
			Game:     game,
			Level:    *entry.SkillLevel,
			Elo:      entry.FaceitElo,
		}, nil
	}
	return Player{}, ErrNoGameData
}

func errorMessage(body []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Errors) > 0 {
		return payload.Errors[0].Message
	}
	return ""
}
