package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"faceit-rolebot/internal/ranksync"
	"faceit-rolebot/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeStore struct {
	configs map[string]storage.GuildConfig
	pingErr error
	writes  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{configs: make(map[string]storage.GuildConfig)}
}

func (f *fakeStore) GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error) {
	cfg, ok := f.configs[guildID]
	if !ok {
		return storage.EmptyGuildConfig(guildID), nil
	}
	return cfg, nil
}

func (f *fakeStore) update(guildID string, fn func(*storage.GuildConfig)) {
	cfg, _ := f.GetGuildConfig(context.Background(), guildID)
	fn(&cfg)
	f.configs[guildID] = cfg
}

func (f *fakeStore) SetConfigurableRoles(ctx context.Context, guildID string, roleIDs []string) error {
	f.writes = append(f.writes, "roles")
	f.update(guildID, func(cfg *storage.GuildConfig) { cfg.ConfigurableRoleIDs = roleIDs })
	return nil
}

func (f *fakeStore) SetRoleEmojiMappings(ctx context.Context, guildID string, mappings map[string]storage.RoleEmoji) error {
	f.writes = append(f.writes, "emojis")
	f.update(guildID, func(cfg *storage.GuildConfig) { cfg.RoleEmojiMappings = mappings })
	return nil
}

func (f *fakeStore) SetFaceitLevelRoles(ctx context.Context, guildID string, levelRoles map[string]string) error {
	f.writes = append(f.writes, "levels")
	f.update(guildID, func(cfg *storage.GuildConfig) { cfg.FaceitLevelRoles = levelRoles })
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

type fakeSync struct {
	running  bool
	triggers int
	last     ranksync.PassReport
}

func (f *fakeSync) Trigger() bool {
	if f.running {
		return false
	}
	f.triggers++
	return true
}

func (f *fakeSync) Running() bool                   { return f.running }
func (f *fakeSync) LastReport() ranksync.PassReport { return f.last }

func newTestServer(store *fakeStore, sync *fakeSync, secret string) http.Handler {
	return New(zap.NewNop(), Options{
		Store:     store,
		Sync:      sync,
		Gatherer:  prometheus.NewRegistry(),
		JWTSecret: secret,
	}).Handler()
}

func signToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin-1",
		"exp": expires.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func do(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(store, &fakeSync{}, testSecret)

	if rr := do(handler, http.MethodGet, "/health", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	store.pingErr = errors.New("db down")
	if rr := do(handler, http.MethodGet, "/health", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(newFakeStore(), &fakeSync{}, "")
	if rr := do(handler, http.MethodGet, "/metrics", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAPIRequiresValidToken(t *testing.T) {
	handler := newTestServer(newFakeStore(), &fakeSync{}, testSecret)
	path := "/api/guilds/g1/config"

	cases := map[string]string{
		"missing":      "",
		"wrong secret": signToken(t, "other", time.Now().Add(time.Hour)),
		"expired":      signToken(t, testSecret, time.Now().Add(-time.Hour)),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if rr := do(handler, http.MethodGet, path, token, ""); rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}

	if rr := do(handler, http.MethodGet, path, signToken(t, testSecret, time.Now().Add(time.Hour)), ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d", rr.Code)
	}
}

func TestAPIDisabledWithoutSecret(t *testing.T) {
	handler := newTestServer(newFakeStore(), &fakeSync{}, "")
	if rr := do(handler, http.MethodGet, "/api/guilds/g1/config", "x", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPutConfigPartialUpdate(t *testing.T) {
	store := newFakeStore()
	store.configs["g1"] = storage.GuildConfig{
		GuildID:             "g1",
		ConfigurableRoleIDs: []string{"A"},
		RoleEmojiMappings:   map[string]storage.RoleEmoji{},
		FaceitLevelRoles:    map[string]string{"3": "R3"},
	}
	handler := newTestServer(store, &fakeSync{}, testSecret)
	token := signToken(t, testSecret, time.Now().Add(time.Hour))

	rr := do(handler, http.MethodPut, "/api/guilds/g1/config", token, `{"faceitLevelRoles":{"3":"R3","10":"R10"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got storage.GuildConfig
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"3": "R3", "10": "R10"}, got.FaceitLevelRoles); diff != "" {
		t.Fatalf("level roles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A"}, got.ConfigurableRoleIDs); diff != "" {
		t.Fatalf("configurable roles must be untouched (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"levels"}, store.writes); diff != "" {
		t.Fatalf("unexpected writes (-want +got):\n%s", diff)
	}
}

func TestPutConfigRejectsInvalidInput(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(store, &fakeSync{}, testSecret)
	token := signToken(t, testSecret, time.Now().Add(time.Hour))

	bodies := map[string]string{
		"non integer level": `{"faceitLevelRoles":{"ten":"R10"}}`,
		"zero level":        `{"faceitLevelRoles":{"0":"R0"}}`,
		"empty role":        `{"faceitLevelRoles":{"4":""}}`,
		"empty role id":     `{"configurableRoleIds":["A",""]}`,
		"unknown field":     `{"rolePanelMessageId":"m1"}`,
		"not json":          `{`,
		"too many roles":    `{"configurableRoleIds":[` + strings.Repeat(`"r",`, 25) + `"r"]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			if rr := do(handler, http.MethodPut, "/api/guilds/g1/config", token, body); rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
	if len(store.writes) != 0 {
		t.Fatalf("invalid input must not write, got %v", store.writes)
	}
}

func TestRankSyncTrigger(t *testing.T) {
	sync := &fakeSync{}
	handler := newTestServer(newFakeStore(), sync, testSecret)
	token := signToken(t, testSecret, time.Now().Add(time.Hour))

	if rr := do(handler, http.MethodPost, "/api/rank-sync", token, ""); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	sync.running = true
	if rr := do(handler, http.MethodPost, "/api/rank-sync", token, ""); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", rr.Code)
	}
	if sync.triggers != 1 {
		t.Fatalf("expected exactly one trigger, got %d", sync.triggers)
	}

	sync.last = ranksync.PassReport{PassID: "p1", Total: 3, Updated: 1}
	rr := do(handler, http.MethodGet, "/api/rank-sync", token, "")
	var status struct {
		Running bool `json:"running"`
		Last    *struct {
			PassID string
		} `json:"last"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running || status.Last == nil || status.Last.PassID != "p1" {
		t.Fatalf("unexpected status %s", rr.Body.String())
	}
}
