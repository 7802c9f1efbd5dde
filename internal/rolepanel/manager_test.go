package rolepanel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"faceit-rolebot/internal/platform"
	"faceit-rolebot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type fakePlatform struct {
	roles       []platform.Role
	memberRoles map[string][]string
	ops         []string
	failOps     map[string]error
	editErr     error
	deleteErr   error
	nextID      int
}

func (f *fakePlatform) GuildRoles(ctx context.Context, guildID string) ([]platform.Role, error) {
	return f.roles, nil
}

func (f *fakePlatform) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	return f.memberRoles[userID], nil
}

func (f *fakePlatform) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	op := "add:" + roleID
	f.ops = append(f.ops, op)
	return f.failOps[op]
}

func (f *fakePlatform) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	op := "remove:" + roleID
	f.ops = append(f.ops, op)
	return f.failOps[op]
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.ops = append(f.ops, "send:"+channelID+":"+id)
	return id, nil
}

func (f *fakePlatform) EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	f.ops = append(f.ops, "edit:"+channelID+":"+messageID)
	return f.editErr
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.ops = append(f.ops, "delete:"+channelID+":"+messageID)
	return f.deleteErr
}

type fakeConfigStore struct {
	configs map[string]storage.GuildConfig
	writes  int
}

func (f *fakeConfigStore) GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error) {
	cfg, ok := f.configs[guildID]
	if !ok {
		return storage.EmptyGuildConfig(guildID), nil
	}
	return cfg, nil
}

func (f *fakeConfigStore) SetRolePanel(ctx context.Context, guildID, channelID, messageID string) error {
	cfg := f.configs[guildID]
	cfg.GuildID = guildID
	cfg.RolePanelChannelID = channelID
	cfg.RolePanelMessageID = messageID
	f.configs[guildID] = cfg
	f.writes++
	return nil
}

func unknownMessageErr() error {
	return &platform.APIError{
		Op:  "edit message",
		Err: &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage}},
	}
}

func newFixture(cfg storage.GuildConfig) (*Manager, *fakePlatform, *fakeConfigStore) {
	p := &fakePlatform{
		roles: []platform.Role{
			{ID: "A", Name: "Alpha"},
			{ID: "B", Name: "Bravo"},
			{ID: "C", Name: "Charlie"},
			{ID: "X", Name: "Moderator"},
		},
		memberRoles: map[string][]string{},
		failOps:     map[string]error{},
	}
	store := &fakeConfigStore{configs: map[string]storage.GuildConfig{cfg.GuildID: cfg}}
	return New(p, store, zap.NewNop(), Options{}), p, store
}

func baseConfig() storage.GuildConfig {
	return storage.GuildConfig{
		GuildID:             "g1",
		ConfigurableRoleIDs: []string{"A", "B", "C"},
		RoleEmojiMappings:   map[string]storage.RoleEmoji{"B": {Name: "🔥"}},
		FaceitLevelRoles:    map[string]string{},
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	manager, p, store := newFixture(baseConfig())
	ctx := context.Background()

	first, err := manager.Publish(ctx, "g1", "c1", false)
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}
	second, err := manager.Publish(ctx, "g1", "", false)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}

	if first.Action != ActionCreated || second.Action != ActionEdited {
		t.Fatalf("expected create then edit, got %s then %s", first.Action, second.Action)
	}
	if diff := cmp.Diff([]string{"send:c1:m1", "edit:c1:m1"}, p.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if store.configs["g1"].RolePanelMessageID != "m1" || store.writes != 1 {
		t.Fatalf("expected exactly one stored message id, got %+v (writes=%d)", store.configs["g1"], store.writes)
	}
}

func TestPublishRecreatesDeletedPanel(t *testing.T) {
	cfg := baseConfig()
	cfg.RolePanelChannelID = "c1"
	cfg.RolePanelMessageID = "gone"
	manager, p, store := newFixture(cfg)
	p.editErr = unknownMessageErr()

	result, err := manager.Publish(context.Background(), "g1", "", false)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Action != ActionRecreated || result.MessageID != "m1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if diff := cmp.Diff([]string{"edit:c1:gone", "send:c1:m1"}, p.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if store.configs["g1"].RolePanelMessageID != "m1" {
		t.Fatalf("expected stored id m1, got %q", store.configs["g1"].RolePanelMessageID)
	}
}

func TestPublishSurfacesOtherEditErrors(t *testing.T) {
	cfg := baseConfig()
	cfg.RolePanelChannelID = "c1"
	cfg.RolePanelMessageID = "m0"
	manager, p, store := newFixture(cfg)
	p.editErr = &platform.APIError{Op: "edit message", Err: errors.New("missing access")}

	if _, err := manager.Publish(context.Background(), "g1", "", false); err == nil {
		t.Fatalf("expected edit error")
	}
	if len(p.ops) != 1 || store.writes != 0 {
		t.Fatalf("expected no retry and no write, ops=%v writes=%d", p.ops, store.writes)
	}
}

func TestPublishForcedOrMovedReplacesOldPanel(t *testing.T) {
	cfg := baseConfig()
	cfg.RolePanelChannelID = "c1"
	cfg.RolePanelMessageID = "m0"
	manager, p, store := newFixture(cfg)

	result, err := manager.Publish(context.Background(), "g1", "c2", false)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Action != ActionCreated || result.ChannelID != "c2" {
		t.Fatalf("unexpected result %+v", result)
	}
	want := []string{"send:c2:m1", "delete:c1:m0"}
	if diff := cmp.Diff(want, p.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}

	p.ops = nil
	p.deleteErr = unknownMessageErr()
	if _, err := manager.Publish(context.Background(), "g1", "", true); err != nil {
		t.Fatalf("forced publish: %v", err)
	}
	want = []string{"send:c2:m2", "delete:c2:m1"}
	if diff := cmp.Diff(want, p.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if got := store.configs["g1"]; got.RolePanelChannelID != "c2" || got.RolePanelMessageID != "m2" {
		t.Fatalf("unexpected stored panel %+v", got)
	}
}

func TestPublishWithoutChannel(t *testing.T) {
	manager, _, _ := newFixture(baseConfig())
	if _, err := manager.Publish(context.Background(), "g1", "", false); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
}

func TestApplySelectionDiff(t *testing.T) {
	manager, p, _ := newFixture(baseConfig())
	p.memberRoles["u1"] = []string{"A", "C", "X"}

	summary, err := manager.ApplySelection(context.Background(), "g1", "u1", []string{"B", "C"})
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if diff := cmp.Diff([]string{"remove:A", "add:B"}, p.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"C"}, summary.Unchanged); diff != "" {
		t.Fatalf("unchanged mismatch (-want +got):\n%s", diff)
	}
}

func TestApplySelectionOnlyTouchesOfferedRoles(t *testing.T) {
	cfg := baseConfig()
	cfg.ConfigurableRoleIDs = nil
	var roles []platform.Role
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("r%02d", i)
		roles = append(roles, platform.Role{ID: id, Name: id})
		cfg.ConfigurableRoleIDs = append(cfg.ConfigurableRoleIDs, id)
	}
	manager, p, _ := newFixture(cfg)
	p.roles = roles
	p.memberRoles["u1"] = []string{"r00", "r27"}

	summary, err := manager.ApplySelection(context.Background(), "g1", "u1", []string{"r00", "r28"})
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if len(p.ops) != 0 || summary.Changed() {
		t.Fatalf("roles past the menu limit must not change, got %v", p.ops)
	}
	if len(summary.Unchanged) != MaxOptions {
		t.Fatalf("expected %d offered roles, got %d", MaxOptions, len(summary.Unchanged))
	}
}

func TestApplySelectionIgnoresForeignValues(t *testing.T) {
	manager, p, _ := newFixture(baseConfig())
	p.memberRoles["u1"] = []string{"X"}

	summary, err := manager.ApplySelection(context.Background(), "g1", "u1", []string{NoRolesValue, "X"})
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if len(p.ops) != 0 || summary.Changed() {
		t.Fatalf("expected no role operations, got %v", p.ops)
	}
}

func TestApplySelectionIsolatesFailures(t *testing.T) {
	manager, p, _ := newFixture(baseConfig())
	p.memberRoles["u1"] = []string{"A"}
	p.failOps["add:B"] = errors.New("missing permissions")

	summary, err := manager.ApplySelection(context.Background(), "g1", "u1", []string{"B", "C"})
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if diff := cmp.Diff([]string{"remove:A", "add:B", "add:C"}, p.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].RoleID != "B" {
		t.Fatalf("unexpected failures %+v", summary.Failed)
	}
	if diff := cmp.Diff([]string{"C"}, summary.Granted); diff != "" {
		t.Fatalf("granted mismatch (-want +got):\n%s", diff)
	}

	text := FormatSummary(summary, DefaultSummaryTexts())
	want := "Eklenen roller: <@&C>\nKaldırılan roller: <@&A>\nUygulanamayan roller: <@&B>"
	if text != want {
		t.Fatalf("unexpected summary text %q", text)
	}
}

func TestFetchRolesInfoKeepsOrderAndSkipsDeleted(t *testing.T) {
	cfg := baseConfig()
	cfg.ConfigurableRoleIDs = []string{"C", "deleted", "A", "C"}
	manager, _, _ := newFixture(cfg)

	roles, err := manager.FetchRolesInfo(context.Background(), "g1")
	if err != nil {
		t.Fatalf("fetch roles: %v", err)
	}
	var names []string
	for _, role := range roles {
		names = append(names, role.Name)
	}
	if diff := cmp.Diff([]string{"Charlie", "Alpha"}, names); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
}
