package ranksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"faceit-rolebot/internal/faceit"
	"faceit-rolebot/internal/storage"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type lookupResult struct {
	level int
	err   error
	panic bool
}

type fakeLookup struct {
	results map[string]lookupResult
	calls   []string
}

func (f *fakeLookup) Lookup(ctx context.Context, nickname string) (faceit.Player, error) {
	f.calls = append(f.calls, nickname)
	result, ok := f.results[nickname]
	if !ok {
		return faceit.Player{}, faceit.ErrNotFound
	}
	if result.panic {
		panic("lookup exploded")
	}
	if result.err != nil {
		return faceit.Player{}, result.err
	}
	return faceit.Player{ID: "id-" + nickname, Nickname: nickname, Game: faceit.GameCS2, Level: result.level}, nil
}

type fakeRoles struct {
	ops   []string
	fails map[string]error
}

func (f *fakeRoles) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	op := "add:" + userID + ":" + roleID
	f.ops = append(f.ops, op)
	return f.fails[op]
}

func (f *fakeRoles) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	op := "remove:" + userID + ":" + roleID
	f.ops = append(f.ops, op)
	return f.fails[op]
}

type fakeStore struct {
	configs     map[string]storage.GuildConfig
	users       []storage.TrackedUser
	upserts     []storage.TrackedUser
	configReads int
	upsertErr   error
	configErr   error
	userErr     error
}

func (f *fakeStore) GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error) {
	f.configReads++
	if f.configErr != nil {
		return storage.GuildConfig{}, f.configErr
	}
	cfg, ok := f.configs[guildID]
	if !ok {
		return storage.EmptyGuildConfig(guildID), nil
	}
	return cfg, nil
}

func (f *fakeStore) GetTrackedUser(ctx context.Context, guildID, discordID string) (storage.TrackedUser, bool, error) {
	if f.userErr != nil {
		return storage.TrackedUser{}, false, f.userErr
	}
	for _, user := range f.users {
		if user.GuildID == guildID && user.DiscordID == discordID {
			return user, true, nil
		}
	}
	return storage.TrackedUser{}, false, nil
}

func (f *fakeStore) ListTrackedUsers(ctx context.Context) ([]storage.TrackedUser, error) {
	return f.users, nil
}

func (f *fakeStore) UpsertTrackedUser(ctx context.Context, user storage.TrackedUser) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, user)
	for i := range f.users {
		if f.users[i].GuildID == user.GuildID && f.users[i].DiscordID == user.DiscordID {
			f.users[i] = user
			return nil
		}
	}
	f.users = append(f.users, user)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newReconciler(lookup *fakeLookup, roles *fakeRoles, store *fakeStore) *Reconciler {
	r := New(lookup, roles, store, zap.NewNop(), nil, nil)
	r.now = func() time.Time { return fixedNow }
	return r
}

func levelRoles() map[string]storage.GuildConfig {
	return map[string]storage.GuildConfig{
		"g1": {GuildID: "g1", FaceitLevelRoles: map[string]string{"3": "roleX", "5": "roleY"}},
	}
}

func TestRunPassNoRedundantWrites(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"steady": {level: 3}}}
	roles := &fakeRoles{}
	store := &fakeStore{
		configs: levelRoles(),
		users:   []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "steady", FaceitLevel: storage.IntPtr(3), AssignedRoleID: "roleX"}},
	}

	report, err := newReconciler(lookup, roles, store).RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if report.Unchanged != 1 || report.Total != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(roles.ops) != 0 || len(store.upserts) != 0 {
		t.Fatalf("expected no role calls and no writes, got ops=%v upserts=%d", roles.ops, len(store.upserts))
	}
}

func TestRunPassLevelChange(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"climber": {level: 5}}}
	roles := &fakeRoles{}
	store := &fakeStore{
		configs: levelRoles(),
		users:   []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "climber", FaceitLevel: storage.IntPtr(3), AssignedRoleID: "roleX"}},
	}

	report, err := newReconciler(lookup, roles, store).RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if report.Updated != 1 || report.PassID == "" {
		t.Fatalf("unexpected report %+v", report)
	}
	if diff := cmp.Diff([]string{"remove:u1:roleX", "add:u1:roleY"}, roles.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	want := []storage.TrackedUser{{
		DiscordID: "u1", GuildID: "g1", FaceitNickname: "climber",
		FaceitLevel: storage.IntPtr(5), AssignedRoleID: "roleY", LastUpdated: fixedNow,
	}}
	if diff := cmp.Diff(want, store.upserts); diff != "" {
		t.Fatalf("stored state mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPassMissingMapping(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"drifter": {level: 7}}}
	roles := &fakeRoles{}
	store := &fakeStore{
		configs: levelRoles(),
		users:   []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "drifter", FaceitLevel: storage.IntPtr(3), AssignedRoleID: "roleX"}},
	}

	if _, err := newReconciler(lookup, roles, store).RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if diff := cmp.Diff([]string{"remove:u1:roleX"}, roles.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if len(store.upserts) != 1 || store.upserts[0].AssignedRoleID != "" || *store.upserts[0].FaceitLevel != 7 {
		t.Fatalf("unexpected stored state %+v", store.upserts)
	}
}

func TestRunPassPersistsDesiredStateWhenGrantFails(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"climber": {level: 5}}}
	roles := &fakeRoles{fails: map[string]error{"add:u1:roleY": errors.New("missing permissions")}}
	store := &fakeStore{
		configs: levelRoles(),
		users:   []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "climber", FaceitLevel: storage.IntPtr(3), AssignedRoleID: "roleX"}},
	}

	report, _ := newReconciler(lookup, roles, store).RunPass(context.Background())
	if report.Updated != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.upserts) != 1 || store.upserts[0].AssignedRoleID != "roleY" {
		t.Fatalf("expected desired state to be stored, got %+v", store.upserts)
	}
}

func TestRunPassBatchIsolation(t *testing.T) {
	for name, failure := range map[string]lookupResult{
		"error": {err: &faceit.ProviderError{Status: 503}},
		"panic": {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			lookup := &fakeLookup{results: map[string]lookupResult{
				"first":  {level: 5},
				"second": failure,
				"third":  {level: 3},
			}}
			roles := &fakeRoles{}
			store := &fakeStore{
				configs: levelRoles(),
				users: []storage.TrackedUser{
					{DiscordID: "u1", GuildID: "g1", FaceitNickname: "first"},
					{DiscordID: "u2", GuildID: "g1", FaceitNickname: "second", FaceitLevel: storage.IntPtr(4), AssignedRoleID: "roleZ"},
					{DiscordID: "u3", GuildID: "g1", FaceitNickname: "third"},
				},
			}

			report, err := newReconciler(lookup, roles, store).RunPass(context.Background())
			if err != nil {
				t.Fatalf("run pass: %v", err)
			}
			if report.Total != 3 || report.Updated != 2 {
				t.Fatalf("unexpected report %+v", report)
			}
			if diff := cmp.Diff([]string{"add:u1:roleY", "add:u3:roleX"}, roles.ops); diff != "" {
				t.Fatalf("ops mismatch (-want +got):\n%s", diff)
			}
			var persisted []string
			for _, user := range store.upserts {
				persisted = append(persisted, user.DiscordID)
			}
			if diff := cmp.Diff([]string{"u1", "u3"}, persisted); diff != "" {
				t.Fatalf("persisted mismatch (-want +got):\n%s", diff)
			}
			if store.configReads != 1 {
				t.Fatalf("expected guild config loaded once per pass, got %d", store.configReads)
			}
		})
	}
}

func TestRunPassSurvivesPersistenceFailure(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"a": {level: 5}, "b": {level: 3}}}
	roles := &fakeRoles{}
	store := &fakeStore{
		configs:   levelRoles(),
		users:     []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "a"}, {DiscordID: "u2", GuildID: "g1", FaceitNickname: "b"}},
		upsertErr: errors.New("database is locked"),
	}

	report, err := newReconciler(lookup, roles, store).RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if report.Failed != 2 || len(lookup.calls) != 2 {
		t.Fatalf("expected both users attempted, report=%+v calls=%v", report, lookup.calls)
	}
}

func TestRequestRankAssigns(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"shroud": {level: 5}}}
	roles := &fakeRoles{}
	store := &fakeStore{configs: levelRoles()}

	outcome := newReconciler(lookup, roles, store).RequestRank(context.Background(), "shroud", "g1", "u9")
	if outcome.Status != StatusAssigned || outcome.RoleID != "roleY" || !outcome.Persisted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if diff := cmp.Diff([]string{"add:u9:roleY"}, roles.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if got := outcome.Message("en"); got != "Your Faceit level is **5** and you were given <@&roleY>." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestRequestRankPersistsFailedAttempt(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{}}
	roles := &fakeRoles{}
	store := &fakeStore{
		configs: levelRoles(),
		users:   []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "old", FaceitLevel: storage.IntPtr(3), AssignedRoleID: "roleX"}},
	}

	outcome := newReconciler(lookup, roles, store).RequestRank(context.Background(), "Typo", "g1", "u1")
	if outcome.Status != StatusNotFound || !outcome.Persisted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(roles.ops) != 0 {
		t.Fatalf("failed lookup must not touch roles, got %v", roles.ops)
	}
	want := []storage.TrackedUser{{
		DiscordID: "u1", GuildID: "g1", FaceitNickname: "Typo",
		FaceitLevel: nil, AssignedRoleID: "roleX", LastUpdated: fixedNow,
	}}
	if diff := cmp.Diff(want, store.upserts); diff != "" {
		t.Fatalf("stored attempt mismatch (-want +got):\n%s", diff)
	}
	if outcome.Message("tr") == "" {
		t.Fatalf("expected a user visible message")
	}
}

func TestRequestRankConfigFailureLeavesLevelForNextPass(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"climber": {level: 5}}}
	roles := &fakeRoles{}
	store := &fakeStore{
		configs:   levelRoles(),
		users:     []storage.TrackedUser{{DiscordID: "u1", GuildID: "g1", FaceitNickname: "climber", FaceitLevel: storage.IntPtr(3), AssignedRoleID: "roleX"}},
		configErr: errors.New("database is locked"),
	}
	reconciler := newReconciler(lookup, roles, store)

	outcome := reconciler.RequestRank(context.Background(), "climber", "g1", "u1")
	if outcome.Status != StatusFailed || !outcome.Persisted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(roles.ops) != 0 {
		t.Fatalf("roles must not change without a config, got %v", roles.ops)
	}
	want := storage.TrackedUser{
		DiscordID: "u1", GuildID: "g1", FaceitNickname: "climber",
		FaceitLevel: nil, AssignedRoleID: "roleX", LastUpdated: fixedNow,
	}
	if diff := cmp.Diff(want, store.users[0]); diff != "" {
		t.Fatalf("stored attempt mismatch (-want +got):\n%s", diff)
	}

	store.configErr = nil
	report, err := reconciler.RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if report.Updated != 1 {
		t.Fatalf("expected the next pass to apply the change, got %+v", report)
	}
	if diff := cmp.Diff([]string{"remove:u1:roleX", "add:u1:roleY"}, roles.ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if got := store.users[0]; got.AssignedRoleID != "roleY" || got.FaceitLevel == nil || *got.FaceitLevel != 5 {
		t.Fatalf("unexpected stored state %+v", got)
	}
}

func TestRequestRankTrackedUserLoadFailure(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"climber": {level: 5}}}
	roles := &fakeRoles{}
	store := &fakeStore{configs: levelRoles(), userErr: errors.New("connection reset")}

	outcome := newReconciler(lookup, roles, store).RequestRank(context.Background(), "climber", "g1", "u1")
	if outcome.Status != StatusFailed || outcome.Persisted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(lookup.calls) != 0 || len(roles.ops) != 0 || len(store.upserts) != 0 {
		t.Fatalf("expected nothing touched, calls=%v ops=%v upserts=%v", lookup.calls, roles.ops, store.upserts)
	}
	if outcome.Message("en") == "" {
		t.Fatalf("expected a user visible message")
	}
}

func TestRequestRankWithoutMappedRole(t *testing.T) {
	lookup := &fakeLookup{results: map[string]lookupResult{"newbie": {level: 1}}}
	store := &fakeStore{configs: levelRoles()}

	outcome := newReconciler(lookup, &fakeRoles{}, store).RequestRank(context.Background(), "newbie", "g1", "u1")
	if outcome.Status != StatusNoRole || outcome.Level != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := outcome.Message("xx"); got != "Faceit seviyen **1**, ancak bu seviye için tanımlı bir rol yok." {
		t.Fatalf("unexpected fallback message %q", got)
	}
}

func TestOutcomeMessageWithoutVerbs(t *testing.T) {
	got := Outcome{Status: StatusProviderError}.Message("en")
	if got != "Faceit is not responding right now, please try again later." {
		t.Fatalf("unexpected message %q", got)
	}
}
