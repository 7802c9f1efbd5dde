// Package ranksync keeps each tracked member's rank role in line with their
// current Faceit level, in batch passes and on member request.
package ranksync

import (
	"context"
	"fmt"
	"time"

	"faceit-rolebot/internal/faceit"
	"faceit-rolebot/internal/metrics"
	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RankLookup interface {
	Lookup(ctx context.Context, nickname string) (faceit.Player, error)
}

type RoleClient interface {
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error
}

type Store interface {
	GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error)
	GetTrackedUser(ctx context.Context, guildID, discordID string) (storage.TrackedUser, bool, error)
	ListTrackedUsers(ctx context.Context) ([]storage.TrackedUser, error)
	UpsertTrackedUser(ctx context.Context, user storage.TrackedUser) error
}

const (
	ResultUnchanged = "unchanged"
	ResultUpdated   = "updated"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

type Reconciler struct {
	lookup  RankLookup
	roles   RoleClient
	store   Store
	logger  *zap.Logger
	audit   *audit.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

func New(lookup RankLookup, roles RoleClient, store Store, logger *zap.Logger, auditLogger *audit.Logger, reg *metrics.Registry) *Reconciler {
	return &Reconciler{
		lookup:  lookup,
		roles:   roles,
		store:   store,
		logger:  logger,
		audit:   auditLogger,
		metrics: reg,
		now:     time.Now,
	}
}

type PassReport struct {
	PassID    string
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Unchanged int
	Updated   int
	Skipped   int
	Failed    int
}

func (r PassReport) String() string {
	return fmt.Sprintf("total=%d updated=%d unchanged=%d skipped=%d failed=%d duration=%s",
		r.Total, r.Updated, r.Unchanged, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))
}

// RunPass reconciles every tracked user once, in store order. A failure for
// one user never stops the pass; only failing to list users is returned.
func (r *Reconciler) RunPass(ctx context.Context) (PassReport, error) {
	report := PassReport{PassID: uuid.NewString(), StartedAt: r.now()}
	logger := r.logger.With(zap.String("pass_id", report.PassID))

	users, err := r.store.ListTrackedUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("list tracked users: %w", err)
	}
	logger.Info("rank sync pass started", zap.Int("users", len(users)))

	configs := make(map[string]storage.GuildConfig)
	for _, user := range users {
		result := r.syncUserSafe(ctx, logger, user, configs)
		r.metrics.SyncUser(result)
		report.Total++
		switch result {
		case ResultUnchanged:
			report.Unchanged++
		case ResultUpdated:
			report.Updated++
		case ResultSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	report.Duration = r.now().Sub(report.StartedAt)
	r.metrics.ObservePass(report.Duration)
	logger.Info("rank sync pass finished",
		zap.Int("total", report.Total),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	r.audit.Log(ctx, audit.LevelInfo, "", "", audit.EventSyncPass, "pass_id="+report.PassID+" "+report.String())
	return report, nil
}

func (r *Reconciler) syncUserSafe(ctx context.Context, logger *zap.Logger, user storage.TrackedUser, configs map[string]storage.GuildConfig) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("rank sync panicked",
				zap.String("guild_id", user.GuildID),
				zap.String("user_id", user.DiscordID),
				zap.Any("panic", rec))
			result = ResultFailed
		}
	}()
	return r.syncUser(ctx, logger, user, configs)
}

func (r *Reconciler) syncUser(ctx context.Context, logger *zap.Logger, user storage.TrackedUser, configs map[string]storage.GuildConfig) string {
	logger = logger.With(zap.String("guild_id", user.GuildID), zap.String("user_id", user.DiscordID), zap.String("nickname", user.FaceitNickname))

	player, err := r.lookup.Lookup(ctx, user.FaceitNickname)
	if err != nil {
		kind := faceit.KindOf(err)
		r.metrics.Lookup(kind)
		logger.Warn("rank lookup failed, keeping stored state", zap.String("kind", kind), zap.Error(err))
		return ResultSkipped
	}
	r.metrics.Lookup("ok")

	if user.FaceitLevel != nil && *user.FaceitLevel == player.Level {
		return ResultUnchanged
	}

	cfg, ok := configs[user.GuildID]
	if !ok {
		cfg, err = r.store.GetGuildConfig(ctx, user.GuildID)
		if err != nil {
			logger.Error("load guild config failed", zap.Error(err))
			return ResultFailed
		}
		configs[user.GuildID] = cfg
	}

	oldRole := user.AssignedRoleID
	newRole := cfg.RoleForLevel(player.Level)
	r.applyRoles(ctx, logger, user.GuildID, user.DiscordID, oldRole, newRole)

	previous := user.FaceitLevel
	user.FaceitLevel = storage.IntPtr(player.Level)
	user.AssignedRoleID = newRole
	user.LastUpdated = r.now()
	if err := r.store.UpsertTrackedUser(ctx, user); err != nil {
		logger.Error("persist tracked user failed", zap.Error(err))
		return ResultFailed
	}

	logger.Info("rank changed", zap.String("from", levelString(previous)), zap.Int("level", player.Level), zap.String("role_id", newRole))
	r.audit.Log(ctx, audit.LevelInfo, user.GuildID, user.DiscordID, audit.EventRankChanged,
		fmt.Sprintf("level=%s->%d role=%s->%s", levelString(previous), player.Level, roleString(oldRole), roleString(newRole)))
	return ResultUpdated
}

// applyRoles revokes oldRole when it differs from newRole and grants newRole
// when set. Failures are logged and reported, never returned.
func (r *Reconciler) applyRoles(ctx context.Context, logger *zap.Logger, guildID, memberID, oldRole, newRole string) (revokeErr, grantErr error) {
	if oldRole != "" && oldRole != newRole {
		revokeErr = r.roles.RemoveMemberRole(ctx, guildID, memberID, oldRole)
		r.metrics.RoleOperation("remove", revokeErr)
		if revokeErr != nil {
			logger.Warn("revoke rank role failed", zap.String("role_id", oldRole), zap.Error(revokeErr))
		}
	}
	if newRole != "" {
		grantErr = r.roles.AddMemberRole(ctx, guildID, memberID, newRole)
		r.metrics.RoleOperation("add", grantErr)
		if grantErr != nil {
			logger.Warn("grant rank role failed", zap.String("role_id", newRole), zap.Error(grantErr))
		}
	}
	return revokeErr, grantErr
}

func levelString(level *int) string {
	if level == nil {
		return "none"
	}
	return fmt.Sprint(*level)
}

func roleString(roleID string) string {
	if roleID == "" {
		return "none"
	}
	return roleID
}
