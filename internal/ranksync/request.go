package ranksync

import (
	"context"
	"fmt"

	"faceit-rolebot/internal/faceit"
	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/storage"

	"go.uber.org/zap"
)

const (
	StatusAssigned      = "assigned"
	StatusNoRole        = "no_role"
	StatusRoleFailed    = "role_failed"
	StatusNotFound      = faceit.KindNotFound
	StatusNoGameData    = faceit.KindNoGameData
	StatusProviderError = faceit.KindProviderError
	StatusFailed        = "failed"
)

// Outcome is the result of one member's rank request.
type Outcome struct {
	Status    string
	Nickname  string
	Level     int
	RoleID    string
	Persisted bool
}

// RequestRank resolves nickname for a member, applies the mapped rank role
// and always records the attempt. A failed lookup is stored with no level
// and keeps the previously assigned role, so it can be revoked later.
// Nothing is touched when the member's stored record cannot be read.
func (r *Reconciler) RequestRank(ctx context.Context, nickname, guildID, memberID string) Outcome {
	logger := r.logger.With(zap.String("guild_id", guildID), zap.String("user_id", memberID), zap.String("nickname", nickname))

	previous, _, err := r.store.GetTrackedUser(ctx, guildID, memberID)
	if err != nil {
		logger.Error("load tracked user failed", zap.Error(err))
		return Outcome{Status: StatusFailed, Nickname: nickname}
	}
	record := storage.TrackedUser{
		DiscordID:      memberID,
		GuildID:        guildID,
		FaceitNickname: nickname,
		AssignedRoleID: previous.AssignedRoleID,
	}

	player, err := r.lookup.Lookup(ctx, nickname)
	if err != nil {
		kind := faceit.KindOf(err)
		r.metrics.Lookup(kind)
		logger.Warn("rank request lookup failed", zap.String("kind", kind), zap.Error(err))

		outcome := Outcome{Status: kind, Nickname: nickname}
		outcome.Persisted = r.persist(ctx, logger, record)
		r.audit.Log(ctx, audit.LevelWarn, guildID, memberID, audit.EventRankLookupError,
			fmt.Sprintf("nickname=%s kind=%s", nickname, kind))
		return outcome
	}
	r.metrics.Lookup("ok")

	level := player.Level
	record.FaceitLevel = storage.IntPtr(level)
	outcome := Outcome{Nickname: nickname, Level: level}

	cfg, err := r.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		logger.Error("load guild config failed", zap.Error(err))
		outcome.Status = StatusFailed
		// the role was not reconciled, leave the level open for the next pass
		record.FaceitLevel = nil
		outcome.Persisted = r.persist(ctx, logger, record)
		return outcome
	}

	newRole := cfg.RoleForLevel(level)
	_, grantErr := r.applyRoles(ctx, logger, guildID, memberID, previous.AssignedRoleID, newRole)
	record.AssignedRoleID = newRole
	outcome.RoleID = newRole

	switch {
	case newRole == "":
		outcome.Status = StatusNoRole
	case grantErr != nil:
		outcome.Status = StatusRoleFailed
	default:
		outcome.Status = StatusAssigned
	}
	outcome.Persisted = r.persist(ctx, logger, record)

	r.audit.Log(ctx, audit.LevelInfo, guildID, memberID, audit.EventRankRequest,
		fmt.Sprintf("nickname=%s level=%d role=%s status=%s", nickname, level, roleString(newRole), outcome.Status))
	return outcome
}

func (r *Reconciler) persist(ctx context.Context, logger *zap.Logger, record storage.TrackedUser) bool {
	record.LastUpdated = r.now()
	if err := r.store.UpsertTrackedUser(ctx, record); err != nil {
		logger.Error("persist tracked user failed", zap.Error(err))
		return false
	}
	return true
}
