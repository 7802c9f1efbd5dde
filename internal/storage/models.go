package storage

import (
	"context"
	"strconv"
	"time"
)

// RoleEmoji is the emoji shown next to a role in the role panel.
type RoleEmoji struct {
	ID       string `json:"id,omitempty" bson:"id,omitempty"`
	Name     string `json:"name" bson:"name"`
	Animated bool   `json:"animated,omitempty" bson:"animated,omitempty"`
}

// GuildConfig is the per-guild configuration document.
// RolePanelMessageID is only meaningful together with RolePanelChannelID.
type GuildConfig struct {
	GuildID             string               `json:"guildId" bson:"guildId"`
	ConfigurableRoleIDs []string             `json:"configurableRoleIds" bson:"configurableRoleIds"`
	RoleEmojiMappings   map[string]RoleEmoji `json:"roleEmojiMappings" bson:"roleEmojiMappings"`
	FaceitLevelRoles    map[string]string    `json:"faceitLevelRoles" bson:"faceitLevelRoles"`
	RolePanelChannelID  string               `json:"rolePanelChannelId,omitempty" bson:"rolePanelChannelId,omitempty"`
	RolePanelMessageID  string               `json:"rolePanelMessageId,omitempty" bson:"rolePanelMessageId,omitempty"`
	UpdatedAt           time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// RoleForLevel returns the role mapped to level, or "" when the level has no role.
func (c GuildConfig) RoleForLevel(level int) string {
	return c.FaceitLevelRoles[strconv.Itoa(level)]
}

func (c GuildConfig) HasPanel() bool {
	return c.RolePanelChannelID != "" && c.RolePanelMessageID != ""
}

func (c GuildConfig) IsConfigurable(roleID string) bool {
	for _, id := range c.ConfigurableRoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// TrackedUser is a (guild, member) pair registered for rank based roles.
// A nil FaceitLevel means the last attempt could not resolve a level and an
// empty AssignedRoleID means no rank role is believed to be granted.
type TrackedUser struct {
	DiscordID      string    `json:"discordId" bson:"discordId"`
	GuildID        string    `json:"guildId" bson:"guildId"`
	FaceitNickname string    `json:"faceitNickname" bson:"faceitNickname"`
	FaceitLevel    *int      `json:"faceitLevel" bson:"faceitLevel"`
	AssignedRoleID string    `json:"assignedRoleId,omitempty" bson:"assignedRoleId,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated" bson:"lastUpdated"`
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

// LevelCounts summarizes tracked users of one guild by their last known level.
type LevelCounts struct {
	ByLevel    map[int]int
	Unresolved int
}

func (c LevelCounts) Total() int {
	total := c.Unresolved
	for _, n := range c.ByLevel {
		total += n
	}
	return total
}

// Repository is implemented by every storage backend.
type Repository interface {
	GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, error)
	SetConfigurableRoles(ctx context.Context, guildID string, roleIDs []string) error
	SetRoleEmojiMappings(ctx context.Context, guildID string, mappings map[string]RoleEmoji) error
	SetFaceitLevelRoles(ctx context.Context, guildID string, levelRoles map[string]string) error
	SetRolePanel(ctx context.Context, guildID, channelID, messageID string) error

	GetTrackedUser(ctx context.Context, guildID, discordID string) (TrackedUser, bool, error)
	ListTrackedUsers(ctx context.Context) ([]TrackedUser, error)
	UpsertTrackedUser(ctx context.Context, user TrackedUser) error
	CountTrackedUsersByLevel(ctx context.Context, guildID string) (LevelCounts, error)

	AddAuditLog(ctx context.Context, log AuditLog) error
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error)
	CleanupAuditLogs(ctx context.Context, retentionDays int) error

	Ping(ctx context.Context) error
	Close()
}

// IntPtr is a small helper for building TrackedUser values.
func IntPtr(v int) *int {
	return &v
}
