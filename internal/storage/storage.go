package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Store is the SQL backend. Every write is a single-row upsert, so each
// guild config or tracked user row is updated atomically on its own.
type Store struct {
	db      *sqlx.DB
	dialect string
	now     func() time.Time
}

var _ Repository = (*Store)(nil)

type guildConfigRow struct {
	GuildID             string `db:"guild_id"`
	ConfigurableRoleIDs string `db:"configurable_role_ids"`
	RoleEmojiMappings   string `db:"role_emoji_mappings"`
	FaceitLevelRoles    string `db:"faceit_level_roles"`
	RolePanelChannelID  string `db:"role_panel_channel_id"`
	RolePanelMessageID  string `db:"role_panel_message_id"`
	UpdatedAt           int64  `db:"updated_at"`
}

type trackedUserRow struct {
	DiscordID      string        `db:"discord_id"`
	GuildID        string        `db:"guild_id"`
	FaceitNickname string        `db:"faceit_nickname"`
	FaceitLevel    sql.NullInt64 `db:"faceit_level"`
	AssignedRoleID string        `db:"assigned_role_id"`
	LastUpdated    int64         `db:"last_updated"`
}

// New opens a SQL store. dialect is "sqlite" (dsn is a file path or
// ":memory:") or "postgres" (dsn is a pgx connection string).
func New(dialect, dsn string) (*Store, error) {
	driver := ""
	switch dialect {
	case DialectSQLite, "":
		dialect = DialectSQLite
		driver = "sqlite"
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// a second connection to ":memory:" would see an empty database
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, dialect: dialect, now: time.Now}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Migrate() error {
	dir := path.Join("migrations", s.dialect)
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join(dir, file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, error) {
	var row guildConfigRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT guild_id, configurable_role_ids, role_emoji_mappings, faceit_level_roles,
		role_panel_channel_id, role_panel_message_id, updated_at
		FROM guild_configs WHERE guild_id = ?`), guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emptyGuildConfig(guildID), nil
		}
		return GuildConfig{}, fmt.Errorf("get guild config %s: %w", guildID, err)
	}

	cfg := emptyGuildConfig(guildID)
	cfg.RolePanelChannelID = row.RolePanelChannelID
	cfg.RolePanelMessageID = row.RolePanelMessageID
	if row.UpdatedAt > 0 {
		cfg.UpdatedAt = time.Unix(row.UpdatedAt, 0)
	}
	if err := decodeJSON(row.ConfigurableRoleIDs, &cfg.ConfigurableRoleIDs); err != nil {
		return GuildConfig{}, fmt.Errorf("decode configurable roles for %s: %w", guildID, err)
	}
	if err := decodeJSON(row.RoleEmojiMappings, &cfg.RoleEmojiMappings); err != nil {
		return GuildConfig{}, fmt.Errorf("decode role emojis for %s: %w", guildID, err)
	}
	if err := decodeJSON(row.FaceitLevelRoles, &cfg.FaceitLevelRoles); err != nil {
		return GuildConfig{}, fmt.Errorf("decode level roles for %s: %w", guildID, err)
	}
	normalizeGuildConfig(&cfg)
	return cfg, nil
}

func (s *Store) SetConfigurableRoles(ctx context.Context, guildID string, roleIDs []string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	encoded, err := json.Marshal(roleIDs)
	if err != nil {
		return err
	}
	return s.upsertGuildColumn(ctx, guildID, "configurable_role_ids", string(encoded))
}

func (s *Store) SetRoleEmojiMappings(ctx context.Context, guildID string, mappings map[string]RoleEmoji) error {
	if mappings == nil {
		mappings = map[string]RoleEmoji{}
	}
	encoded, err := json.Marshal(mappings)
	if err != nil {
		return err
	}
	return s.upsertGuildColumn(ctx, guildID, "role_emoji_mappings", string(encoded))
}

func (s *Store) SetFaceitLevelRoles(ctx context.Context, guildID string, levelRoles map[string]string) error {
	if levelRoles == nil {
		levelRoles = map[string]string{}
	}
	encoded, err := json.Marshal(levelRoles)
	if err != nil {
		return err
	}
	return s.upsertGuildColumn(ctx, guildID, "faceit_level_roles", string(encoded))
}

// SetRolePanel records the identity of the active panel message. Both ids are
// written in one statement so they never disagree.
func (s *Store) SetRolePanel(ctx context.Context, guildID, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO guild_configs (guild_id, role_panel_channel_id, role_panel_message_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			role_panel_channel_id = excluded.role_panel_channel_id,
			role_panel_message_id = excluded.role_panel_message_id,
			updated_at = excluded.updated_at
	`), guildID, channelID, messageID, s.now().Unix())
	if err != nil {
		return fmt.Errorf("set role panel for %s: %w", guildID, err)
	}
	return nil
}

// upsertGuildColumn only touches column, leaving the rest of the document as is.
func (s *Store) upsertGuildColumn(ctx context.Context, guildID, column, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO guild_configs (guild_id, %[1]s, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			%[1]s = excluded.%[1]s,
			updated_at = excluded.updated_at
	`, column)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), guildID, value, s.now().Unix()); err != nil {
		return fmt.Errorf("update %s for %s: %w", column, guildID, err)
	}
	return nil
}

func (s *Store) GetTrackedUser(ctx context.Context, guildID, discordID string) (TrackedUser, bool, error) {
	var row trackedUserRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT discord_id, guild_id, faceit_nickname, faceit_level, assigned_role_id, last_updated
		FROM faceit_users WHERE discord_id = ? AND guild_id = ?`), discordID, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TrackedUser{}, false, nil
		}
		return TrackedUser{}, false, fmt.Errorf("get tracked user %s/%s: %w", guildID, discordID, err)
	}
	return row.toTrackedUser(), true, nil
}

func (s *Store) ListTrackedUsers(ctx context.Context) ([]TrackedUser, error) {
	var rows []trackedUserRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT discord_id, guild_id, faceit_nickname, faceit_level, assigned_role_id, last_updated
		FROM faceit_users
		ORDER BY guild_id, discord_id`)
	if err != nil {
		return nil, fmt.Errorf("list tracked users: %w", err)
	}

	users := make([]TrackedUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toTrackedUser())
	}
	return users, nil
}

func (s *Store) UpsertTrackedUser(ctx context.Context, user TrackedUser) error {
	var level sql.NullInt64
	if user.FaceitLevel != nil {
		level = sql.NullInt64{Int64: int64(*user.FaceitLevel), Valid: true}
	}
	lastUpdated := user.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO faceit_users (discord_id, guild_id, faceit_nickname, faceit_level, assigned_role_id, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (discord_id, guild_id) DO UPDATE SET
			faceit_nickname = excluded.faceit_nickname,
			faceit_level = excluded.faceit_level,
			assigned_role_id = excluded.assigned_role_id,
			last_updated = excluded.last_updated
	`), user.DiscordID, user.GuildID, user.FaceitNickname, level, user.AssignedRoleID, lastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("upsert tracked user %s/%s: %w", user.GuildID, user.DiscordID, err)
	}
	return nil
}

func (s *Store) CountTrackedUsersByLevel(ctx context.Context, guildID string) (LevelCounts, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT faceit_level, COUNT(*)
		FROM faceit_users
		WHERE guild_id = ?
		GROUP BY faceit_level`), guildID)
	if err != nil {
		return LevelCounts{}, fmt.Errorf("count tracked users for %s: %w", guildID, err)
	}
	defer rows.Close()

	counts := LevelCounts{ByLevel: make(map[int]int)}
	for rows.Next() {
		var level sql.NullInt64
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return LevelCounts{}, err
		}
		if !level.Valid {
			counts.Unresolved += count
			continue
		}
		counts.ByLevel[int(level.Int64)] += count
	}
	return counts, rows.Err()
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`), guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM audit_logs WHERE created_at < ?`), cutoff.Unix())
	return err
}

func (r trackedUserRow) toTrackedUser() TrackedUser {
	user := TrackedUser{
		DiscordID:      r.DiscordID,
		GuildID:        r.GuildID,
		FaceitNickname: r.FaceitNickname,
		AssignedRoleID: r.AssignedRoleID,
	}
	if r.FaceitLevel.Valid {
		user.FaceitLevel = IntPtr(int(r.FaceitLevel.Int64))
	}
	if r.LastUpdated > 0 {
		user.LastUpdated = time.Unix(r.LastUpdated, 0)
	}
	return user
}

func emptyGuildConfig(guildID string) GuildConfig {
	return GuildConfig{
		GuildID:             guildID,
		ConfigurableRoleIDs: []string{},
		RoleEmojiMappings:   map[string]RoleEmoji{},
		FaceitLevelRoles:    map[string]string{},
	}
}

// normalizeGuildConfig replaces nil collections decoded from "null" and
// drops a message id that has no channel.
func normalizeGuildConfig(cfg *GuildConfig) {
	if cfg.ConfigurableRoleIDs == nil {
		cfg.ConfigurableRoleIDs = []string{}
	}
	if cfg.RoleEmojiMappings == nil {
		cfg.RoleEmojiMappings = map[string]RoleEmoji{}
	}
	if cfg.FaceitLevelRoles == nil {
		cfg.FaceitLevelRoles = map[string]string{}
	}
	if cfg.RolePanelChannelID == "" {
		cfg.RolePanelMessageID = ""
	}
}

// NormalizeGuildConfig is normalizeGuildConfig for other backends.
func NormalizeGuildConfig(cfg GuildConfig) GuildConfig {
	normalizeGuildConfig(&cfg)
	return cfg
}

// EmptyGuildConfig is the config of a guild that was never configured.
func EmptyGuildConfig(guildID string) GuildConfig {
	return emptyGuildConfig(guildID)
}

func decodeJSON(raw string, target any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
