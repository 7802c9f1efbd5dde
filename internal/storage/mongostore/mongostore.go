// Package mongostore keeps guild configs and tracked users as MongoDB
// documents, one document per guild and one per (guild, member).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"faceit-rolebot/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	guildConfigsCollection = "guild_configs"
	faceitUsersCollection  = "faceit_users"
	auditLogsCollection    = "audit_logs"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

var _ storage.Repository = (*Store)(nil)

type auditDocument struct {
	GuildID   string    `bson:"guildId"`
	UserID    string    `bson:"userId"`
	Level     string    `bson:"level"`
	Event     string    `bson:"event"`
	Details   string    `bson:"details"`
	CreatedAt time.Time `bson:"createdAt"`
}

// New connects to uri. When database is empty the path of the URI names it.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = databaseFromURI(uri)
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	store := &Store{client: client, db: client.Database(database), now: time.Now}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(guildConfigsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guildId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("guild config index: %w", err)
	}
	_, err = s.db.Collection(faceitUsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "discordId", Value: 1}, {Key: "guildId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("faceit user index: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error) {
	var cfg storage.GuildConfig
	err := s.db.Collection(guildConfigsCollection).FindOne(ctx, bson.M{"guildId": guildID}).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return storage.EmptyGuildConfig(guildID), nil
		}
		return storage.GuildConfig{}, fmt.Errorf("get guild config %s: %w", guildID, err)
	}
	cfg.GuildID = guildID
	return storage.NormalizeGuildConfig(cfg), nil
}

func (s *Store) SetConfigurableRoles(ctx context.Context, guildID string, roleIDs []string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	return s.setGuildFields(ctx, guildID, bson.M{"configurableRoleIds": roleIDs})
}

func (s *Store) SetRoleEmojiMappings(ctx context.Context, guildID string, mappings map[string]storage.RoleEmoji) error {
	if mappings == nil {
		mappings = map[string]storage.RoleEmoji{}
	}
	return s.setGuildFields(ctx, guildID, bson.M{"roleEmojiMappings": mappings})
}

func (s *Store) SetFaceitLevelRoles(ctx context.Context, guildID string, levelRoles map[string]string) error {
	if levelRoles == nil {
		levelRoles = map[string]string{}
	}
	return s.setGuildFields(ctx, guildID, bson.M{"faceitLevelRoles": levelRoles})
}

func (s *Store) SetRolePanel(ctx context.Context, guildID, channelID, messageID string) error {
	return s.setGuildFields(ctx, guildID, bson.M{
		"rolePanelChannelId": channelID,
		"rolePanelMessageId": messageID,
	})
}

func (s *Store) setGuildFields(ctx context.Context, guildID string, fields bson.M) error {
	fields["guildId"] = guildID
	fields["updatedAt"] = s.now()
	_, err := s.db.Collection(guildConfigsCollection).UpdateOne(ctx,
		bson.M{"guildId": guildID},
		bson.M{"$set": fields},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update guild config %s: %w", guildID, err)
	}
	return nil
}

func (s *Store) GetTrackedUser(ctx context.Context, guildID, discordID string) (storage.TrackedUser, bool, error) {
	var user storage.TrackedUser
	err := s.db.Collection(faceitUsersCollection).FindOne(ctx, bson.M{"discordId": discordID, "guildId": guildID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return storage.TrackedUser{}, false, nil
		}
		return storage.TrackedUser{}, false, fmt.Errorf("get tracked user %s/%s: %w", guildID, discordID, err)
	}
	return user, true, nil
}

func (s *Store) ListTrackedUsers(ctx context.Context) ([]storage.TrackedUser, error) {
	opts := options.Find().SetSort(bson.D{{Key: "guildId", Value: 1}, {Key: "discordId", Value: 1}})
	cursor, err := s.db.Collection(faceitUsersCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tracked users: %w", err)
	}
	var users []storage.TrackedUser
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode tracked users: %w", err)
	}
	return users, nil
}

func (s *Store) UpsertTrackedUser(ctx context.Context, user storage.TrackedUser) error {
	if user.LastUpdated.IsZero() {
		user.LastUpdated = s.now()
	}
	_, err := s.db.Collection(faceitUsersCollection).UpdateOne(ctx,
		bson.M{"discordId": user.DiscordID, "guildId": user.GuildID},
		bson.M{"$set": bson.M{
			"discordId":      user.DiscordID,
			"guildId":        user.GuildID,
			"faceitNickname": user.FaceitNickname,
			"faceitLevel":    user.FaceitLevel,
			"assignedRoleId": user.AssignedRoleID,
			"lastUpdated":    user.LastUpdated,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert tracked user %s/%s: %w", user.GuildID, user.DiscordID, err)
	}
	return nil
}

func (s *Store) CountTrackedUsersByLevel(ctx context.Context, guildID string) (storage.LevelCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"guildId": guildID}}},
		{{Key: "$group", Value: bson.M{"_id": "$faceitLevel", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.db.Collection(faceitUsersCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return storage.LevelCounts{}, fmt.Errorf("count tracked users for %s: %w", guildID, err)
	}
	var groups []struct {
		Level *int `bson:"_id"`
		Count int  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return storage.LevelCounts{}, err
	}

	counts := storage.LevelCounts{ByLevel: make(map[int]int)}
	for _, group := range groups {
		if group.Level == nil {
			counts.Unresolved += group.Count
			continue
		}
		counts.ByLevel[*group.Level] += group.Count
	}
	return counts, nil
}

func (s *Store) AddAuditLog(ctx context.Context, log storage.AuditLog) error {
	_, err := s.db.Collection(auditLogsCollection).InsertOne(ctx, auditDocument{
		GuildID:   log.GuildID,
		UserID:    log.UserID,
		Level:     log.Level,
		Event:     log.Event,
		Details:   log.Details,
		CreatedAt: log.CreatedAt,
	})
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.db.Collection(auditLogsCollection).Find(ctx,
		bson.M{"guildId": guildID, "createdAt": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	logs := make([]storage.AuditLog, 0, len(docs))
	for _, doc := range docs {
		logs = append(logs, storage.AuditLog{
			GuildID:   doc.GuildID,
			UserID:    doc.UserID,
			Level:     doc.Level,
			Event:     doc.Event,
			Details:   doc.Details,
			CreatedAt: doc.CreatedAt,
		})
	}
	return logs, nil
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	_, err := s.db.Collection(auditLogsCollection).DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	return err
}

func databaseFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Path, "/")
}
