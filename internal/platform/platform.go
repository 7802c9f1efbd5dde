// Package platform is the thin Discord REST adapter used by the role panel
// and rank sync. Every call takes a context and returns *APIError on failure.
package platform

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
)

type Role struct {
	ID       string
	Name     string
	Icon     string
	Color    int
	Position int
	Managed  bool
}

// Message is the subset of a Discord message the bot creates and edits.
type Message struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

type Client struct {
	session *discordgo.Session
	roles   *cache.Cache
	roleTTL time.Duration
}

// New wraps session. Guild roles are cached for roleTTL; zero disables the cache.
func New(session *discordgo.Session, roleTTL time.Duration) *Client {
	c := &Client{session: session, roleTTL: roleTTL}
	if roleTTL > 0 {
		c.roles = cache.New(roleTTL, 2*roleTTL)
	}
	return c
}

func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	if c.roles != nil {
		if cached, ok := c.roles.Get(guildID); ok {
			return cached.([]Role), nil
		}
	}

	raw, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("guild roles", err)
	}
	roles := make([]Role, 0, len(raw))
	for _, role := range raw {
		if role == nil {
			continue
		}
		roles = append(roles, Role{
			ID:       role.ID,
			Name:     role.Name,
			Icon:     role.Icon,
			Color:    role.Color,
			Position: role.Position,
			Managed:  role.Managed,
		})
	}
	if c.roles != nil {
		c.roles.Set(guildID, roles, cache.DefaultExpiration)
	}
	return roles, nil
}

// InvalidateRoles drops the cached role list of a guild.
func (c *Client) InvalidateRoles(guildID string) {
	if c.roles != nil {
		c.roles.Delete(guildID)
	}
}

// MemberRoles returns the role ids a member currently holds. It always asks
// REST: without the members intent the gateway state goes stale after the
// bot's own role changes.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("guild member", err)
	}
	return append([]string(nil), member.Roles...), nil
}

func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return wrap("add member role", c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return wrap("remove member role", c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     msg.Embeds,
		Components: msg.Components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("send message", err)
	}
	return sent.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).
		SetContent(msg.Content).
		SetEmbeds(msg.Embeds)
	components := msg.Components
	edit.Components = &components

	_, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return wrap("edit message", err)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return wrap("delete message", c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}
