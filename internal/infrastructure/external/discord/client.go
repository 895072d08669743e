// Package discord implements community.Platform over the Discord gateway and
// REST API. Reads come from the gateway state cache when possible; every REST
// call is bounded by a semaphore and mutations go through a circuit breaker.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/semaphore"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/circuitbreaker"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Intents requested from the gateway.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// ClientConfig contains configuration for the Discord client.
type ClientConfig struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID is the single guild the bot serves.
	GuildID string

	// MaxConcurrentCalls bounds in-flight REST calls (default 3).
	MaxConcurrentCalls int64

	// Logger for structured logging
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Discord platform adapter.
type Client struct {
	session *discordgo.Session
	guildID string
	sem     *semaphore.Weighted
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger

	connected atomic.Bool
	mu        sync.Mutex
	done      chan struct{}
}

// NewClient creates a session without connecting it.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" || cfg.GuildID == "" {
		return nil, shared.NewDomainError("platform", "NewClient", shared.ErrConfiguration, "token and guild id are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 3
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true
	session.State.TrackMembers = true
	session.State.TrackVoice = true
	// Reconnection is owned by the gateway supervisor.
	session.ShouldReconnectOnError = false
	session.ShouldRetryOnRateLimit = false

	log := cfg.Logger.With(logger.Component("discord"))
	c := &Client{
		session: session,
		guildID: cfg.GuildID,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		logger:  log,
	}
	c.breaker = circuitbreaker.PlatformMutationBreaker(isBreakerFailure, func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
	})

	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		c.markDisconnected()
	})
	return c, nil
}

// Session exposes the underlying session for event handler registration.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// GuildID returns the served guild.
func (c *Client) GuildID() string {
	return c.guildID
}

func isBreakerFailure(err error) bool {
	return errors.Is(err, shared.ErrRateLimited) || errors.Is(err, shared.ErrTransientExternal)
}

// call runs a read against the REST API under the semaphore.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	return classify(op, fn())
}

// mutate runs a write under the semaphore and the circuit breaker.
func (c *Client) mutate(ctx context.Context, op string, fn func() error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	err := c.breaker.Execute(ctx, func(context.Context) error {
		return classify(op, fn())
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("platform", op, shared.ErrTransientExternal, "mutations paused", err)
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) guild(ctx context.Context) (*discordgo.Guild, error) {
	if g, err := c.session.State.Guild(c.guildID); err == nil {
		return g, nil
	}
	var g *discordgo.Guild
	err := c.call(ctx, "Guild", func() error {
		var err error
		g, err = c.session.Guild(c.guildID, discordgo.WithContext(ctx))
		return err
	})
	return g, err
}

// Presence snapshots voice channels with their connected members from the
// gateway state. Channels without members are included.
func (c *Client) Presence(ctx context.Context) (*community.Presence, error) {
	g, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return nil, shared.WrapError("platform", "Presence", shared.ErrTransientExternal, "guild not in state", err)
	}

	c.session.State.RLock()
	defer c.session.State.RUnlock()

	byChannel := make(map[string][]community.Member)
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == "" {
			continue
		}
		m := vs.Member
		if m == nil {
			m = findMember(g.Members, vs.UserID)
		}
		if m == nil || m.User == nil {
			continue
		}
		byChannel[vs.ChannelID] = append(byChannel[vs.ChannelID], ToMember(m))
	}

	p := &community.Presence{GuildID: g.ID, OwnerID: g.OwnerID, AFKChannelID: g.AfkChannelID}
	for _, ch := range g.Channels {
		kind, ok := channelKind(ch.Type)
		if !ok {
			continue
		}
		p.VoiceChannels = append(p.VoiceChannels, community.VoiceChannel{
			ID:         ch.ID,
			Name:       ch.Name,
			CategoryID: ch.ParentID,
			Kind:       kind,
			Members:    byChannel[ch.ID],
		})
	}
	return p, nil
}

// Members pages through every guild member over REST.
func (c *Client) Members(ctx context.Context) ([]community.Member, error) {
	var out []community.Member
	after := ""
	for {
		var page []*discordgo.Member
		err := c.call(ctx, "Members", func() error {
			var err error
			page, err = c.session.GuildMembers(c.guildID, after, 1000, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			if m.User != nil {
				out = append(out, ToMember(m))
			}
		}
		if len(page) < 1000 {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) Member(ctx context.Context, userID string) (*community.Member, error) {
	if m, err := c.session.State.Member(c.guildID, userID); err == nil && m.User != nil {
		out := ToMember(m)
		return &out, nil
	}

	var m *discordgo.Member
	err := c.call(ctx, "Member", func() error {
		var err error
		m, err = c.session.GuildMember(c.guildID, userID, discordgo.WithContext(ctx))
		return err
	})
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	out := ToMember(m)
	return &out, nil
}

func (c *Client) OwnerID(ctx context.Context) (string, error) {
	g, err := c.guild(ctx)
	if err != nil {
		return "", err
	}
	return g.OwnerID, nil
}

func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	if ch, err := c.session.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}

	var ch *discordgo.Channel
	err := c.call(ctx, "Channel", func() error {
		var err error
		ch, err = c.session.Channel(channelID, discordgo.WithContext(ctx))
		return err
	})
	if errors.Is(err, shared.ErrNotFound) {
		return "", shared.ErrChannelNotFound
	}
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	return c.mutate(ctx, "AddRole", func() error {
		return c.session.GuildMemberRoleAdd(c.guildID, userID, roleID, discordgo.WithContext(ctx))
	})
}

func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	return c.mutate(ctx, "RemoveRole", func() error {
		return c.session.GuildMemberRoleRemove(c.guildID, userID, roleID, discordgo.WithContext(ctx))
	})
}

func (c *Client) SetNickname(ctx context.Context, userID, nickname string) error {
	return c.mutate(ctx, "SetNickname", func() error {
		return c.session.GuildMemberNickname(c.guildID, userID, nickname, discordgo.WithContext(ctx))
	})
}

func (c *Client) Kick(ctx context.Context, userID, reason string) error {
	return c.mutate(ctx, "Kick", func() error {
		return c.session.GuildMemberDeleteWithReason(c.guildID, userID, reason, discordgo.WithContext(ctx))
	})
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	return c.mutate(ctx, "SendMessage", func() error {
		_, err := c.session.ChannelMessageSendComplex(channelID, quietMessage(content), discordgo.WithContext(ctx))
		return err
	})
}

func (c *Client) SendDirect(ctx context.Context, userID, content string) error {
	return c.mutate(ctx, "SendDirect", func() error {
		ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		_, err = c.session.ChannelMessageSendComplex(ch.ID, quietMessage(content), discordgo.WithContext(ctx))
		return err
	})
}

func (c *Client) RenameChannel(ctx context.Context, channelID, name string) error {
	return c.mutate(ctx, "RenameChannel", func() error {
		_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
		return err
	})
}

// quietMessage builds a message whose mentions never ping.
func quietMessage(content string) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: NoMentions(),
	}
}

// NoMentions disables every mention type.
func NoMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// ToMember maps a guild member. m.User must be set.
func ToMember(m *discordgo.Member) community.Member {
	roles := make([]string, len(m.Roles))
	copy(roles, m.Roles)
	return community.Member{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: m.DisplayName(),
		Bot:         m.User.Bot,
		RoleIDs:     roles,
		JoinedAt:    m.JoinedAt,
	}
}

func findMember(members []*discordgo.Member, userID string) *discordgo.Member {
	for _, m := range members {
		if m.User != nil && m.User.ID == userID {
			return m
		}
	}
	return nil
}

func channelKind(t discordgo.ChannelType) (community.ChannelKind, bool) {
	switch t {
	case discordgo.ChannelTypeGuildVoice:
		return community.ChannelVoice, true
	case discordgo.ChannelTypeGuildStageVoice:
		return community.ChannelStage, true
	default:
		return 0, false
	}
}

var _ community.Platform = (*Client)(nil)
