// Package community describes the chat space the bot serves: its members,
// voice presence and the operations the bot performs on them. The concrete
// adapter lives in infrastructure/external/discord.
package community

import (
	"context"
	"slices"
	"time"
)

// Member is a guild member as seen at snapshot time.
type Member struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
	RoleIDs     []string
	JoinedAt    time.Time
}

// HasRole reports whether the member holds roleID.
func (m Member) HasRole(roleID string) bool {
	return slices.Contains(m.RoleIDs, roleID)
}

// HasAnyRole reports whether the member holds any of roleIDs.
func (m Member) HasAnyRole(roleIDs []string) bool {
	for _, id := range roleIDs {
		if m.HasRole(id) {
			return true
		}
	}
	return false
}

// ChannelKind distinguishes voice-like channels.
type ChannelKind int

const (
	ChannelVoice ChannelKind = iota
	ChannelStage
)

// VoiceChannel is a voice-like channel with the members currently connected.
type VoiceChannel struct {
	ID         string
	Name       string
	CategoryID string
	Kind       ChannelKind
	Members    []Member
}

// Humans returns the connected members that are not bots.
func (c VoiceChannel) Humans() []Member {
	out := make([]Member, 0, len(c.Members))
	for _, m := range c.Members {
		if !m.Bot {
			out = append(out, m)
		}
	}
	return out
}

// Presence is a point-in-time view of who is connected where.
type Presence struct {
	GuildID       string
	OwnerID       string
	AFKChannelID  string
	VoiceChannels []VoiceChannel
}

// Active returns the voice channels other than the AFK channel.
func (p *Presence) Active() []VoiceChannel {
	out := make([]VoiceChannel, 0, len(p.VoiceChannels))
	for _, ch := range p.VoiceChannels {
		if p.AFKChannelID != "" && ch.ID == p.AFKChannelID {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// Message is an inbound chat message.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	Author    Member
	WebhookID string
	Text      string
}

// IsDirect reports whether the message was sent outside a guild.
func (m Message) IsDirect() bool { return m.GuildID == "" }

// ══════════════════════════════════════════════════════════════════════════════
// PLATFORM PORTS
// Every call may fail with a permission or rate-limit error. Call sites log
// and continue; none of them retries within the same cycle.
// ══════════════════════════════════════════════════════════════════════════════

// PresenceReader enumerates voice presence.
type PresenceReader interface {
	Presence(ctx context.Context) (*Presence, error)
}

// Directory looks up members and channels.
type Directory interface {
	Members(ctx context.Context) ([]Member, error)
	Member(ctx context.Context, userID string) (*Member, error)
	OwnerID(ctx context.Context) (string, error)
	ChannelName(ctx context.Context, channelID string) (string, error)
}

// MemberMutator changes roles and nicknames, and removes members.
type MemberMutator interface {
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	SetNickname(ctx context.Context, userID, nickname string) error
	Kick(ctx context.Context, userID, reason string) error
}

// Messenger delivers messages. Mentions in content never ping.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) error
	SendDirect(ctx context.Context, userID, content string) error
}

// ChannelEditor renames channels.
type ChannelEditor interface {
	RenameChannel(ctx context.Context, channelID, name string) error
}

// Platform is everything the bot needs from the chat service.
type Platform interface {
	PresenceReader
	Directory
	MemberMutator
	Messenger
	ChannelEditor
}
