// Package communitytest provides an in-memory community.Platform for tests.
package communitytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// Call records one mutating platform call.
type Call struct {
	Op     string
	Target string
	Value  string
}

// Platform is a fake platform. Fields may be set directly before use; use the
// methods once the platform is shared with goroutines.
type Platform struct {
	mu sync.Mutex

	Guild        string
	Owner        string
	AFKChannel   string
	Channels     []community.VoiceChannel
	AllMembers   []community.Member
	ChannelNames map[string]string

	// FailOps maps an operation name ("AddRole", "SendDirect", ...) to the
	// error it returns.
	FailOps map[string]error

	calls []Call
}

// New returns an empty fake.
func New() *Platform {
	return &Platform{
		Guild:        "guild-1",
		Owner:        "owner",
		ChannelNames: make(map[string]string),
		FailOps:      make(map[string]error),
	}
}

// Calls returns a copy of the recorded mutating calls.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsOf returns recorded calls of one operation.
func (p *Platform) CallsOf(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Fail makes op return err from now on.
func (p *Platform) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailOps[op] = err
}

func (p *Platform) record(op, target, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: op, Target: target, Value: value})
	return p.FailOps[op]
}

func (p *Platform) Presence(ctx context.Context) (*community.Presence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FailOps["Presence"]; err != nil {
		return nil, err
	}
	channels := make([]community.VoiceChannel, len(p.Channels))
	copy(channels, p.Channels)
	return &community.Presence{GuildID: p.Guild, OwnerID: p.Owner, AFKChannelID: p.AFKChannel, VoiceChannels: channels}, nil
}

func (p *Platform) Members(ctx context.Context) ([]community.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FailOps["Members"]; err != nil {
		return nil, err
	}
	out := make([]community.Member, len(p.AllMembers))
	copy(out, p.AllMembers)
	return out, nil
}

func (p *Platform) Member(ctx context.Context, userID string) (*community.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.AllMembers {
		if m.ID == userID {
			m := m
			return &m, nil
		}
	}
	for _, ch := range p.Channels {
		for _, m := range ch.Members {
			if m.ID == userID {
				m := m
				return &m, nil
			}
		}
	}
	return nil, shared.ErrMemberNotFound
}

func (p *Platform) OwnerID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Owner, nil
}

func (p *Platform) ChannelName(ctx context.Context, channelID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.ChannelNames[channelID]
	if !ok {
		return "", shared.ErrChannelNotFound
	}
	return name, nil
}

func (p *Platform) AddRole(ctx context.Context, userID, roleID string) error {
	if err := p.record("AddRole", userID, roleID); err != nil {
		return err
	}
	p.mutateMember(userID, func(m *community.Member) { m.RoleIDs = append(m.RoleIDs, roleID) })
	return nil
}

func (p *Platform) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := p.record("RemoveRole", userID, roleID); err != nil {
		return err
	}
	p.mutateMember(userID, func(m *community.Member) {
		kept := m.RoleIDs[:0]
		for _, id := range m.RoleIDs {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		m.RoleIDs = kept
	})
	return nil
}

func (p *Platform) SetNickname(ctx context.Context, userID, nickname string) error {
	if err := p.record("SetNickname", userID, nickname); err != nil {
		return err
	}
	p.mutateMember(userID, func(m *community.Member) { m.DisplayName = nickname })
	return nil
}

func (p *Platform) Kick(ctx context.Context, userID, reason string) error {
	return p.record("Kick", userID, reason)
}

func (p *Platform) SendMessage(ctx context.Context, channelID, content string) error {
	return p.record("SendMessage", channelID, content)
}

func (p *Platform) SendDirect(ctx context.Context, userID, content string) error {
	return p.record("SendDirect", userID, content)
}

func (p *Platform) RenameChannel(ctx context.Context, channelID, name string) error {
	if err := p.record("RenameChannel", channelID, name); err != nil {
		return err
	}
	p.mu.Lock()
	p.ChannelNames[channelID] = name
	p.mu.Unlock()
	return nil
}

func (p *Platform) mutateMember(userID string, fn func(m *community.Member)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.AllMembers {
		if p.AllMembers[i].ID == userID {
			fn(&p.AllMembers[i])
		}
	}
}

// String summarizes the fake for failure messages.
func (p *Platform) String() string {
	return fmt.Sprintf("fake platform: %d calls", len(p.Calls()))
}

var _ community.Platform = (*Platform)(nil)
