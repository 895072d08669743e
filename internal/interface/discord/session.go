package discord

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	discordapi "github.com/seasons-hub/seasons-bot/internal/infrastructure/external/discord"
	"github.com/seasons-hub/seasons-bot/internal/interface/discord/presenter"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// Attach registers the bot's gateway handlers on the session. ctx bounds
// every handler; the slash commands are (re)registered in guildID on each
// Ready event.
func (b *Bot) Attach(ctx context.Context, s *discordgo.Session, guildID string, questIDs []string) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		cmds := ApplicationCommands(questIDs)
		if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, guildID, cmds); err != nil {
			b.logger.Error("slash command registration failed", logger.Err(err))
			return
		}
		b.logger.Info("slash commands registered", slog.Int("count", len(cmds)))
	})

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.GuildID != "" && m.GuildID != guildID {
			return
		}
		b.HandleMessage(ctx, ToMessage(m.Message))
	})

	s.AddHandler(func(_ *discordgo.Session, u *discordgo.GuildMemberUpdate) {
		if u.GuildID != guildID || u.Member == nil || u.User == nil {
			return
		}
		if u.BeforeUpdate == nil {
			// Without the cached state the grant cannot be detected.
			b.refreshSeasonChannels()
			return
		}
		b.HandleMemberUpdate(ctx, u.BeforeUpdate.Roles, discordapi.ToMember(u.Member))
	})

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildMemberRemove) {
		if r.GuildID != guildID || r.Member == nil || r.User == nil {
			return
		}
		b.HandleMemberRemove(ctx, r.User.ID)
	})

	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand || i.Member == nil {
			return
		}
		view := b.router.Dispatch(ctx, ToInvocation(i.Interaction))
		if err := s.InteractionRespond(i.Interaction, InteractionResponse(view)); err != nil {
			b.logger.Warn("interaction response failed", logger.Err(err))
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSIONS
// ══════════════════════════════════════════════════════════════════════════════

// ToMessage maps a gateway message. The author's roles are only known for
// guild messages.
func ToMessage(m *discordgo.Message) community.Message {
	msg := community.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		WebhookID: m.WebhookID,
		Text:      m.Content,
	}
	if m.Author != nil {
		msg.Author = community.Member{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: m.Author.GlobalName,
			Bot:         m.Author.Bot,
		}
	}
	if m.Member != nil {
		if m.Member.Nick != "" {
			msg.Author.DisplayName = m.Member.Nick
		}
		msg.Author.RoleIDs = append([]string(nil), m.Member.Roles...)
	}
	if msg.Author.DisplayName == "" {
		msg.Author.DisplayName = msg.Author.Username
	}
	return msg
}

// ToInvocation decodes a slash command interaction.
func ToInvocation(i *discordgo.Interaction) Invocation {
	data := i.ApplicationCommandData()
	inv := Invocation{
		Name:    data.Name,
		Options: make(map[string]string, len(data.Options)),
	}
	if i.Member != nil && i.Member.User != nil {
		inv.Caller = discordapi.ToMember(i.Member)
		inv.Admin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	}

	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionUser:
			inv.Target = resolveUser(data.Resolved, opt.Value)
		case discordgo.ApplicationCommandOptionInteger:
			inv.Options[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		case discordgo.ApplicationCommandOptionBoolean:
			inv.Options[opt.Name] = strconv.FormatBool(opt.BoolValue())
		case discordgo.ApplicationCommandOptionString:
			inv.Options[opt.Name] = opt.StringValue()
		}
	}
	return inv
}

func resolveUser(resolved *discordgo.ApplicationCommandInteractionDataResolved, value any) *community.Member {
	id, _ := value.(string)
	if id == "" {
		return nil
	}
	target := community.Member{ID: id}
	if resolved == nil {
		return &target
	}
	if u, ok := resolved.Users[id]; ok {
		target.Username = u.Username
		target.DisplayName = u.GlobalName
		target.Bot = u.Bot
	}
	if m, ok := resolved.Members[id]; ok {
		if m.Nick != "" {
			target.DisplayName = m.Nick
		}
		target.RoleIDs = append([]string(nil), m.Roles...)
	}
	if target.DisplayName == "" {
		target.DisplayName = target.Username
	}
	return &target
}

// Embed renders a view as an embed.
func Embed(v presenter.View) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       v.Title,
		Description: v.Description,
		Color:       v.Color,
	}
	for _, f := range v.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	return e
}

// InteractionResponse renders a view as a slash command reply. Views without
// a title or fields are sent as plain content.
func InteractionResponse(v presenter.View) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{AllowedMentions: discordapi.NoMentions()}
	if v.Title == "" && len(v.Fields) == 0 {
		data.Content = v.Description
	} else {
		data.Embeds = []*discordgo.MessageEmbed{Embed(v)}
	}
	if v.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}
