package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/seasons-hub/seasons-bot/internal/application/command"
	"github.com/seasons-hub/seasons-bot/internal/application/query"
	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/internal/interface/discord/presenter"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// Slash command names.
const (
	CmdProfile               = "정보"
	CmdQuests                = "퀘스트"
	CmdXPLeaderboard         = "랭킹"
	CmdCheckIn               = "출석"
	CmdAttendanceLeaderboard = "출석랭킹"
	CmdSuggest               = "건의함"
	CmdAnalyze               = "정보분석"
	CmdGrantXP               = "경험치지급"
	CmdDeductXP              = "경험치차감"
	CmdHiddenQuest           = "히든퀘스트"
)

// Option names.
const (
	OptTarget    = "대상"
	OptAmount    = "양"
	OptContent   = "내용"
	OptAnonymous = "익명"
	OptQuest     = "퀘스트"
	OptReset     = "초기화"
)

// leaderboardSize is the number of entries in ranking replies.
const leaderboardSize = 10

// ══════════════════════════════════════════════════════════════════════════════
// INVOCATION
// ══════════════════════════════════════════════════════════════════════════════

// Invocation is one slash command call, decoded from the interaction.
type Invocation struct {
	Name   string
	Caller community.Member

	// Admin is set when the caller holds the administrator permission.
	Admin bool

	// Options holds option values by name; booleans are "true" or "false".
	Options map[string]string

	// Target is the resolved user option, if any.
	Target *community.Member
}

// Int returns an integer option.
func (inv Invocation) Int(name string) (int, bool) {
	v, ok := inv.Options[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// Bool returns a boolean option, false when absent.
func (inv Invocation) Bool(name string) bool {
	b, _ := strconv.ParseBool(inv.Options[name])
	return b
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

type commandFunc func(ctx context.Context, inv Invocation) (presenter.View, error)

type route struct {
	admin   bool
	handler commandFunc
}

// Router maps slash command names to handlers.
type Router struct {
	bot    *Bot
	routes map[string]route
	pick   func(n int) int
	logger *slog.Logger
}

var errMissingOption = errors.New("missing option")

func newRouter(b *Bot) *Router {
	r := &Router{
		bot:    b,
		routes: make(map[string]route),
		pick:   rand.IntN,
		logger: b.logger.With(slog.String("component", "router")),
	}
	r.register(CmdProfile, false, r.profile)
	r.register(CmdQuests, false, r.quests)
	r.register(CmdXPLeaderboard, false, r.xpLeaderboard)
	r.register(CmdCheckIn, false, r.checkIn)
	r.register(CmdAttendanceLeaderboard, false, r.attendanceLeaderboard)
	r.register(CmdSuggest, false, r.suggest)
	r.register(CmdAnalyze, true, r.analyze)
	r.register(CmdGrantXP, true, r.grant(command.ModeGrant))
	r.register(CmdDeductXP, true, r.grant(command.ModeDeduct))
	r.register(CmdHiddenQuest, true, r.hiddenQuest)
	return r
}

func (r *Router) register(name string, admin bool, h commandFunc) {
	r.routes[name] = route{admin: admin, handler: h}
}

// Names returns the registered command names, sorted.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the invocation and returns the reply. Failures are logged and
// rendered as the generic failure view.
func (r *Router) Dispatch(ctx context.Context, inv Invocation) presenter.View {
	p := r.bot.presenter
	rt, ok := r.routes[inv.Name]
	if !ok {
		r.logger.Warn("unknown command", slog.String("command", inv.Name))
		return p.Failure()
	}
	if rt.admin && !inv.Admin {
		return presenter.View{Description: "관리자만 사용할 수 있는 명령어입니다.", Ephemeral: true}
	}
	r.bot.stats.command(inv.Name)

	ctx, cancel := r.bot.handlerContext(ctx)
	defer cancel()

	var view presenter.View
	_, err := r.bot.deps.Recovery.Run(ctx, "command:"+inv.Name, inv.Caller.ID, func(ctx context.Context) error {
		var err error
		view, err = rt.handler(ctx, inv)
		return err
	})
	if err != nil {
		r.bot.stats.incr(&r.bot.stats.ErrorsCount)
		r.logger.Error("command failed",
			slog.String("command", inv.Name),
			logger.UserID(inv.Caller.ID),
			logger.Err(err),
		)
		return p.Failure()
	}
	return view
}

// ─────────────────────────────────────────────────────────────────────────────
// Member commands
// ─────────────────────────────────────────────────────────────────────────────

func (r *Router) profile(ctx context.Context, inv Invocation) (presenter.View, error) {
	dto, err := r.bot.deps.Progress.Handle(ctx, query.GetProgressQuery{UserID: inv.Caller.ID})
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.Profile(displayName(inv.Caller), dto), nil
}

func (r *Router) quests(ctx context.Context, inv Invocation) (presenter.View, error) {
	dto, err := r.bot.deps.QuestStatus.Handle(ctx, query.GetQuestStatusQuery{UserID: inv.Caller.ID})
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.QuestStatus(dto), nil
}

func (r *Router) xpLeaderboard(ctx context.Context, inv Invocation) (presenter.View, error) {
	dto, err := r.bot.deps.XPLeaderboard.Handle(ctx, query.GetXPLeaderboardQuery{Limit: leaderboardSize, UserID: inv.Caller.ID})
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.XPLeaderboard(dto), nil
}

func (r *Router) attendanceLeaderboard(ctx context.Context, inv Invocation) (presenter.View, error) {
	dto, err := r.bot.deps.AttendanceLeaderboard.Handle(ctx, query.GetAttendanceLeaderboardQuery{Limit: leaderboardSize, UserID: inv.Caller.ID})
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.AttendanceLeaderboard(dto), nil
}

func (r *Router) checkIn(ctx context.Context, inv Invocation) (presenter.View, error) {
	res, err := r.bot.deps.CheckIn.Handle(ctx, command.CheckInCommand{Member: inv.Caller})
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.CheckIn(res, r.pick), nil
}

func (r *Router) suggest(ctx context.Context, inv Invocation) (presenter.View, error) {
	cmd := command.SuggestCommand{
		Author:    inv.Caller,
		Anonymous: inv.Bool(OptAnonymous),
		Content:   inv.Options[OptContent],
	}
	err := r.bot.deps.Suggest.Handle(ctx, cmd)
	if errors.Is(err, command.ErrSuggestionTooLong) {
		return r.bot.presenter.SuggestionTooLong(), nil
	}
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.Suggested(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Admin commands
// ─────────────────────────────────────────────────────────────────────────────

func (r *Router) analyze(ctx context.Context, inv Invocation) (presenter.View, error) {
	if inv.Target == nil {
		return presenter.View{}, fmt.Errorf("%s: %w", OptTarget, errMissingOption)
	}
	dto, err := r.bot.deps.Progress.Handle(ctx, query.GetProgressQuery{UserID: inv.Target.ID})
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.Analyze(displayName(*inv.Target), dto), nil
}

func (r *Router) grant(mode command.GrantMode) commandFunc {
	return func(ctx context.Context, inv Invocation) (presenter.View, error) {
		amount, ok := inv.Int(OptAmount)
		if inv.Target == nil || !ok {
			return presenter.View{}, fmt.Errorf("%s/%s: %w", OptTarget, OptAmount, errMissingOption)
		}
		_, err := r.bot.deps.GrantXP.Handle(ctx, command.GrantXPCommand{Member: *inv.Target, Amount: amount, Mode: mode})
		if err != nil {
			return presenter.View{}, err
		}
		return r.bot.presenter.GrantXP(inv.Target.ID, amount, mode), nil
	}
}

func (r *Router) hiddenQuest(ctx context.Context, inv Invocation) (presenter.View, error) {
	questID := inv.Options[OptQuest]
	if questID == "" {
		return presenter.View{}, fmt.Errorf("%s: %w", OptQuest, errMissingOption)
	}
	if inv.Bool(OptReset) {
		if err := r.bot.deps.Quests.Reset(ctx, questID); err != nil {
			if errors.Is(err, shared.ErrQuestNotFound) {
				return unknownQuest(questID), nil
			}
			return presenter.View{}, err
		}
		return r.bot.presenter.QuestReset(questID), nil
	}

	dto, err := r.bot.deps.InspectQuest.Handle(ctx, query.InspectHiddenQuestQuery{QuestID: questID})
	if errors.Is(err, shared.ErrQuestNotFound) {
		return unknownQuest(questID), nil
	}
	if err != nil {
		return presenter.View{}, err
	}
	return r.bot.presenter.HiddenQuest(dto), nil
}

func unknownQuest(questID string) presenter.View {
	return presenter.View{Description: fmt.Sprintf("❌ 히든 퀘스트 %s를 찾을 수 없습니다.", questID), Ephemeral: true}
}

func displayName(m community.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.Username != "" {
		return m.Username
	}
	return m.ID
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

var adminPermission int64 = discordgo.PermissionAdministrator

func targetOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        OptTarget,
		Description: desc,
		Required:    true,
	}
}

func amountOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        OptAmount,
		Description: desc,
		Required:    true,
		MinValue:    ptr(1.0),
	}
}

func ptr[T any](v T) *T { return &v }

// ApplicationCommands returns the slash commands registered in the guild.
// quests lists the hidden quest ids offered as choices.
func ApplicationCommands(questIDs []string) []*discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(questIDs))
	for _, id := range questIDs {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: id, Value: id})
	}

	return []*discordgo.ApplicationCommand{
		{Name: CmdProfile, Description: "내 레벨과 경험치를 확인합니다."},
		{Name: CmdQuests, Description: "오늘의 퀘스트 진행 상황을 확인합니다."},
		{Name: CmdXPLeaderboard, Description: "경험치 랭킹을 확인합니다."},
		{Name: CmdCheckIn, Description: "오늘의 출석 체크를 합니다."},
		{Name: CmdAttendanceLeaderboard, Description: "출석 랭킹을 확인합니다."},
		{
			Name:        CmdSuggest,
			Description: "운영진에게 건의사항을 보냅니다.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: OptContent, Description: "건의 내용", Required: true},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: OptAnonymous, Description: "익명으로 보내기"},
			},
		},
		{
			Name:                     CmdAnalyze,
			Description:              "사용자의 활동 정보를 분석합니다.",
			DefaultMemberPermissions: &adminPermission,
			Options:                  []*discordgo.ApplicationCommandOption{targetOption("분석할 사용자")},
		},
		{
			Name:                     CmdGrantXP,
			Description:              "사용자에게 경험치를 지급합니다.",
			DefaultMemberPermissions: &adminPermission,
			Options:                  []*discordgo.ApplicationCommandOption{targetOption("지급할 사용자"), amountOption("지급할 경험치")},
		},
		{
			Name:                     CmdDeductXP,
			Description:              "사용자의 경험치를 차감합니다.",
			DefaultMemberPermissions: &adminPermission,
			Options:                  []*discordgo.ApplicationCommandOption{targetOption("차감할 사용자"), amountOption("차감할 경험치")},
		},
		{
			Name:                     CmdHiddenQuest,
			Description:              "히든 퀘스트 상태를 확인하거나 초기화합니다.",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: OptQuest, Description: "퀘스트 ID", Required: true, Choices: choices},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: OptReset, Description: "초기화"},
			},
		},
	}
}
