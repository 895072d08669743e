// Package presenter formats query and command results for Discord.
// Presenters return plain views; the bot turns them into embeds or
// interaction responses.
package presenter

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/seasons-hub/seasons-bot/internal/application/command"
	"github.com/seasons-hub/seasons-bot/internal/application/query"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// Embed colors.
const (
	ColorGold   = 0xF1C40F
	ColorBlue   = 0x3498DB
	ColorGreen  = 0x2ECC71
	ColorOrange = 0xE67E22
	ColorGrey   = 0x95A5A6
)

// Field is one titled section of a view.
type Field struct {
	Name  string
	Value string
}

// View is a formatted reply.
type View struct {
	Title       string
	Description string
	Fields      []Field
	Color       int

	// Ephemeral replies are shown to the caller only.
	Ephemeral bool
}

// Text flattens the view into a plain message.
func (v View) Text() string {
	var sb strings.Builder
	if v.Title != "" {
		sb.WriteString(v.Title)
	}
	if v.Description != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(v.Description)
	}
	for _, f := range v.Fields {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(f.Name)
		sb.WriteString("\n")
		sb.WriteString(f.Value)
	}
	return sb.String()
}

// Presenter formats replies. Numbers use Korean grouping ("1,234").
type Presenter struct {
	printer *message.Printer
}

// New creates a presenter.
func New() *Presenter {
	return &Presenter{printer: message.NewPrinter(language.Korean)}
}

// Number formats n with digit grouping.
func (p *Presenter) Number(n int) string {
	return p.printer.Sprintf("%d", n)
}

// ─────────────────────────────────────────────────────────────────────────────
// Rankings
// ─────────────────────────────────────────────────────────────────────────────

// XPLeaderboard renders the experience ranking.
func (p *Presenter) XPLeaderboard(res *query.XPLeaderboardDTO) View {
	v := View{Title: "🏆 경험치 랭킹", Color: ColorGold}

	lines := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		lines = append(lines, fmt.Sprintf("%d위. %s - Lv. %d (%s XP)", e.Rank, e.DisplayName, e.Level, p.Number(e.Exp)))
	}
	if len(lines) == 0 {
		v.Description = "랭킹 데이터가 없습니다."
	} else {
		v.Description = strings.Join(lines, "\n")
	}

	if res.Own != nil {
		v.Fields = append(v.Fields, Field{
			Name:  "📍 내 순위",
			Value: fmt.Sprintf("당신의 순위: %d위 - Lv. %d (%s XP)", res.Own.Rank, res.Own.Level, p.Number(res.Own.Exp)),
		})
	}
	return v
}

// AttendanceLeaderboard renders the attendance ranking.
func (p *Presenter) AttendanceLeaderboard(res *query.AttendanceLeaderboardDTO) View {
	v := View{Title: "🏅 출석 랭킹", Color: ColorBlue}

	lines := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		lines = append(lines, fmt.Sprintf("%d위. %s - 누적 %d일 / 연속 %d일", e.Rank, e.DisplayName, e.TotalDays, e.Streak))
	}
	if len(lines) == 0 {
		v.Description = "출석 데이터가 없습니다."
	} else {
		v.Description = strings.Join(lines, "\n")
	}

	if res.Own != nil {
		v.Fields = append(v.Fields, Field{Name: "📍 내 순위", Value: fmt.Sprintf("당신의 순위: %d위", res.Own.Rank)})
	}
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Member views
// ─────────────────────────────────────────────────────────────────────────────

// Analyze renders the admin view of a member.
func (p *Presenter) Analyze(name string, dto *query.ProgressDTO) View {
	if !dto.HasRecord {
		return View{Description: fmt.Sprintf("%s님의 정보가 존재하지 않습니다.", name), Ephemeral: true}
	}

	lastSeen, elapsed := "기록 없음", "-"
	if dto.LastActivity != nil {
		lastSeen = dto.LastActivity.Format("2006. 01. 02 15:04")
		elapsed = fmt.Sprintf("%d일 경과", dto.DaysInactive)
	}
	return View{
		Title: fmt.Sprintf("📊 %s님의 활동 분석", name),
		Color: ColorOrange,
		Fields: []Field{
			{Name: "레벨", Value: fmt.Sprintf("Lv. %d (%s XP)", dto.Level, p.Number(dto.Exp))},
			{Name: "마지막 활동 시각", Value: lastSeen},
			{Name: "경과일", Value: elapsed},
		},
		Ephemeral: true,
	}
}

// Profile renders a member's own progress.
func (p *Presenter) Profile(name string, dto *query.ProgressDTO) View {
	if !dto.HasRecord {
		return View{Description: "데이터가 없습니다."}
	}
	return View{
		Title: fmt.Sprintf("🍃 %s님의 정보", name),
		Color: ColorGreen,
		Fields: []Field{
			{Name: "레벨", Value: fmt.Sprintf("Lv. %d", dto.Level)},
			{Name: "경험치", Value: fmt.Sprintf("%s / %s XP (%s%%)",
				p.Number(dto.Current), p.Number(dto.Needed), p.printer.Sprintf("%.1f", dto.Percent*100))},
			{Name: "누적 경험치", Value: p.Number(dto.Exp) + " XP"},
			{Name: "음성 채널", Value: p.Number(dto.VoiceMinutes) + "분"},
		},
	}
}

// QuestStatus renders today's missions.
func (p *Presenter) QuestStatus(dto *query.QuestStatusDTO) View {
	text := fmt.Sprintf("진행도: %d / %d\n상태: %s", dto.TextCount, dto.TextRequired, done(dto.TextCompleted, "✅ 완료", "❌ 미완료"))
	voice := fmt.Sprintf("누적 참여: %d분\n보상 횟수: %d회 지급", dto.VoiceMinutes, dto.VoiceRewards)
	attendance := "상태: " + done(dto.CheckedInToday, "✅ 출석 완료", "❌ 출석 안됨")

	return View{
		Title: "📜 퀘스트 현황",
		Color: ColorGreen,
		Fields: []Field{
			{Name: "🗨️ 텍스트 미션", Value: text},
			{Name: "📞 5인 이상 통화방 참여 미션", Value: voice},
			{Name: "🗓️ 출석", Value: attendance},
		},
	}
}

func done(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// ─────────────────────────────────────────────────────────────────────────────
// Command replies
// ─────────────────────────────────────────────────────────────────────────────

// Cheers are the intros of an ordinary streak check-in.
var Cheers = []string{
	"🎉 출석 완료! 멋져요!",
	"🥳 계속 달려볼까요?",
	"🌞 좋은 하루의 시작이에요!",
	"💪 출석 성공! 오늘도 파이팅!",
}

// CheckIn renders a check-in result. pick chooses a cheer index in [0, n).
func (p *Presenter) CheckIn(res *command.CheckInResult, pick func(n int) int) View {
	if res.AlreadyCheckedIn {
		minutes := int(res.Remaining / time.Minute)
		return View{Description: fmt.Sprintf("이미 출석 완료! 다음 출석까지 %d시간 %d분 남음.", minutes/60, minutes%60)}
	}

	var intro string
	switch {
	case res.First:
		intro = "✨ 출석! 빛나는 하루 되세요!"
	case res.StreakBroken:
		intro = "😥 연속 출석이 끊겼습니다! 다시 1일부터 시작합니다."
	default:
		intro = Cheers[pick(len(Cheers))%len(Cheers)]
	}
	return View{Description: fmt.Sprintf("%s\n누적 출석: %d일\n연속 출석: %d일\n경험치: +%s XP",
		intro, res.TotalDays, res.Streak, p.Number(res.Gain))}
}

// GrantXP renders the admin confirmation.
func (p *Presenter) GrantXP(userID string, amount int, mode command.GrantMode) View {
	if mode == command.ModeDeduct {
		return View{Description: fmt.Sprintf("✅ <@%s>에게서 경험치 %sXP 차감 완료!", userID, p.Number(amount)), Ephemeral: true}
	}
	return View{Description: fmt.Sprintf("✅ <@%s>에게 경험치 %sXP 지급 완료!", userID, p.Number(amount)), Ephemeral: true}
}

// Suggested confirms a delivered suggestion.
func (p *Presenter) Suggested() View {
	return View{Description: "✅ 건의가 정상적으로 전달되었습니다.", Ephemeral: true}
}

// SuggestionTooLong rejects an oversized suggestion.
func (p *Presenter) SuggestionTooLong() View {
	return View{Description: fmt.Sprintf("❌ 건의 내용은 **%d자 이내**로 작성해주세요.", command.MaxSuggestionLength), Ephemeral: true}
}

// HiddenQuest renders the admin view of a hidden quest.
func (p *Presenter) HiddenQuest(dto *query.HiddenQuestDTO) View {
	v := View{
		Title:     fmt.Sprintf("🔎 히든 퀘스트 %s", dto.QuestID),
		Color:     ColorGrey,
		Ephemeral: true,
		Fields: []Field{
			{Name: "키워드", Value: fmt.Sprintf("%s (목표 %d회)", dto.Keyword, dto.Target)},
		},
	}
	if !dto.Started {
		v.Description = "아직 시작되지 않았습니다."
		return v
	}

	status := "진행 중 (" + dto.LastDate + ")"
	if dto.Completed {
		status = "완료 - " + dto.WinnerName
		if dto.CompletedAt != nil {
			status += " (" + timeutil.ToKST(*dto.CompletedAt).Format("2006-01-02 15:04") + ")"
		}
	}
	v.Fields = append(v.Fields, Field{Name: "상태", Value: status})

	lines := make([]string, 0, len(dto.Counts))
	for _, c := range dto.Counts {
		lines = append(lines, fmt.Sprintf("%s - %d회", c.DisplayName, c.Count))
	}
	if len(lines) > 0 {
		v.Fields = append(v.Fields, Field{Name: "참여자", Value: strings.Join(lines, "\n")})
	}
	return v
}

// QuestReset confirms a hidden quest reset.
func (p *Presenter) QuestReset(questID string) View {
	return View{Description: fmt.Sprintf("✅ 히든 퀘스트 %s 초기화 완료!", questID), Ephemeral: true}
}

// Failure is the generic error reply.
func (p *Presenter) Failure() View {
	return View{Description: "처리 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요.", Ephemeral: true}
}

// WelcomeText greets a member who just received the thread role.
func WelcomeText(userID string) string {
	return fmt.Sprintf("환영합니다 <@%s> 님! '사계절, 그 사이' 서버입니다.\n"+
		"프로필 우클릭 → 편집으로 닉네임을 변경할 수 있어요!\n"+
		"닉네임은 한글만 사용 가능합니다!", userID)
}
