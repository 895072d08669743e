package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INACTIVITY SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// InactivitySweepJob removes members whose last recorded activity is older
// than the threshold. Each removed member gets a direct notice first; every
// outcome is posted to the inactivity log channel.
//
// Members the bot has never recorded are left alone: a missing record means
// "unknown", not "inactive".
type InactivitySweepJob struct {
	platform  community.Platform
	users     progression.UserRepository
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    InactivitySweepConfig

	lastRunStats atomic.Value // *InactivitySweepStats
}

// InactivitySweepConfig contains configuration for the sweep.
type InactivitySweepConfig struct {
	// Days of inactivity before removal.
	Days int

	// ExemptRoleIDs protect their holders.
	ExemptRoleIDs []string

	// LogChannelID receives one line per outcome. Empty disables the posts.
	LogChannelID string

	// InviteURL is included in the direct notice.
	InviteURL string

	Now Clock
}

// DefaultInactivitySweepConfig returns the production rules.
func DefaultInactivitySweepConfig() InactivitySweepConfig {
	return InactivitySweepConfig{Days: 30}
}

// InactivitySweepStats describes the last pass.
type InactivitySweepStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Exempt    int
	Unknown   int
	Inactive  int
	Removed   int
	DMFailed  int
	Failed    int
}

// NewInactivitySweepJob creates the job.
func NewInactivitySweepJob(
	platform community.Platform,
	users progression.UserRepository,
	publisher shared.EventPublisher,
	config InactivitySweepConfig,
	log *slog.Logger,
) *InactivitySweepJob {
	if config.Days <= 0 {
		config.Days = DefaultInactivitySweepConfig().Days
	}
	if config.Now == nil {
		config.Now = timeutil.Now
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &InactivitySweepJob{
		platform:  platform,
		users:     users,
		publisher: publisher,
		logger:    log.With(logger.Job(NameInactivitySweep)),
		config:    config,
	}
}

// Name returns the job name.
func (j *InactivitySweepJob) Name() string { return NameInactivitySweep }

// Description returns a human-readable description.
func (j *InactivitySweepJob) Description() string {
	return fmt.Sprintf("Removes members inactive for more than %d days", j.config.Days)
}

// Run executes one sweep.
func (j *InactivitySweepJob) Run(ctx context.Context) error {
	now := j.config.Now()
	stats := &InactivitySweepStats{StartedAt: now}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	members, err := j.platform.Members(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	ownerID, err := j.platform.OwnerID(ctx)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}
	threshold := time.Duration(j.config.Days) * 24 * time.Hour

	for _, member := range members {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if member.Bot || member.ID == ownerID {
			continue
		}
		stats.Scanned++
		if member.HasAnyRole(j.config.ExemptRoleIDs) {
			stats.Exempt++
			continue
		}

		user, err := j.users.GetUser(ctx, member.ID)
		if err != nil {
			j.logger.Warn("load progress failed", logger.UserID(member.ID), logger.Err(err))
			continue
		}
		if _, ok := user.LastActivityTime(); !ok {
			stats.Unknown++
			continue
		}
		if !user.InactiveSince(now, threshold) {
			continue
		}
		stats.Inactive++
		j.remove(ctx, member, stats)
	}

	if stats.Removed == 0 {
		j.post(ctx, NobodyInactiveText(j.config.Days))
	}
	j.logger.Info("inactivity sweep completed",
		slog.Int("scanned", stats.Scanned),
		slog.Int("inactive", stats.Inactive),
		slog.Int("removed", stats.Removed),
	)
	return nil
}

func (j *InactivitySweepJob) remove(ctx context.Context, member community.Member, stats *InactivitySweepStats) {
	name := member.DisplayName

	if err := j.platform.SendDirect(ctx, member.ID, InactivityNoticeText(j.config.Days, j.config.InviteURL)); err != nil {
		stats.DMFailed++
		j.logger.Debug("inactivity notice not delivered", logger.UserID(member.ID), logger.Err(err))
		j.post(ctx, fmt.Sprintf("❌ %s 님에게 DM 전송 실패", name))
	}

	if err := j.platform.Kick(ctx, member.ID, KickReason(j.config.Days)); err != nil {
		stats.Failed++
		j.logger.Warn("removal failed", logger.UserID(member.ID), logger.Err(err))
		j.post(ctx, fmt.Sprintf("❌ %s 님 추방 실패: %v", name, err))
		return
	}

	stats.Removed++
	j.logger.Info("inactive member removed", logger.UserID(member.ID))
	j.post(ctx, fmt.Sprintf("👢 %s 님이 %d일간 미접속으로 추방되었습니다.", name, j.config.Days))
	publish(ctx, j.publisher, j.logger, progression.NewMemberRemovedEvent(member.ID, j.config.Now()))
}

func (j *InactivitySweepJob) post(ctx context.Context, content string) {
	if j.config.LogChannelID == "" {
		return
	}
	if err := j.platform.SendMessage(ctx, j.config.LogChannelID, content); err != nil {
		j.logger.Warn("inactivity log post failed", logger.Err(err))
	}
}

// LastRunStats returns the statistics of the last sweep, or nil.
func (j *InactivitySweepJob) LastRunStats() *InactivitySweepStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*InactivitySweepStats)
	}
	return nil
}

// KickReason is the audit-log reason of a removal.
func KickReason(days int) string {
	return fmt.Sprintf("%d일 미접속 자동 추방", days)
}

// NobodyInactiveText is posted when a sweep removed nobody.
func NobodyInactiveText(days int) string {
	return fmt.Sprintf("✅ 현재 %d일 이상 미접속 중인 사용자가 없습니다.", days)
}

// InactivityNoticeText is the direct message sent before a removal.
func InactivityNoticeText(days int, inviteURL string) string {
	text := "📢 사계절, 그 사이 서버 안내\n\n" +
		"안녕하세요, '사계절, 그 사이' 서버 서버장입니다!\n\n" +
		fmt.Sprintf("최근 %d일간 서버에 기록된 활동 내역이 없어,\n", days) +
		"공지해둔 규칙 사항에 따라 서버에서 추방 처리가 진행됩니다 !\n\n" +
		"개인 사정에 의해, 혹은 기록 누락 등 피치 못할 사정으로 추방되신 분들,\n" +
		"잠깐 다른 서버나 현생으로 인해 저희 서버를 깜박하셨던 분들 모두\n" +
		"아래의 링크를 통해 언제든 다시 서버에 입장하실 수 있습니다.\n\n" +
		"분명, 지나온 계절보다 앞으로 계절이 더 재밌을거에요.\n\n"
	if inviteURL != "" {
		text += "👉 " + inviteURL + "\n\n"
	}
	return text + "앞으로 더 발전하는 서버로 찾아뵙겠습니다 !"
}
