package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HIDDEN QUEST ENGINE
// Keyword messages advance per-member counters on a record shared by every
// member. The record is updated with compare-and-set so concurrent messages
// produce exactly one winner.
// ══════════════════════════════════════════════════════════════════════════════

// AdvanceHiddenQuestCommand carries a message that may trigger quests.
type AdvanceHiddenQuestCommand struct {
	Message community.Message
}

// QuestOutcome is the effect of one message on one quest.
type QuestOutcome struct {
	Outcome quest.Outcome
	Count   int

	// Won is true only when this message's transaction completed the quest
	// and the committed winner is the author.
	Won bool
}

// HiddenQuestEngine advances and resets hidden quests.
type HiddenQuestEngine struct {
	defs      []quest.Definition
	repo      quest.Repository
	publisher shared.EventPublisher
	now       Clock
	logger    *slog.Logger
}

// NewHiddenQuestEngine creates the engine for defs.
func NewHiddenQuestEngine(defs []quest.Definition, repo quest.Repository, publisher shared.EventPublisher, now Clock, log *slog.Logger) *HiddenQuestEngine {
	if now == nil {
		now = timeutil.Now
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HiddenQuestEngine{
		defs:      defs,
		repo:      repo,
		publisher: publisher,
		now:       now,
		logger:    log.With(slog.String("command", "hidden_quest")),
	}
}

// Definitions returns the configured quests.
func (e *HiddenQuestEngine) Definitions() []quest.Definition {
	return e.defs
}

// Definition looks up a quest by id.
func (e *HiddenQuestEngine) Definition(questID string) (quest.Definition, bool) {
	for _, d := range e.defs {
		if d.ID == questID {
			return d, true
		}
	}
	return quest.Definition{}, false
}

// Handle advances every quest whose keyword the message contains. A failing
// quest does not stop the others; their errors are joined.
func (e *HiddenQuestEngine) Handle(ctx context.Context, cmd AdvanceHiddenQuestCommand) (map[string]QuestOutcome, error) {
	msg := cmd.Message
	var outcomes map[string]QuestOutcome
	var errs []error

	for _, def := range e.defs {
		if !def.Matches(msg.Text) {
			continue
		}
		out, err := e.advance(ctx, def, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("quest %s: %w", def.ID, err))
			continue
		}
		if outcomes == nil {
			outcomes = make(map[string]QuestOutcome)
		}
		outcomes[def.ID] = out
	}
	return outcomes, errors.Join(errs...)
}

func (e *HiddenQuestEngine) advance(ctx context.Context, def quest.Definition, msg community.Message) (QuestOutcome, error) {
	uid := msg.Author.ID
	now := e.now()

	// fn can run several times; only the attempt that committed counts.
	var outcome quest.Outcome
	record, err := e.repo.TransactQuest(ctx, def.ID, func(r *quest.Record) error {
		outcome = r.Advance(def, uid, now)
		return nil
	})
	if err != nil {
		return QuestOutcome{}, err
	}

	out := QuestOutcome{
		Outcome: outcome,
		Count:   record.Counts[uid],
		Won:     outcome == quest.OutcomeCompleted && record.Winner == uid,
	}
	if out.Won {
		e.logger.Info("hidden quest won", logger.QuestID(def.ID), logger.UserID(uid))
		event := quest.NewCompletedEvent(def.ID, uid, msg.Author.DisplayName, msg.ChannelID, now)
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.Warn("publish failed", logger.QuestID(def.ID), logger.Err(err))
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET HIDDEN QUEST COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// Reset empties the quest's shared record so it can be won again. The reset
// is itself a transaction, so an advance that read the old record conflicts
// instead of restoring it.
func (e *HiddenQuestEngine) Reset(ctx context.Context, questID string) error {
	if _, ok := e.Definition(questID); !ok {
		return shared.ErrQuestNotFound
	}
	_, err := e.repo.TransactQuest(ctx, questID, func(r *quest.Record) error {
		r.Reset()
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset quest %s: %w", questID, err)
	}
	e.logger.Info("hidden quest reset", logger.QuestID(questID))
	return nil
}
