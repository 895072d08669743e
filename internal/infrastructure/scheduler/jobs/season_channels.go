package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// SeasonChannel binds a season role to the voice channel showing its size.
type SeasonChannel struct {
	Season    string
	RoleID    string
	ChannelID string
}

// SeasonChannelPlatform is what the job needs from the chat service.
type SeasonChannelPlatform interface {
	community.Directory
	community.ChannelEditor
}

// SeasonChannelsJob renames each season's voice channel after the number of
// members holding the season role.
type SeasonChannelsJob struct {
	platform SeasonChannelPlatform
	seasons  []SeasonChannel
	logger   *slog.Logger
}

// NewSeasonChannelsJob creates the job.
func NewSeasonChannelsJob(platform SeasonChannelPlatform, seasons []SeasonChannel, log *slog.Logger) *SeasonChannelsJob {
	if log == nil {
		log = slog.Default()
	}
	return &SeasonChannelsJob{
		platform: platform,
		seasons:  seasons,
		logger:   log.With(logger.Job(NameSeasonChannels)),
	}
}

// Name returns the job name.
func (j *SeasonChannelsJob) Name() string { return NameSeasonChannels }

// Description returns a human-readable description.
func (j *SeasonChannelsJob) Description() string {
	return "Shows the size of each season role in its voice channel name"
}

// Run renames the channels whose name is out of date. A failed rename is
// logged and the other seasons still run.
func (j *SeasonChannelsJob) Run(ctx context.Context) error {
	if len(j.seasons) == 0 {
		return nil
	}
	members, err := j.platform.Members(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}

	counts := make(map[string]int, len(j.seasons))
	for _, m := range members {
		for _, s := range j.seasons {
			if m.HasRole(s.RoleID) {
				counts[s.RoleID]++
			}
		}
	}

	var errs []error
	for _, s := range j.seasons {
		name := SeasonChannelName(s.Season, counts[s.RoleID])
		current, err := j.platform.ChannelName(ctx, s.ChannelID)
		if err != nil {
			j.logger.Warn("season channel not found", slog.String("season", s.Season), logger.ChannelID(s.ChannelID), logger.Err(err))
			continue
		}
		if current == name {
			continue
		}
		if err := j.platform.RenameChannel(ctx, s.ChannelID, name); err != nil {
			j.logger.Warn("season channel rename failed", slog.String("season", s.Season), logger.Err(err))
			errs = append(errs, fmt.Errorf("rename %s: %w", s.Season, err))
			continue
		}
		j.logger.Debug("season channel renamed", slog.String("season", s.Season), slog.String("name", name))
	}
	if len(errs) == len(j.seasons) {
		return errors.Join(errs...)
	}
	return nil
}

// SeasonChannelName is the channel name for a season with count members.
func SeasonChannelName(season string, count int) string {
	return fmt.Sprintf("[%s], 그 사이의 %d명", season, count)
}
