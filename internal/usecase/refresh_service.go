package usecase

import (
	"context"
	"fmt"

	"github.com/evvec/ps-tracker/internal/domain/roster"
	"github.com/evvec/ps-tracker/internal/platform/logging"
)

// RefreshService overwrites every stored baseline with a fresh bulk fetch.
// Invoked by the scheduler; one failed cycle must never take down the
// trigger, so every failure path returns instead of panicking.
type RefreshService struct {
	rosterSvc *RosterService
	scoreSvc  *ScoreService
	logger    *logging.Logger
}

func NewRefreshService(rosterSvc *RosterService, scoreSvc *ScoreService, logger *logging.Logger) *RefreshService {
	if logger == nil {
		logger = logging.Default()
	}

	return &RefreshService{
		rosterSvc: rosterSvc,
		scoreSvc:  scoreSvc,
		logger:    logger,
	}
}

type RefreshResult struct {
	PlayerCount  int
	UpdatedCount int
	FailedCount  int
}

// RefreshAll lists every player across chats, fetches current average
// scores without last-match data, and commits the new baselines in one
// transaction.
func (s *RefreshService) RefreshAll(ctx context.Context) (RefreshResult, error) {
	ctx, span := startUsecaseSpan(ctx, "RefreshService.RefreshAll")
	defer span.End()

	players, err := s.rosterSvc.ListPlayers(ctx, nil)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("list full roster: %w", err)
	}
	if len(players) == 0 {
		s.logger.InfoContext(ctx, "baseline refresh skipped, empty roster")
		return RefreshResult{}, nil
	}

	// Display names are only unique within a chat, so the batch is keyed
	// by (chat, name) to keep one sample per stored record.
	batch := make(map[string]string, len(players))
	recordIDs := make(map[string]int64, len(players))
	for _, p := range players {
		key := refreshKey(p.ChatID, p.DisplayName)
		batch[key] = p.ExternalID
		recordIDs[key] = p.ID
	}

	samples, failed := s.scoreSvc.FetchBatch(ctx, batch, false)

	updates := make([]roster.ScoreUpdate, 0, len(samples))
	for key, sample := range samples {
		id, ok := recordIDs[key]
		if !ok {
			continue
		}
		updates = append(updates, roster.ScoreUpdate{PlayerID: id, Score: sample.CurrentScore})
	}

	if err := s.rosterSvc.UpdateBaselineScores(ctx, updates); err != nil {
		return RefreshResult{PlayerCount: len(players), FailedCount: failed}, err
	}

	result := RefreshResult{
		PlayerCount:  len(players),
		UpdatedCount: len(updates),
		FailedCount:  failed,
	}
	s.logger.InfoContext(ctx, "baseline refresh completed",
		"players", result.PlayerCount,
		"updated", result.UpdatedCount,
		"failed", result.FailedCount,
	)

	// Zero-filled baselines are still committed so the cycle stays
	// all-or-nothing, but the caller must not mistake them for a clean run.
	if failed > 0 {
		return result, fmt.Errorf("%w: %d of %d fetch tasks failed", ErrPartialFailure, failed, result.PlayerCount)
	}

	return result, nil
}

func refreshKey(chatID int64, displayName string) string {
	return fmt.Sprintf("%d/%s", chatID, displayName)
}
