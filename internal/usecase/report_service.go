package usecase

import (
	"context"
	"fmt"

	"github.com/evvec/ps-tracker/internal/domain/roster"
	"github.com/evvec/ps-tracker/internal/platform/logging"
)

// ReportService assembles user-facing score reports for one chat: it
// bridges the stored baseline, a fresh batch fetch, and the delta engine.
type ReportService struct {
	rosterSvc *RosterService
	scoreSvc  *ScoreService
	deltaSvc  *DeltaService
	logger    *logging.Logger
}

func NewReportService(rosterSvc *RosterService, scoreSvc *ScoreService, deltaSvc *DeltaService, logger *logging.Logger) *ReportService {
	if logger == nil {
		logger = logging.Default()
	}

	return &ReportService{
		rosterSvc: rosterSvc,
		scoreSvc:  scoreSvc,
		deltaSvc:  deltaSvc,
		logger:    logger,
	}
}

// DeltaReport renders baseline-vs-now movement for the chat's roster.
func (s *ReportService) DeltaReport(ctx context.Context, chatID int64) (string, error) {
	ctx, span := startUsecaseSpan(ctx, "ReportService.DeltaReport")
	defer span.End()

	entries, err := s.chatDelta(ctx, chatID, false)
	if err != nil {
		return "", err
	}

	return s.deltaSvc.RenderDeltaReport(entries), nil
}

// ScoreReport renders the ranked current standings, including each
// player's last match score.
func (s *ReportService) ScoreReport(ctx context.Context, chatID int64) (string, error) {
	ctx, span := startUsecaseSpan(ctx, "ReportService.ScoreReport")
	defer span.End()

	entries, err := s.chatDelta(ctx, chatID, true)
	if err != nil {
		return "", err
	}

	return s.deltaSvc.RenderScoreReport(entries), nil
}

func (s *ReportService) chatDelta(ctx context.Context, chatID int64, includeLastMatch bool) ([]DeltaEntry, error) {
	players, err := s.rosterSvc.ListPlayers(ctx, &chatID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, nil
	}

	baseline := make(map[string]roster.Player, len(players))
	batch := make(map[string]string, len(players))
	for _, p := range players {
		baseline[p.DisplayName] = p
		batch[p.DisplayName] = p.ExternalID
	}

	fresh, failed := s.scoreSvc.FetchBatch(ctx, batch, includeLastMatch)
	if failed > 0 {
		s.logger.WarnContext(ctx, "report carries zero-filled fields",
			"chat_id", chatID,
			"failed_tasks", failed,
		)
	}

	entries, err := s.deltaSvc.ComputeDelta(ctx, baseline, fresh)
	if err != nil {
		return nil, fmt.Errorf("compute chat %d delta: %w", chatID, err)
	}

	return entries, nil
}
