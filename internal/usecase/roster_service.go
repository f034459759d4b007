package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evvec/ps-tracker/internal/domain/roster"
	"github.com/evvec/ps-tracker/internal/platform/logging"
)

// RosterService owns the registry of tracked players.
type RosterService struct {
	repo   roster.Repository
	logger *logging.Logger
	now    func() time.Time
}

func NewRosterService(repo roster.Repository, logger *logging.Logger) *RosterService {
	if logger == nil {
		logger = logging.Default()
	}

	return &RosterService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

type AddPlayerInput struct {
	ChatID        int64
	DisplayName   string
	ExternalID    string
	BaselineScore float64
}

// AddPlayer validates and stores a new roster entry. A (chat_id,
// display_name) collision surfaces as ErrConflict, never silently.
func (s *RosterService) AddPlayer(ctx context.Context, input AddPlayerInput) (roster.Player, error) {
	ctx, span := startUsecaseSpan(ctx, "RosterService.AddPlayer")
	defer span.End()

	record := roster.Player{
		ChatID:        input.ChatID,
		DisplayName:   strings.TrimSpace(input.DisplayName),
		ExternalID:    strings.TrimSpace(input.ExternalID),
		BaselineScore: input.BaselineScore,
		CreatedAt:     s.now().UTC(),
	}
	record.UpdatedAt = record.CreatedAt

	if err := record.Validate(); err != nil {
		return roster.Player{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if errors.Is(err, roster.ErrDuplicate) {
			return roster.Player{}, fmt.Errorf("%w: player %q in chat %d", ErrConflict, record.DisplayName, record.ChatID)
		}
		return roster.Player{}, fmt.Errorf("create player: %w", err)
	}

	s.logger.InfoContext(ctx, "player registered",
		"chat_id", created.ChatID,
		"display_name", created.DisplayName,
		"external_id", created.ExternalID,
	)

	return created, nil
}

// RemovePlayer deletes the entry matching both keys. Zero matched rows is
// a reported ErrNotFound, not a silent no-op.
func (s *RosterService) RemovePlayer(ctx context.Context, chatID int64, displayName string) error {
	ctx, span := startUsecaseSpan(ctx, "RosterService.RemovePlayer")
	defer span.End()

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}

	deleted, err := s.repo.DeleteByChatAndName(ctx, chatID, displayName)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: player %q in chat %d", ErrNotFound, displayName, chatID)
	}

	s.logger.InfoContext(ctx, "player removed",
		"chat_id", chatID,
		"display_name", displayName,
	)

	return nil
}

// ListPlayers returns one chat's roster, or every record when chatID is nil.
func (s *RosterService) ListPlayers(ctx context.Context, chatID *int64) ([]roster.Player, error) {
	ctx, span := startUsecaseSpan(ctx, "RosterService.ListPlayers")
	defer span.End()

	players, err := s.repo.List(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	return players, nil
}

// UpdateBaselineScores overwrites stored baselines in one transaction.
func (s *RosterService) UpdateBaselineScores(ctx context.Context, updates []roster.ScoreUpdate) error {
	ctx, span := startUsecaseSpan(ctx, "RosterService.UpdateBaselineScores")
	defer span.End()

	if len(updates) == 0 {
		return nil
	}

	if err := s.repo.UpdateBaselineScores(ctx, updates); err != nil {
		return fmt.Errorf("update baseline scores: %w", err)
	}

	s.logger.InfoContext(ctx, "baseline scores updated", "count", len(updates))

	return nil
}
