package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/evvec/ps-tracker/internal/domain/roster"
	qb "github.com/evvec/ps-tracker/internal/platform/querybuilder"
	"github.com/jmoiron/sqlx"
)

const trackedPlayersTable = "tracked_players"

type RosterRepository struct {
	db *sqlx.DB
}

func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

type playerTableModel struct {
	ID            int64     `db:"id"`
	ChatID        int64     `db:"chat_id"`
	DisplayName   string    `db:"display_name"`
	ExternalID    string    `db:"external_id"`
	BaselineScore float64   `db:"baseline_score"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (m playerTableModel) toDomain() roster.Player {
	return roster.Player{
		ID:            m.ID,
		ChatID:        m.ChatID,
		DisplayName:   m.DisplayName,
		ExternalID:    m.ExternalID,
		BaselineScore: m.BaselineScore,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func (r *RosterRepository) Create(ctx context.Context, p roster.Player) (roster.Player, error) {
	if err := p.Validate(); err != nil {
		return roster.Player{}, fmt.Errorf("validate player before insert: %w", err)
	}

	query, args, err := qb.InsertInto(trackedPlayersTable).
		Columns("chat_id", "display_name", "external_id", "baseline_score").
		Values(p.ChatID, p.DisplayName, p.ExternalID, p.BaselineScore).
		Suffix("RETURNING id, chat_id, display_name, external_id, baseline_score, created_at, updated_at").
		ToSQL()
	if err != nil {
		return roster.Player{}, fmt.Errorf("build insert player query: %w", err)
	}

	var row playerTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isUniqueViolation(err) {
			return roster.Player{}, fmt.Errorf("%w: chat %d name %q", roster.ErrDuplicate, p.ChatID, p.DisplayName)
		}
		return roster.Player{}, fmt.Errorf("insert player: %w", err)
	}

	return row.toDomain(), nil
}

func (r *RosterRepository) DeleteByChatAndName(ctx context.Context, chatID int64, displayName string) (bool, error) {
	query, args, err := qb.DeleteFrom(trackedPlayersTable).
		Where(qb.Eq("chat_id", chatID), qb.Eq("display_name", displayName)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build delete player query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete player: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read delete result: %w", err)
	}

	return affected > 0, nil
}

func (r *RosterRepository) List(ctx context.Context, chatID *int64) ([]roster.Player, error) {
	builder := qb.Select("id", "chat_id", "display_name", "external_id", "baseline_score", "created_at", "updated_at").
		From(trackedPlayersTable).
		OrderBy("chat_id", "display_name")
	if chatID != nil {
		builder = builder.Where(qb.Eq("chat_id", *chatID))
	}

	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list players query: %w", err)
	}

	var rows []playerTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	out := make([]roster.Player, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}

	return out, nil
}

// UpdateBaselineScores applies the whole batch inside one transaction.
// Any failed row rolls back every other row.
func (r *RosterRepository) UpdateBaselineScores(ctx context.Context, updates []roster.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin baseline update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, update := range updates {
		query, args, err := qb.Update(trackedPlayersTable).
			Set("baseline_score", update.Score).
			Set("updated_at", time.Now().UTC()).
			Where(qb.Eq("id", update.PlayerID)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build baseline update query for player %d: %w", update.PlayerID, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update baseline for player %d: %w", update.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit baseline update tx: %w", err)
	}

	return nil
}
