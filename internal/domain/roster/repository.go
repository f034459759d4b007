package roster

import "context"

// Repository is the persistence contract for tracked players.
type Repository interface {
	// Create stores a new player and returns it with the assigned id.
	// A (chat_id, display_name) collision yields ErrDuplicate.
	Create(ctx context.Context, p Player) (Player, error)

	// DeleteByChatAndName removes the player matching both keys. The
	// boolean reports whether a row was actually deleted.
	DeleteByChatAndName(ctx context.Context, chatID int64, displayName string) (bool, error)

	// List returns players for one chat, or every player when chatID is nil.
	List(ctx context.Context, chatID *int64) ([]Player, error)

	// UpdateBaselineScores applies every update in a single transaction.
	UpdateBaselineScores(ctx context.Context, updates []ScoreUpdate) error
}
