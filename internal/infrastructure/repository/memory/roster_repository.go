package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evvec/ps-tracker/internal/domain/roster"
)

// RosterRepository is an in-memory roster.Repository used by tests and
// local development. It mirrors the postgres contract, including the
// (chat_id, display_name) uniqueness rule.
type RosterRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]roster.Player
	byKey  map[string]int64
}

func NewRosterRepository() *RosterRepository {
	return &RosterRepository{
		nextID: 1,
		byID:   make(map[int64]roster.Player),
		byKey:  make(map[string]int64),
	}
}

func playerKey(chatID int64, displayName string) string {
	return fmt.Sprintf("%d/%s", chatID, displayName)
}

func (r *RosterRepository) Create(_ context.Context, p roster.Player) (roster.Player, error) {
	if err := p.Validate(); err != nil {
		return roster.Player{}, fmt.Errorf("validate player before insert: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := playerKey(p.ChatID, p.DisplayName)
	if _, exists := r.byKey[key]; exists {
		return roster.Player{}, fmt.Errorf("%w: chat %d name %q", roster.ErrDuplicate, p.ChatID, p.DisplayName)
	}

	p.ID = r.nextID
	r.nextID++
	r.byID[p.ID] = p
	r.byKey[key] = p.ID

	return p, nil
}

func (r *RosterRepository) DeleteByChatAndName(_ context.Context, chatID int64, displayName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := playerKey(chatID, displayName)
	id, exists := r.byKey[key]
	if !exists {
		return false, nil
	}

	delete(r.byKey, key)
	delete(r.byID, id)

	return true, nil
}

func (r *RosterRepository) List(_ context.Context, chatID *int64) ([]roster.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]roster.Player, 0, len(r.byID))
	for _, p := range r.byID {
		if chatID != nil && p.ChatID != *chatID {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].DisplayName < out[j].DisplayName
	})

	return out, nil
}

func (r *RosterRepository) UpdateBaselineScores(_ context.Context, updates []roster.ScoreUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// All-or-nothing, matching the transactional store.
	for _, update := range updates {
		if _, ok := r.byID[update.PlayerID]; !ok {
			return fmt.Errorf("unknown player id %d", update.PlayerID)
		}
	}

	for _, update := range updates {
		p := r.byID[update.PlayerID]
		p.BaselineScore = update.Score
		r.byID[update.PlayerID] = p
	}

	return nil
}
