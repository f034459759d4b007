package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MaxDisplayNameLen = 25
	MaxExternalIDLen  = 40

	// ProfileBaseURL is the public profile address prefix for tracked players.
	ProfileBaseURL = "https://omeda.city/players/"
)

// ErrDuplicate reports a (chat_id, display_name) uniqueness violation.
var ErrDuplicate = errors.New("duplicate player")

// Player is one tracked roster entry. BaselineScore holds the last
// committed daily performance score for the player.
type Player struct {
	ID            int64
	ChatID        int64
	DisplayName   string
	ExternalID    string
	BaselineScore float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate enforces the write-time shape invariants. Length limits apply
// on every write path, not only on user input.
func (p Player) Validate() error {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if len([]rune(name)) > MaxDisplayNameLen {
		return fmt.Errorf("display name exceeds %d characters", MaxDisplayNameLen)
	}

	externalID := strings.TrimSpace(p.ExternalID)
	if externalID == "" {
		return fmt.Errorf("external id is required")
	}
	if len(externalID) > MaxExternalIDLen {
		return fmt.Errorf("external id exceeds %d characters", MaxExternalIDLen)
	}

	if p.ChatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	return nil
}

// ProfileURL returns the public profile address for the player.
func (p Player) ProfileURL() string {
	return ProfileBaseURL + p.ExternalID
}

// ScoreUpdate is one row of a bulk baseline overwrite.
type ScoreUpdate struct {
	PlayerID int64
	Score    float64
}
