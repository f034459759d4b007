package usecase

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/evvec/ps-tracker/internal/domain/roster"
	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// DeltaEntry is one player's movement between the stored baseline and a
// fresh sample. Rendering-only lifetime.
type DeltaEntry struct {
	DisplayName    string
	BaselineScore  float64
	CurrentScore   float64
	Direction      Direction
	Magnitude      float64
	LastMatchScore *float64
	ExternalID     string
}

type DeltaService struct {
	logger *logging.Logger
}

func NewDeltaService(logger *logging.Logger) *DeltaService {
	if logger == nil {
		logger = logging.Default()
	}
	return &DeltaService{logger: logger}
}

// ComputeDelta reconciles a fresh snapshot against the stored baseline.
// Both maps must derive from the same roster; a fresh key without a
// baseline entry is a consistency fault and fails the whole request
// rather than inventing a zero baseline. Entries come back sorted
// descending by current score, ties in name order.
func (s *DeltaService) ComputeDelta(ctx context.Context, baseline map[string]roster.Player, fresh map[string]Sample) ([]DeltaEntry, error) {
	ctx, span := startUsecaseSpan(ctx, "DeltaService.ComputeDelta")
	defer span.End()

	names := make([]string, 0, len(fresh))
	for name := range fresh {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]DeltaEntry, 0, len(fresh))
	for _, name := range names {
		sample := fresh[name]
		record, ok := baseline[name]
		if !ok {
			s.logger.ErrorContext(ctx, "fresh sample without baseline record",
				"display_name", name,
			)
			return nil, fmt.Errorf("%w: no baseline for %q", ErrInconsistentSnapshot, name)
		}

		entry := DeltaEntry{
			DisplayName:    name,
			BaselineScore:  record.BaselineScore,
			CurrentScore:   sample.CurrentScore,
			LastMatchScore: sample.LastMatchScore,
			ExternalID:     sample.ExternalID,
		}
		switch {
		case sample.CurrentScore > record.BaselineScore:
			entry.Direction = DirectionUp
			entry.Magnitude = sample.CurrentScore - record.BaselineScore
		case sample.CurrentScore < record.BaselineScore:
			entry.Direction = DirectionDown
			entry.Magnitude = record.BaselineScore - sample.CurrentScore
		default:
			entry.Direction = DirectionFlat
		}

		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CurrentScore > entries[j].CurrentScore
	})

	return entries, nil
}

const displayNameWidth = roster.MaxDisplayNameLen

func directionMarker(d Direction) string {
	switch d {
	case DirectionUp:
		return "\U0001F4C8" // chart increasing
	case DirectionDown:
		return "\U0001F4C9" // chart decreasing
	default:
		return "▬"
	}
}

func rankMarker(position int) string {
	switch position {
	case 0:
		return "\U0001F3C6"
	case 1:
		return "\U0001F948"
	case 2:
		return "\U0001F949"
	default:
		return fmt.Sprintf("%d.", position+1)
	}
}

// RenderDeltaReport renders entries as fixed-width HTML lines:
// current score, direction marker with magnitude, linked player name.
func (s *DeltaService) RenderDeltaReport(entries []DeltaEntry) string {
	if len(entries) == 0 {
		return "No players registered in this chat."
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("Daily performance score movement:\n")
	for _, entry := range entries {
		_, _ = buf.WriteString(fmt.Sprintf("<code>%06.2f | %s %05.2f |</code> %s\n",
			entry.CurrentScore,
			directionMarker(entry.Direction),
			entry.Magnitude,
			playerLink(entry.DisplayName, entry.ExternalID),
		))
	}

	return strings.TrimRight(buf.String(), "\n")
}

// RenderScoreReport renders a ranked score list with medal markers for
// the top three. Entries must already be sorted descending.
func (s *DeltaService) RenderScoreReport(entries []DeltaEntry) string {
	if len(entries) == 0 {
		return "No players registered in this chat."
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("Current performance scores:\n")
	for i, entry := range entries {
		_, _ = buf.WriteString(fmt.Sprintf("%s <code>%06.2f</code> %s",
			rankMarker(i),
			entry.CurrentScore,
			playerLink(entry.DisplayName, entry.ExternalID),
		))
		if entry.LastMatchScore != nil {
			_, _ = buf.WriteString(fmt.Sprintf(" (last match %05.2f)", *entry.LastMatchScore))
		}
		_, _ = buf.WriteString("\n")
	}

	return strings.TrimRight(buf.String(), "\n")
}

func playerLink(displayName, externalID string) string {
	name := truncateDisplayName(displayName)
	if strings.TrimSpace(externalID) == "" {
		return html.EscapeString(name)
	}
	return fmt.Sprintf(`<a href="%s%s">%s</a>`, roster.ProfileBaseURL, externalID, html.EscapeString(name))
}

func truncateDisplayName(name string) string {
	runes := []rune(name)
	if len(runes) <= displayNameWidth {
		return name
	}
	return string(runes[:displayNameWidth])
}
