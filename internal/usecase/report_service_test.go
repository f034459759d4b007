package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/evvec/ps-tracker/internal/infrastructure/repository/memory"
	"github.com/evvec/ps-tracker/internal/platform/logging"
)

func newReportHarness(provider *providerStub) (*ReportService, *RosterService) {
	rosterSvc := NewRosterService(memory.NewRosterRepository(), logging.NewNop())
	scoreSvc := NewScoreService(provider, 4, logging.NewNop())
	deltaSvc := NewDeltaService(logging.NewNop())
	return NewReportService(rosterSvc, scoreSvc, deltaSvc, logging.NewNop()), rosterSvc
}

func TestReportServiceDeltaReport(t *testing.T) {
	t.Parallel()

	provider := &providerStub{
		avg: func(externalID string) (float64, error) {
			if externalID == "ext-up" {
				return 21, nil
			}
			return 18, nil
		},
	}
	svc, rosterSvc := newReportHarness(provider)

	seed := []AddPlayerInput{
		{ChatID: 5, DisplayName: "climber", ExternalID: "ext-up", BaselineScore: 20},
		{ChatID: 5, DisplayName: "slider", ExternalID: "ext-down", BaselineScore: 20},
	}
	for _, input := range seed {
		if _, err := rosterSvc.AddPlayer(context.Background(), input); err != nil {
			t.Fatalf("seed %q: %v", input.DisplayName, err)
		}
	}

	report, err := svc.DeltaReport(context.Background(), 5)
	if err != nil {
		t.Fatalf("DeltaReport failed: %v", err)
	}
	if !strings.Contains(report, "climber") || !strings.Contains(report, "slider") {
		t.Fatalf("report missing players:\n%s", report)
	}
	if !strings.Contains(report, "021.00 | \U0001F4C8 01.00 |") {
		t.Fatalf("climber delta misformatted:\n%s", report)
	}
	if !strings.Contains(report, "018.00 | \U0001F4C9 02.00 |") {
		t.Fatalf("slider delta misformatted:\n%s", report)
	}
}

func TestReportServiceScoreReportIncludesLastMatch(t *testing.T) {
	t.Parallel()

	provider := &providerStub{
		avg:       func(string) (float64, error) { return 33, nil },
		lastMatch: func(string) (float64, error) { return 47.5, nil },
	}
	svc, rosterSvc := newReportHarness(provider)

	if _, err := rosterSvc.AddPlayer(context.Background(), AddPlayerInput{
		ChatID: 5, DisplayName: "solo", ExternalID: "ext-solo", BaselineScore: 30,
	}); err != nil {
		t.Fatalf("seed player: %v", err)
	}

	report, err := svc.ScoreReport(context.Background(), 5)
	if err != nil {
		t.Fatalf("ScoreReport failed: %v", err)
	}
	if !strings.Contains(report, "(last match 47.50)") {
		t.Fatalf("last match missing:\n%s", report)
	}
	if !strings.Contains(report, "\U0001F3C6") {
		t.Fatalf("leader medal missing:\n%s", report)
	}
}

func TestReportServiceEmptyChat(t *testing.T) {
	t.Parallel()

	svc, _ := newReportHarness(&providerStub{})

	report, err := svc.DeltaReport(context.Background(), 404)
	if err != nil {
		t.Fatalf("DeltaReport failed: %v", err)
	}
	if report != "No players registered in this chat." {
		t.Fatalf("empty chat report = %q", report)
	}
}
