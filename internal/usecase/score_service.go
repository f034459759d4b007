package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/panjf2000/ants/v2"
)

// StatsProvider is the outbound statistics port. Every method returns a
// typed failure on any non-success outcome; fallback policy lives here in
// the usecase layer, never in the provider.
type StatsProvider interface {
	AverageScore(ctx context.Context, externalID string) (float64, error)
	LastMatchScore(ctx context.Context, externalID string) (float64, error)
	ValidateID(ctx context.Context, externalID string) error
}

// Sample is one player's freshly fetched scores. Never persisted.
// LastMatchScore is nil when the batch did not request it.
type Sample struct {
	ExternalID     string
	CurrentScore   float64
	LastMatchScore *float64
}

const defaultFetchWorkers = 8

type ScoreService struct {
	provider StatsProvider
	workers  int
	logger   *logging.Logger
}

func NewScoreService(provider StatsProvider, workers int, logger *logging.Logger) *ScoreService {
	if logger == nil {
		logger = logging.Default()
	}
	if workers < 1 {
		workers = defaultFetchWorkers
	}

	return &ScoreService{
		provider: provider,
		workers:  workers,
		logger:   logger,
	}
}

type fetchKind string

const (
	fetchKindAverage   fetchKind = "average_score"
	fetchKindLastMatch fetchKind = "last_match_score"
)

type fetchTask struct {
	key        string
	externalID string
	kind       fetchKind
}

type fetchOutcome struct {
	key   string
	kind  fetchKind
	score float64
	err   error
}

// FetchBatch fans out one average-score fetch per roster entry, plus one
// last-match fetch when requested, and waits for every task. A failed task
// zero-fills only its own field; the batch never aborts and the returned
// map always carries exactly one sample per roster key. The second return
// value is the number of failed tasks, so callers can tell a clean batch
// from one full of placeholder zeros.
func (s *ScoreService) FetchBatch(ctx context.Context, roster map[string]string, includeLastMatch bool) (map[string]Sample, int) {
	ctx, span := startUsecaseSpan(ctx, "ScoreService.FetchBatch")
	defer span.End()

	samples := make(map[string]Sample, len(roster))
	if len(roster) == 0 {
		return samples, 0
	}

	tasks := make([]fetchTask, 0, len(roster)*2)
	for key, externalID := range roster {
		samples[key] = Sample{ExternalID: externalID}
		tasks = append(tasks, fetchTask{key: key, externalID: externalID, kind: fetchKindAverage})
		if includeLastMatch {
			tasks = append(tasks, fetchTask{key: key, externalID: externalID, kind: fetchKindLastMatch})
		}
	}

	results := make(chan fetchOutcome, len(tasks))

	var failedCount atomic.Int32

	workerCount := s.workers
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}

	pool, err := ants.NewPool(workerCount)
	if err != nil {
		s.logger.ErrorContext(ctx, "create fetch pool failed, running inline", "error", err)
		pool = nil
	} else {
		defer pool.Release()
	}

	var workers sync.WaitGroup
	for _, task := range tasks {
		task := task
		workers.Add(1)
		run := func() {
			defer workers.Done()

			score, fetchErr := s.runFetchTask(ctx, task)
			if fetchErr != nil {
				failedCount.Add(1)
			}
			results <- fetchOutcome{key: task.key, kind: task.kind, score: score, err: fetchErr}
		}

		if pool == nil {
			go run()
			continue
		}
		if submitErr := pool.Submit(run); submitErr != nil {
			go run()
		}
	}

	workers.Wait()
	close(results)

	for outcome := range results {
		sample := samples[outcome.key]
		score := outcome.score
		if outcome.err != nil {
			// Visible zero over a silently dropped player.
			score = 0.0
			s.logger.WarnContext(ctx, "fetch task failed, zero-filling field",
				"player", outcome.key,
				"field", string(outcome.kind),
				"error", outcome.err,
			)
		}

		switch outcome.kind {
		case fetchKindAverage:
			sample.CurrentScore = score
		case fetchKindLastMatch:
			value := score
			sample.LastMatchScore = &value
		}
		samples[outcome.key] = sample
	}

	failed := int(failedCount.Load())
	if failed > 0 {
		s.logger.InfoContext(ctx, "score batch completed with failures",
			"players", len(roster),
			"tasks", len(tasks),
			"failed_tasks", failed,
		)
	}

	return samples, failed
}

func (s *ScoreService) runFetchTask(ctx context.Context, task fetchTask) (float64, error) {
	switch task.kind {
	case fetchKindAverage:
		return s.provider.AverageScore(ctx, task.externalID)
	case fetchKindLastMatch:
		return s.provider.LastMatchScore(ctx, task.externalID)
	default:
		return 0, fmt.Errorf("unknown fetch kind %q", task.kind)
	}
}
