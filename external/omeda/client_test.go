package omeda

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/evvec/ps-tracker/internal/platform/resilience"
	"github.com/evvec/ps-tracker/internal/usecase"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	c := NewClient(ClientConfig{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		MaxRetries:     maxRetries,
		CircuitBreaker: resilience.CircuitBreakerConfig{Enabled: false},
	}, logging.NewNop())
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestClientAverageScore_ParsesStatistics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/abc-123/statistics.json" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"avg_performance_score": 87.25, "winrate": 0.51}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)

	score, err := client.AverageScore(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("average score failed: %v", err)
	}
	if score != 87.25 {
		t.Fatalf("unexpected score: %f", score)
	}
}

func TestClientAverageScore_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "missing player", status: http.StatusNotFound, body: `{}`, wantErr: ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: ErrUnreachable},
		{name: "unexpected status", status: http.StatusForbidden, body: `{}`, wantErr: ErrMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, 0)
			_, err := client.AverageScore(context.Background(), "abc-123")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestClientAverageScore_MalformedPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"winrate": 0.51}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.AverageScore(context.Background(), "abc-123")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing field, got %v", err)
	}
}

func TestClientAverageScore_TimeoutDistinctFromUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		Timeout:        50 * time.Millisecond,
		CircuitBreaker: resilience.CircuitBreakerConfig{Enabled: false},
	}, logging.NewNop())

	_, err := client.AverageScore(context.Background(), "abc-123")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestClientOutagesMatchDependencyUnavailable(t *testing.T) {
	t.Parallel()

	// The registration workflow distinguishes "service down" from "bad id"
	// with plain errors.Is, so outage failures must keep the usecase
	// sentinel on their Unwrap chain.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)

	err := client.ValidateID(context.Background(), "abc-123")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("outage not visible as dependency failure: %v", err)
	}
	if !errors.Is(ErrTimeout, usecase.ErrDependencyUnavailable) {
		t.Fatalf("timeout not visible as dependency failure")
	}
	if errors.Is(ErrNotFound, usecase.ErrDependencyUnavailable) {
		t.Fatalf("not-found must stay a caller error")
	}
}

func TestClientAverageScore_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"avg_performance_score": 42.5}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)

	score, err := client.AverageScore(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("average score failed after retry: %v", err)
	}
	if score != 42.5 {
		t.Fatalf("unexpected score: %f", score)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestClientLastMatchScore_FindsPlayerEntry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/abc-123/matches.json" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("per_page") != "1" {
			t.Fatalf("expected per_page=1, got %q", r.URL.Query().Get("per_page"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matches":[{"players":[
			{"id":"other-1","performance_score":55.0},
			{"id":"abc-123","performance_score":91.33}
		]}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)

	score, err := client.LastMatchScore(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("last match score failed: %v", err)
	}
	if score != 91.33 {
		t.Fatalf("unexpected score: %f", score)
	}
}

func TestClientLastMatchScore_AbsentPlayerIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matches":[{"players":[{"id":"other-1","performance_score":55.0}]}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.LastMatchScore(context.Background(), "abc-123")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent player, got %v", err)
	}
}

func TestClientLastMatchScore_EmptyMatchListIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matches":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.LastMatchScore(context.Background(), "abc-123")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty match list, got %v", err)
	}
}

func TestClientValidateID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/real-id/statistics.json" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"avg_performance_score": 60.0}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)

	if err := client.ValidateID(context.Background(), "real-id"); err != nil {
		t.Fatalf("expected valid id, got %v", err)
	}
	if err := client.ValidateID(context.Background(), "fake-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for fake id, got %v", err)
	}
}

func TestClientStatisticsCache_DeduplicatesCalls(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"avg_performance_score": 70.0}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		Timeout:        2 * time.Second,
		CircuitBreaker: resilience.CircuitBreakerConfig{Enabled: false},
		CacheEnabled:   true,
		CacheTTL:       time.Minute,
	}, logging.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := client.AverageScore(context.Background(), "abc-123"); err != nil {
			t.Fatalf("average score failed: %v", err)
		}
	}

	if calls.Load() != 1 {
		t.Fatalf("expected one upstream call with cache, got %d", calls.Load())
	}
}
