package app

import (
	"testing"
	"time"

	"github.com/evvec/ps-tracker/internal/platform/logging"
)

func TestSchedulerNextRun(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, 4, logging.NewNop())
	loc := time.UTC

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before the hour fires same day",
			now:  time.Date(2025, 6, 10, 1, 30, 0, 0, loc),
			want: time.Date(2025, 6, 10, 4, 0, 0, 0, loc),
		},
		{
			name: "after the hour rolls to next day",
			now:  time.Date(2025, 6, 10, 9, 0, 0, 0, loc),
			want: time.Date(2025, 6, 11, 4, 0, 0, 0, loc),
		},
		{
			name: "exactly on the hour rolls forward",
			now:  time.Date(2025, 6, 10, 4, 0, 0, 0, loc),
			want: time.Date(2025, 6, 11, 4, 0, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := s.nextRun(tc.now); !got.Equal(tc.want) {
				t.Fatalf("nextRun(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestSchedulerNextRunMidnightHour(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, 0, logging.NewNop())
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	want := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	if got := s.nextRun(now); !got.Equal(want) {
		t.Fatalf("nextRun(%v) = %v, want %v", now, got, want)
	}
}
