package fallback

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

var candidates = []string{`"Event"`, "Event", "event"}

func TestFirstStopsAtFirstSuccess(t *testing.T) {
	var tried []string

	got, used, err := First(context.Background(), candidates, func(_ context.Context, c string) (int, error) {
		tried = append(tried, c)
		if c == "Event" {
			return 2, nil
		}
		return 0, errors.New("nope")
	})
	if err != nil {
		t.Fatalf("First error: %v", err)
	}
	if got != 2 || used != "Event" {
		t.Fatalf("First mismatch: got=%d used=%q", got, used)
	}
	if want := []string{`"Event"`, "Event"}; !reflect.DeepEqual(tried, want) {
		t.Fatalf("tried mismatch: got=%v want=%v", tried, want)
	}
}

func TestFirstThirdCandidateHidesEarlierFailures(t *testing.T) {
	got, used, err := First(context.Background(), candidates, func(_ context.Context, c string) ([]string, error) {
		if c != "event" {
			return nil, errors.New("relation does not exist")
		}
		return []string{"row"}, nil
	})
	if err != nil {
		t.Fatalf("First error: %v", err)
	}
	if used != "event" || !reflect.DeepEqual(got, []string{"row"}) {
		t.Fatalf("First mismatch: got=%v used=%q", got, used)
	}
}

func TestFirstExhausted(t *testing.T) {
	boom := errors.New("boom")

	_, _, err := First(context.Background(), candidates, func(_ context.Context, c string) (struct{}, error) {
		return struct{}{}, boom
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T %v", err, err)
	}
	if len(ex.Attempts) != 3 {
		t.Fatalf("attempts: got=%d want=3", len(ex.Attempts))
	}
	for i, a := range ex.Attempts {
		if a.Candidate != candidates[i] {
			t.Fatalf("attempt %d candidate: got=%q want=%q", i, a.Candidate, candidates[i])
		}
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected errors.Is to reach attempt error")
	}
	if !strings.Contains(err.Error(), `"Event": boom`) {
		t.Fatalf("message should name each candidate, got %q", err.Error())
	}
}

func TestFirstNoCandidates(t *testing.T) {
	_, _, err := First(context.Background(), nil, func(context.Context, string) (int, error) {
		t.Fatalf("fn must not be called")
		return 0, nil
	})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestFirstCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, _, err := First(ctx, candidates, func(context.Context, string) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: got=%d want=1", calls)
	}
}
