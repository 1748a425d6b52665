package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFloodWaitParsing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  string
		secs int
		ok   bool
	}{
		{"FLOOD_WAIT_30", 30, true},
		{"rpc error: flood_wait_7 (caused by messages.GetHistory)", 7, true},
		{"A wait of 420 seconds is required (FLOOD_WAIT_420)", 420, true},
		{"PEER_ID_INVALID", 0, false},
		{"FLOOD_WAIT_", 0, false},
	}
	for _, tt := range tests {
		secs, ok := FloodWait(errors.New(tt.err))
		if ok != tt.ok || secs != tt.secs {
			t.Fatalf("FloodWait(%q) = (%d, %v), want (%d, %v)", tt.err, secs, ok, tt.secs, tt.ok)
		}
	}
	if _, ok := FloodWait(nil); ok {
		t.Fatal("nil error must not match")
	}
}

func TestDoExhaustsRetriesThenSurfacesError(t *testing.T) {
	t.Parallel()
	boom := errors.New("PEER_ID_INVALID")
	calls := 0
	_, err := Do(context.Background(), Config{MaxRetries: 3, Base: time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, boom
		})
	if calls != 4 {
		t.Fatalf("calls = %d, want 4 (1 initial + 3 retries)", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want original error", err)
	}
}

func TestDoZeroRetriesIsImmediatelyTerminal(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), Config{MaxRetries: 0, Base: time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("transient")
		})
	if calls != 1 || err == nil {
		t.Fatalf("calls = %d, err = %v; want 1 call and an error", calls, err)
	}
}

func TestDoFloodPathDoesNotConsumeRetries(t *testing.T) {
	t.Parallel()
	// MaxRetries = 0: success after two floods proves the flood path never
	// touches the attempt counter.
	calls := 0
	floods := []int{}
	start := time.Now()
	v, err := Do(context.Background(), Config{
		MaxRetries:  0,
		Base:        time.Millisecond,
		OnFloodWait: func(secs int) { floods = append(floods, secs) },
	}, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", fmt.Errorf("FLOOD_WAIT_0 (call %d)", calls)
		}
		return "done", nil
	})
	if err != nil || v != "done" {
		t.Fatalf("Do = (%q, %v), want success", v, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(floods) != 2 || floods[0] != 0 || floods[1] != 0 {
		t.Fatalf("floods = %v, want [0 0]", floods)
	}
	// Each FLOOD_WAIT_0 still sleeps (0+1)s.
	if el := time.Since(start); el < 2*time.Second {
		t.Fatalf("elapsed %v, want >= 2s", el)
	}
}

func TestDoFloodWaitHonorsServerSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("long flood sleep")
	}
	t.Parallel()
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), Config{MaxRetries: 0, Base: time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			if calls <= 2 {
				return 0, errors.New("FLOOD_WAIT_2")
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if el := time.Since(start); el < 6*time.Second {
		t.Fatalf("elapsed %v, want >= 2 * 3s", el)
	}
}

func TestDoFloodBudget(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), Config{
		MaxRetries:   5,
		Base:         time.Millisecond,
		MaxFloodWait: 500 * time.Millisecond, // below the minimum 1s flood sleep
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("FLOOD_WAIT_0")
	})
	if !errors.Is(err, ErrFloodBudget) {
		t.Fatalf("err = %v, want ErrFloodBudget", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (budget refused the first flood sleep)", calls)
	}
}

func TestDoObservesRetries(t *testing.T) {
	t.Parallel()
	attempts := []int{}
	_, _ = Do(context.Background(), Config{
		MaxRetries: 2,
		Base:       time.Millisecond,
		OnRetry: func(err error, attempt int, backoff time.Duration) {
			if err == nil || backoff <= 0 {
				t.Errorf("OnRetry(err=%v, backoff=%v)", err, backoff)
			}
			attempts = append(attempts, attempt)
		},
	}, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("attempts = %v, want [1 2]", attempts)
	}
}

func TestDoCancellationCutsSleep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, Config{MaxRetries: 0, Base: time.Millisecond},
		func(ctx context.Context) (int, error) {
			return 0, errors.New("FLOOD_WAIT_30")
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if el := time.Since(start); el > time.Second {
		t.Fatalf("cancellation took %v", el)
	}
}
