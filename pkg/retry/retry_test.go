package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailtriage/internal/provider"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), nil, "list", func() error {
		calls++
		if calls < 3 {
			return &provider.RateLimitError{Provider: "gmail", Message: "slow down"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsBudgetOnPersistentTransient(t *testing.T) {
	calls := 0
	rl := &provider.RateLimitError{Provider: "gmail", Message: "slow down"}
	err := fastPolicy().Do(context.Background(), nil, "list", func() error {
		calls++
		return rl
	})
	if !errors.Is(err, rl) && err != rl {
		t.Fatalf("err = %v, want final rate-limit error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want MaxAttempts=3", calls)
	}
}

func TestDo_AuthErrorNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), nil, "list", func() error {
		calls++
		return &provider.AuthError{Provider: "outlook", Message: "token rejected"}
	})
	if !provider.IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, auth errors must not consume retry budget", calls)
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, Multiplier: 1}
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Do(ctx, nil, "list", func() error {
			calls++
			return &provider.RateLimitError{Provider: "imap"}
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 35 * time.Millisecond}
	if d := p.Delay(1); d != 10*time.Millisecond {
		t.Errorf("Delay(1) = %v, want 10ms", d)
	}
	if d := p.Delay(2); d != 20*time.Millisecond {
		t.Errorf("Delay(2) = %v, want 20ms", d)
	}
	if d := p.Delay(4); d != 35*time.Millisecond {
		t.Errorf("Delay(4) = %v, want cap 35ms", d)
	}
}
