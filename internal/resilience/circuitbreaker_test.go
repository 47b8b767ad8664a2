package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("provider unavailable")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// script runs one call per outcome; nil means success.
func script(cb *CircuitBreaker, outcomes ...error) {
	for _, o := range outcomes {
		_ = cb.Execute(func() error { return o })
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "coqui"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = (%d, %v, %d), want (5, 30s, 3)", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("initial state = %v, want closed", got)
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		outcomes []error
		advance  time.Duration
		probes   []error
		want     State
	}{
		{
			name:     "successes stay closed",
			outcomes: []error{nil, nil, nil},
			want:     StateClosed,
		},
		{
			name:     "consecutive failures open",
			outcomes: []error{errTest, errTest, errTest},
			want:     StateOpen,
		},
		{
			name:     "success resets the failure count",
			outcomes: []error{errTest, errTest, nil, errTest, errTest},
			want:     StateClosed,
		},
		{
			name:     "reset timeout reports half-open",
			outcomes: []error{errTest, errTest, errTest},
			advance:  time.Minute,
			want:     StateHalfOpen,
		},
		{
			name:     "successful probes close",
			outcomes: []error{errTest, errTest, errTest},
			advance:  time.Minute,
			probes:   []error{nil, nil},
			want:     StateClosed,
		},
		{
			name:     "failed probe re-opens",
			outcomes: []error{errTest, errTest, errTest},
			advance:  time.Minute,
			probes:   []error{nil, errTest},
			want:     StateOpen,
		},
		{
			name:     "cancellation is neutral",
			outcomes: []error{fmt.Errorf("synthesize: %w", context.Canceled), context.Canceled, context.Canceled, context.Canceled},
			want:     StateClosed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Name:         "elevenlabs",
				MaxFailures:  3,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  2,
				Now:          clock.Now,
			})
			script(cb, tt.outcomes...)
			clock.Advance(tt.advance)
			script(cb, tt.probes...)

			if got := cb.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "deepgram", MaxFailures: 1, ResetTimeout: time.Hour})
	script(cb, errTest)

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while the breaker was open")
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		Now:          clock.Now,
	})
	script(cb, errTest)
	clock.Advance(time.Second)

	// A slow probe is in flight; a second caller is turned away.
	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("concurrent probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "openai", MaxFailures: 2, ResetTimeout: time.Hour})
	script(cb, errTest, errTest)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after Reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for state, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var (
		mu          sync.Mutex
		transitions []string
	)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "elevenlabs",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		Now:          clock.Now,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	script(cb, errTest)
	clock.Advance(time.Second)
	script(cb, nil)
	cb.Reset()

	want := []string{
		"elevenlabs:closed->open",
		"elevenlabs:open->half-open",
		"elevenlabs:half-open->closed",
	}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
}
