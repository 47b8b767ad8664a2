package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// voiceGroup builds a group of named backends tried in order.
func voiceGroup(cfg FallbackConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   []string
		want      string
		wantCalls []string
		wantErr   error
	}{
		{
			name:      "primary answers",
			want:      "audio from elevenlabs",
			wantCalls: []string{"elevenlabs"},
		},
		{
			name:      "primary fails, next answers",
			failing:   []string{"elevenlabs"},
			want:      "audio from openai",
			wantCalls: []string{"elevenlabs", "openai"},
		},
		{
			name:      "remote fails, local answers",
			failing:   []string{"elevenlabs", "openai"},
			want:      "audio from coqui",
			wantCalls: []string{"elevenlabs", "openai", "coqui"},
		},
		{
			name:      "all fail",
			failing:   []string{"elevenlabs", "openai", "coqui"},
			wantCalls: []string{"elevenlabs", "openai", "coqui"},
			wantErr:   ErrAllFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := voiceGroup(FallbackConfig{}, "elevenlabs", "openai", "coqui")

			var calls []string
			got, err := ExecuteWithResult(fg, func(name string) (string, error) {
				calls = append(calls, name)
				if slices.Contains(tt.failing, name) {
					return "", errTest
				}
				return "audio from " + name, nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want %v wrapping the last failure", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()

	fg := voiceGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	}, "deepgram", "whisper")

	for range 2 {
		_ = fg.Execute(func(name string) error {
			if name == "deepgram" {
				return errTest
			}
			return nil
		})
	}
	if got := fg.Breaker("deepgram").State(); got != StateOpen {
		t.Fatalf("deepgram breaker = %v, want open", got)
	}

	var calls []string
	if err := fg.Execute(func(name string) error {
		calls = append(calls, name)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(calls, []string{"whisper"}) {
		t.Errorf("calls = %v, want [whisper]", calls)
	}
}

func TestFallbackGroup_OnFailover(t *testing.T) {
	t.Parallel()

	var from []string
	fg := voiceGroup(FallbackConfig{
		OnFailover: func(name string, err error) {
			if !errors.Is(err, errTest) {
				t.Errorf("failover err = %v", err)
			}
			from = append(from, name)
		},
	}, "elevenlabs", "coqui")

	// The last entry failing has nowhere to fail over to.
	_ = fg.Execute(func(string) error { return errTest })
	if !slices.Equal(from, []string{"elevenlabs"}) {
		t.Fatalf("failovers = %v, want [elevenlabs]", from)
	}
}

func TestFallbackGroup_Accessors(t *testing.T) {
	t.Parallel()

	fg := voiceGroup(FallbackConfig{}, "elevenlabs", "coqui")
	if got := fg.Names(); !slices.Equal(got, []string{"elevenlabs", "coqui"}) {
		t.Errorf("Names() = %v", got)
	}
	if got := fg.Primary(); got != "elevenlabs" {
		t.Errorf("Primary() = %q, want elevenlabs", got)
	}
	if fg.Breaker("coqui") == nil {
		t.Error("Breaker(coqui) = nil")
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) != nil")
	}
}

func TestFallbackGroup_CancelledStopsWalk(t *testing.T) {
	t.Parallel()

	fg := voiceGroup(FallbackConfig{}, "elevenlabs", "coqui")

	var calls []string
	err := fg.Execute(func(name string) error {
		calls = append(calls, name)
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare context.Canceled", err)
	}
	if !slices.Equal(calls, []string{"elevenlabs"}) {
		t.Errorf("calls = %v, want only the primary", calls)
	}
}
