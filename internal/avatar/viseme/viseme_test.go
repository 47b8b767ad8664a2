package viseme_test

import (
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/facetalk/internal/avatar/resolve"
	"github.com/MrWong99/facetalk/internal/avatar/viseme"
)

func TestMapWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word string
		want viseme.State
	}{
		{"hello", viseme.State{Type: viseme.TypeE, Intensity: 0.8}},
		{"Apple", viseme.State{Type: viseme.TypeA, Intensity: 0.8}},
		{"skills", viseme.State{Type: viseme.TypeI, Intensity: 0.8}},
		{"GO", viseme.State{Type: viseme.TypeO, Intensity: 0.8}},
		{"much", viseme.State{Type: viseme.TypeU, Intensity: 0.8}},
		{"rhythm", viseme.State{Type: viseme.TypeJaw, Intensity: 0.3}},
		{"", viseme.State{Type: viseme.TypeJaw, Intensity: 0.3}},
		{"42!", viseme.State{Type: viseme.TypeJaw, Intensity: 0.3}},
	}
	for _, tc := range tests {
		if got := viseme.MapWord(tc.word); got != tc.want {
			t.Errorf("MapWord(%q) = %+v, want %+v", tc.word, got, tc.want)
		}
	}
}

func TestMapWord_AlwaysKnownType(t *testing.T) {
	t.Parallel()

	types := viseme.Types()
	for _, w := range []string{"über", "naïve", "ÆON", "x", "\x00", "日本語", "queue"} {
		got := viseme.MapWord(w)
		if !slices.Contains(types, got.Type) {
			t.Errorf("MapWord(%q).Type = %q, not in Types()", w, got.Type)
		}
		if got.Intensity < 0 || got.Intensity > 1 {
			t.Errorf("MapWord(%q).Intensity = %f, out of range", w, got.Intensity)
		}
	}
}

func TestState(t *testing.T) {
	t.Parallel()

	if !viseme.Closed.IsClosed() || viseme.Closed.Type != viseme.TypeClosed {
		t.Fatalf("Closed = %+v", viseme.Closed)
	}
	s := viseme.State{Type: viseme.TypeA, Intensity: 0.8}
	if got := s.Scale(0.3); math.Abs(got.Intensity-0.24) > 1e-9 || got.Type != viseme.TypeA {
		t.Fatalf("Scale(0.3) = %+v", got)
	}
	if got := s.Scale(5); got.Intensity != 1 {
		t.Fatalf("Scale(5) = %+v, want clamped to 1", got)
	}
}

// recorder is a [viseme.Setter] that keeps every call.
type recorder struct {
	mu  sync.Mutex
	got map[string]float64
}

func (r *recorder) SetMorph(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = make(map[string]float64)
	}
	r.got[name] = v
}

func TestApply(t *testing.T) {
	t.Parallel()

	arkit := resolve.NewMorphs(resolve.ARKit)
	tests := []struct {
		name     string
		resolver viseme.Resolver
		state    viseme.State
		want     map[string]float64
	}{
		{
			name:     "rounded",
			resolver: arkit,
			state:    viseme.State{Type: viseme.TypeO, Intensity: 1},
			want:     map[string]float64{"mouthPucker": 0.9, "mouthFunnel": 0.6},
		},
		{
			name:     "front",
			resolver: arkit,
			state:    viseme.State{Type: viseme.TypeI, Intensity: 0.8},
			want:     map[string]float64{"mouthStretchLeft": 0.4, "mouthStretchRight": 0.4},
		},
		{
			name:     "open vowel",
			resolver: arkit,
			state:    viseme.State{Type: viseme.TypeA, Intensity: 0.5},
			want:     map[string]float64{"jawOpen": 0.4},
		},
		{
			name:     "labiodental",
			resolver: arkit,
			state:    viseme.State{Type: "viseme_FF", Intensity: 1},
			want:     map[string]float64{"mouthUpperUpLeft": 0.4, "mouthUpperUpRight": 0.4},
		},
		{
			name:     "bilabial",
			resolver: arkit,
			state:    viseme.State{Type: "viseme_PP", Intensity: 1},
			want:     map[string]float64{"mouthClose": 0.8},
		},
		{
			name:     "direct match on asset",
			resolver: resolve.NewMorphs([]string{"viseme_aa", "jawOpen"}),
			state:    viseme.State{Type: viseme.TypeA, Intensity: 0.7},
			want:     map[string]float64{"viseme_aa": 0.7},
		},
		{
			name:     "jaw fallback resolves through alias",
			resolver: arkit,
			state:    viseme.State{Type: viseme.TypeJaw, Intensity: 0.3},
			want:     map[string]float64{"jawOpen": 0.3},
		},
		{
			name:     "closed sets nothing",
			resolver: arkit,
			state:    viseme.Closed,
			want:     map[string]float64{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{got: map[string]float64{}}
			viseme.Apply(rec, tc.resolver, tc.state)
			if len(rec.got) != len(tc.want) {
				t.Fatalf("Apply set %v, want %v", rec.got, tc.want)
			}
			for name, want := range tc.want {
				if got, ok := rec.got[name]; !ok || math.Abs(got-want) > 1e-9 {
					t.Errorf("%s = %v (set %v), want %v", name, got, ok, want)
				}
			}
		})
	}
}
