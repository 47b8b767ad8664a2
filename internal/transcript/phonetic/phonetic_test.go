package phonetic_test

import (
	"testing"

	"github.com/MrWong99/facetalk/internal/transcript/phonetic"
)

var vocabulary = []string{"Kubernetes", "TypeScript", "tech stack", "portfolio"}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		name        string
		word        string
		want        string
		wantMatched bool
		minConf     float64
	}{
		{name: "one letter off", word: "kubernetis", want: "Kubernetes", wantMatched: true, minConf: 0.9},
		{name: "exact returns original casing", word: "KUBERNETES", want: "Kubernetes", wantMatched: true, minConf: 0.99},
		{name: "multi-word term", word: "tek stack", want: "tech stack", wantMatched: true, minConf: 0.85},
		{name: "unrelated word", word: "hello", want: "hello", wantMatched: false},
		{name: "empty word", word: "", want: "", wantMatched: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, conf, matched := m.Match(tc.word, vocabulary)
			if matched != tc.wantMatched {
				t.Fatalf("Match(%q): matched=%v, want %v", tc.word, matched, tc.wantMatched)
			}
			if got != tc.want {
				t.Errorf("Match(%q): corrected=%q, want %q", tc.word, got, tc.want)
			}
			if !matched && conf != 0 {
				t.Errorf("Match(%q): confidence=%f, want 0 when unmatched", tc.word, conf)
			}
			if conf < tc.minConf {
				t.Errorf("Match(%q): confidence=%f, want >= %f", tc.word, conf, tc.minConf)
			}
		})
	}
}

func TestMatcher_ThresholdFiltering(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, matched := m.Match("kubernetis", vocabulary); matched {
		t.Fatal("Match with threshold=0.99 should reject near-matches")
	}
}

func TestMatcher_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("kubernetis", nil)
	if matched || corrected != "kubernetis" || conf != 0 {
		t.Fatalf("Match with nil vocabulary = (%q, %f, %v)", corrected, conf, matched)
	}
	if _, _, matched := m.MatchIndex("kubernetis", nil); matched {
		t.Fatal("MatchIndex with nil index should not match")
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	idx := phonetic.NewIndex([]string{"Kubernetes", "  ", "tech   stack", "kubernetes"})
	if idx.Len() != 3 {
		t.Errorf("Len = %d, want 3", idx.Len())
	}
	if idx.MaxWords() != 2 {
		t.Errorf("MaxWords = %d, want 2", idx.MaxWords())
	}
	if name, ok := idx.Lookup("Tech Stack"); !ok || name != "tech   stack" {
		t.Errorf("Lookup(Tech Stack) = (%q, %v)", name, ok)
	}
	if name, ok := idx.Lookup("KUBERNETES"); !ok || name != "Kubernetes" {
		t.Errorf("Lookup(KUBERNETES) = (%q, %v), want first spelling", name, ok)
	}
	if _, ok := idx.Lookup("docker"); ok {
		t.Error("Lookup(docker) should miss")
	}
}
