package transcript_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/MrWong99/facetalk/internal/transcript"
	"github.com/MrWong99/facetalk/pkg/types"
)

var vocabulary = []string{"Kubernetes", "TypeScript", "tech stack", "Go"}

func makeTranscript(text string) types.Transcript {
	return types.Transcript{Text: text, IsFinal: true, Confidence: 0.8}
}

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(vocabulary)
	tests := []struct {
		name      string
		text      string
		want      string
		wantFixes []transcript.Correction
	}{
		{
			name:      "single word with trailing punctuation",
			text:      "do you know kubernetis?",
			want:      "do you know Kubernetes?",
			wantFixes: []transcript.Correction{{Original: "kubernetis", Corrected: "Kubernetes"}},
		},
		{
			name:      "multi-word term",
			text:      "what is your tek stack",
			want:      "what is your tech stack",
			wantFixes: []transcript.Correction{{Original: "tek stack", Corrected: "tech stack"}},
		},
		{
			name: "known terms are untouched",
			text: "I love  Go and TypeScript",
			want: "I love  Go and TypeScript",
		},
		{
			name: "empty text",
			text: "",
			want: "",
		},
		{
			name: "punctuation only",
			text: "?! ...",
			want: "?! ...",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := makeTranscript(tc.text)
			got := c.Correct(tr)
			if !reflect.DeepEqual(got.Original, tr) {
				t.Errorf("Original = %+v, want %+v", got.Original, tr)
			}
			if got.Corrected != tc.want {
				t.Errorf("Corrected = %q, want %q", got.Corrected, tc.want)
			}
			if got.Corrections == nil {
				t.Fatal("Corrections is nil, want non-nil")
			}
			if len(got.Corrections) != len(tc.wantFixes) {
				t.Fatalf("Corrections = %+v, want %d", got.Corrections, len(tc.wantFixes))
			}
			for i, want := range tc.wantFixes {
				fix := got.Corrections[i]
				if fix.Original != want.Original || fix.Corrected != want.Corrected {
					t.Errorf("Corrections[%d] = %+v, want %q -> %q", i, fix, want.Original, want.Corrected)
				}
				if fix.Confidence <= 0 || fix.Confidence > 1 {
					t.Errorf("Corrections[%d].Confidence = %f", i, fix.Confidence)
				}
			}
		})
	}
}

func TestCorrector_MinWordLength(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(vocabulary, transcript.WithMinWordLength(20))
	got := c.Correct(makeTranscript("kubernetis"))
	if got.Corrected != "kubernetis" || len(got.Corrections) != 0 {
		t.Fatalf("Correct = %+v, want unchanged", got)
	}
}

func TestCorrector_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	got := transcript.NewCorrector(nil).Correct(makeTranscript("kubernetis"))
	if got.Corrected != "kubernetis" || len(got.Corrections) != 0 {
		t.Fatalf("Correct = %+v, want unchanged", got)
	}
}

// stubMatcher maps fixed words and records the vocabulary it was given.
type stubMatcher struct {
	mu    sync.Mutex
	calls [][]string
	fixes map[string]string
}

func (s *stubMatcher) Match(word string, vocab []string) (string, float64, bool) {
	s.mu.Lock()
	s.calls = append(s.calls, vocab)
	s.mu.Unlock()
	if fix, ok := s.fixes[word]; ok {
		return fix, 0.9, true
	}
	return word, 0, false
}

func TestCorrector_CustomMatcher(t *testing.T) {
	t.Parallel()

	stub := &stubMatcher{fixes: map[string]string{"fnord": "Kubernetes"}}
	c := transcript.NewCorrector(vocabulary, transcript.WithPhoneticMatcher(stub))

	got := c.Correct(makeTranscript("fnord, please"))
	if got.Corrected != "Kubernetes, please" {
		t.Fatalf("Corrected = %q", got.Corrected)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.calls) == 0 {
		t.Fatal("matcher was never called")
	}
	for _, vocab := range stub.calls {
		for _, term := range vocab {
			if term == "tech stack" {
				t.Errorf("single-word window was offered multi-word term %q", term)
			}
		}
	}
}
