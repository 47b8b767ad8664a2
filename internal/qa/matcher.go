package qa

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultThreshold is the highest accepted score. 0 is a perfect match
	// and 1 no match at all.
	DefaultThreshold = 0.4

	// DefaultFallback is answered when nothing scores within the threshold.
	DefaultFallback = "I don't know the answer to that question. Could you try asking something else?"
)

// Answer is the result of [Matcher.Match].
type Answer struct {
	// Text is the answer to speak. Never empty.
	Text string

	Emotion Emotion

	// Matched is false when Text is the fallback.
	Matched bool

	// Score of the winning entry, or 1 when nothing matched.
	Score float64

	// Question of the winning entry. Empty when nothing matched.
	Question string
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the highest accepted score.
func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		m.threshold = t
	}
}

// WithFallback replaces the answer given when nothing matches.
func WithFallback(text string) Option {
	return func(m *Matcher) {
		if strings.TrimSpace(text) != "" {
			m.fallback = text
		}
	}
}

// field is a pre-tokenized question or keyword.
type field struct {
	tokens []string
	runes  int
}

// Matcher scores utterances against a [Corpus]. It is immutable after
// construction and safe for concurrent use.
type Matcher struct {
	corpus    *Corpus
	fields    [][]field // per entry: question first, then keywords
	threshold float64
	fallback  string
}

// NewMatcher indexes c. The index is built once here; Match never
// re-tokenizes the corpus.
func NewMatcher(c *Corpus, opts ...Option) (*Matcher, error) {
	if c == nil {
		return nil, errors.New("qa: corpus must not be nil")
	}
	m := &Matcher{
		corpus:    c,
		threshold: DefaultThreshold,
		fallback:  DefaultFallback,
	}
	for _, o := range opts {
		o(m)
	}
	if m.threshold < 0 || m.threshold > 1 {
		return nil, errors.New("qa: threshold must be within [0, 1]")
	}
	m.fields = make([][]field, c.Len())
	for i, e := range c.entries {
		fs := []field{newField(e.Question)}
		for _, kw := range e.Keywords {
			if f := newField(kw); len(f.tokens) > 0 {
				fs = append(fs, f)
			}
		}
		m.fields[i] = fs
	}
	return m, nil
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Corpus returns the indexed corpus.
func (m *Matcher) Corpus() *Corpus { return m.corpus }

// Match returns the best answer for utterance. The lowest score wins; equal
// scores go to the entry that comes first in the corpus.
func (m *Matcher) Match(utterance string) Answer {
	q := newField(utterance)
	if len(q.tokens) == 0 {
		return m.miss()
	}
	best, bestScore := -1, 2.0
	for i, fs := range m.fields {
		for _, f := range fs {
			if s := score(q, f); s < bestScore {
				best, bestScore = i, s
			}
		}
	}
	if best < 0 || bestScore > m.threshold {
		return m.miss()
	}
	e := m.corpus.entries[best]
	emotion := e.Emotion
	if emotion == "" {
		emotion = emotionFor(utterance)
	}
	return Answer{
		Text:     e.Answer,
		Emotion:  emotion,
		Matched:  true,
		Score:    bestScore,
		Question: e.Question,
	}
}

func (m *Matcher) miss() Answer {
	return Answer{Text: m.fallback, Emotion: Confused, Score: 1}
}

// score compares q and f in both directions and keeps the better result.
// Each direction treats one side as the pattern and finds it in the other.
func score(q, f field) float64 {
	return min(find(f, q), find(q, f))
}

// find is a word-aligned approximate substring search: every pattern token
// is matched to its closest text token by edit distance, and the summed
// distance is normalized by the pattern length. A pattern that appears in the
// text verbatim scores 0.
func find(pattern, text field) float64 {
	if pattern.runes == 0 || len(text.tokens) == 0 {
		return 1
	}
	total := 0
	for _, p := range pattern.tokens {
		n := utf8.RuneCountInString(p)
		best := n
		for _, t := range text.tokens {
			if d := matchr.Levenshtein(p, t); d < best {
				best = d
				if d == 0 {
					break
				}
			}
		}
		total += best
	}
	return min(float64(total)/float64(pattern.runes), 1)
}

func newField(s string) field {
	tokens := tokenize(s)
	n := 0
	for _, t := range tokens {
		n += utf8.RuneCountInString(t)
	}
	return field{tokens: tokens, runes: n}
}

// tokenize lowercases s and splits it on anything that is not a letter or
// digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
