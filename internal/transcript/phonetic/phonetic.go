// Package phonetic matches misrecognized words against a known vocabulary
// using Double Metaphone codes and Jaro-Winkler similarity.
//
// A vocabulary term is a phonetic candidate when any of its Double Metaphone
// codes overlaps with a code of the input. Candidates are ranked by
// Jaro-Winkler similarity and accepted above the phonetic threshold. When no
// candidate passes, a second pass accepts pure string similarity above the
// stricter fuzzy threshold.
//
// Multi-word terms ("tech stack") are compared both as written and with the
// spaces removed, so that "techstack" and "tek stack" also line up.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching term. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a vocabulary entry with its comparison forms computed once.
type term struct {
	name   string
	lower  string
	concat string
	words  int
	codes  map[string]struct{}
}

// Index is a precomputed vocabulary. Build it once with [NewIndex] and reuse
// it for every lookup.
type Index struct {
	terms    []term
	exact    map[string]string
	maxWords int
}

// NewIndex prepares vocabulary for matching. Blank terms are skipped.
func NewIndex(vocabulary []string) *Index {
	idx := &Index{exact: make(map[string]string, len(vocabulary))}
	for _, v := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(v))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		key := strings.Join(tokens, " ")
		name := strings.TrimSpace(v)
		idx.terms = append(idx.terms, term{
			name:   name,
			lower:  key,
			concat: strings.Join(tokens, ""),
			words:  len(tokens),
			codes:  codesForTokens(tokens),
		})
		if _, ok := idx.exact[key]; !ok {
			idx.exact[key] = name
		}
		idx.maxWords = max(idx.maxWords, len(tokens))
	}
	return idx
}

// MaxWords returns the word count of the longest term.
func (idx *Index) MaxWords() int { return idx.maxWords }

// Len returns the number of indexed terms.
func (idx *Index) Len() int { return len(idx.terms) }

// Lookup returns the term spelled exactly like phrase, ignoring case and
// repeated whitespace.
func (idx *Index) Lookup(phrase string) (string, bool) {
	name, ok := idx.exact[strings.Join(strings.Fields(strings.ToLower(phrase)), " ")]
	return name, ok
}

// Match finds the term from vocabulary that sounds most like word. It builds
// a throwaway [Index]; use [Matcher.MatchIndex] on hot paths.
//
// When matched is false, corrected equals word and confidence is 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	return m.MatchIndex(word, NewIndex(vocabulary))
}

// MatchIndex is [Matcher.Match] over a prepared index.
func (m *Matcher) MatchIndex(word string, idx *Index) (corrected string, confidence float64, matched bool) {
	if idx == nil || len(idx.terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	tokens := strings.Fields(strings.ToLower(word))
	full := strings.Join(tokens, " ")
	concat := strings.Join(tokens, "")
	codes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range idx.terms {
		score := matchr.JaroWinkler(full, t.lower, false)
		if len(tokens) > 1 || t.words > 1 {
			score = max(score, matchr.JaroWinkler(concat, t.concat, false))
		}

		if codesOverlap(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.name, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.name, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are left out.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
