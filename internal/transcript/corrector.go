package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/facetalk/internal/transcript/phonetic"
	"github.com/MrWong99/facetalk/pkg/types"
)

const defaultMinWordLength = 4

// Option is a functional option for configuring a [VocabularyCorrector].
type Option func(*VocabularyCorrector)

// WithPhoneticMatcher replaces the default [phonetic.Matcher].
func WithPhoneticMatcher(m PhoneticMatcher) Option {
	return func(c *VocabularyCorrector) {
		c.matcher = m
	}
}

// WithMinWordLength sets the shortest single word, in letters, that is
// considered for correction. Default: 4.
func WithMinWordLength(n int) Option {
	return func(c *VocabularyCorrector) {
		c.minWordLength = n
	}
}

// VocabularyCorrector is the [Corrector] used by the interaction controller.
// It is read-only after construction and safe for concurrent use.
type VocabularyCorrector struct {
	index         *phonetic.Index
	byWords       map[int]*phonetic.Index
	vocabByWords  map[int][]string
	matcher       PhoneticMatcher
	minWordLength int
}

var _ Corrector = (*VocabularyCorrector)(nil)

// NewCorrector returns a corrector for vocabulary. The vocabulary is indexed
// once here.
func NewCorrector(vocabulary []string, opts ...Option) *VocabularyCorrector {
	c := &VocabularyCorrector{
		index:         phonetic.NewIndex(vocabulary),
		byWords:       make(map[int]*phonetic.Index),
		vocabByWords:  make(map[int][]string),
		matcher:       phonetic.New(),
		minWordLength: defaultMinWordLength,
	}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocabulary {
		if n := len(strings.Fields(v)); n > 0 {
			c.vocabByWords[n] = append(c.vocabByWords[n], v)
		}
	}
	for n, terms := range c.vocabByWords {
		c.byWords[n] = phonetic.NewIndex(terms)
	}
	return c
}

// Correct tokenizes the transcript on whitespace and, at every position,
// tries n-gram windows from the longest vocabulary term down to one word.
// A window of n words is only compared with terms of n words. The longest
// window that matches wins and its tokens are consumed.
//
// Windows that already spell a vocabulary term are kept verbatim. Single
// words shorter than the minimum length are never touched. Punctuation
// before the first and after the last token of a window is preserved, and
// windows never span a token that ends in punctuation.
func (c *VocabularyCorrector) Correct(t types.Transcript) CorrectedTranscript {
	result := CorrectedTranscript{
		Original:    t,
		Corrected:   t.Text,
		Corrections: []Correction{},
	}
	maxWords := c.index.MaxWords()
	tokens := splitTokens(t.Text)
	if maxWords == 0 || len(tokens) == 0 {
		return result
	}

	matchFn := func(s string, n int) (string, float64, bool) {
		if len(c.vocabByWords[n]) == 0 {
			return s, 0, false
		}
		if pm, ok := c.matcher.(*phonetic.Matcher); ok {
			return pm.MatchIndex(s, c.byWords[n])
		}
		return c.matcher.Match(s, c.vocabByWords[n])
	}

	out := make([]string, 0, len(tokens))
	changed := false
	for i := 0; i < len(tokens); {
		consumed := 0
		for n := min(maxWords, len(tokens)-i); n >= 1; n-- {
			window := tokens[i : i+n]
			if !joinable(window) {
				continue
			}
			phrase := joinCores(window)
			if phrase == "" {
				continue
			}
			if _, ok := c.index.Lookup(phrase); ok {
				out = append(out, rebuild(window, phrase))
				consumed = n
				break
			}
			if n == 1 && utf8.RuneCountInString(phrase) < c.minWordLength {
				continue
			}
			corrected, conf, matched := matchFn(phrase, n)
			if !matched {
				continue
			}
			out = append(out, rebuild(window, corrected))
			result.Corrections = append(result.Corrections, Correction{
				Original:   phrase,
				Corrected:  corrected,
				Confidence: conf,
			})
			changed = true
			consumed = n
			break
		}
		if consumed == 0 {
			out = append(out, tokens[i].raw)
			consumed = 1
		}
		i += consumed
	}

	if changed {
		result.Corrected = strings.Join(out, " ")
	}
	return result
}

// token is a whitespace-separated word split into its letters-and-digits
// core and the punctuation around it.
type token struct {
	raw   string
	lead  string
	core  string
	trail string
}

func isWord(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func splitTokens(text string) []token {
	fields := strings.Fields(text)
	tokens := make([]token, len(fields))
	for i, f := range fields {
		start := strings.IndexFunc(f, isWord)
		if start < 0 {
			tokens[i] = token{raw: f, lead: f}
			continue
		}
		end := strings.LastIndexFunc(f, isWord)
		_, size := utf8.DecodeRuneInString(f[end:])
		end += size
		tokens[i] = token{raw: f, lead: f[:start], core: f[start:end], trail: f[end:]}
	}
	return tokens
}

// joinable reports whether window can be treated as one phrase: inner tokens
// must carry no punctuation on the sides facing each other.
func joinable(window []token) bool {
	for i, t := range window {
		if t.core == "" {
			return false
		}
		if i > 0 && t.lead != "" {
			return false
		}
		if i < len(window)-1 && t.trail != "" {
			return false
		}
	}
	return true
}

func joinCores(window []token) string {
	cores := make([]string, len(window))
	for i, t := range window {
		cores[i] = t.core
	}
	return strings.Join(cores, " ")
}

func rebuild(window []token, phrase string) string {
	return window[0].lead + phrase + window[len(window)-1].trail
}
