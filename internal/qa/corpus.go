// Package qa answers questions from a static corpus.
//
// A [Corpus] is loaded once at startup and never changes. A [Matcher] built
// over it scores an utterance against every entry's question and keywords
// and returns the best answer within the threshold, or a fixed fallback.
// Matching is deterministic: the same utterance against the same corpus
// always yields the same [Answer].
package qa

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one question/answer record.
type Entry struct {
	Question string   `yaml:"question" json:"question"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Answer   string   `yaml:"answer"   json:"answer"`

	// Emotion, if set, overrides the keyword-derived emotion for this answer.
	Emotion Emotion `yaml:"emotion,omitempty" json:"emotion,omitempty"`
}

// Corpus is an immutable list of entries.
type Corpus struct {
	entries []Entry
}

// NewCorpus validates entries and returns a corpus holding a copy of them.
func NewCorpus(entries []Entry) (*Corpus, error) {
	if len(entries) == 0 {
		return nil, errors.New("qa: corpus must not be empty")
	}
	var errs []error
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Question) == "" {
			errs = append(errs, fmt.Errorf("qa: entry %d: question must not be empty", i))
		}
		if strings.TrimSpace(e.Answer) == "" {
			errs = append(errs, fmt.Errorf("qa: entry %d: answer must not be empty", i))
		}
		if e.Emotion != "" && !e.Emotion.Valid() {
			errs = append(errs, fmt.Errorf("qa: entry %d: unknown emotion %q", i, e.Emotion))
		}
		e.Keywords = append([]string(nil), e.Keywords...)
		out[i] = e
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Corpus{entries: out}, nil
}

// ParseCorpus decodes a YAML (or JSON) list of entries from r.
func ParseCorpus(r io.Reader) (*Corpus, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var entries []Entry
	if err := dec.Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("qa: corpus must not be empty")
		}
		return nil, fmt.Errorf("qa: parse corpus: %w", err)
	}
	return NewCorpus(entries)
}

// LoadCorpus reads and parses the corpus file at path.
func LoadCorpus(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("qa: open corpus: %w", err)
	}
	defer f.Close()
	c, err := ParseCorpus(f)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Corpus) Len() int { return len(c.entries) }

// Entry returns the i-th entry.
func (c *Corpus) Entry(i int) Entry { return c.entries[i] }

// Vocabulary returns the distinct keywords of the corpus in first-seen
// order. They feed recognition hints and transcript correction.
func (c *Corpus) Vocabulary() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range c.entries {
		for _, kw := range e.Keywords {
			k := strings.ToLower(strings.TrimSpace(kw))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, kw)
		}
	}
	return out
}
