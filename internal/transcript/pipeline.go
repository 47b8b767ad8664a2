// Package transcript corrects speech-to-text output toward the vocabulary of
// the Q&A corpus before it reaches the matcher.
//
// Recognizers routinely mishear jargon and proper nouns ("kubernetis",
// "tek stack"). The [Corrector] replaces such spans with the closest
// vocabulary term by pronunciation, leaving every other word alone. Each
// [Correction] is recorded so callers can log or display the substitutions.
package transcript

import "github.com/MrWong99/facetalk/pkg/types"

// Correction captures a single substitution.
type Correction struct {
	// Original is the span as produced by the STT provider.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score of the substitution (0.0–1.0).
	Confidence float64
}

// CorrectedTranscript pairs the original [types.Transcript] with the
// corrected text.
type CorrectedTranscript struct {
	Original types.Transcript

	// Corrected is the transcript text with all substitutions applied.
	Corrected string

	// Corrections is the ordered list of substitutions. An empty (non-nil)
	// slice means nothing needed fixing.
	Corrections []Correction
}

// Corrector rewrites a transcript toward a fixed vocabulary.
//
// Implementations must be safe for concurrent use.
type Corrector interface {
	Correct(t types.Transcript) CorrectedTranscript
}

// PhoneticMatcher resolves a word or phrase to a known term by
// pronunciation similarity.
//
// When matched is false, corrected must equal word and confidence must be 0.
type PhoneticMatcher interface {
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}
