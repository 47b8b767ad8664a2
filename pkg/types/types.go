// Package types defines the data structures shared between the speech
// providers, the interaction controller and the avatar driver.
//
// Cross-cutting values live here to avoid import cycles between
// pkg/provider/... and internal/...; each package still owns its own domain
// types.
package types

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Corpus keywords are passed this way so that names and jargon in the
// Q&A corpus are recognised more reliably.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Kubernetes").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice speaks (e.g. "en-US").
	Language string

	// PitchShift adjusts pitch (-10 to +10, 0 = default).
	PitchShift float64

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// WordBoundary marks the point in synthesized speech where a word starts.
// Local synthesizers report these directly; for remote streams they are
// simulated from an assumed speaking rate.
type WordBoundary struct {
	// Word is the text of the word that starts at Offset.
	Word string

	// CharIndex is the byte offset of Word within the synthesized text.
	CharIndex int

	// CharLength is the byte length of Word.
	CharLength int

	// Offset is the playback position, from the start of the utterance.
	Offset time.Duration
}
