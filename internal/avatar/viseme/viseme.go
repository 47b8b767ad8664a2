// Package viseme maps spoken words to mouth shapes.
//
// [MapWord] is the coarse word-level heuristic used while speaking: the
// first vowel picks one of five vowel visemes. [Apply] turns a [State] into
// morph-target influences on whatever the asset exposes.
package viseme

import "strings"

// Viseme types returned by [MapWord].
const (
	TypeA      = "viseme_A"
	TypeE      = "viseme_E"
	TypeI      = "viseme_I"
	TypeO      = "viseme_O"
	TypeU      = "viseme_U"
	TypeJaw    = "jaw_open"
	TypeClosed = "viseme_closed"
)

const (
	vowelIntensity = 0.8
	jawIntensity   = 0.3
)

// State is the current mouth shape. Intensity is within [0, 1].
type State struct {
	Type      string  `json:"type"`
	Intensity float64 `json:"intensity"`
}

// Closed is the resting mouth.
var Closed = State{Type: TypeClosed}

// IsClosed reports whether s produces no mouth movement.
func (s State) IsClosed() bool { return s.Intensity <= 0 }

// Scale returns s with its intensity multiplied by f and clamped to [0, 1].
func (s State) Scale(f float64) State {
	s.Intensity = clamp01(s.Intensity * f)
	return s
}

var vowels = map[rune]string{
	'a': TypeA,
	'e': TypeE,
	'i': TypeI,
	'o': TypeO,
	'u': TypeU,
}

// MapWord returns the viseme for the first vowel of word, or a light jaw
// opening when word has none.
func MapWord(word string) State {
	for _, r := range strings.ToLower(word) {
		if t, ok := vowels[r]; ok {
			return State{Type: t, Intensity: vowelIntensity}
		}
	}
	return State{Type: TypeJaw, Intensity: jawIntensity}
}

// Types returns every type [MapWord] and [Closed] can produce.
func Types() []string {
	return []string{TypeA, TypeE, TypeI, TypeO, TypeU, TypeJaw, TypeClosed}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
