package tts

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/facetalk/pkg/types"
)

// SplitWords returns one boundary per whitespace-separated word of text with
// CharIndex and CharLength set. Offsets are zero.
func SplitWords(text string) []types.WordBoundary {
	var out []types.WordBoundary
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, types.WordBoundary{Word: text[start:i], CharIndex: start, CharLength: i - start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, types.WordBoundary{Word: text[start:], CharIndex: start, CharLength: len(text) - start})
	}
	return out
}

// EstimateBoundaries spreads the words of text across a span of audio that
// starts at start and lasts dur. Each word gets time in proportion to its
// rune count plus one for the following gap. base is added to every
// CharIndex so callers can place a sentence inside a longer text.
func EstimateBoundaries(text string, base int, start, dur time.Duration) []types.WordBoundary {
	words := SplitWords(text)
	if len(words) == 0 {
		return nil
	}
	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(w.Word) + 1
	}
	acc := 0
	for i := range words {
		words[i].CharIndex += base
		words[i].Offset = start + time.Duration(int64(dur)*int64(acc)/int64(total))
		acc += utf8.RuneCountInString(words[i].Word) + 1
	}
	return words
}
