package qa

import "strings"

// Emotion tags an answer with the mood the avatar should show.
type Emotion string

const (
	Neutral    Emotion = "neutral"
	Happy      Emotion = "happy"
	Excited    Emotion = "excited"
	Proud      Emotion = "proud"
	Interested Emotion = "interested"
	Thoughtful Emotion = "thoughtful"
	Confident  Emotion = "confident"
	Confused   Emotion = "confused"
)

// Valid reports whether e is one of the known emotions.
func (e Emotion) Valid() bool {
	switch e {
	case Neutral, Happy, Excited, Proud, Interested, Thoughtful, Confident, Confused:
		return true
	}
	return false
}

// emotionRules are checked in order against the lowercased utterance. The
// first rule with a contained word wins.
var emotionRules = []struct {
	words   []string
	emotion Emotion
}{
	{[]string{"name", "who"}, Happy},
	{[]string{"technology", "skills"}, Excited},
	{[]string{"project", "work"}, Proud},
	{[]string{"contact", "hire"}, Interested},
	{[]string{"background", "experience"}, Thoughtful},
	{[]string{"unique", "special"}, Confident},
}

// emotionFor derives the emotion of a matched answer from the utterance.
func emotionFor(utterance string) Emotion {
	lower := strings.ToLower(utterance)
	for _, r := range emotionRules {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				return r.emotion
			}
		}
	}
	return Neutral
}
