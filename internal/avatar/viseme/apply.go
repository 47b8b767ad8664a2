package viseme

import "strings"

// Setter receives morph-target influences by canonical name.
type Setter interface {
	SetMorph(name string, influence float64)
}

// Resolver reports whether the asset has a morph target for a name.
type Resolver interface {
	Resolve(canonical string) (string, bool)
}

// group is a phonetic class and the ARKit shapes that express it.
type group struct {
	patterns []string
	weights  []Weight
}

// Weight is one morph target of a group and its share of the intensity.
type Weight struct {
	Name   string
	Factor float64
}

var groups = []group{
	{ // rounded
		patterns: []string{"o", "uw", "oo", "ou"},
		weights:  []Weight{{"mouthPucker", 0.9}, {"mouthFunnel", 0.6}},
	},
	{ // front
		patterns: []string{"ee", "iy", "i"},
		weights:  []Weight{{"mouthStretchLeft", 0.5}, {"mouthStretchRight", 0.5}},
	},
	{ // labiodental
		patterns: []string{"f", "v"},
		weights:  []Weight{{"mouthUpperUpLeft", 0.4}, {"mouthUpperUpRight", 0.4}},
	},
	{ // bilabial
		patterns: []string{"m", "b", "p"},
		weights:  []Weight{{"mouthClose", 0.8}},
	},
}

var open = []Weight{{"jawOpen", 0.8}}

// Apply drives the morph targets for s. When the asset has a target named
// like the viseme type it is used directly. Otherwise the type is classified
// into a phonetic group, looking only at the part after a "viseme_" prefix,
// and the group's shapes are set scaled by the intensity.
func Apply(set Setter, r Resolver, s State) {
	if s.IsClosed() {
		return
	}
	if name, ok := r.Resolve(s.Type); ok {
		set.SetMorph(name, s.Intensity)
		return
	}
	for _, w := range Classify(s.Type) {
		set.SetMorph(w.Name, s.Intensity*w.Factor)
	}
}

// Classify returns the shapes for a viseme type.
func Classify(visemeType string) []Weight {
	t := strings.TrimPrefix(strings.ToLower(visemeType), "viseme_")
	for _, g := range groups {
		for _, p := range g.patterns {
			if strings.Contains(t, p) {
				return g.weights
			}
		}
	}
	return open
}
