package driver

import "github.com/MrWong99/facetalk/internal/avatar/rig"

// teethShow is a compound target: there is no such blend shape, it raises
// both sides of the upper lip and shrugs it.
const teethShow = "teeth_show"

var teethParts = []string{"mouthUpperUpLeft", "mouthUpperUpRight", "mouthShrugUpper"}

// face collects the morph influences of one frame under asset names. Later
// writes to the same target replace earlier ones.
type face struct {
	rig *rig.Rig
	out map[string]float64
}

// SetMorph sets a canonical target, clamped to [0, 1]. Targets the asset
// lacks are ignored.
func (f *face) SetMorph(canonical string, influence float64) {
	if canonical == teethShow {
		half := clamp(influence, 0, 1) * 0.6
		for _, part := range teethParts {
			f.set(part, half)
		}
		return
	}
	f.set(canonical, influence)
}

func (f *face) set(canonical string, influence float64) {
	name, ok := f.rig.ResolveMorph(canonical)
	if !ok {
		return
	}
	v := clamp(influence, 0, 1)
	if v == 0 {
		delete(f.out, name)
		return
	}
	f.out[name] = v
}

type shape struct {
	name   string
	weight float64
}

var expressionShapes = map[Expression][]shape{
	Happy: {
		{"mouthSmileLeft", 0.7}, {"mouthSmileRight", 0.7},
		{"cheekSquintLeft", 0.4}, {"cheekSquintRight", 0.4},
		{"browInnerUp", 0.3},
	},
	Surprised: {
		{"mouthFunnel", 0.6}, {"browInnerUp", 0.8},
		{"browOuterUpLeft", 0.7}, {"browOuterUpRight", 0.7},
		{"eyeWideLeft", 0.5}, {"eyeWideRight", 0.5},
	},
	Thinking: {
		{"browDownLeft", 0.4}, {"browDownRight", 0.2},
		{"mouthLeft", 0.3}, {"eyeSquintLeft", 0.2},
	},
	Speaking: {
		{"browInnerUp", 0.2}, {"cheekPuff", 0.1},
	},
}

// expression applies the face shapes of e at intensity.
func (f *face) expression(e Expression, intensity float64) {
	for _, s := range expressionShapes[e] {
		f.SetMorph(s.name, intensity*s.weight)
	}
}
