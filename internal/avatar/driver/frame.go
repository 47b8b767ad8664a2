package driver

// Expression is the discrete facial state of the avatar.
type Expression string

const (
	Neutral   Expression = "neutral"
	Happy     Expression = "happy"
	Thinking  Expression = "thinking"
	Surprised Expression = "surprised"
	Speaking  Expression = "speaking"

	// Excited is only used as a body pose; the face shows Surprised.
	Excited Expression = "excited"
)

// cycleExpressions are picked at random by the idle expression cycle.
var cycleExpressions = []Expression{Neutral, Happy, Thinking, Surprised}

// Vec2 is a 2D value.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform is the smoothed placement of the whole avatar.
type Transform struct {
	Position Vec2    `json:"position"`
	Scale    float64 `json:"scale"`

	// Rotation is the head-tracking tilt in radians, X about the horizontal
	// axis and Y about the vertical one.
	Rotation Vec2 `json:"rotation"`
}

// Frame is the output of one [Driver.Step]. Names are asset names, so a
// client can apply the frame without knowing the canonical vocabulary.
type Frame struct {
	// Morphs holds every non-zero influence. Targets not listed are 0.
	Morphs map[string]float64 `json:"morphs"`

	// Bones holds the current rotation of every animated bone as a glTF
	// quaternion (x, y, z, w).
	Bones map[string][4]float64 `json:"bones"`

	Expression      Expression `json:"expression"`
	Gaze            Vec2       `json:"gaze"`
	Transform       Transform  `json:"transform"`
	SpeechIntensity float64    `json:"speechIntensity"`
}
