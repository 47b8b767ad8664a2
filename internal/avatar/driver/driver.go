// Package driver runs the per-frame procedural animation of the avatar.
//
// [Driver.Step] is a pure computation over elapsed time: it never blocks,
// performs no I/O and owns no timers. Blinking, eyebrow motion, saccades
// and the idle expression cycle are explicit state machines advanced once
// per step. Randomness comes from an injected source, so a seeded driver
// produces the same frames every run.
//
// Each step, in order:
//
//  1. smooths the avatar transform toward its drag/scale target and applies
//     head tracking unless a drag is in progress
//  2. resets every morph influence to 0
//  3. while speaking with a non-closed viseme, applies the viseme plus jaw,
//     teeth and cheek motion scaled by a smoothed speech intensity, and
//     forces the expression to [Speaking]
//  4. when idle (or auto-animating) adds the idle mouth bob, eyebrow
//     micro-movement, the expression cycle and the expression's face shapes;
//     blinking runs regardless
//  5. poses the body for the expression and slerps every bone toward its
//     target with factor clamp(dt*6, 0, 1)
//  6. drives the paired eye-look targets from the gaze, clamped to
//     ±0.6 horizontally and ±0.4 vertically
package driver

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/MrWong99/facetalk/internal/avatar/resolve"
	"github.com/MrWong99/facetalk/internal/avatar/rig"
	"github.com/MrWong99/facetalk/internal/avatar/viseme"
)

const (
	gazeClampX      = 0.6
	gazeClampY      = 0.4
	eyeLookStrength = 0.8
	boneRate        = 6.0
	excitedBounce   = 0.08
)

// Input is the per-frame state the driver reacts to.
type Input struct {
	Speaking bool
	Viseme   viseme.State

	// AutoAnimate speeds up the expression cycle, drifts the gaze and
	// strengthens idle motion.
	AutoAnimate bool

	// ReducedMotion lowers head-tracking intensity.
	ReducedMotion bool
}

// Option configures a [Driver].
type Option func(*Driver)

// WithRand sets the random source. Defaults to a randomly seeded PCG.
func WithRand(r *rand.Rand) Option {
	return func(d *Driver) {
		d.rnd = r
	}
}

// WithPosition sets the initial avatar position. Default: (0, -0.8).
func WithPosition(x, y float64) Option {
	return func(d *Driver) {
		d.position = Vec2{X: x, Y: y}
	}
}

// Driver animates one avatar. All methods are safe for concurrent use; the
// pointer methods are typically called from an input goroutine while a
// ticker calls Step.
type Driver struct {
	rig *rig.Rig
	rnd *rand.Rand

	mu sync.Mutex

	// Resolved asset names of the canonical body bones.
	bones   map[string]string
	current map[string]mgl64.Quat
	target  map[string]mgl64.Quat

	clock      float64
	expression Expression
	speech     float64
	mouthIdle  float64

	blink   blink
	brows   brows
	cycle   cycle
	saccade saccade

	gaze     Vec2
	pointer  Vec2
	input    pointerState
	position Vec2
	scale    float64
	shown    Transform
}

// New returns a driver for r.
func New(r *rig.Rig, opts ...Option) (*Driver, error) {
	if r == nil {
		return nil, errors.New("driver: rig must not be nil")
	}
	d := &Driver{
		rig:        r,
		expression: Neutral,
		position:   Vec2{X: 0, Y: -0.8},
		scale:      1,
		bones:      make(map[string]string),
		current:    make(map[string]mgl64.Quat),
		target:     make(map[string]mgl64.Quat),
	}
	for _, o := range opts {
		o(d)
	}
	if d.rnd == nil {
		d.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	for _, canonical := range resolve.BodyBones {
		name, ok := r.ResolveBone(canonical)
		if !ok {
			continue
		}
		rest, _ := r.Rest(name)
		d.bones[canonical] = name
		d.current[name] = rest
		d.target[name] = rest
	}
	d.blink = newBlink(d.rnd)
	d.shown = Transform{Position: d.position, Scale: d.scale}
	return d, nil
}

// SetExpression switches the expression immediately and restarts the idle
// cycle. While speaking the face keeps showing [Speaking].
func (d *Driver) SetExpression(e Expression) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expression = e
	d.cycle.t = 0
}

// Expression returns the current expression.
func (d *Driver) Expression() Expression {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expression
}

// Step advances the animation by dt and returns the resulting frame.
func (d *Driver) Step(dt time.Duration, in Input) Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	sec := max(dt.Seconds(), 0)
	d.clock += sec
	f := &face{rig: d.rig, out: make(map[string]float64)}
	idle := !in.Speaking || in.AutoAnimate

	d.stepTransform(in)

	if in.Speaking && !in.Viseme.IsClosed() {
		viseme.Apply(f, d.rig, in.Viseme)
		d.speech = lerp(d.speech, in.Viseme.Intensity, 0.3)
		f.SetMorph("jawOpen", d.speech*0.6)
		f.SetMorph("mouthClose", (1-d.speech)*0.3)
		f.SetMorph(teethShow, d.speech*0.4)
		f.SetMorph("cheekPuff", math.Sin(d.clock*10)*d.speech*0.1)
		f.SetMorph("browInnerUp", d.speech*0.25)
		f.expression(Speaking, d.speech*0.5)
		d.expression = Speaking
	} else {
		d.speech = lerp(d.speech, 0, 0.1)
		if d.expression == Speaking && d.speech < 0.1 {
			d.expression = Neutral
		}
	}

	if idle {
		d.mouthIdle += sec
		base := 0.05
		if in.AutoAnimate {
			base = 0.12
		}
		f.SetMorph("mouthClose", max(0, math.Sin(d.mouthIdle*0.6)*base))
		f.SetMorph("jawOpen", max(0, math.Sin(d.mouthIdle*0.8)*base*0.6))
	}

	if amt, ok := d.blink.step(sec, d.rnd); ok {
		f.SetMorph("eyeBlinkLeft", 0.85*amt)
		f.SetMorph("eyeBlinkRight", 0.85*amt*(0.9+d.rnd.Float64()*0.2))
		f.SetMorph("browDownLeft", amt*0.12)
		f.SetMorph("browDownRight", amt*0.12)
	}

	inner, left, right := d.brows.step(sec, in.AutoAnimate)
	if idle {
		f.SetMorph("browInnerUp", inner)
		if left > 0 {
			f.SetMorph("browOuterUpLeft", left)
			f.SetMorph("browOuterUpRight", right)
		}
	}

	if e, ok := d.cycle.step(sec, idle, in.AutoAnimate, d.rnd); ok {
		d.expression = e
	}
	if idle {
		f.expression(d.expression, d.cycle.intensity(in.AutoAnimate))
	}

	body := d.expression
	if body == Surprised {
		body = Excited
	}
	d.pose(body, in.Speaking)
	if body == Excited {
		bounce := max(0, math.Sin(d.clock*6)) * excitedBounce
		d.shown.Position.Y = lerp(d.shown.Position.Y, d.position.Y+bounce, 0.18)
	}
	d.slerpBones(sec)

	d.stepGaze(sec, in, f)

	return d.frame(f.out)
}

// stepTransform smooths position and scale toward their targets and tilts
// the head toward the pointer unless a drag is in progress.
func (d *Driver) stepTransform(in Input) {
	d.shown.Position.X = lerp(d.shown.Position.X, d.position.X, 0.1)
	d.shown.Position.Y = lerp(d.shown.Position.Y, d.position.Y, 0.1)
	d.shown.Scale = lerp(d.shown.Scale, d.scale, 0.1)
	if d.input.dragging {
		return
	}
	intensity := 0.05
	if in.ReducedMotion {
		intensity = 0.02
	}
	d.shown.Rotation.Y = lerp(d.shown.Rotation.Y, d.pointer.X*intensity, 0.05)
	d.shown.Rotation.X = lerp(d.shown.Rotation.X, -d.pointer.Y*intensity*0.5, 0.05)
}

// stepGaze writes the eye-look targets and moves the gaze: a drift pattern
// when auto-animating idle, saccades while speaking, otherwise a decay
// toward center. Gaze is frozen during a drag.
func (d *Driver) stepGaze(sec float64, in Input, f *face) {
	if d.input.dragging {
		return
	}
	if in.AutoAnimate && !in.Speaking {
		t := d.clock * 1.5
		d.gaze.X = math.Sin(t*0.9) * 0.35
		d.gaze.Y = math.Sin(t*1.3+math.Pi/3) * 0.22
	}

	x := clamp(d.gaze.X, -gazeClampX, gazeClampX) * eyeLookStrength
	y := clamp(d.gaze.Y, -gazeClampY, gazeClampY) * eyeLookStrength
	if x >= 0 {
		f.SetMorph("eyeLookOutRight", x)
		f.SetMorph("eyeLookInLeft", x)
	} else {
		f.SetMorph("eyeLookOutLeft", -x)
		f.SetMorph("eyeLookInRight", -x)
	}
	if y >= 0 {
		f.SetMorph("eyeLookUpLeft", y)
		f.SetMorph("eyeLookUpRight", y)
	} else {
		f.SetMorph("eyeLookDownLeft", -y)
		f.SetMorph("eyeLookDownRight", -y)
	}

	if in.Speaking {
		if dx, dy, ok := d.saccade.step(sec, d.rnd); ok {
			d.gaze.X = clamp(d.gaze.X+dx, -gazeClampX, gazeClampX)
			d.gaze.Y = clamp(d.gaze.Y+dy, -gazeClampY, gazeClampY)
			if math.Abs(dy) > 0.1 {
				f.SetMorph("browInnerUp", math.Abs(dy)*0.5)
			}
		}
		return
	}
	d.gaze.X = lerp(d.gaze.X, 0, 0.1)
	d.gaze.Y = lerp(d.gaze.Y, 0, 0.1)
}

func (d *Driver) slerpBones(sec float64) {
	factor := clamp(sec*boneRate, 0, 1)
	for name, cur := range d.current {
		d.current[name] = approach(cur, d.target[name], factor)
	}
}

// approach moves cur toward target by factor along the shortest arc and
// lands on target exactly once the two are indistinguishable.
func approach(cur, target mgl64.Quat, factor float64) mgl64.Quat {
	if factor >= 1 || cur.ApproxEqualThreshold(target, 1e-12) {
		return target
	}
	if cur.Dot(target) < 0 {
		cur = cur.Scale(-1)
	}
	return mgl64.QuatSlerp(cur, target, factor).Normalize()
}

func (d *Driver) frame(morphs map[string]float64) Frame {
	bones := make(map[string][4]float64, len(d.current))
	for name, q := range d.current {
		bones[name] = [4]float64{q.V[0], q.V[1], q.V[2], q.W}
	}
	return Frame{
		Morphs:          morphs,
		Bones:           bones,
		Expression:      d.expression,
		Gaze:            Vec2{X: clamp(d.gaze.X, -gazeClampX, gazeClampX) * eyeLookStrength, Y: clamp(d.gaze.Y, -gazeClampY, gazeClampY) * eyeLookStrength},
		Transform:       d.shown,
		SpeechIntensity: d.speech,
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(v, lo, hi float64) float64 { return min(max(v, lo), hi) }
