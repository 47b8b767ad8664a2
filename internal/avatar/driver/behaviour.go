package driver

import (
	"math"
	"math/rand/v2"
)

// progressEpsilon absorbs float error when dt divides the blink evenly, so
// 3 frames of 0.05 s complete a 0.15 s blink.
const progressEpsilon = 1e-9

// blink closes and reopens both eyelids on a randomized schedule. The
// schedule timer keeps running during a blink, so the gap is measured from
// the start of the previous blink.
type blink struct {
	timer    float64
	active   bool
	elapsed  float64
	duration float64
}

func newBlink(r *rand.Rand) blink {
	return blink{timer: r.Float64()*2 + 2}
}

// step advances the blink and returns the eyelid amplitude, sin(p*pi) of the
// blink progress p, and whether a blink is running this frame.
func (b *blink) step(dt float64, r *rand.Rand) (float64, bool) {
	b.timer -= dt
	if !b.active && b.timer <= 0 {
		b.active = true
		b.elapsed = 0
		b.duration = 0.12 + r.Float64()*0.08
		b.timer = r.Float64()*3 + 1.5
	}
	if !b.active {
		return 0, false
	}
	b.elapsed += dt
	p := b.progress()
	if p >= 1 {
		b.active = false
	}
	return math.Sin(p * math.Pi), true
}

func (b *blink) progress() float64 {
	if b.duration <= 0 {
		return 1
	}
	p := b.elapsed / b.duration
	if p >= 1-progressEpsilon {
		return 1
	}
	return max(p, 0)
}

// brows produces slow eyebrow micro-movement and an occasional raise.
type brows struct {
	t float64
}

// step returns the inner-brow lift and the outer raise for both sides.
// The raise is zero outside the short window where the slow sine peaks.
func (b *brows) step(dt float64, auto bool) (inner, left, right float64) {
	b.t += dt
	base := 0.08
	if auto {
		base = 0.12
	}
	inner = max(0, math.Sin(b.t*0.3)*base)
	if math.Sin(b.t*0.1) > 0.95 {
		left, right = base*1.6, base*1.2
	}
	return inner, left, right
}

// cycle switches the idle expression at random on a fixed period.
type cycle struct {
	t float64
}

func cyclePeriod(auto bool) float64 {
	if auto {
		return 4.5
	}
	return 8
}

// step advances the timer and reports a new expression when the period has
// elapsed and cycling is allowed.
func (c *cycle) step(dt float64, allowed, auto bool, r *rand.Rand) (Expression, bool) {
	c.t += dt
	if !allowed || c.t <= cyclePeriod(auto) {
		return "", false
	}
	c.t = 0
	return cycleExpressions[r.IntN(len(cycleExpressions))], true
}

// intensity is the wobble applied to the idle expression.
func (c *cycle) intensity(auto bool) float64 {
	wobble := 0.3
	if auto {
		wobble = 0.45
	}
	return math.Sin(c.t*0.5)*wobble + 0.7
}

// saccade jumps the gaze target at random intervals while speaking.
type saccade struct {
	timer float64
}

// step returns the gaze jump, or false when none is due.
func (s *saccade) step(dt float64, r *rand.Rand) (dx, dy float64, ok bool) {
	s.timer -= dt
	if s.timer > 0 {
		return 0, 0, false
	}
	dx = (r.Float64() - 0.5) * 0.4
	dy = (r.Float64() - 0.5) * 0.2
	s.timer = r.Float64()*1.2 + 0.3
	return dx, dy, true
}
