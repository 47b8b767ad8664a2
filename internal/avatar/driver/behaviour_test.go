package driver

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func seeded() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func TestBlink_CompletesInExactFrames(t *testing.T) {
	t.Parallel()

	b := blink{active: true, duration: 0.15, timer: 10}
	r := seeded()
	for frame := 1; frame <= 3; frame++ {
		if _, ok := b.step(0.05, r); !ok {
			t.Fatalf("frame %d: blink not running", frame)
		}
		if frame < 3 && !b.active {
			t.Fatalf("blink finished early at frame %d (progress %f)", frame, b.progress())
		}
	}
	if b.active {
		t.Fatalf("blink still active after 3 frames, progress %f", b.progress())
	}
	if p := b.progress(); p != 1 {
		t.Fatalf("progress = %f, want 1", p)
	}
}

func TestBlink_PeaksAtHalfway(t *testing.T) {
	t.Parallel()

	b := blink{active: true, duration: 0.1, timer: 10}
	amt, _ := b.step(0.05, seeded())
	if math.Abs(amt-1) > 1e-9 {
		t.Fatalf("amplitude at p=0.5 = %f, want 1", amt)
	}
}

func TestBlink_Schedule(t *testing.T) {
	t.Parallel()

	r := seeded()
	b := newBlink(r)
	if b.timer < 2 || b.timer > 4 {
		t.Fatalf("initial timer = %f, want within [2, 4]", b.timer)
	}
	b.timer = 0.01
	if _, ok := b.step(0.02, r); !ok {
		t.Fatal("blink did not start when the timer expired")
	}
	if b.duration < 0.12 || b.duration > 0.2 {
		t.Errorf("duration = %f, want within [0.12, 0.2]", b.duration)
	}
	if b.timer < 1.5 || b.timer > 4.5 {
		t.Errorf("next blink in %f, want within [1.5, 4.5]", b.timer)
	}
}

func TestCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		auto    bool
		allowed bool
		steps   int
		want    bool
	}{
		{name: "idle fires after 8s", steps: 81, allowed: true, want: true},
		{name: "idle waits before 8s", steps: 79, allowed: true, want: false},
		{name: "auto fires after 4.5s", auto: true, steps: 46, allowed: true, want: true},
		{name: "not allowed never fires", steps: 200, allowed: false, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var c cycle
			r := seeded()
			fired := false
			for range tc.steps {
				if e, ok := c.step(0.1, tc.allowed, tc.auto, r); ok {
					fired = true
					if e != Neutral && e != Happy && e != Thinking && e != Surprised {
						t.Fatalf("cycle picked %q", e)
					}
				}
			}
			if fired != tc.want {
				t.Fatalf("fired = %v, want %v", fired, tc.want)
			}
		})
	}
}

func TestSaccade(t *testing.T) {
	t.Parallel()

	var s saccade
	r := seeded()
	dx, dy, ok := s.step(0.016, r)
	if !ok {
		t.Fatal("first saccade should fire immediately")
	}
	if math.Abs(dx) > 0.2 || math.Abs(dy) > 0.1 {
		t.Errorf("jump (%f, %f) out of range", dx, dy)
	}
	if s.timer < 0.3 || s.timer > 1.5 {
		t.Errorf("next saccade in %f, want within [0.3, 1.5]", s.timer)
	}
	if _, _, ok := s.step(0.016, r); ok {
		t.Error("saccade fired again before its timer elapsed")
	}
}

func TestApproach_MonotonicAndConverges(t *testing.T) {
	t.Parallel()

	cur := mgl64.QuatIdent()
	target := euler(rad(-80), 0, rad(10))
	dist := func(q mgl64.Quat) float64 { return 1 - math.Abs(q.Dot(target)) }

	prev := dist(cur)
	for frame := 0; frame < 400; frame++ {
		cur = approach(cur, target, clamp((1.0/60)*boneRate, 0, 1))
		d := dist(cur)
		if d > prev+1e-15 {
			t.Fatalf("frame %d: distance grew from %g to %g", frame, prev, d)
		}
		prev = d
	}
	if !cur.ApproxEqualThreshold(target, 1e-6) {
		t.Fatalf("after 400 frames cur = %v, want %v", cur, target)
	}
	if got := approach(cur, target, 1); got != target {
		t.Fatalf("factor 1 should land on target, got %v", got)
	}
}
