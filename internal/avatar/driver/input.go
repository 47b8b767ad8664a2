package driver

import "time"

const (
	dragUnitsPerPixel = 0.003
	doubleTapWindow   = 300 * time.Millisecond
	scaleStep         = 0.25
	scaleMax          = 1.5
)

// pointerState tracks drag and tap gestures.
type pointerState struct {
	dragging bool
	last     Vec2
	lastTap  time.Time
}

// Pointer updates the head-tracking target from a pointer position in
// normalized device coordinates ([-1, 1], y up). Ignored while dragging.
func (d *Driver) Pointer(x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.input.dragging {
		return
	}
	d.pointer = Vec2{X: x, Y: y}
	d.gaze.X = lerp(d.gaze.X, x*0.3, 0.1)
	d.gaze.Y = lerp(d.gaze.Y, y*0.2, 0.1)
}

// DragStart begins a drag at a screen position in pixels.
func (d *Driver) DragStart(x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.input.dragging = true
	d.input.last = Vec2{X: x, Y: y}
}

// DragMove moves the avatar by the pixel delta since the last drag event.
// Screen y grows downward, so the vertical delta is inverted. The position
// stays within x in [-2, 2] and y in [-2, 1].
func (d *Driver) DragMove(x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.input.dragging {
		return
	}
	dx := (x - d.input.last.X) * dragUnitsPerPixel
	dy := -(y - d.input.last.Y) * dragUnitsPerPixel
	d.position.X = clamp(d.position.X+dx, -2, 2)
	d.position.Y = clamp(d.position.Y+dy, -2, 1)
	d.input.last = Vec2{X: x, Y: y}
}

// DragEnd finishes the drag.
func (d *Driver) DragEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.input.dragging = false
}

// Tap registers a tap at the given time. Two taps within 300ms grow the
// scale by 0.25; at 1.5 or above it wraps back to 1.
func (d *Driver) Tap(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.input.lastTap.IsZero() && at.Sub(d.input.lastTap) < doubleTapWindow {
		if d.scale >= scaleMax {
			d.scale = 1
		} else {
			d.scale += scaleStep
		}
	}
	d.input.lastTap = at
}

// Placement returns the target position and scale the transform is
// smoothing toward.
func (d *Driver) Placement() (Vec2, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, d.scale
}
