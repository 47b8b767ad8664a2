package driver

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/MrWong99/facetalk/internal/avatar/resolve"
)

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// euler converts XYZ Euler angles to a quaternion, applying X first in the
// bone's local frame.
func euler(x, y, z float64) mgl64.Quat {
	return mgl64.QuatRotate(x, mgl64.Vec3{1, 0, 0}).
		Mul(mgl64.QuatRotate(y, mgl64.Vec3{0, 1, 0})).
		Mul(mgl64.QuatRotate(z, mgl64.Vec3{0, 0, 1}))
}

// setBone targets the rest rotation of canonical times the delta rotation.
// Bones the asset lacks are skipped.
func (d *Driver) setBone(canonical string, x, y, z float64) {
	name, ok := d.bones[canonical]
	if !ok {
		return
	}
	rest, _ := d.rig.Rest(name)
	d.target[name] = rest.Mul(euler(x, y, z))
}

// pose resets every body bone target to rest, adds breathing, then applies
// the pose for expr. The pose clock is the driver's accumulated time.
func (d *Driver) pose(expr Expression, speaking bool) {
	for _, name := range d.bones {
		d.target[name], _ = d.rig.Rest(name)
	}
	t := d.clock

	breathe := math.Sin(t*1.2) * rad(2)
	d.setBone(resolve.Spine, breathe, 0, 0)
	d.setBone(resolve.Chest, -breathe*0.6, 0, 0)

	switch expr {
	case Thinking:
		// Right hand to chin, head tilted.
		d.setBone(resolve.RightUpperArm, rad(-25), 0, rad(20))
		d.setBone(resolve.RightLowerArm, rad(-65), 0, 0)
		d.setBone(resolve.RightHand, rad(10), 0, 0)
		d.setBone(resolve.Head, 0, 0, rad(8))
		d.setBone(resolve.LeftUpperArm, rad(-8), 0, rad(-10))
		d.setBone(resolve.LeftLowerArm, rad(-10), 0, 0)
	case Happy:
		// Arms folded across the chest.
		d.setBone(resolve.LeftUpperArm, rad(-25), 0, rad(-35))
		d.setBone(resolve.RightUpperArm, rad(-25), 0, rad(35))
		d.setBone(resolve.LeftLowerArm, rad(-45), 0, rad(-5))
		d.setBone(resolve.RightLowerArm, rad(-45), 0, rad(5))
		d.setBone(resolve.LeftHand, rad(10), 0, 0)
		d.setBone(resolve.RightHand, rad(10), 0, 0)
	case Excited:
		// Arms raised, knees bouncing.
		d.setBone(resolve.LeftUpperArm, rad(-80), 0, rad(-10))
		d.setBone(resolve.RightUpperArm, rad(-80), 0, rad(10))
		d.setBone(resolve.LeftLowerArm, rad(-10), 0, 0)
		d.setBone(resolve.RightLowerArm, rad(-10), 0, 0)
		crouch := rad(4)
		if math.Sin(t*6) > 0 {
			crouch = rad(12)
		}
		d.setBone(resolve.LeftUpperLeg, crouch, 0, 0)
		d.setBone(resolve.RightUpperLeg, crouch, 0, 0)
		d.setBone(resolve.LeftLowerLeg, -crouch*0.8, 0, 0)
		d.setBone(resolve.RightLowerLeg, -crouch*0.8, 0, 0)
		d.setBone(resolve.Head, rad(-6), 0, 0)
	default:
		if speaking {
			wave := math.Sin(t*5) * rad(8)
			d.setBone(resolve.RightUpperArm, rad(-15), wave*0.2, rad(10))
			d.setBone(resolve.RightLowerArm, rad(-30)+wave, 0, 0)
		}
	}
}
