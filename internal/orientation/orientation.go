package orientation

import (
	"math"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// Pose is the attitude attached to static measurements, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// FromGravity computes roll and pitch from a mean specific force.
// Yaw is left at 0 since gravity carries no heading.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(fy, fz)
//	pitch = atan2(-fx, sqrt(fy² + fz²))
func FromGravity(f imu.Triad) Pose {
	roll, pitch := tilt(f)
	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
	}
}

// FromGravityAndField adds a tilt-compensated magnetic heading to the pose
// derived from the specific force f. Yaw is in [0, 360).
func FromGravityAndField(f, b imu.Triad) Pose {
	roll, pitch := tilt(f)

	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)

	// de-rotate the field into the horizontal plane
	bx := b.X*cp + b.Y*sr*sp + b.Z*cr*sp
	by := b.Y*cr - b.Z*sr

	yaw := math.Atan2(-by, bx) * 180.0 / math.Pi
	if yaw < 0 {
		yaw += 360
	}
	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
		Yaw:   yaw,
	}
}

func tilt(f imu.Triad) (roll, pitch float64) {
	roll = math.Atan2(f.Y, f.Z)
	pitch = math.Atan2(-f.X, math.Sqrt(f.Y*f.Y+f.Z*f.Z))
	return roll, pitch
}
