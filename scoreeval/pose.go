package scoreeval

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Axis indices of a 6-vector pose (translation then roll-pitch-yaw).
const (
	AxisX = iota
	AxisY
	AxisZ
	AxisRoll
	AxisPitch
	AxisYaw
	NumAxes
)

// AxisNames labels the six pose axes in vector order.
var AxisNames = [NumAxes]string{"x", "y", "z", "roll", "pitch", "yaw"}

// Vector6 is a pose expressed as x, y, z, roll, pitch, yaw.
type Vector6 [NumAxes]float64

// IsAngular reports whether the axis is one of roll, pitch or yaw.
func IsAngular(axis int) bool {
	return axis >= AxisRoll && axis < NumAxes
}

// Pose is a rigid 3-D transform: p' = Rotation*p + Translation.
type Pose struct {
	Rotation    [3][3]float64
	Translation r3.Vec
}

// Identity returns the identity transform
func Identity() Pose {
	return Pose{Rotation: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// PoseFromVector builds a pose from translation and roll/pitch/yaw.
// The rotation is Rz(yaw) * Ry(pitch) * Rx(roll).
func PoseFromVector(v Vector6) Pose {
	return Pose{
		Rotation:    rotationRPY(v[AxisRoll], v[AxisPitch], v[AxisYaw]),
		Translation: r3.Vec{X: v[AxisX], Y: v[AxisY], Z: v[AxisZ]},
	}
}

func rotationRPY(roll, pitch, yaw float64) [3][3]float64 {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	return [3][3]float64{
		{cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr},
		{sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr},
		{-sp, cp * sr, cp * cr},
	}
}

// Vector decomposes the pose into x, y, z, roll, pitch, yaw.
// At gimbal lock (pitch of +-90 degrees) yaw is reported as zero.
func (p Pose) Vector() Vector6 {
	r := p.Rotation
	sp := -r[2][0]
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch := math.Asin(sp)

	var roll, yaw float64
	if math.Abs(r[2][0]) < 1-1e-12 {
		roll = math.Atan2(r[2][1], r[2][2])
		yaw = math.Atan2(r[1][0], r[0][0])
	} else {
		roll = math.Atan2(-r[1][2], r[1][1])
	}

	return Vector6{p.Translation.X, p.Translation.Y, p.Translation.Z, roll, pitch, yaw}
}

// Compose returns a*b. Applying the result equals applying b first, then a.
func Compose(a, b Pose) Pose {
	var out Pose
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Rotation[i][j] = a.Rotation[i][0]*b.Rotation[0][j] +
				a.Rotation[i][1]*b.Rotation[1][j] +
				a.Rotation[i][2]*b.Rotation[2][j]
		}
	}
	out.Translation = r3.Add(rotate(a.Rotation, b.Translation), a.Translation)
	return out
}

// Invert returns the inverse rigid transform.
func Invert(p Pose) Pose {
	var out Pose
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Rotation[i][j] = p.Rotation[j][i]
		}
	}
	out.Translation = r3.Scale(-1, rotate(out.Rotation, p.Translation))
	return out
}

// Relative returns from^-1 * to, the motion from one absolute pose to another.
func Relative(from, to Pose) Pose {
	return Compose(Invert(from), to)
}

// TransformPoint applies the pose to a point
func TransformPoint(v r3.Vec, p Pose) r3.Vec {
	return r3.Add(rotate(p.Rotation, v), p.Translation)
}

// TransformPoints applies the pose to multiple points
func TransformPoints(points []r3.Vec, p Pose) []r3.Vec {
	result := make([]r3.Vec, len(points))
	for i, v := range points {
		result[i] = TransformPoint(v, p)
	}
	return result
}

func rotate(r [3][3]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// PoseFromQuaternion builds a pose from a translation and a unit quaternion.
// The quaternion is normalized first; a zero quaternion yields no rotation.
func PoseFromQuaternion(t r3.Vec, qx, qy, qz, qw float64) Pose {
	n := math.Sqrt(qx*qx + qy*qy + qz*qz + qw*qw)
	if n < 1e-12 {
		p := Identity()
		p.Translation = t
		return p
	}
	qx, qy, qz, qw = qx/n, qy/n, qz/n, qw/n

	return Pose{
		Rotation: [3][3]float64{
			{1 - 2*(qy*qy+qz*qz), 2 * (qx*qy - qz*qw), 2 * (qx*qz + qy*qw)},
			{2 * (qx*qy + qz*qw), 1 - 2*(qx*qx+qz*qz), 2 * (qy*qz - qx*qw)},
			{2 * (qx*qz - qy*qw), 2 * (qy*qz + qx*qw), 1 - 2*(qx*qx+qy*qy)},
		},
		Translation: t,
	}
}

// Quaternion returns the rotation as a unit quaternion (qx, qy, qz, qw) with qw >= 0.
func (p Pose) Quaternion() (qx, qy, qz, qw float64) {
	r := p.Rotation
	trace := r[0][0] + r[1][1] + r[2][2]
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		qw = s / 4
		qx = (r[2][1] - r[1][2]) / s
		qy = (r[0][2] - r[2][0]) / s
		qz = (r[1][0] - r[0][1]) / s
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := 2 * math.Sqrt(1+r[0][0]-r[1][1]-r[2][2])
		qw = (r[2][1] - r[1][2]) / s
		qx = s / 4
		qy = (r[0][1] + r[1][0]) / s
		qz = (r[0][2] + r[2][0]) / s
	case r[1][1] > r[2][2]:
		s := 2 * math.Sqrt(1+r[1][1]-r[0][0]-r[2][2])
		qw = (r[0][2] - r[2][0]) / s
		qx = (r[0][1] + r[1][0]) / s
		qy = s / 4
		qz = (r[1][2] + r[2][1]) / s
	default:
		s := 2 * math.Sqrt(1+r[2][2]-r[0][0]-r[1][1])
		qw = (r[1][0] - r[0][1]) / s
		qx = (r[0][2] + r[2][0]) / s
		qy = (r[1][2] + r[2][1]) / s
		qz = s / 4
	}
	if qw < 0 {
		qx, qy, qz, qw = -qx, -qy, -qz, -qw
	}
	return
}

// RotationAngle returns the angle of the rotation part in radians.
func (p Pose) RotationAngle() float64 {
	c := (p.Rotation[0][0] + p.Rotation[1][1] + p.Rotation[2][2] - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// NormalizeAngle wraps an angle in radians to (-pi, pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
