package ndt

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// mat3 is a dense 3x3 matrix used in the per-cell inner loops.
type mat3 [3][3]float64

func (a mat3) mul(b mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

func (a mat3) transpose() mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

func (a mat3) add(b mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][j] + b[i][j]
		}
	}
	return out
}

// similarity returns r * a * r^T.
func (a mat3) similarity(r mat3) mat3 {
	return r.mul(a).mul(r.transpose())
}

// inverse returns the inverse by cofactors; ok is false for singular input.
func (a mat3) inverse() (mat3, bool) {
	c00 := a[1][1]*a[2][2] - a[1][2]*a[2][1]
	c01 := a[1][2]*a[2][0] - a[1][0]*a[2][2]
	c02 := a[1][0]*a[2][1] - a[1][1]*a[2][0]
	det := a[0][0]*c00 + a[0][1]*c01 + a[0][2]*c02
	if math.Abs(det) < 1e-300 {
		return mat3{}, false
	}
	inv := 1 / det
	return mat3{
		{c00 * inv, (a[0][2]*a[2][1] - a[0][1]*a[2][2]) * inv, (a[0][1]*a[1][2] - a[0][2]*a[1][1]) * inv},
		{c01 * inv, (a[0][0]*a[2][2] - a[0][2]*a[2][0]) * inv, (a[0][2]*a[1][0] - a[0][0]*a[1][2]) * inv},
		{c02 * inv, (a[0][1]*a[2][0] - a[0][0]*a[2][1]) * inv, (a[0][0]*a[1][1] - a[0][1]*a[1][0]) * inv},
	}, true
}

// quadForm returns v^T a v.
func (a mat3) quadForm(v r3.Vec) float64 {
	x := [3]float64{v.X, v.Y, v.Z}
	var s float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s += x[i] * a[i][j] * x[j]
		}
	}
	return s
}
