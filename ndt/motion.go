package ndt

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/will1991/perception-oru/scoreeval"
)

// MotionModel maps a relative motion to a diagonal 6x6 covariance that grows
// with the squared travelled distance and the squared rotation angle.
type MotionModel struct {
	Params scoreeval.MotionParams
}

// NewMotionModel creates a motion model from its coefficients
func NewMotionModel(p scoreeval.MotionParams) MotionModel {
	return MotionModel{Params: p}
}

// CovarianceFor implements scoreeval.MotionModel.
func (m MotionModel) CovarianceFor(rel scoreeval.Pose) scoreeval.Covariance {
	p := m.Params
	dist := r3.Norm(rel.Translation)
	angle := rel.RotationAngle()
	dd, tt := dist*dist, angle*angle

	floor := p.MinVariance
	if floor <= 0 {
		floor = 1e-9
	}
	longitudinal := math.Max(p.Dd*dd+p.Dt*tt, floor)
	lateral := math.Max(p.Cd*dd+p.Ct*tt, floor)
	rotational := math.Max(p.Td*dd+p.Tt*tt, floor)

	return scoreeval.DiagonalCovariance(scoreeval.Vector6{
		longitudinal, lateral, lateral,
		rotational, rotational, rotational,
	})
}
