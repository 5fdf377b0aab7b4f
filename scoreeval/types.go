package scoreeval

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidAxis is returned for an axis index outside [0, 6).
	ErrInvalidAxis = errors.New("axis index out of range")
	// ErrTooManyIterations is returned when the requested pair count exceeds the available poses.
	ErrTooManyIterations = errors.New("too many iterations")
	// ErrIndexOutOfRange is returned when a pose index falls outside the loaded pose lists.
	ErrIndexOutOfRange = errors.New("pose index out of range")
	// ErrEmptyScan is returned when a scan is missing or holds no points.
	ErrEmptyScan = errors.New("empty scan")
	// ErrCovarianceUnavailable marks an estimator that produced no usable covariance.
	ErrCovarianceUnavailable = errors.New("covariance unavailable")
)

// PointSet is an unordered set of 3-D points.
type PointSet []r3.Vec

// ScoreSample is the objective evaluated at one grid offset.
type ScoreSample struct {
	Offset      Offset
	Plain       float64
	Constrained float64
}

// Value returns the constrained or plain score.
func (s ScoreSample) Value(constrained bool) float64 {
	if constrained {
		return s.Constrained
	}
	return s.Plain
}

// Pair identifies the fixed and moving scan indices of one evaluation.
type Pair struct {
	Fixed  int
	Moving int
}

// PairResult holds everything computed for one scan pair.
type PairResult struct {
	Pair           Pair
	AxisA, AxisB   int
	Samples        []ScoreSample
	RelOdometry    Pose
	OdomCovariance Covariance
	Estimates      map[Estimator]PairEstimate
	AlignedPoints  PointSet
	// FixedPoints and MovingPoints are the scans in the vehicle frame.
	FixedPoints  PointSet
	MovingPoints PointSet
}

// InOdometryFrame expresses an estimate relative to the odometry prior: T_rel_odom^-1 * T_est.
func (r *PairResult) InOdometryFrame(e Estimator) Pose {
	return Relative(r.RelOdometry, r.Estimates[e].Pose)
}

// Best returns the sample with the highest score.
func (r *PairResult) Best(constrained bool) (ScoreSample, bool) {
	if len(r.Samples) == 0 {
		return ScoreSample{}, false
	}
	best := r.Samples[0]
	for _, s := range r.Samples[1:] {
		if s.Value(constrained) > best.Value(constrained) {
			best = s
		}
	}
	return best, true
}
