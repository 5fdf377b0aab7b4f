package ndt

import (
	"log"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/will1991/perception-oru/scoreeval"
)

// AlignerConfig controls the local optimisation and covariance estimation.
type AlignerConfig struct {
	MaxIterations int     // Nelder-Mead major iterations
	Tolerance     float64 // Stop when the objective improves less than this
	HessianStep   float64 // Finite-difference step for the covariance
	MaxCondition  float64 // Reject covariances with a larger condition number
}

// DefaultAlignerConfig returns sensible defaults for D2D alignment.
func DefaultAlignerConfig() AlignerConfig {
	return AlignerConfig{
		MaxIterations: 400,
		Tolerance:     1e-7,
		HessianStep:   1e-3,
		MaxCondition:  scoreeval.DefaultMaxCondition,
	}
}

// minimize runs Nelder-Mead from x0 and returns the best point found.
func (c AlignerConfig) minimize(f func([]float64) float64, x0 scoreeval.Vector6) scoreeval.Vector6 {
	settings := &optimize.Settings{
		MajorIterations: c.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   c.Tolerance,
			Iterations: 25,
		},
	}
	result, err := optimize.Minimize(optimize.Problem{Func: f}, x0[:], settings, &optimize.NelderMead{})
	if result == nil {
		log.Printf("Warning: optimisation failed, keeping initial pose: %v", err)
		return x0
	}
	if err != nil {
		log.Printf("Warning: optimisation stopped early (%v): %v", result.Status, err)
	}
	if result.F > f(x0[:]) {
		return x0
	}
	var out scoreeval.Vector6
	copy(out[:], result.X)
	return out
}

// covariance inverts the Hessian of f at x. The result is unavailable when
// the Hessian is not positive definite or is badly conditioned.
func (c AlignerConfig) covariance(f func([]float64) float64, x scoreeval.Vector6) scoreeval.Covariance {
	h := mat.NewSymDense(scoreeval.NumAxes, nil)
	fd.Hessian(h, f, x[:], &fd.Settings{Step: c.HessianStep})
	return invertInformation(h, c.MaxCondition)
}

func invertInformation(info *mat.SymDense, maxCond float64) scoreeval.Covariance {
	var chol mat.Cholesky
	if !chol.Factorize(info) {
		return scoreeval.Covariance{}
	}
	if maxCond > 0 && chol.Cond() > maxCond {
		return scoreeval.Covariance{}
	}
	cov := mat.NewSymDense(info.SymmetricDim(), nil)
	if err := chol.InverseTo(cov); err != nil {
		return scoreeval.Covariance{}
	}
	return scoreeval.NewCovariance(cov)
}

// D2DAligner maximizes the D2D similarity starting from an initial pose.
type D2DAligner struct {
	Objective D2D
	Config    AlignerConfig
}

// NewD2DAligner creates an aligner with default settings
func NewD2DAligner() D2DAligner {
	return D2DAligner{Objective: D2D{OutlierRatio: DefaultOutlierRatio}, Config: DefaultAlignerConfig()}
}

func (a D2DAligner) negativeScore(f, m *CellMap) func([]float64) float64 {
	return func(x []float64) float64 {
		var v scoreeval.Vector6
		copy(v[:], x)
		return -a.Objective.Score(f, m, scoreeval.PoseFromVector(v))
	}
}

// Align implements scoreeval.Aligner.
func (a D2DAligner) Align(fixed, moving scoreeval.SpatialMap, initial scoreeval.Pose) (scoreeval.Pose, error) {
	f, m, err := asCellMaps(fixed, moving)
	if err != nil {
		return scoreeval.Pose{}, err
	}
	best := a.Config.minimize(a.negativeScore(f, m), initial.Vector())
	return scoreeval.PoseFromVector(best), nil
}

// Covariance implements scoreeval.Aligner.
func (a D2DAligner) Covariance(fixed, moving scoreeval.SpatialMap, pose scoreeval.Pose) scoreeval.Covariance {
	f, m, err := asCellMaps(fixed, moving)
	if err != nil {
		return scoreeval.Covariance{}
	}
	return a.Config.covariance(a.negativeScore(f, m), pose.Vector())
}

// ConstrainedD2DAligner maximizes the D2D similarity minus alpha times the
// soft-constraint penalty around the initial pose.
type ConstrainedD2DAligner struct {
	D2DAligner
	Alpha float64
}

// NewConstrainedD2DAligner creates a constrained aligner with default settings
func NewConstrainedD2DAligner(alpha float64) ConstrainedD2DAligner {
	return ConstrainedD2DAligner{D2DAligner: NewD2DAligner(), Alpha: alpha}
}

// Align implements scoreeval.ConstrainedAligner.
func (a ConstrainedD2DAligner) Align(fixed, moving scoreeval.SpatialMap, initial scoreeval.Pose, priorCov scoreeval.Covariance) (scoreeval.Pose, error) {
	f, m, err := asCellMaps(fixed, moving)
	if err != nil {
		return scoreeval.Pose{}, err
	}
	prec, err := NewPrecision(priorCov)
	if err != nil {
		return scoreeval.Pose{}, err
	}

	plain := a.negativeScore(f, m)
	objective := func(x []float64) float64 {
		var v scoreeval.Vector6
		copy(v[:], x)
		delta := scoreeval.Relative(initial, scoreeval.PoseFromVector(v))
		return plain(x) + a.Alpha*prec.Penalty(delta)
	}
	best := a.Config.minimize(objective, initial.Vector())
	return scoreeval.PoseFromVector(best), nil
}
