package ndt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/will1991/perception-oru/scoreeval"
)

// DefaultOutlierRatio is the share of the score density given to outliers.
const DefaultOutlierRatio = 0.55

// D2D is the distribution-to-distribution similarity between two cell maps.
// Higher is better. Each moving cell contributes its best match among the
// fixed cells around its transformed mean.
type D2D struct {
	OutlierRatio float64
}

// gaussConstants returns d1 and d2 of the Gaussian score fit for a cell edge length.
func (d D2D) gaussConstants(resolution float64) (d1, d2 float64) {
	ratio := d.OutlierRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultOutlierRatio
	}
	c1 := 10 * (1 - ratio)
	c2 := ratio / math.Pow(resolution, 3)
	d3 := -math.Log(c2)
	d1 = -math.Log(c1+c2) - d3
	d2 = -2 * math.Log((-math.Log(c1*math.Exp(-0.5)+c2)-d3)/d1)
	return d1, d2
}

// Score evaluates the similarity with moving transformed by t into the fixed frame.
func (d D2D) Score(fixed, moving *CellMap, t scoreeval.Pose) float64 {
	d1, d2 := d.gaussConstants(fixed.Resolution)
	rot := mat3(t.Rotation)

	var total float64
	for _, mc := range moving.Cells() {
		mean := scoreeval.TransformPoint(mc.Mean, t)
		cov := mc.Cov.similarity(rot)

		best := 0.0
		fixed.neighbours(mean, func(fc *Cell) {
			inv, ok := cov.add(fc.Cov).inverse()
			if !ok {
				return
			}
			m := inv.quadForm(r3.Sub(mean, fc.Mean))
			if s := -d1 * math.Exp(-d2/2*m); s > best {
				best = s
			}
		})
		total += best
	}
	return total
}

// Precision is the inverse of a prior covariance, used by the soft constraint.
type Precision struct {
	chol mat.Cholesky
}

// NewPrecision factorizes the prior covariance.
func NewPrecision(cov scoreeval.Covariance) (*Precision, error) {
	if !cov.Available() {
		return nil, scoreeval.ErrCovarianceUnavailable
	}
	p := &Precision{}
	if !p.chol.Factorize(cov.Matrix()) {
		return nil, fmt.Errorf("prior covariance is not positive definite")
	}
	return p, nil
}

// Penalty returns 1/2 d^T Σ^-1 d for the 6-vector of delta.
func (p *Precision) Penalty(delta scoreeval.Pose) float64 {
	v := delta.Vector()
	d := mat.NewVecDense(scoreeval.NumAxes, v[:])
	var x mat.VecDense
	if err := p.chol.SolveVecTo(&x, d); err != nil {
		return math.Inf(1)
	}
	return 0.5 * mat.Dot(d, &x)
}

// Scorer evaluates the plain and soft-constrained D2D objective.
type Scorer struct {
	Objective D2D
}

// Score implements scoreeval.ObjectiveScorer.
func (s Scorer) Score(fixed, moving scoreeval.SpatialMap, prior scoreeval.Pose, priorCov scoreeval.Covariance, offset scoreeval.Pose, alpha float64) (float64, float64, error) {
	f, m, err := asCellMaps(fixed, moving)
	if err != nil {
		return 0, 0, err
	}
	prec, err := NewPrecision(priorCov)
	if err != nil {
		return 0, 0, fmt.Errorf("soft constraint: %w", err)
	}

	plain := s.Objective.Score(f, m, scoreeval.Compose(prior, offset))
	return plain, plain - alpha*prec.Penalty(offset), nil
}
