package scoreeval

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultMaxCondition is the largest 2-norm condition number a covariance
// may have before it is treated as unusable.
const DefaultMaxCondition = 1e12

// Covariance is an optional 6x6 pose covariance. The zero value is unavailable.
type Covariance struct {
	m *mat.SymDense
}

// NewCovariance wraps a symmetric matrix. The matrix is copied.
func NewCovariance(m mat.Symmetric) Covariance {
	if m == nil {
		return Covariance{}
	}
	c := mat.NewSymDense(m.SymmetricDim(), nil)
	c.CopySym(m)
	return Covariance{m: c}
}

// DiagonalCovariance builds a covariance with the given variances.
func DiagonalCovariance(variances Vector6) Covariance {
	m := mat.NewSymDense(NumAxes, nil)
	for i, v := range variances {
		m.SetSym(i, i, v)
	}
	return Covariance{m: m}
}

// Available reports whether a matrix is present.
func (c Covariance) Available() bool {
	return c.m != nil
}

// Matrix returns the matrix or nil when unavailable.
func (c Covariance) Matrix() *mat.SymDense {
	return c.m
}

// Fuser combines two pose estimates by inverse-covariance weighting.
type Fuser struct {
	MaxCondition float64
}

// DefaultFuser uses DefaultMaxCondition.
var DefaultFuser = Fuser{MaxCondition: DefaultMaxCondition}

// Usable reports whether c is a finite, well conditioned 6x6 matrix.
func (f Fuser) Usable(c Covariance) bool {
	if !c.Available() {
		return false
	}
	m := c.Matrix()
	if m.SymmetricDim() != NumAxes {
		return false
	}
	for i := 0; i < NumAxes; i++ {
		for j := i; j < NumAxes; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	maxCond := f.MaxCondition
	if maxCond <= 0 {
		maxCond = DefaultMaxCondition
	}
	return mat.Cond(m, 2) <= maxCond
}

// Fuse returns the information-weighted combination of poseA and poseB.
// When either covariance is unusable poseB is returned unchanged.
func (f Fuser) Fuse(poseA Pose, covA Covariance, poseB Pose, covB Covariance) Pose {
	fused, _ := f.FuseWithCovariance(poseA, covA, poseB, covB)
	return fused
}

// FuseWithCovariance is Fuse that also returns (Σa⁻¹+Σb⁻¹)⁻¹.
// On fallback the covariance of poseB is passed through.
func (f Fuser) FuseWithCovariance(poseA Pose, covA Covariance, poseB Pose, covB Covariance) (Pose, Covariance) {
	if !f.Usable(covA) || !f.Usable(covB) {
		return poseB, covB
	}

	var infoA, infoB mat.Dense
	if err := infoA.Inverse(covA.Matrix()); err != nil {
		log.Printf("Warning: fusion fallback, inverting first covariance: %v", err)
		return poseB, covB
	}
	if err := infoB.Inverse(covB.Matrix()); err != nil {
		log.Printf("Warning: fusion fallback, inverting second covariance: %v", err)
		return poseB, covB
	}

	va := poseA.Vector()
	vb := unwrapNear(poseB.Vector(), va)
	xa := mat.NewVecDense(NumAxes, va[:])
	xb := mat.NewVecDense(NumAxes, vb[:])

	var info, weights mat.Dense
	info.Add(&infoA, &infoB)
	if err := weights.Inverse(&info); err != nil {
		log.Printf("Warning: fusion fallback, inverting information sum: %v", err)
		return poseB, covB
	}

	var ra, rb, rhs, x mat.VecDense
	ra.MulVec(&infoA, xa)
	rb.MulVec(&infoB, xb)
	rhs.AddVec(&ra, &rb)
	x.MulVec(&weights, &rhs)

	var fused Vector6
	for i := range fused {
		fused[i] = x.AtVec(i)
	}

	sym := mat.NewSymDense(NumAxes, nil)
	for i := 0; i < NumAxes; i++ {
		for j := i; j < NumAxes; j++ {
			sym.SetSym(i, j, (weights.At(i, j)+weights.At(j, i))/2)
		}
	}
	return PoseFromVector(fused), Covariance{m: sym}
}

// unwrapNear shifts the angular components of v by multiples of 2*pi so each
// lies within pi of the matching component of ref.
func unwrapNear(v, ref Vector6) Vector6 {
	for axis := AxisRoll; axis < NumAxes; axis++ {
		v[axis] = ref[axis] + NormalizeAngle(v[axis]-ref[axis])
	}
	return v
}
