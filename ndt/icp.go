package ndt

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/will1991/perception-oru/scoreeval"
)

// ICPConfig holds configuration for the ICP algorithm.
// Distances are in the units of the input point sets (meters).
type ICPConfig struct {
	MaxIterations     int     // Maximum number of iterations
	ConvergenceThresh float64 // Stop when the mean error improves less than this
	MaxCorrespondDist float64 // Maximum distance for point correspondence
	SamplePoints      int     // Number of moving points used per iteration
	OutlierPercentile float64 // Reject correspondences above this percentile (0-1)
	CovariancePoints  int     // Correspondences used for the covariance estimate
	MaxCondition      float64 // Reject covariances with a larger condition number
	Seed              int64   // Seed for point sampling
}

// DefaultICPConfig returns sensible defaults for ICP.
func DefaultICPConfig() ICPConfig {
	return ICPConfig{
		MaxIterations:     50,
		ConvergenceThresh: 1e-6,
		MaxCorrespondDist: 1.0,
		SamplePoints:      2000,
		OutlierPercentile: 0.9,
		CovariancePoints:  500,
		MaxCondition:      scoreeval.DefaultMaxCondition,
		Seed:              1,
	}
}

// ICPResult contains the result of ICP alignment
type ICPResult struct {
	Transform  scoreeval.Pose // Maps moving points into the fixed frame
	Error      float64        // Final mean correspondence distance
	Inliers    int            // Correspondences used in the last step
	Iterations int            // Number of iterations performed
	Converged  bool           // Whether the algorithm converged
}

// ICPAligner registers two point sets with point-to-point ICP from identity.
type ICPAligner struct {
	Config ICPConfig
}

// NewICPAligner creates an aligner with default settings
func NewICPAligner() ICPAligner {
	return ICPAligner{Config: DefaultICPConfig()}
}

// Align implements scoreeval.PointSetAligner.
func (a ICPAligner) Align(fixed, moving scoreeval.PointSet) (scoreeval.Pose, scoreeval.PointSet, error) {
	if len(fixed) < 3 || len(moving) < 3 {
		return scoreeval.Pose{}, nil, fmt.Errorf("icp needs at least 3 points per set, got %d and %d", len(fixed), len(moving))
	}
	result := RunICP(fixed, moving, scoreeval.Identity(), a.Config)
	return result.Transform, scoreeval.TransformPoints(moving, result.Transform), nil
}

// Covariance implements scoreeval.PointSetAligner. It linearizes the
// point-to-point residuals at pose: Σ = σ² (JᵀJ)⁻¹.
func (a ICPAligner) Covariance(fixed, moving scoreeval.PointSet, pose scoreeval.Pose) scoreeval.Covariance {
	tree := newPointTree(fixed)
	src, tgt, _ := tree.correspondences(scoreeval.TransformPoints(moving, pose), moving, a.Config.MaxCorrespondDist)
	if n := a.Config.CovariancePoints; n > 0 && len(src) > n {
		stride := float64(len(src)) / float64(n)
		var s, t []r3.Vec
		for i := 0; i < n; i++ {
			k := int(float64(i) * stride)
			s = append(s, src[k])
			t = append(t, tgt[k])
		}
		src, tgt = s, t
	}
	if 3*len(src) <= scoreeval.NumAxes {
		return scoreeval.Covariance{}
	}

	residuals := func(dst, x []float64) {
		var v scoreeval.Vector6
		copy(v[:], x)
		p := scoreeval.PoseFromVector(v)
		for i := range src {
			d := r3.Sub(scoreeval.TransformPoint(src[i], p), tgt[i])
			dst[3*i], dst[3*i+1], dst[3*i+2] = d.X, d.Y, d.Z
		}
	}

	x := pose.Vector()
	r := make([]float64, 3*len(src))
	residuals(r, x[:])
	var sse float64
	for _, v := range r {
		sse += v * v
	}
	sigma2 := sse / float64(len(r)-scoreeval.NumAxes)

	jac := mat.NewDense(len(r), scoreeval.NumAxes, nil)
	fd.Jacobian(jac, residuals, x[:], &fd.JacobianSettings{Formula: fd.Central})

	info := mat.NewSymDense(scoreeval.NumAxes, nil)
	info.SymOuterK(1, jac.T())
	info.ScaleSym(1/math.Max(sigma2, 1e-12), info)
	return invertInformation(info, a.Config.MaxCondition)
}

// pointTree answers nearest-neighbour queries on a fixed point set.
type pointTree struct {
	tree *kdtree.Tree
}

func newPointTree(points scoreeval.PointSet) *pointTree {
	pts := make(kdtree.Points, len(points))
	for i, p := range points {
		pts[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	return &pointTree{tree: kdtree.New(pts, false)}
}

func (t *pointTree) nearest(p r3.Vec) (r3.Vec, float64) {
	got, d2 := t.tree.Nearest(kdtree.Point{p.X, p.Y, p.Z})
	q := got.(kdtree.Point)
	return r3.Vec{X: q[0], Y: q[1], Z: q[2]}, math.Sqrt(d2)
}

// correspondences pairs each transformed point with its nearest fixed point.
// It returns the untransformed source points, their targets and distances.
func (t *pointTree) correspondences(transformed, original []r3.Vec, maxDist float64) (srcCorr, tgtCorr []r3.Vec, distances []float64) {
	for i, p := range transformed {
		q, d := t.nearest(p)
		if d <= maxDist {
			srcCorr = append(srcCorr, original[i])
			tgtCorr = append(tgtCorr, q)
			distances = append(distances, d)
		}
	}
	return
}

// RunICP iterates nearest-neighbour matching and closed-form rigid fitting
// starting from initial.
func RunICP(fixed, moving scoreeval.PointSet, initial scoreeval.Pose, config ICPConfig) ICPResult {
	result := ICPResult{Transform: initial, Error: math.MaxFloat64}

	tree := newPointTree(fixed)
	source := samplePoints(moving, config.SamplePoints, config.Seed)

	current := initial
	prevError := math.MaxFloat64
	for iter := 0; iter < config.MaxIterations; iter++ {
		result.Iterations = iter + 1

		transformed := scoreeval.TransformPoints(source, current)
		srcCorr, tgtCorr, distances := tree.correspondences(transformed, source, config.MaxCorrespondDist)
		srcCorr, tgtCorr, distances = rejectOutliers(srcCorr, tgtCorr, distances, config.OutlierPercentile)
		if len(srcCorr) < 3 {
			break
		}

		meanError := 0.0
		for _, d := range distances {
			meanError += d
		}
		meanError /= float64(len(distances))

		// Fit the full transform from the original source points.
		next, ok := rigidTransform(srcCorr, tgtCorr)
		if !ok {
			break
		}

		current = next
		result.Transform = next
		result.Error = meanError
		result.Inliers = len(srcCorr)

		improvement := prevError - meanError
		if improvement >= 0 && improvement < config.ConvergenceThresh {
			result.Converged = true
			break
		}
		prevError = meanError
	}
	return result
}

// rigidTransform computes the least-squares rotation and translation taking
// src onto tgt (Kabsch).
func rigidTransform(src, tgt []r3.Vec) (scoreeval.Pose, bool) {
	n := float64(len(src))
	var cs, ct r3.Vec
	for i := range src {
		cs = r3.Add(cs, src[i])
		ct = r3.Add(ct, tgt[i])
	}
	cs = r3.Scale(1/n, cs)
	ct = r3.Scale(1/n, ct)

	h := mat.NewDense(3, 3, nil)
	for i := range src {
		s := r3.Sub(src[i], cs)
		t := r3.Sub(tgt[i], ct)
		sv := [3]float64{s.X, s.Y, s.Z}
		tv := [3]float64{t.X, t.Y, t.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+sv[r]*tv[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return scoreeval.Pose{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V diag(1, 1, sign) U^T, with sign fixing reflections.
	var vut mat.Dense
	vut.Mul(&v, u.T())
	sign := 1.0
	if mat.Det(&vut) < 0 {
		sign = -1
	}
	d := mat.NewDiagDense(3, []float64{1, 1, sign})
	var vd, rot mat.Dense
	vd.Mul(&v, d)
	rot.Mul(&vd, u.T())

	pose := scoreeval.Identity()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			pose.Rotation[r][c] = rot.At(r, c)
		}
	}
	pose.Translation = r3.Sub(ct, scoreeval.TransformPoint(cs, pose))
	return pose, true
}

// samplePoints returns at most max points chosen without replacement.
func samplePoints(points scoreeval.PointSet, max int, seed int64) []r3.Vec {
	if max <= 0 || len(points) <= max {
		return points
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(points))[:max]
	sort.Ints(idx)
	out := make([]r3.Vec, max)
	for i, k := range idx {
		out[i] = points[k]
	}
	return out
}

// rejectOutliers removes correspondences with distances above the given percentile
func rejectOutliers(srcCorr, tgtCorr []r3.Vec, distances []float64, percentile float64) ([]r3.Vec, []r3.Vec, []float64) {
	if len(distances) == 0 || percentile >= 1.0 {
		return srcCorr, tgtCorr, distances
	}

	sortedDists := make([]float64, len(distances))
	copy(sortedDists, distances)
	sort.Float64s(sortedDists)

	idx := int(float64(len(sortedDists)) * percentile)
	if idx >= len(sortedDists) {
		idx = len(sortedDists) - 1
	}
	threshold := sortedDists[idx]

	var filteredSrc, filteredTgt []r3.Vec
	var filteredDist []float64
	for i, d := range distances {
		if d <= threshold {
			filteredSrc = append(filteredSrc, srcCorr[i])
			filteredTgt = append(filteredTgt, tgtCorr[i])
			filteredDist = append(filteredDist, d)
		}
	}
	return filteredSrc, filteredTgt, filteredDist
}
