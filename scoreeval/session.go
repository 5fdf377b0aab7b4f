package scoreeval

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
)

// Session drives the pairwise evaluation over a loaded pose sequence and
// accumulates one trajectory per estimator.
type Session struct {
	cfg          Config
	collab       Collaborators
	groundTruth  []Pose
	odometry     []Pose
	sensorPose   Pose
	fuser        Fuser
	trajectories *TrajectoryAccumulator
}

// NewSession validates the configuration and collaborators.
func NewSession(cfg Config, groundTruth, odometry []Pose, collab Collaborators) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:          cfg,
		collab:       collab,
		groundTruth:  groundTruth,
		odometry:     odometry,
		sensorPose:   cfg.SensorPose.Pose(),
		fuser:        Fuser{MaxCondition: cfg.MaxCondition},
		trajectories: NewTrajectoryAccumulator(),
	}, nil
}

// Trajectories returns the per-estimator accumulator
func (s *Session) Trajectories() *TrajectoryAccumulator {
	return s.trajectories
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.cfg
}

// PoseCount is the number of usable pose indices.
func (s *Session) PoseCount() int {
	return min(len(s.groundTruth), len(s.odometry))
}

// PlanPairs lists the scan pairs the run will process.
func (s *Session) PlanPairs() ([]Pair, error) {
	n := s.PoseCount()
	iters := s.cfg.Iters
	if s.cfg.IterAllPoses {
		iters = n - max(s.cfg.Idx1, s.cfg.Idx2)
	}
	if iters > n {
		return nil, fmt.Errorf("%w: %d requested, %d poses loaded", ErrTooManyIterations, iters, n)
	}
	if iters < 1 {
		return nil, fmt.Errorf("%w: no pair fits idx1=%d idx2=%d with %d poses", ErrIndexOutOfRange, s.cfg.Idx1, s.cfg.Idx2, n)
	}

	var pairs []Pair
	for k := 0; k < iters; k += s.cfg.IterStep {
		p := Pair{Fixed: s.cfg.Idx1 + k, Moving: s.cfg.Idx2 + k}
		if p.Fixed < 0 || p.Fixed >= n || p.Moving < 0 || p.Moving >= n {
			return nil, fmt.Errorf("%w: pair %d_%d with %d poses", ErrIndexOutOfRange, p.Fixed, p.Moving, n)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// pairInputs holds the prepared scans and maps of one pair.
type pairInputs struct {
	pair           Pair
	fixedPoints    PointSet
	movingPoints   PointSet
	fixedMap       SpatialMap
	movingMap      SpatialMap
	relOdometry    Pose
	odomCovariance Covariance
}

func (s *Session) prepare(p Pair) (*pairInputs, error) {
	n := s.PoseCount()
	if p.Fixed < 0 || p.Fixed >= n || p.Moving < 0 || p.Moving >= n {
		return nil, fmt.Errorf("%w: pair %d_%d with %d poses", ErrIndexOutOfRange, p.Fixed, p.Moving, n)
	}

	fixed, err := s.loadScan(p.Fixed)
	if err != nil {
		return nil, err
	}
	moving, err := s.loadScan(p.Moving)
	if err != nil {
		return nil, err
	}

	fixedMap, err := s.collab.Maps.Build(fixed, s.cfg.Resolution)
	if err != nil {
		return nil, fmt.Errorf("building map %d: %w", p.Fixed, err)
	}
	movingMap, err := s.collab.Maps.Build(moving, s.cfg.Resolution)
	if err != nil {
		return nil, fmt.Errorf("building map %d: %w", p.Moving, err)
	}

	rel := Relative(s.odometry[p.Fixed], s.odometry[p.Moving])
	return &pairInputs{
		pair:           p,
		fixedPoints:    fixed,
		movingPoints:   moving,
		fixedMap:       fixedMap,
		movingMap:      movingMap,
		relOdometry:    rel,
		odomCovariance: s.collab.Motion.CovarianceFor(rel),
	}, nil
}

func (s *Session) loadScan(index int) (PointSet, error) {
	points, err := s.collab.Loader.Load(s.cfg.ScanBaseName, index)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %d: %v", ErrEmptyScan, index, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: scan %d has no points", ErrEmptyScan, index)
	}
	return TransformPoints(points, s.sensorPose), nil
}

// scoreOffsets evaluates the objective at every offset around the odometry
// prior. Results keep the generator order regardless of completion order.
func (s *Session) scoreOffsets(ctx context.Context, in *pairInputs, offsets []Offset) ([]ScoreSample, error) {
	samples := make([]ScoreSample, len(offsets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerCount())
	for i, off := range offsets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			plain, constrained, err := s.collab.Scorer.Score(in.fixedMap, in.movingMap, in.relOdometry, in.odomCovariance, off.Pose, s.cfg.Alpha)
			if err != nil {
				return fmt.Errorf("scoring offset %d: %w", off.Index, err)
			}
			samples[i] = ScoreSample{Offset: off, Plain: plain, Constrained: constrained}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

// EvaluatePair sweeps the objective over (axisA, axisB) around the odometry
// prior of the pair and runs every estimator. It does not touch the
// trajectories; see Accumulate.
func (s *Session) EvaluatePair(ctx context.Context, p Pair, axisA, axisB int) (*PairResult, error) {
	offsets, err := s.cfg.Grid.Sweep2D(axisA, axisB)
	if err != nil {
		return nil, err
	}

	in, err := s.prepare(p)
	if err != nil {
		return nil, err
	}

	samples, err := s.scoreOffsets(ctx, in, offsets)
	if err != nil {
		return nil, err
	}

	estimates, aligned, err := s.estimate(in)
	if err != nil {
		return nil, err
	}

	return &PairResult{
		Pair:           p,
		AxisA:          axisA,
		AxisB:          axisB,
		Samples:        samples,
		RelOdometry:    in.relOdometry,
		OdomCovariance: in.odomCovariance,
		Estimates:      estimates,
		AlignedPoints:  aligned,
		FixedPoints:    in.fixedPoints,
		MovingPoints:   in.movingPoints,
	}, nil
}

func (s *Session) estimate(in *pairInputs) (map[Estimator]PairEstimate, PointSet, error) {
	p := in.pair

	d2d, err := s.collab.Registration.Align(in.fixedMap, in.movingMap, in.relOdometry)
	if err != nil {
		return nil, nil, fmt.Errorf("registration %d_%d: %w", p.Fixed, p.Moving, err)
	}
	d2dCov := s.collab.Registration.Covariance(in.fixedMap, in.movingMap, d2d)

	d2dSC, err := s.collab.ConstrainedRegistration.Align(in.fixedMap, in.movingMap, in.relOdometry, in.odomCovariance)
	if err != nil {
		return nil, nil, fmt.Errorf("constrained registration %d_%d: %w", p.Fixed, p.Moving, err)
	}
	d2dSCCov := s.collab.ConstrainedRegistration.Covariance(in.fixedMap, in.movingMap, d2dSC)

	icp, aligned, err := s.collab.PointSet.Align(in.fixedPoints, in.movingPoints)
	if err != nil {
		return nil, nil, fmt.Errorf("point set alignment %d_%d: %w", p.Fixed, p.Moving, err)
	}
	icpCov := s.collab.PointSet.Covariance(in.fixedPoints, in.movingPoints, icp)

	if !s.fuser.Usable(d2dCov) {
		log.Printf("Warning: pair %d_%d: registration %v, filter uses the registration pose", p.Fixed, p.Moving, ErrCovarianceUnavailable)
	}
	if !s.fuser.Usable(icpCov) {
		log.Printf("Warning: pair %d_%d: point set alignment %v, icp_filter uses the icp pose", p.Fixed, p.Moving, ErrCovarianceUnavailable)
	}
	filter, filterCov := s.fuser.FuseWithCovariance(in.relOdometry, in.odomCovariance, d2d, d2dCov)
	icpFilter, icpFilterCov := s.fuser.FuseWithCovariance(in.relOdometry, in.odomCovariance, icp, icpCov)

	estimates := map[Estimator]PairEstimate{
		GroundTruth:             {Pose: Relative(s.groundTruth[p.Fixed], s.groundTruth[p.Moving])},
		Odometry:                {Pose: in.relOdometry, Covariance: in.odomCovariance},
		Registration:            {Pose: d2d, Covariance: d2dCov},
		ConstrainedRegistration: {Pose: d2dSC, Covariance: d2dSCCov},
		PointSetAlignment:       {Pose: icp, Covariance: icpCov},
		FusedRegistration:       {Pose: filter, Covariance: filterCov},
		FusedPointSetAlignment:  {Pose: icpFilter, Covariance: icpFilterCov},
	}
	return estimates, aligned, nil
}

// Accumulate advances every trajectory by the pair's estimates.
func (s *Session) Accumulate(res *PairResult) error {
	return s.trajectories.AdvanceAll(res.Estimates)
}

// EvaluateProfiles sweeps each of the six axes in turn around the odometry
// prior of the pair. The row of each sample is the swept axis.
func (s *Session) EvaluateProfiles(ctx context.Context, p Pair) ([]ScoreSample, error) {
	in, err := s.prepare(p)
	if err != nil {
		return nil, err
	}
	return s.scoreOffsets(ctx, in, s.cfg.Grid.AllAxisSweeps())
}

// Run evaluates every planned pair in order. Pairs that fail are logged and
// skipped without advancing any trajectory. handle, when non-nil, receives
// each successful result after accumulation.
func (s *Session) Run(ctx context.Context, handle func(*PairResult)) (int, error) {
	pairs, err := s.PlanPairs()
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, p := range pairs {
		res, err := s.EvaluatePair(ctx, p, s.cfg.AxisA, s.cfg.AxisB)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return processed, ctxErr
			}
			if errors.Is(err, ErrEmptyScan) {
				log.Printf("Warning: skipping pair %d_%d: %v", p.Fixed, p.Moving, err)
			} else {
				log.Printf("Warning: pair %d_%d failed: %v", p.Fixed, p.Moving, err)
			}
			continue
		}

		if err := s.Accumulate(res); err != nil {
			log.Printf("Warning: pair %d_%d not accumulated: %v", p.Fixed, p.Moving, err)
			continue
		}
		processed++
		if best, ok := res.Best(s.cfg.UseConstrainedScore); ok {
			log.Printf("Pair %d_%d: %d offsets, best %s=%.4f %s=%.4f score=%.4f",
				p.Fixed, p.Moving, len(res.Samples),
				AxisNames[s.cfg.AxisA], best.Offset.Vector[s.cfg.AxisA],
				AxisNames[s.cfg.AxisB], best.Offset.Vector[s.cfg.AxisB],
				best.Value(s.cfg.UseConstrainedScore))
		}
		if handle != nil {
			handle(res)
		}
	}
	return processed, nil
}
