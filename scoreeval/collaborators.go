package scoreeval

import "errors"

// SpatialMap is an opaque map built from a point set by a MapBuilder.
type SpatialMap interface {
	CellCount() int
}

// ScanLoader loads the scan with the given index from a base path.
type ScanLoader interface {
	Load(basePath string, index int) (PointSet, error)
}

// MapBuilder builds a spatial map at the given resolution.
type MapBuilder interface {
	Build(points PointSet, resolution float64) (SpatialMap, error)
}

// ObjectiveScorer evaluates the registration objective at prior*offset.
// plain is the unconstrained similarity; constrained subtracts
// alpha times the soft-constraint penalty of the offset under priorCov.
// Implementations must be safe for concurrent use.
type ObjectiveScorer interface {
	Score(fixed, moving SpatialMap, prior Pose, priorCov Covariance, offset Pose, alpha float64) (plain, constrained float64, err error)
}

// Aligner refines a relative pose between two maps.
type Aligner interface {
	Align(fixed, moving SpatialMap, initial Pose) (Pose, error)
	Covariance(fixed, moving SpatialMap, pose Pose) Covariance
}

// ConstrainedAligner refines a relative pose under a soft prior centered on initial.
type ConstrainedAligner interface {
	Align(fixed, moving SpatialMap, initial Pose, priorCov Covariance) (Pose, error)
	Covariance(fixed, moving SpatialMap, pose Pose) Covariance
}

// PointSetAligner registers two point sets directly. The returned point set
// is the moving set expressed in the fixed frame.
type PointSetAligner interface {
	Align(fixed, moving PointSet) (Pose, PointSet, error)
	Covariance(fixed, moving PointSet, pose Pose) Covariance
}

// MotionModel yields the prior covariance of a relative motion.
type MotionModel interface {
	CovarianceFor(rel Pose) Covariance
}

// Collaborators bundles the external algorithms a Session drives.
type Collaborators struct {
	Loader                  ScanLoader
	Maps                    MapBuilder
	Scorer                  ObjectiveScorer
	Registration            Aligner
	ConstrainedRegistration ConstrainedAligner
	PointSet                PointSetAligner
	Motion                  MotionModel
}

func (c Collaborators) validate() error {
	switch {
	case c.Loader == nil:
		return errors.New("scan loader is required")
	case c.Maps == nil:
		return errors.New("map builder is required")
	case c.Scorer == nil:
		return errors.New("objective scorer is required")
	case c.Registration == nil:
		return errors.New("registration aligner is required")
	case c.ConstrainedRegistration == nil:
		return errors.New("constrained registration aligner is required")
	case c.PointSet == nil:
		return errors.New("point set aligner is required")
	case c.Motion == nil:
		return errors.New("motion model is required")
	}
	return nil
}
