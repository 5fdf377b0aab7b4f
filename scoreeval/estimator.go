package scoreeval

import "fmt"

// Estimator identifies one source of relative-pose estimates.
type Estimator int

const (
	GroundTruth Estimator = iota
	Odometry
	Registration
	ConstrainedRegistration
	PointSetAlignment
	FusedRegistration
	FusedPointSetAlignment
)

// Estimators lists every estimator in output order.
var Estimators = []Estimator{
	GroundTruth,
	Odometry,
	Registration,
	ConstrainedRegistration,
	PointSetAlignment,
	FusedRegistration,
	FusedPointSetAlignment,
}

var estimatorSuffixes = map[Estimator]string{
	GroundTruth:             "gt",
	Odometry:                "odom",
	Registration:            "d2d",
	ConstrainedRegistration: "d2d_sc",
	PointSetAlignment:       "icp",
	FusedRegistration:       "filter",
	FusedPointSetAlignment:  "icp_filter",
}

// Suffix is the file-name suffix used when exporting this estimator.
func (e Estimator) Suffix() string {
	if s, ok := estimatorSuffixes[e]; ok {
		return s
	}
	return fmt.Sprintf("estimator%d", int(e))
}

func (e Estimator) String() string {
	return e.Suffix()
}

// ParseEstimator maps a suffix back to its estimator.
func ParseEstimator(s string) (Estimator, error) {
	for e, suffix := range estimatorSuffixes {
		if suffix == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown estimator %q", s)
}

// PairEstimate is a relative pose with its optional covariance.
type PairEstimate struct {
	Pose       Pose
	Covariance Covariance
}
