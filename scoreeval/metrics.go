package scoreeval

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// TrajectoryStats compares one estimated trajectory with the reference.
type TrajectoryStats struct {
	Estimator    string     `yaml:"estimator"`
	Poses        int        `yaml:"poses"`
	ATERMSE      float64    `yaml:"ate_rmse"`
	RPETransRMSE float64    `yaml:"rpe_trans_rmse"`
	RPERotRMSE   float64    `yaml:"rpe_rot_rmse"`
	PathLength   float64    `yaml:"path_length_xy"`
	Final        [6]float64 `yaml:"final_pose,flow"`
}

// Summary is written next to the global trajectories.
type Summary struct {
	RunID       string            `yaml:"run_id"`
	GeneratedAt time.Time         `yaml:"generated_at"`
	Pairs       int               `yaml:"pairs"`
	Estimators  []TrajectoryStats `yaml:"estimators"`
	Config      Config            `yaml:"config"`
}

// CompareTrajectory computes absolute and relative errors of est against ref.
// Only the common prefix of both sequences is compared.
func CompareTrajectory(est, ref []Pose) TrajectoryStats {
	n := min(len(est), len(ref))
	stats := TrajectoryStats{Poses: n, PathLength: PlanarPathLength(est)}
	if len(est) > 0 {
		stats.Final = est[len(est)-1].Vector()
	}
	if n == 0 {
		return stats
	}

	ate := make([]float64, n)
	for i := 0; i < n; i++ {
		d := r3.Sub(est[i].Translation, ref[i].Translation)
		ate[i] = r3.Norm2(d)
	}
	stats.ATERMSE = math.Sqrt(stat.Mean(ate, nil))

	if n > 1 {
		trans := make([]float64, n-1)
		rot := make([]float64, n-1)
		for i := 1; i < n; i++ {
			relEst := Relative(est[i-1], est[i])
			relRef := Relative(ref[i-1], ref[i])
			e := Relative(relRef, relEst)
			trans[i-1] = r3.Norm2(e.Translation)
			a := e.RotationAngle()
			rot[i-1] = a * a
		}
		stats.RPETransRMSE = math.Sqrt(stat.Mean(trans, nil))
		stats.RPERotRMSE = math.Sqrt(stat.Mean(rot, nil))
	}
	return stats
}

// PlanarPathLength is the length of the trajectory projected on the xy plane.
func PlanarPathLength(poses []Pose) float64 {
	if len(poses) < 2 {
		return 0
	}
	ls := make(orb.LineString, len(poses))
	for i, p := range poses {
		ls[i] = orb.Point{p.Translation.X, p.Translation.Y}
	}
	return planar.Length(ls)
}

// Summarize compares every accumulated trajectory with the ground truth.
func Summarize(acc *TrajectoryAccumulator, cfg Config) Summary {
	histories := acc.Histories()
	ref := histories[GroundTruth]

	s := Summary{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Pairs:       acc.Len(),
		Config:      cfg,
	}
	for _, e := range Estimators {
		stats := CompareTrajectory(histories[e], ref)
		stats.Estimator = e.Suffix()
		s.Estimators = append(s.Estimators, stats)
	}
	return s
}

// SaveSummary writes the summary as YAML
func SaveSummary(path string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling summary YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
