package scoreeval

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// ScoreGridPath is the per-pair score grid file name.
func ScoreGridPath(prefix string, p Pair) string {
	return fmt.Sprintf("%s.%d_%d.dat", prefix, p.Fixed, p.Moving)
}

// PairPosePath is the per-pair estimate file name for one estimator.
func PairPosePath(prefix string, p Pair, e Estimator) string {
	return fmt.Sprintf("%s.%d_%d.T.%s", prefix, p.Fixed, p.Moving, e.Suffix())
}

// SurfacePlotPath is the per-pair heat map file name.
func SurfacePlotPath(prefix string, p Pair) string {
	return fmt.Sprintf("%s.%d_%d.png", prefix, p.Fixed, p.Moving)
}

// PointCloudPath is the per-pair point cloud file name; name is an estimator
// suffix, "icp_final" or "pc1".
func PointCloudPath(prefix string, p Pair, name string) string {
	return fmt.Sprintf("%s.%d_%d.%s.pcd", prefix, p.Fixed, p.Moving, name)
}

// TrajectoryPath is the global trajectory file name for one estimator.
func TrajectoryPath(prefix string, e Estimator) string {
	return fmt.Sprintf("%s.Ts.%s", prefix, e.Suffix())
}

// OverviewPath is the trajectory overview image file name; ext is svg or png.
func OverviewPath(prefix, ext string) string {
	return fmt.Sprintf("%s.Ts.%s", prefix, ext)
}

// SummaryPath is the trajectory comparison summary file name.
func SummaryPath(prefix string) string {
	return prefix + ".summary.yaml"
}

// ProfilePath is the axis-profile file name.
func ProfilePath(prefix string) string {
	return prefix + ".profile.dat"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeFields(w *bufio.Writer, values ...float64) {
	for i, v := range values {
		if i > 0 {
			_ = w.WriteByte(' ')
		}
		_, _ = w.WriteString(formatFloat(v))
	}
	_ = w.WriteByte('\n')
}

// WriteScoreGrid writes one line per sample: the six offset parameters, the
// plain score and the constrained score. A blank line separates rows.
func WriteScoreGrid(w io.Writer, samples []ScoreSample) error {
	bw := bufio.NewWriter(w)
	for i, s := range samples {
		if i > 0 && s.Offset.Row != samples[i-1].Offset.Row {
			_ = bw.WriteByte('\n')
		}
		v := s.Offset.Vector
		writeFields(bw, v[0], v[1], v[2], v[3], v[4], v[5], s.Plain, s.Constrained)
	}
	return bw.Flush()
}

// SaveScoreGrid writes the score grid to path
func SaveScoreGrid(path string, samples []ScoreSample) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteScoreGrid(w, samples)
	})
}

// ParseScoreGrid reads a file written by WriteScoreGrid. Rows are numbered
// from the blank-line separators; poses are rebuilt from the offset vectors.
func ParseScoreGrid(r io.Reader) ([]ScoreSample, error) {
	var samples []ScoreSample
	scanner := bufio.NewScanner(r)
	row, col, lineNo := 0, 0, 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if col > 0 {
				row++
				col = 0
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != NumAxes+2 {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, NumAxes+2, len(fields))
		}
		values := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing %q: %w", lineNo, f, err)
			}
			values[i] = v
		}
		var vec Vector6
		copy(vec[:], values[:NumAxes])
		samples = append(samples, ScoreSample{
			Offset:      newOffset(len(samples), row, col, vec),
			Plain:       values[NumAxes],
			Constrained: values[NumAxes+1],
		})
		col++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading score grid: %w", err)
	}
	return samples, nil
}

// WritePose writes a pose as "x y z roll pitch yaw".
func WritePose(w io.Writer, p Pose) error {
	bw := bufio.NewWriter(w)
	v := p.Vector()
	writeFields(bw, v[:]...)
	return bw.Flush()
}

// SavePairPoses writes T_rel_odom^-1 * T_est for every estimator of the pair.
// A failed file does not stop the others; all failures are returned together.
func SavePairPoses(prefix string, res *PairResult) error {
	var errs error
	for _, e := range Estimators {
		if _, ok := res.Estimates[e]; !ok {
			continue
		}
		path := PairPosePath(prefix, res.Pair, e)
		pose := res.InOdometryFrame(e)
		if err := writeFile(path, func(w io.Writer) error { return WritePose(w, pose) }); err != nil {
			log.Printf("Warning: failed to write %s: %v", path, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// PointSetWriter encodes a point set, e.g. as PCD.
type PointSetWriter func(w io.Writer, points PointSet) error

var cloudEstimators = []Estimator{GroundTruth, Odometry, Registration, ConstrainedRegistration, PointSetAlignment}

// SavePairClouds writes the moving scan placed by each registration estimate
// into the fixed frame, the final ICP alignment as icp_final and the fixed
// scan as pc1.
func SavePairClouds(prefix string, res *PairResult, write PointSetWriter) error {
	type cloud struct {
		name   string
		points PointSet
	}
	var clouds []cloud
	for _, e := range cloudEstimators {
		est, ok := res.Estimates[e]
		if !ok {
			continue
		}
		clouds = append(clouds, cloud{e.Suffix(), TransformPoints(res.MovingPoints, est.Pose)})
	}
	clouds = append(clouds,
		cloud{"icp_final", res.AlignedPoints},
		cloud{"pc1", res.FixedPoints},
	)

	var errs error
	for _, c := range clouds {
		path := PointCloudPath(prefix, res.Pair, c.name)
		points := c.points
		if err := writeFile(path, func(w io.Writer) error { return write(w, points) }); err != nil {
			log.Printf("Warning: failed to write %s: %v", path, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// WriteTrajectory writes one pose per line in the given format.
func WriteTrajectory(w io.Writer, poses []Pose, format TrajectoryFormat) error {
	bw := bufio.NewWriter(w)
	for i, p := range poses {
		switch format {
		case FormatTUM:
			qx, qy, qz, qw := p.Quaternion()
			t := p.Translation
			writeFields(bw, float64(i), t.X, t.Y, t.Z, qx, qy, qz, qw)
		case FormatRPY, "":
			v := p.Vector()
			writeFields(bw, v[:]...)
		default:
			return fmt.Errorf("unknown trajectory format %q", format)
		}
	}
	return bw.Flush()
}

// SaveTrajectories writes every estimator's trajectory to its own file.
func SaveTrajectories(prefix string, histories map[Estimator][]Pose, format TrajectoryFormat) error {
	var errs error
	for _, e := range Estimators {
		poses, ok := histories[e]
		if !ok {
			continue
		}
		path := TrajectoryPath(prefix, e)
		if err := writeFile(path, func(w io.Writer) error { return WriteTrajectory(w, poses, format) }); err != nil {
			log.Printf("Warning: failed to write %s: %v", path, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// SaveAxisProfiles writes single-axis sweeps, one block per axis.
func SaveAxisProfiles(path string, samples []ScoreSample) error {
	return SaveScoreGrid(path, samples)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
