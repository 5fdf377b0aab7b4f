package scoreeval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// LoadPoseFile reads a pose list from disk. See ParsePoses for the format.
func LoadPoseFile(path string) ([]Pose, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pose file not found: %s", path)
		}
		return nil, fmt.Errorf("opening pose file: %w", err)
	}
	defer func() { _ = f.Close() }()

	poses, err := ParsePoses(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return poses, nil
}

// ParsePoses reads one pose per line. A line holds either
// "x y z roll pitch yaw" or "t x y z qx qy qz qw". Blank lines and
// lines starting with '#' are skipped.
func ParsePoses(r io.Reader) ([]Pose, error) {
	var poses []Pose
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		values := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing %q: %w", lineNo, f, err)
			}
			values[i] = v
		}

		switch len(values) {
		case 6:
			var v Vector6
			copy(v[:], values)
			poses = append(poses, PoseFromVector(v))
		case 8:
			t := r3.Vec{X: values[1], Y: values[2], Z: values[3]}
			poses = append(poses, PoseFromQuaternion(t, values[4], values[5], values[6], values[7]))
		default:
			return nil, fmt.Errorf("line %d: expected 6 or 8 columns, got %d", lineNo, len(values))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading poses: %w", err)
	}
	return poses, nil
}
