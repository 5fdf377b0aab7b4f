package scoreeval

import "fmt"

// GridConfig describes the offset lattice swept around a prior pose.
type GridConfig struct {
	HalfWidth int     `yaml:"offset_size"`
	StepDist  float64 `yaml:"incr_dist"`
	StepAng   float64 `yaml:"incr_ang"`
}

// Offset is one perturbation of the grid. Row groups the offsets that share
// the outer coordinate; Col is the position within that row.
type Offset struct {
	Index  int
	Row    int
	Col    int
	Vector Vector6
	Pose   Pose
}

// Size returns the number of values swept along one axis (2N+1).
func (g GridConfig) Size() int {
	return 2*g.HalfWidth + 1
}

// Step returns the increment used for the given axis.
func (g GridConfig) Step(axis int) float64 {
	if IsAngular(axis) {
		return g.StepAng
	}
	return g.StepDist
}

// Validate checks the lattice parameters.
func (g GridConfig) Validate() error {
	if g.HalfWidth < 0 {
		return fmt.Errorf("grid.offset_size must be >= 0, got %d", g.HalfWidth)
	}
	if g.StepDist <= 0 {
		return fmt.Errorf("grid.incr_dist must be > 0, got %g", g.StepDist)
	}
	if g.StepAng <= 0 {
		return fmt.Errorf("grid.incr_ang must be > 0, got %g", g.StepAng)
	}
	return nil
}

// ValidateAxis returns ErrInvalidAxis unless 0 <= axis < 6.
func ValidateAxis(axis int) error {
	if axis < 0 || axis >= NumAxes {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, axis)
	}
	return nil
}

func (g GridConfig) value(axis, i int) float64 {
	return float64(i) * g.Step(axis)
}

func newOffset(index, row, col int, v Vector6) Offset {
	return Offset{Index: index, Row: row, Col: col, Vector: v, Pose: PoseFromVector(v)}
}

// AxisSweep perturbs a single axis over i*step for i in [-N, N].
// All offsets share row 0.
func (g GridConfig) AxisSweep(axis int) ([]Offset, error) {
	if err := ValidateAxis(axis); err != nil {
		return nil, err
	}
	offsets := make([]Offset, 0, g.Size())
	for i := -g.HalfWidth; i <= g.HalfWidth; i++ {
		var v Vector6
		v[axis] = g.value(axis, i)
		offsets = append(offsets, newOffset(len(offsets), 0, i+g.HalfWidth, v))
	}
	return offsets, nil
}

// Sweep2D perturbs two axes over the (2N+1)^2 lattice in row-major order:
// axisA is the outer (row) coordinate, axisB the inner one.
func (g GridConfig) Sweep2D(axisA, axisB int) ([]Offset, error) {
	if err := ValidateAxis(axisA); err != nil {
		return nil, err
	}
	if err := ValidateAxis(axisB); err != nil {
		return nil, err
	}
	if axisA == axisB {
		return nil, fmt.Errorf("%w: grid axes must differ, both are %d", ErrInvalidAxis, axisA)
	}

	n := g.Size()
	offsets := make([]Offset, 0, n*n)
	for i := -g.HalfWidth; i <= g.HalfWidth; i++ {
		for j := -g.HalfWidth; j <= g.HalfWidth; j++ {
			var v Vector6
			v[axisA] = g.value(axisA, i)
			v[axisB] = g.value(axisB, j)
			offsets = append(offsets, newOffset(len(offsets), i+g.HalfWidth, j+g.HalfWidth, v))
		}
	}
	return offsets, nil
}

// AllAxisSweeps concatenates the single-axis sweeps of all six axes.
// The row of each offset is the index of the axis it perturbs.
func (g GridConfig) AllAxisSweeps() []Offset {
	offsets := make([]Offset, 0, NumAxes*g.Size())
	for axis := 0; axis < NumAxes; axis++ {
		for i := -g.HalfWidth; i <= g.HalfWidth; i++ {
			var v Vector6
			v[axis] = g.value(axis, i)
			offsets = append(offsets, newOffset(len(offsets), axis, i+g.HalfWidth, v))
		}
	}
	return offsets
}
