package scoreeval

import (
	"fmt"
	"runtime"
)

// TrajectoryFormat selects the line layout of exported trajectories.
type TrajectoryFormat string

const (
	// FormatRPY writes x y z roll pitch yaw per line.
	FormatRPY TrajectoryFormat = "rpy"
	// FormatTUM writes index x y z qx qy qz qw per line.
	FormatTUM TrajectoryFormat = "tum"
)

// PoseParams is a pose written as translation and Euler angles in config files.
type PoseParams struct {
	X  float64 `yaml:"x"`
	Y  float64 `yaml:"y"`
	Z  float64 `yaml:"z"`
	EX float64 `yaml:"ex"`
	EY float64 `yaml:"ey"`
	EZ float64 `yaml:"ez"`
}

// Pose converts the parameters to a transform
func (p PoseParams) Pose() Pose {
	return PoseFromVector(Vector6{p.X, p.Y, p.Z, p.EX, p.EY, p.EZ})
}

// MotionParams are the coefficients of the odometry motion model.
// D* scale the longitudinal axis, C* the lateral and vertical axes and
// T* the rotational axes; *d multiply squared distance and *t squared angle.
type MotionParams struct {
	Dd          float64 `yaml:"Dd"`
	Dt          float64 `yaml:"Dt"`
	Cd          float64 `yaml:"Cd"`
	Ct          float64 `yaml:"Ct"`
	Td          float64 `yaml:"Td"`
	Tt          float64 `yaml:"Tt"`
	MinVariance float64 `yaml:"min_variance"`
}

// Config is the full configuration of an evaluation run.
type Config struct {
	GroundTruthFile string `yaml:"gt_file"`
	OdometryFile    string `yaml:"odom_file"`
	ScanBaseName    string `yaml:"base_name_pcd"`
	OutputPrefix    string `yaml:"out_file"`

	Idx1  int `yaml:"idx1"`
	Idx2  int `yaml:"idx2"`
	AxisA int `yaml:"dimidx1"`
	AxisB int `yaml:"dimidx2"`

	Iters        int  `yaml:"iters"`
	IterStep     int  `yaml:"iter_step"`
	IterAllPoses bool `yaml:"iter_all_poses"`

	SensorPose PoseParams   `yaml:"sensor_pose"`
	Resolution float64      `yaml:"resolution"`
	Alpha      float64      `yaml:"alpha"`
	Grid       GridConfig   `yaml:"grid"`
	Motion     MotionParams `yaml:"motion"`

	UseConstrainedScore bool             `yaml:"use_score_d2d_sc"`
	SaveGlobalTs        bool             `yaml:"save_global_Ts"`
	Plot                bool             `yaml:"plot"`
	SavePCD             bool             `yaml:"save_pcd"`
	Profile             bool             `yaml:"profile"`
	TrajectoryFormat    TrajectoryFormat `yaml:"trajectory_format"`

	Workers      int     `yaml:"workers"`
	MaxCondition float64 `yaml:"max_condition"`
}

// DefaultConfig returns the stock evaluation settings.
func DefaultConfig() Config {
	return Config{
		OutputPrefix: "scores",
		Idx1:         0,
		Idx2:         1,
		AxisA:        AxisX,
		AxisB:        AxisY,
		Iters:        1,
		IterStep:     1,
		Resolution:   1.0,
		Alpha:        1.0,
		Grid: GridConfig{
			HalfWidth: 100,
			StepDist:  0.01,
			StepAng:   0.002,
		},
		Motion: MotionParams{
			Dd: 1, Dt: 1,
			Cd: 1, Ct: 1,
			Td: 1, Tt: 1,
			MinVariance: 1e-6,
		},
		TrajectoryFormat: FormatRPY,
		MaxCondition:     DefaultMaxCondition,
	}
}

// WorkerCount returns the configured scoring parallelism, defaulting to GOMAXPROCS.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ValidateInputs checks that the pose files to load are named.
func (c Config) ValidateInputs() error {
	if c.OdometryFile == "" {
		return fmt.Errorf("odom_file is required")
	}
	if c.GroundTruthFile == "" {
		return fmt.Errorf("gt_file is required")
	}
	return nil
}

// Validate checks every setting that must hold before any pair is processed.
func (c Config) Validate() error {
	if c.OutputPrefix == "" {
		return fmt.Errorf("out_file is required")
	}
	if err := ValidateAxis(c.AxisA); err != nil {
		return fmt.Errorf("dimidx1: %w", err)
	}
	if err := ValidateAxis(c.AxisB); err != nil {
		return fmt.Errorf("dimidx2: %w", err)
	}
	if c.AxisA == c.AxisB {
		return fmt.Errorf("dimidx1 and dimidx2 must differ: %w", ErrInvalidAxis)
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("resolution must be > 0, got %g", c.Resolution)
	}
	if c.Alpha < 0 {
		return fmt.Errorf("alpha must be >= 0, got %g", c.Alpha)
	}
	if c.Iters < 1 && !c.IterAllPoses {
		return fmt.Errorf("iters must be >= 1, got %d", c.Iters)
	}
	if c.IterStep < 1 {
		return fmt.Errorf("iter_step must be >= 1, got %d", c.IterStep)
	}
	if c.Idx1 < 0 || c.Idx2 < 0 {
		return fmt.Errorf("%w: idx1=%d idx2=%d", ErrIndexOutOfRange, c.Idx1, c.Idx2)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	switch c.TrajectoryFormat {
	case FormatRPY, FormatTUM:
	default:
		return fmt.Errorf("unknown trajectory_format %q (want rpy or tum)", c.TrajectoryFormat)
	}
	return nil
}
