package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/will1991/perception-oru/scoreeval"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	WriteConfig string
	Config      scoreeval.Config
}

// AppRunner is what run dispatches to. App implements it.
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunEvaluation(ctx context.Context) error
	RunProfile(ctx context.Context) error
	RunWriteConfig() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := runContext(ctx, os.Args[1:], os.Stdout, NewApp())
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// newFlagSet binds every flag to a field of opts. Defaults are the current
// field values, so parsing over a loaded config only changes what is set.
func newFlagSet(out io.Writer, opts *AppOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("ndtscore", flag.ContinueOnError)
	fs.SetOutput(out)

	c := &opts.Config
	fs.StringVar(&opts.ConfigFile, "config", opts.ConfigFile, "Path to a YAML configuration file; flags override its values")
	fs.StringVar(&opts.WriteConfig, "write_config", opts.WriteConfig, "Write the effective configuration to this path and exit")

	fs.StringVar(&c.GroundTruthFile, "gt_file", c.GroundTruthFile, "File with ground truth poses, one per line")
	fs.StringVar(&c.OdometryFile, "odom_file", c.OdometryFile, "File with odometry poses, one per line")
	fs.StringVar(&c.ScanBaseName, "base_name_pcd", c.ScanBaseName, "Prefix of the scan files (<prefix><index>.pcd)")
	fs.StringVar(&c.OutputPrefix, "out_file", c.OutputPrefix, "Prefix of every output file")

	fs.IntVar(&c.Idx1, "idx1", c.Idx1, "Index of the fixed scan of the first pair")
	fs.IntVar(&c.Idx2, "idx2", c.Idx2, "Index of the moving scan of the first pair")
	fs.IntVar(&c.AxisA, "dimidx1", c.AxisA, "First swept axis (0..5 = x y z roll pitch yaw)")
	fs.IntVar(&c.AxisB, "dimidx2", c.AxisB, "Second swept axis (0..5 = x y z roll pitch yaw)")

	fs.Float64Var(&c.SensorPose.X, "x", c.SensorPose.X, "Sensor pose x offset")
	fs.Float64Var(&c.SensorPose.Y, "y", c.SensorPose.Y, "Sensor pose y offset")
	fs.Float64Var(&c.SensorPose.Z, "z", c.SensorPose.Z, "Sensor pose z offset")
	fs.Float64Var(&c.SensorPose.EX, "ex", c.SensorPose.EX, "Sensor pose roll (rad)")
	fs.Float64Var(&c.SensorPose.EY, "ey", c.SensorPose.EY, "Sensor pose pitch (rad)")
	fs.Float64Var(&c.SensorPose.EZ, "ez", c.SensorPose.EZ, "Sensor pose yaw (rad)")

	fs.Float64Var(&c.Resolution, "resolution", c.Resolution, "NDT cell edge length")
	fs.IntVar(&c.Grid.HalfWidth, "offset_size", c.Grid.HalfWidth, "Grid half width in steps")
	fs.Float64Var(&c.Grid.StepDist, "incr_dist", c.Grid.StepDist, "Grid step for translation axes")
	fs.Float64Var(&c.Grid.StepAng, "incr_ang", c.Grid.StepAng, "Grid step for rotation axes (rad)")

	fs.Float64Var(&c.Motion.Dd, "Dd", c.Motion.Dd, "Motion model: longitudinal variance per squared distance")
	fs.Float64Var(&c.Motion.Dt, "Dt", c.Motion.Dt, "Motion model: longitudinal variance per squared angle")
	fs.Float64Var(&c.Motion.Cd, "Cd", c.Motion.Cd, "Motion model: lateral variance per squared distance")
	fs.Float64Var(&c.Motion.Ct, "Ct", c.Motion.Ct, "Motion model: lateral variance per squared angle")
	fs.Float64Var(&c.Motion.Td, "Td", c.Motion.Td, "Motion model: rotational variance per squared distance")
	fs.Float64Var(&c.Motion.Tt, "Tt", c.Motion.Tt, "Motion model: rotational variance per squared angle")
	fs.Float64Var(&c.Alpha, "alpha", c.Alpha, "Weight of the soft constraint")

	fs.IntVar(&c.Iters, "iters", c.Iters, "Number of pairs to process")
	fs.IntVar(&c.IterStep, "iter_step", c.IterStep, "Index increment between pairs")
	fs.BoolVar(&c.IterAllPoses, "iter_all_poses", c.IterAllPoses, "Process every pair the pose files allow")

	fs.BoolVar(&c.SaveGlobalTs, "save_global_Ts", c.SaveGlobalTs, "Write the accumulated trajectories, overview and summary")
	fs.BoolVar(&c.Plot, "plot", c.Plot, "Write a heat map of the score surface per pair")
	fs.BoolVar(&c.SavePCD, "save_pcd", c.SavePCD, "Write the moving scan under every estimate as PCD per pair")
	fs.BoolVar(&c.UseConstrainedScore, "use_score_d2d_sc", c.UseConstrainedScore, "Plot and report the constrained score")
	fs.BoolVar(&c.Profile, "profile", c.Profile, "Sweep all six axes on the first pair and exit")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Parallel scoring workers (0 = GOMAXPROCS)")
	fs.Func("traj_format", "Trajectory line format: rpy or tum (default "+string(c.TrajectoryFormat)+")", func(s string) error {
		switch f := scoreeval.TrajectoryFormat(s); f {
		case scoreeval.FormatRPY, scoreeval.FormatTUM:
			c.TrajectoryFormat = f
			return nil
		default:
			return fmt.Errorf("want rpy or tum, got %q", s)
		}
	})
	return fs
}

// parseOptions parses args over the defaults, then again over the config
// file when -config is given.
func parseOptions(args []string, out io.Writer) (AppOptions, error) {
	opts := AppOptions{Config: scoreeval.DefaultConfig()}
	if err := newFlagSet(out, &opts).Parse(args); err != nil {
		return opts, err
	}
	if opts.ConfigFile == "" {
		return opts, nil
	}

	loaded, err := scoreeval.LoadConfig(opts.ConfigFile)
	if err != nil {
		return opts, err
	}
	fileOpts := AppOptions{Config: *loaded}
	if err := newFlagSet(io.Discard, &fileOpts).Parse(args); err != nil {
		return opts, err
	}
	return fileOpts, nil
}

func run(args []string, out io.Writer, app AppRunner) error {
	return runContext(context.Background(), args, out, app)
}

func runContext(ctx context.Context, args []string, out io.Writer, app AppRunner) error {
	opts, err := parseOptions(args, out)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "ndtscore version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.WriteConfig != "":
		return app.RunWriteConfig()
	case opts.Config.Profile:
		return app.RunProfile(ctx)
	default:
		return app.RunEvaluation(ctx)
	}
}
