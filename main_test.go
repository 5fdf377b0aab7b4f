package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/will1991/perception-oru/scoreeval"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	err    error
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunEvaluation(ctx context.Context) error {
	m.called["RunEvaluation"] = true
	return m.err
}
func (m *mockApp) RunProfile(ctx context.Context) error {
	m.called["RunProfile"] = true
	return m.err
}
func (m *mockApp) RunWriteConfig() error {
	m.called["RunWriteConfig"] = true
	return m.err
}

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Evaluation",
			args:           []string{"--gt_file", "gt.txt", "--odom_file", "odom.txt", "--base_name_pcd", "scans/scan", "--out_file", "run1"},
			expectedCalled: "RunEvaluation",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Config.GroundTruthFile != "gt.txt" {
					t.Errorf("expected GroundTruthFile gt.txt, got %s", opts.Config.GroundTruthFile)
				}
				if opts.Config.OdometryFile != "odom.txt" {
					t.Errorf("expected OdometryFile odom.txt, got %s", opts.Config.OdometryFile)
				}
				if opts.Config.ScanBaseName != "scans/scan" {
					t.Errorf("expected ScanBaseName scans/scan, got %s", opts.Config.ScanBaseName)
				}
				if opts.Config.OutputPrefix != "run1" {
					t.Errorf("expected OutputPrefix run1, got %s", opts.Config.OutputPrefix)
				}
			},
		},
		{
			name:           "Axes and indices",
			args:           []string{"--idx1", "3", "--idx2", "5", "--dimidx1", "2", "--dimidx2", "5"},
			expectedCalled: "RunEvaluation",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				c := opts.Config
				if c.Idx1 != 3 || c.Idx2 != 5 {
					t.Errorf("expected idx 3/5, got %d/%d", c.Idx1, c.Idx2)
				}
				if c.AxisA != scoreeval.AxisZ || c.AxisB != scoreeval.AxisYaw {
					t.Errorf("expected axes z/yaw, got %d/%d", c.AxisA, c.AxisB)
				}
			},
		},
		{
			name:           "Grid and motion model",
			args:           []string{"--offset_size", "20", "--incr_dist", "0.05", "--incr_ang", "0.01", "--Dd", "0.2", "--Tt", "0.3", "--alpha", "2.5", "--resolution", "0.5"},
			expectedCalled: "RunEvaluation",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				c := opts.Config
				if c.Grid.HalfWidth != 20 {
					t.Errorf("expected HalfWidth 20, got %d", c.Grid.HalfWidth)
				}
				if c.Grid.StepDist != 0.05 || c.Grid.StepAng != 0.01 {
					t.Errorf("expected steps 0.05/0.01, got %g/%g", c.Grid.StepDist, c.Grid.StepAng)
				}
				if c.Motion.Dd != 0.2 || c.Motion.Tt != 0.3 {
					t.Errorf("expected Dd 0.2 Tt 0.3, got %g %g", c.Motion.Dd, c.Motion.Tt)
				}
				if c.Motion.Cd != 1 {
					t.Errorf("expected Cd to keep its default 1, got %g", c.Motion.Cd)
				}
				if c.Alpha != 2.5 || c.Resolution != 0.5 {
					t.Errorf("expected alpha 2.5 resolution 0.5, got %g %g", c.Alpha, c.Resolution)
				}
			},
		},
		{
			name:           "Sensor pose",
			args:           []string{"--x", "0.5", "--z", "1.2", "--ez", "1.57"},
			expectedCalled: "RunEvaluation",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				sp := opts.Config.SensorPose
				if sp.X != 0.5 || sp.Z != 1.2 || sp.EZ != 1.57 {
					t.Errorf("unexpected sensor pose %+v", sp)
				}
			},
		},
		{
			name:           "Iteration and outputs",
			args:           []string{"--iters", "10", "--iter_step", "2", "--save_global_Ts", "--plot", "--save_pcd", "--use_score_d2d_sc", "--traj_format", "tum", "--workers", "3"},
			expectedCalled: "RunEvaluation",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				c := opts.Config
				if c.Iters != 10 || c.IterStep != 2 {
					t.Errorf("expected iters 10 step 2, got %d %d", c.Iters, c.IterStep)
				}
				if !c.SaveGlobalTs || !c.Plot || !c.UseConstrainedScore {
					t.Error("expected save_global_Ts, plot and use_score_d2d_sc set")
				}
				if !c.SavePCD {
					t.Error("expected save_pcd set")
				}
				if c.TrajectoryFormat != scoreeval.FormatTUM {
					t.Errorf("expected tum format, got %s", c.TrajectoryFormat)
				}
				if c.Workers != 3 {
					t.Errorf("expected 3 workers, got %d", c.Workers)
				}
			},
		},
		{
			name:           "Profile",
			args:           []string{"--profile", "--iter_all_poses"},
			expectedCalled: "RunProfile",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.Config.Profile {
					t.Error("expected Profile true")
				}
				if !opts.Config.IterAllPoses {
					t.Error("expected IterAllPoses true")
				}
			},
		},
		{
			name:           "WriteConfig",
			args:           []string{"--write_config", "out.yaml", "--profile"},
			expectedCalled: "RunWriteConfig",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.WriteConfig != "out.yaml" {
					t.Errorf("expected WriteConfig out.yaml, got %s", opts.WriteConfig)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_ConfigFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := `gt_file: from-file-gt.txt
odom_file: from-file-odom.txt
idx2: 4
alpha: 0.25
grid:
  offset_size: 7
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{"--config", path, "--alpha", "3"}, &out, app); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	c := app.opts.Config
	if c.GroundTruthFile != "from-file-gt.txt" {
		t.Errorf("expected gt_file from the file, got %s", c.GroundTruthFile)
	}
	if c.Idx2 != 4 {
		t.Errorf("expected idx2 4 from the file, got %d", c.Idx2)
	}
	if c.Grid.HalfWidth != 7 {
		t.Errorf("expected offset_size 7 from the file, got %d", c.Grid.HalfWidth)
	}
	if c.Alpha != 3 {
		t.Errorf("expected the flag to override alpha, got %g", c.Alpha)
	}
	if c.Grid.StepDist != 0.01 {
		t.Errorf("expected incr_dist default 0.01, got %g", c.Grid.StepDist)
	}
	if app.opts.ConfigFile != path {
		t.Errorf("expected ConfigFile %s, got %s", path, app.opts.ConfigFile)
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, &out, app)
	if err == nil {
		t.Fatal("expected error for a missing config file")
	}
	if len(app.called) != 0 {
		t.Errorf("expected no mode to run, got %v", app.called)
	}
}

func TestRun_InvalidTrajectoryFormat(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{"--traj_format", "kitti"}, &out, app); err == nil {
		t.Fatal("expected error for unknown trajectory format")
	}
}

func TestRun_PropagatesModeError(t *testing.T) {
	app := newMockApp()
	app.err = errors.New("boom")
	var out bytes.Buffer
	if err := run(nil, &out, app); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp from --help, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage of ndtscore") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "use_score_d2d_sc") {
		t.Errorf("expected flag list in output, got: %s", out.String())
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "ndtscore version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}
	if !app.called["RunEvaluation"] {
		t.Error("expected RunEvaluation by default")
	}
	if app.opts.Config != scoreeval.DefaultConfig() {
		t.Errorf("expected default config, got %+v", app.opts.Config)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
