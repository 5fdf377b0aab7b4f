package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/will1991/perception-oru/ndt"
	"github.com/will1991/perception-oru/scoreeval"
)

// App encapsulates the application state and dependencies
type App struct {
	Config      scoreeval.Config
	ConfigFile  string
	WriteConfig string

	// Out receives the run summary lines
	Out io.Writer

	// NewCollaborators builds the registration stack for a run. Tests
	// replace it to avoid the numerical reference implementations.
	NewCollaborators func(cfg scoreeval.Config) scoreeval.Collaborators
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Config:           scoreeval.DefaultConfig(),
		Out:              os.Stdout,
		NewCollaborators: defaultCollaborators,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.Config = opts.Config
	a.ConfigFile = opts.ConfigFile
	a.WriteConfig = opts.WriteConfig
}

// defaultCollaborators wires the NDT reference implementations.
func defaultCollaborators(cfg scoreeval.Config) scoreeval.Collaborators {
	registration := ndt.NewD2DAligner()
	registration.Config.MaxCondition = cfg.MaxCondition

	constrained := ndt.NewConstrainedD2DAligner(cfg.Alpha)
	constrained.Config.MaxCondition = cfg.MaxCondition

	icp := ndt.NewICPAligner()
	icp.Config.MaxCondition = cfg.MaxCondition

	return scoreeval.Collaborators{
		Loader:                  ndt.PCDLoader{Pattern: ndt.DefaultScanPattern},
		Maps:                    ndt.DefaultMapBuilder(),
		Scorer:                  ndt.Scorer{Objective: ndt.D2D{OutlierRatio: ndt.DefaultOutlierRatio}},
		Registration:            registration,
		ConstrainedRegistration: constrained,
		PointSet:                icp,
		Motion:                  ndt.NewMotionModel(cfg.Motion),
	}
}

// newSession loads both pose files and validates the run setup.
func (a *App) newSession() (*scoreeval.Session, error) {
	if err := a.Config.ValidateInputs(); err != nil {
		return nil, err
	}
	if err := a.Config.Validate(); err != nil {
		return nil, err
	}

	odometry, err := scoreeval.LoadPoseFile(a.Config.OdometryFile)
	if err != nil {
		return nil, fmt.Errorf("loading odometry: %w", err)
	}
	groundTruth, err := scoreeval.LoadPoseFile(a.Config.GroundTruthFile)
	if err != nil {
		return nil, fmt.Errorf("loading ground truth: %w", err)
	}
	if len(groundTruth) != len(odometry) {
		log.Printf("Warning: %d ground truth poses and %d odometry poses, using the first %d",
			len(groundTruth), len(odometry), min(len(groundTruth), len(odometry)))
	}
	fmt.Fprintf(a.Out, "Loaded %d ground truth and %d odometry poses\n", len(groundTruth), len(odometry))

	return scoreeval.NewSession(a.Config, groundTruth, odometry, a.NewCollaborators(a.Config))
}

// RunEvaluation processes every planned pair and writes the per-pair and,
// optionally, the global outputs.
func (a *App) RunEvaluation(ctx context.Context) error {
	session, err := a.newSession()
	if err != nil {
		return err
	}
	pairs, err := session.PlanPairs()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Evaluating %d pair(s), axes %s/%s, %d offsets each\n",
		len(pairs), scoreeval.AxisNames[a.Config.AxisA], scoreeval.AxisNames[a.Config.AxisB],
		a.Config.Grid.Size()*a.Config.Grid.Size())

	surface := scoreeval.NewSurfacePlot(a.Config.UseConstrainedScore)
	processed, err := session.Run(ctx, func(res *scoreeval.PairResult) {
		a.exportPair(surface, res)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Processed %d of %d pair(s)\n", processed, len(pairs))

	if a.Config.SaveGlobalTs {
		a.exportTrajectories(session.Trajectories())
	}
	return nil
}

// exportPair writes the files of one pair. Failures are logged and the
// remaining files are still written.
func (a *App) exportPair(surface *scoreeval.SurfacePlot, res *scoreeval.PairResult) {
	prefix := a.Config.OutputPrefix

	if err := scoreeval.SaveScoreGrid(scoreeval.ScoreGridPath(prefix, res.Pair), res.Samples); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := scoreeval.SavePairPoses(prefix, res); err != nil {
		log.Printf("Warning: %v", err)
	}
	if a.Config.SavePCD {
		if err := scoreeval.SavePairClouds(prefix, res, ndt.WritePCD); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if a.Config.Plot {
		if err := surface.Save(scoreeval.SurfacePlotPath(prefix, res.Pair), res); err != nil {
			log.Printf("Warning: pair %d_%d plot: %v", res.Pair.Fixed, res.Pair.Moving, err)
		}
	}
}

// exportTrajectories writes every accumulated trajectory, the overview
// images and the comparison summary.
func (a *App) exportTrajectories(acc *scoreeval.TrajectoryAccumulator) {
	prefix := a.Config.OutputPrefix
	histories := acc.Histories()

	if err := scoreeval.SaveTrajectories(prefix, histories, a.Config.TrajectoryFormat); err != nil {
		log.Printf("Warning: %v", err)
	}

	renderer := scoreeval.NewTrajectoryRenderer(histories)
	if err := renderer.SaveSVG(scoreeval.OverviewPath(prefix, "svg")); err != nil {
		log.Printf("Warning: trajectory overview: %v", err)
	}
	if err := renderer.SavePNG(scoreeval.OverviewPath(prefix, "png")); err != nil {
		log.Printf("Warning: trajectory overview: %v", err)
	}

	summary := scoreeval.Summarize(acc, a.Config)
	if err := scoreeval.SaveSummary(scoreeval.SummaryPath(prefix), summary); err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	for _, s := range summary.Estimators {
		fmt.Fprintf(a.Out, "%-10s ate=%.4f rpe_t=%.4f rpe_r=%.4f length=%.3f\n",
			s.Estimator, s.ATERMSE, s.RPETransRMSE, s.RPERotRMSE, s.PathLength)
	}
}

// RunProfile sweeps each axis on its own around the first planned pair.
func (a *App) RunProfile(ctx context.Context) error {
	session, err := a.newSession()
	if err != nil {
		return err
	}
	pairs, err := session.PlanPairs()
	if err != nil {
		return err
	}

	p := pairs[0]
	samples, err := session.EvaluateProfiles(ctx, p)
	if err != nil {
		return fmt.Errorf("profiling pair %d_%d: %w", p.Fixed, p.Moving, err)
	}
	path := scoreeval.ProfilePath(a.Config.OutputPrefix)
	if err := scoreeval.SaveAxisProfiles(path, samples); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Wrote %d profile samples of pair %d_%d to %s\n", len(samples), p.Fixed, p.Moving, path)
	return nil
}

// RunWriteConfig saves the effective configuration.
func (a *App) RunWriteConfig() error {
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := scoreeval.SaveConfig(a.WriteConfig, &a.Config); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Configuration written to %s\n", a.WriteConfig)
	return nil
}
