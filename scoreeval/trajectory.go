package scoreeval

import (
	"fmt"
	"sync"
)

// Trajectory chains relative poses into absolute ones, starting at identity.
type Trajectory struct {
	running Pose
	history []Pose
}

// NewTrajectory creates an empty trajectory at identity.
func NewTrajectory() *Trajectory {
	return &Trajectory{running: Identity()}
}

// Advance applies rel on the right of the running pose and records the result.
func (t *Trajectory) Advance(rel Pose) Pose {
	t.running = Compose(t.running, rel)
	t.history = append(t.history, t.running)
	return t.running
}

// Current returns the running pose
func (t *Trajectory) Current() Pose {
	return t.running
}

// History returns a copy of the recorded absolute poses.
func (t *Trajectory) History() []Pose {
	out := make([]Pose, len(t.history))
	copy(out, t.history)
	return out
}

// Len returns the number of recorded poses
func (t *Trajectory) Len() int {
	return len(t.history)
}

// TrajectoryAccumulator keeps one trajectory per estimator.
type TrajectoryAccumulator struct {
	mu           sync.RWMutex
	trajectories map[Estimator]*Trajectory
}

// NewTrajectoryAccumulator creates empty trajectories for every estimator.
func NewTrajectoryAccumulator() *TrajectoryAccumulator {
	acc := &TrajectoryAccumulator{trajectories: make(map[Estimator]*Trajectory, len(Estimators))}
	for _, e := range Estimators {
		acc.trajectories[e] = NewTrajectory()
	}
	return acc
}

// AdvanceAll extends every trajectory by its relative estimate. Either all
// trajectories advance or none do.
func (a *TrajectoryAccumulator) AdvanceAll(estimates map[Estimator]PairEstimate) error {
	for _, e := range Estimators {
		if _, ok := estimates[e]; !ok {
			return fmt.Errorf("missing %s estimate", e)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range Estimators {
		a.trajectories[e].Advance(estimates[e].Pose)
	}
	return nil
}

// History returns the absolute poses recorded for one estimator.
func (a *TrajectoryAccumulator) History(e Estimator) []Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.trajectories[e]
	if !ok {
		return nil
	}
	return t.History()
}

// Histories returns every trajectory keyed by estimator.
func (a *TrajectoryAccumulator) Histories() map[Estimator][]Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[Estimator][]Pose, len(a.trajectories))
	for e, t := range a.trajectories {
		out[e] = t.History()
	}
	return out
}

// Len returns the common length of the trajectories.
func (a *TrajectoryAccumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trajectories[GroundTruth].Len()
}
