package ndt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will1991/perception-oru/scoreeval"
)

func diagonal(t *testing.T, c scoreeval.Covariance) scoreeval.Vector6 {
	t.Helper()
	require.True(t, c.Available())
	var d scoreeval.Vector6
	for i := range d {
		d[i] = c.Matrix().At(i, i)
	}
	return d
}

func TestMotionModel_CovarianceFor(t *testing.T) {
	m := NewMotionModel(scoreeval.MotionParams{
		Dd: 1, Dt: 0.5,
		Cd: 0.25, Ct: 2,
		Td: 0.1, Tt: 4,
		MinVariance: 1e-6,
	})

	tests := []struct {
		name string
		rel  scoreeval.Vector6
		want scoreeval.Vector6
	}{
		{
			name: "standstill uses the floor",
			rel:  scoreeval.Vector6{},
			want: scoreeval.Vector6{1e-6, 1e-6, 1e-6, 1e-6, 1e-6, 1e-6},
		},
		{
			name: "translation",
			rel:  scoreeval.Vector6{2, 0, 0, 0, 0, 0},
			want: scoreeval.Vector6{4, 1, 1, 0.4, 0.4, 0.4},
		},
		{
			name: "rotation",
			rel:  scoreeval.Vector6{0, 0, 0, 0, 0, 0.5},
			want: scoreeval.Vector6{0.125, 0.5, 0.5, 1, 1, 1},
		},
		{
			name: "distance is three dimensional",
			rel:  scoreeval.Vector6{0, 3, 4, 0, 0, 0},
			want: scoreeval.Vector6{25, 6.25, 6.25, 2.5, 2.5, 2.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diagonal(t, m.CovarianceFor(scoreeval.PoseFromVector(tt.rel)))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9, "axis %s", scoreeval.AxisNames[i])
			}
		})
	}
}

func TestMotionModel_DefaultFloor(t *testing.T) {
	c := NewMotionModel(scoreeval.MotionParams{}).CovarianceFor(scoreeval.Identity())
	d := diagonal(t, c)
	assert.Equal(t, 1e-9, d[scoreeval.AxisX])

	// Off-diagonal terms stay zero.
	assert.Equal(t, 0.0, c.Matrix().At(0, 5))
}

func TestMotionModel_UsableByFuser(t *testing.T) {
	m := NewMotionModel(scoreeval.DefaultConfig().Motion)
	c := m.CovarianceFor(scoreeval.PoseFromVector(scoreeval.Vector6{1, 0, 0, 0, 0, 0.1}))
	assert.True(t, scoreeval.Fuser{}.Usable(c))
}
