package scoreeval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func uniformCovariance(v float64) Covariance {
	return DiagonalCovariance(Vector6{v, v, v, v, v, v})
}

func TestFuser_Usable(t *testing.T) {
	nan := uniformCovariance(1)
	nan.Matrix().SetSym(2, 3, math.NaN())

	tests := []struct {
		name string
		cov  Covariance
		want bool
	}{
		{"unavailable", Covariance{}, false},
		{"identity", uniformCovariance(1), true},
		{"small but well conditioned", uniformCovariance(1e-9), true},
		{"ill conditioned", DiagonalCovariance(Vector6{1, 1, 1, 1, 1, 1e-14}), false},
		{"singular", DiagonalCovariance(Vector6{1, 1, 1, 1, 1, 0}), false},
		{"not finite", nan, false},
		{"wrong size", NewCovariance(mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultFuser.Usable(tt.cov))
		})
	}
}

func TestFuser_MaxConditionIsConfigurable(t *testing.T) {
	c := DiagonalCovariance(Vector6{1, 1, 1, 1, 1, 1e-3})
	assert.True(t, DefaultFuser.Usable(c))
	assert.False(t, Fuser{MaxCondition: 100}.Usable(c))
}

func TestFuse_EqualCovariancesAverage(t *testing.T) {
	a := PoseFromVector(Vector6{0, 0, 0, 0, 0, 0})
	b := PoseFromVector(Vector6{2, -1, 0.5, 0, 0, 0.2})

	fused, cov := DefaultFuser.FuseWithCovariance(a, uniformCovariance(1), b, uniformCovariance(1))
	want := Vector6{1, -0.5, 0.25, 0, 0, 0.1}
	got := fused.Vector()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "axis %d", i)
	}

	require.True(t, cov.Available())
	for i := 0; i < NumAxes; i++ {
		for j := 0; j < NumAxes; j++ {
			want := 0.0
			if i == j {
				want = 0.5
			}
			assert.InDelta(t, want, cov.Matrix().At(i, j), 1e-12)
		}
	}
}

func TestFuse_WeightsByInformation(t *testing.T) {
	a := PoseFromVector(Vector6{4, 0, 0, 0, 0, 0})
	b := PoseFromVector(Vector6{0, 0, 0, 0, 0, 0})

	// Σa = 1, Σb = 3: x = (xa + xb/3) / (4/3).
	fused := DefaultFuser.Fuse(a, uniformCovariance(1), b, uniformCovariance(3))
	assert.InDelta(t, 3, fused.Vector()[AxisX], 1e-9)
}

func TestFuse_UninformativeFirstEstimate(t *testing.T) {
	va := Vector6{1, 2, -1, 0.2, -0.1, 0.3}
	vb := Vector6{3, -1, 0.5, 0, 0.1, -0.2}
	a, b := PoseFromVector(va), PoseFromVector(vb)

	prevErr := math.Inf(1)
	for _, s := range []float64{1e3, 1e6, 1e9} {
		fused, cov := DefaultFuser.FuseWithCovariance(a, uniformCovariance(s), b, uniformCovariance(1))
		got := fused.Vector()

		// x = (xa/s + xb) / (1/s + 1); the pull towards a decays as 1/s.
		maxErr := 0.0
		for i := range vb {
			want := (va[i] + s*vb[i]) / (1 + s)
			assert.InDelta(t, want, got[i], 1e-9, "s=%g axis %s", s, AxisNames[i])
			diff := math.Abs(got[i] - vb[i])
			assert.LessOrEqual(t, diff, 2*math.Abs(va[i]-vb[i])/s, "s=%g axis %s", s, AxisNames[i])
			maxErr = math.Max(maxErr, diff)
		}
		assert.Less(t, maxErr, prevErr, "s=%g", s)
		prevErr = maxErr

		require.True(t, cov.Available())
		assert.InDelta(t, s/(1+s), cov.Matrix().At(0, 0), 1e-9)
	}
}

func TestFuse_FallsBackToSecondPose(t *testing.T) {
	a := PoseFromVector(Vector6{1, 0, 0, 0, 0, 0})
	b := PoseFromVector(Vector6{5, 0, 0, 0, 0, 0.3})
	covB := uniformCovariance(2)

	tests := []struct {
		name       string
		covA, covB Covariance
	}{
		{"first unavailable", Covariance{}, covB},
		{"second unavailable", uniformCovariance(1), Covariance{}},
		{"both unavailable", Covariance{}, Covariance{}},
		{"first ill conditioned", DiagonalCovariance(Vector6{1, 1, 1, 1, 1, 1e-15}), covB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fused, cov := DefaultFuser.FuseWithCovariance(a, tt.covA, b, tt.covB)
			assert.Equal(t, b, fused)
			assert.Equal(t, tt.covB, cov)
		})
	}
}

func TestFuse_UnwrapsAngles(t *testing.T) {
	a := PoseFromVector(Vector6{AxisYaw: math.Pi - 0.1})
	b := PoseFromVector(Vector6{AxisYaw: -math.Pi + 0.1})

	fused := DefaultFuser.Fuse(a, uniformCovariance(1), b, uniformCovariance(1))
	assertPoseNear(t, PoseFromVector(Vector6{AxisYaw: math.Pi}), fused)
}

func TestUnwrapNear(t *testing.T) {
	v := unwrapNear(Vector6{1, 2, 3, -3, 0.5, 3}, Vector6{0, 0, 0, 3, 0.4, -3})
	assert.Equal(t, 1.0, v[AxisX], "translations are untouched")
	assert.InDelta(t, -3+2*math.Pi, v[AxisRoll], 1e-12)
	assert.InDelta(t, 0.5, v[AxisPitch], 1e-12)
	assert.InDelta(t, 3-2*math.Pi, v[AxisYaw], 1e-12)
}

func TestNewCovariance_Copies(t *testing.T) {
	m := mat.NewSymDense(NumAxes, nil)
	for i := 0; i < NumAxes; i++ {
		m.SetSym(i, i, 1)
	}
	c := NewCovariance(m)
	m.SetSym(0, 0, 100)
	assert.Equal(t, 1.0, c.Matrix().At(0, 0))

	assert.False(t, NewCovariance(nil).Available())
	assert.Nil(t, Covariance{}.Matrix())
}
