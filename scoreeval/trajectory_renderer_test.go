package scoreeval

import (
	"bytes"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
)

func renderTrajectories() map[Estimator][]Pose {
	trajectories := make(map[Estimator][]Pose)
	for i, e := range Estimators {
		var poses []Pose
		for k := 1; k <= 5; k++ {
			poses = append(poses, PoseFromVector(Vector6{float64(k), 0.1 * float64(i*k), 0, 0, 0, 0}))
		}
		trajectories[e] = poses
	}
	return trajectories
}

func TestTrajectoryRenderer_RenderToSVG(t *testing.T) {
	r := NewTrajectoryRenderer(renderTrajectories())

	var buf bytes.Buffer
	err := r.RenderToSVG(&buf)
	if err != nil {
		t.Fatalf("Failed to render to SVG: %v", err)
	}

	if buf.Len() == 0 {
		t.Fatal("SVG output is empty")
	}
	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Errorf("Output does not contain <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Errorf("Output does not contain path elements")
	}
}

func TestTrajectoryRenderer_RenderToPNG(t *testing.T) {
	r := NewTrajectoryRenderer(renderTrajectories())

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("Failed to render to PNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		t.Fatalf("Empty image: %v", bounds)
	}

	// The first legend swatch is the ground truth color.
	want := EstimatorColors()[GroundTruth]
	got := color.RGBAModel.Convert(img.At(15, 10)).(color.RGBA)
	if got != want {
		t.Errorf("legend swatch = %v, want %v", got, want)
	}
}

func TestTrajectoryRenderer_Empty(t *testing.T) {
	r := NewTrajectoryRenderer(map[Estimator][]Pose{})
	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err == nil {
		t.Error("expected error for empty trajectories")
	}
}

func TestTrajectoryRenderer_BoundsIncludeOrigin(t *testing.T) {
	r := NewTrajectoryRenderer(map[Estimator][]Pose{
		Odometry: {PoseFromVector(Vector6{5, 3, 0, 0, 0, 0}), PoseFromVector(Vector6{6, 4, 0, 0, 0, 0})},
	})
	b, err := r.worldBounds()
	if err != nil {
		t.Fatalf("worldBounds: %v", err)
	}
	if b.minX != 0 || b.minY != 0 || b.maxX != 6 || b.maxY != 4 {
		t.Errorf("bounds = %+v", b)
	}
	w, h := r.canvasSize(b)
	if w != 6*r.Scale+2*r.Padding || h != 4*r.Scale+2*r.Padding {
		t.Errorf("canvas size = %gx%g", w, h)
	}
}

func TestTrajectoryRenderer_Save(t *testing.T) {
	dir := t.TempDir()
	r := NewTrajectoryRenderer(renderTrajectories())
	if err := r.SaveSVG(filepath.Join(dir, "run.Ts.svg")); err != nil {
		t.Fatalf("SaveSVG: %v", err)
	}
	if err := r.SavePNG(filepath.Join(dir, "run.Ts.png")); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	if err := r.SavePNG(filepath.Join(dir, "missing", "run.Ts.png")); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}
