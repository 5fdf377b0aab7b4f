package scoreeval

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// surfaceGrid adapts row segments to plotter.GridXYZ. Columns follow
// the outer axis, rows the inner one.
type surfaceGrid struct {
	segments [][]SurfacePoint
}

func (g surfaceGrid) Dims() (c, r int) {
	return len(g.segments), len(g.segments[0])
}

func (g surfaceGrid) Z(c, r int) float64 {
	return g.segments[c][r].Score
}

func (g surfaceGrid) X(c int) float64 {
	return g.segments[c][0].A
}

func (g surfaceGrid) Y(r int) float64 {
	return g.segments[0][r].B
}

type markerStyle struct {
	color color.Color
	shape draw.GlyphDrawer
}

var surfaceMarkers = map[Estimator]markerStyle{
	GroundTruth:             {color.RGBA{0, 0, 0, 255}, draw.CrossGlyph{}},
	Registration:            {color.RGBA{0, 0, 139, 255}, draw.CircleGlyph{}},
	ConstrainedRegistration: {color.RGBA{0, 100, 0, 255}, draw.SquareGlyph{}},
	PointSetAlignment:       {color.RGBA{139, 0, 0, 255}, draw.TriangleGlyph{}},
	FusedRegistration:       {color.RGBA{184, 134, 11, 255}, draw.PlusGlyph{}},
	FusedPointSetAlignment:  {color.RGBA{128, 0, 128, 255}, draw.RingGlyph{}},
}

// SurfacePlot renders the objective surface of one pair as a heat map with
// a marker for each estimate in the odometry frame.
type SurfacePlot struct {
	Constrained bool
	Width       vg.Length
	Height      vg.Length
	Colors      int
}

// NewSurfacePlot returns a plotter with default size and palette.
func NewSurfacePlot(constrained bool) *SurfacePlot {
	return &SurfacePlot{
		Constrained: constrained,
		Width:       8 * vg.Inch,
		Height:      7 * vg.Inch,
		Colors:      64,
	}
}

// Build assembles the plot without writing it.
func (sp *SurfacePlot) Build(res *PairResult) (*plot.Plot, error) {
	segments, err := SurfaceSegments(res.Samples, res.AxisA, res.AxisB, sp.Constrained)
	if err != nil {
		return nil, err
	}
	if len(segments) < 2 || len(segments[0]) < 2 {
		return nil, fmt.Errorf("surface of pair %d_%d is too small to plot (%d rows)", res.Pair.Fixed, res.Pair.Moving, len(segments))
	}
	for i, seg := range segments {
		if len(seg) != len(segments[0]) {
			return nil, fmt.Errorf("surface row %d has %d samples, want %d", i, len(seg), len(segments[0]))
		}
	}

	p := plot.New()
	score := "plain"
	if sp.Constrained {
		score = "constrained"
	}
	p.Title.Text = fmt.Sprintf("Pair %d_%d %s score", res.Pair.Fixed, res.Pair.Moving, score)
	p.X.Label.Text = AxisNames[res.AxisA]
	p.Y.Label.Text = AxisNames[res.AxisB]

	heat := plotter.NewHeatMap(surfaceGrid{segments: segments}, palette.Heat(sp.Colors, 1))
	p.Add(heat)

	for _, e := range Estimators {
		style, ok := surfaceMarkers[e]
		if !ok {
			continue
		}
		if _, ok := res.Estimates[e]; !ok {
			continue
		}
		v := res.InOdometryFrame(e).Vector()
		marker, err := plotter.NewScatter(plotter.XYs{{X: v[res.AxisA], Y: v[res.AxisB]}})
		if err != nil {
			return nil, fmt.Errorf("marker %s: %w", e, err)
		}
		marker.GlyphStyle.Color = style.color
		marker.GlyphStyle.Shape = style.shape
		marker.GlyphStyle.Radius = vg.Points(4)
		p.Add(marker)
		p.Legend.Add(e.Suffix(), marker)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// Save writes the plot to path; the format follows the file extension.
func (sp *SurfacePlot) Save(path string, res *PairResult) error {
	p, err := sp.Build(res)
	if err != nil {
		return err
	}
	if err := p.Save(sp.Width, sp.Height, path); err != nil {
		return fmt.Errorf("save surface plot: %w", err)
	}
	return nil
}
