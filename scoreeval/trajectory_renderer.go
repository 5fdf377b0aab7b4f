package scoreeval

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// EstimatorColors returns a distinct stroke color per estimator.
func EstimatorColors() map[Estimator]color.RGBA {
	return map[Estimator]color.RGBA{
		GroundTruth:             {0, 0, 0, 255},       // Black
		Odometry:                {128, 128, 128, 255}, // Gray
		Registration:            {0, 0, 139, 255},     // Dark blue
		ConstrainedRegistration: {0, 100, 0, 255},     // Dark green
		PointSetAlignment:       {139, 0, 0, 255},     // Dark red
		FusedRegistration:       {184, 134, 11, 255},  // Dark goldenrod
		FusedPointSetAlignment:  {128, 0, 128, 255},   // Purple
	}
}

// TrajectoryRenderer draws trajectories top-down (x right, y up).
type TrajectoryRenderer struct {
	Trajectories map[Estimator][]Pose
	Colors       map[Estimator]color.RGBA
	Scale        float64           // Canvas millimeters per meter
	Padding      float64           // Padding in canvas millimeters
	StrokeWidth  float64           // Path width in canvas millimeters
	GridSpacing  float64           // Grid line spacing in meters; 0 disables
	Resolution   canvas.Resolution // Resolution for PNG output
}

// NewTrajectoryRenderer creates a renderer with default settings
func NewTrajectoryRenderer(trajectories map[Estimator][]Pose) *TrajectoryRenderer {
	return &TrajectoryRenderer{
		Trajectories: trajectories,
		Colors:       EstimatorColors(),
		Scale:        10.0,
		Padding:      10.0,
		StrokeWidth:  0.5,
		GridSpacing:  1.0,
		Resolution:   canvas.DPI(150),
	}
}

type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

type bounds struct {
	minX, minY, maxX, maxY float64
}

func (r *TrajectoryRenderer) worldBounds() (bounds, error) {
	// Every trajectory starts at the origin.
	b := bounds{}
	count := 0
	for _, poses := range r.Trajectories {
		for _, p := range poses {
			b.minX = math.Min(b.minX, p.Translation.X)
			b.minY = math.Min(b.minY, p.Translation.Y)
			b.maxX = math.Max(b.maxX, p.Translation.X)
			b.maxY = math.Max(b.maxY, p.Translation.Y)
			count++
		}
	}
	if count == 0 {
		return b, fmt.Errorf("no trajectory poses to render")
	}
	return b, nil
}

func (r *TrajectoryRenderer) canvasSize(b bounds) (float64, float64) {
	return (b.maxX-b.minX)*r.Scale + 2*r.Padding, (b.maxY-b.minY)*r.Scale + 2*r.Padding
}

// RenderToSVG writes the trajectories as an SVG to the provided writer
func (r *TrajectoryRenderer) RenderToSVG(w io.Writer) error {
	b, err := r.worldBounds()
	if err != nil {
		return err
	}
	width, height := r.canvasSize(b)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, b, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the trajectories as a PNG with a text legend.
func (r *TrajectoryRenderer) RenderToPNG(w io.Writer) error {
	b, err := r.worldBounds()
	if err != nil {
		return err
	}
	width, height := r.canvasSize(b)

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, b, width, height)
	r.drawLegend(rast)

	return png.Encode(w, rast)
}

func (r *TrajectoryRenderer) renderToCanvas(renderer canvasRenderer, b bounds, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(x, y float64) (float64, float64) {
		return (x-b.minX)*r.Scale + r.Padding, (y-b.minY)*r.Scale + r.Padding
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: color.RGBA{211, 211, 211, 255}}
		gridStyle.StrokeWidth = r.StrokeWidth / 2
		gridStyle.Dashes = []float64{1.0, 1.0}

		for x := math.Ceil(b.minX/r.GridSpacing) * r.GridSpacing; x <= b.maxX; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(toCanvas(x, b.minY))
			gridPath.LineTo(toCanvas(x, b.maxY))
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
		for y := math.Ceil(b.minY/r.GridSpacing) * r.GridSpacing; y <= b.maxY; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(toCanvas(b.minX, y))
			gridPath.LineTo(toCanvas(b.maxX, y))
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Fixed order so overlapping paths stack the same way every run.
	for _, e := range Estimators {
		poses := r.Trajectories[e]
		if len(poses) == 0 {
			continue
		}
		c := r.Colors[e]

		lineStyle := canvas.DefaultStyle
		lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		lineStyle.Stroke = canvas.Paint{Color: c}
		lineStyle.StrokeWidth = r.StrokeWidth

		path := &canvas.Path{}
		path.MoveTo(toCanvas(0, 0))
		for _, p := range poses {
			path.LineTo(toCanvas(p.Translation.X, p.Translation.Y))
		}
		renderer.RenderPath(path, lineStyle, canvas.Identity)

		endStyle := canvas.DefaultStyle
		endStyle.Fill = canvas.Paint{Color: c}
		endStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		last := poses[len(poses)-1].Translation
		cx, cy := toCanvas(last.X, last.Y)
		renderer.RenderPath(canvas.Circle(2*r.StrokeWidth).Translate(cx, cy), endStyle, canvas.Identity)
	}
}

// drawLegend writes one colored label per estimator in the top-left corner.
func (r *TrajectoryRenderer) drawLegend(img draw.Image) {
	y := 15
	for _, e := range Estimators {
		if len(r.Trajectories[e]) == 0 {
			continue
		}
		c := r.Colors[e]
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-10, c)
			}
		}
		drawText(img, 28, y, e.Suffix(), color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// SaveSVG writes the SVG rendering to path
func (r *TrajectoryRenderer) SaveSVG(path string) error {
	return writeFile(path, r.RenderToSVG)
}

// SavePNG writes the PNG rendering to path
func (r *TrajectoryRenderer) SavePNG(path string) error {
	return writeFile(path, r.RenderToPNG)
}
