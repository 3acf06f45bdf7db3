package strip

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

const metersToMM = 1000.0

var (
	unlitColor = color.RGBA{R: 60, G: 60, B: 60, A: 255} // LEDs with no store entry
	gridColor  = color.RGBA{R: 211, G: 211, B: 211, A: 255}
)

// LayoutRenderer draws a top-down view of the LED layout on the floor
// plane, with each LED in its current color and each tracked controller's ray
type LayoutRenderer struct {
	Catalog     *Catalog
	Padding     float64           // mm around the footprint
	LedRadius   float64           // mm
	RayLength   float64           // mm
	GridSpacing float64           // mm; 0 disables the grid
	Resolution  canvas.Resolution // for PNG output
}

// NewLayoutRenderer creates a renderer with default settings
func NewLayoutRenderer(catalog *Catalog) *LayoutRenderer {
	return &LayoutRenderer{
		Catalog:     catalog,
		Padding:     250.0,
		LedRadius:   20.0,
		RayLength:   1500.0,
		GridSpacing: 1000.0,
		Resolution:  canvas.DPI(25.4), // 1 px per mm
	}
}

type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the layout as SVG
func (r *LayoutRenderer) RenderToSVG(w io.Writer, snapshot map[int]LedState, agents []AgentStatus) error {
	bound, width, height, err := r.frame()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, bound, width, height, snapshot, agents)
	return svgRenderer.Close()
}

// RenderToPNG writes the layout as PNG
func (r *LayoutRenderer) RenderToPNG(w io.Writer, snapshot map[int]LedState, agents []AgentStatus) error {
	bound, width, height, err := r.frame()
	if err != nil {
		return err
	}

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, bound, width, height, snapshot, agents)
	return png.Encode(w, rast)
}

// frame returns the footprint in mm and the canvas size
func (r *LayoutRenderer) frame() (orb.Bound, float64, float64, error) {
	if r.Catalog == nil || r.Catalog.Len() == 0 {
		return orb.Bound{}, 0, 0, fmt.Errorf("no LED mapping to render")
	}
	b := r.Catalog.Footprint()
	bound := orb.Bound{
		Min: orb.Point{b.Min[0] * metersToMM, b.Min[1] * metersToMM},
		Max: orb.Point{b.Max[0] * metersToMM, b.Max[1] * metersToMM},
	}
	width := bound.Right() - bound.Left() + 2*r.Padding
	height := bound.Top() - bound.Bottom() + 2*r.Padding
	return bound, width, height, nil
}

func (r *LayoutRenderer) renderToCanvas(renderer canvasRenderer, bound orb.Bound, width, height float64, snapshot map[int]LedState, agents []AgentStatus) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(v r3.Vector) (float64, float64) {
		return v.X*metersToMM - bound.Left() + r.Padding, v.Z*metersToMM - bound.Bottom() + r.Padding
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: gridColor}
		gridStyle.StrokeWidth = 2.0
		gridStyle.Dashes = []float64{10.0, 10.0}

		for x := math.Ceil(bound.Left()/r.GridSpacing) * r.GridSpacing; x <= bound.Right(); x += r.GridSpacing {
			p := &canvas.Path{}
			p.MoveTo(x-bound.Left()+r.Padding, 0)
			p.LineTo(x-bound.Left()+r.Padding, height)
			renderer.RenderPath(p, gridStyle, canvas.Identity)
		}
		for y := math.Ceil(bound.Bottom()/r.GridSpacing) * r.GridSpacing; y <= bound.Top(); y += r.GridSpacing {
			p := &canvas.Path{}
			p.MoveTo(0, y-bound.Bottom()+r.Padding)
			p.LineTo(width, y-bound.Bottom()+r.Padding)
			renderer.RenderPath(p, gridStyle, canvas.Identity)
		}
	}

	// strip path in index order
	stripStyle := canvas.DefaultStyle
	stripStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	stripStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	stripStyle.StrokeWidth = 4.0
	stripPath := &canvas.Path{}
	first := true
	r.Catalog.Each(func(_ int, p r3.Vector) {
		x, y := toCanvas(p)
		if first {
			stripPath.MoveTo(x, y)
			first = false
		} else {
			stripPath.LineTo(x, y)
		}
	})
	renderer.RenderPath(stripPath, stripStyle, canvas.Identity)

	ledStyle := canvas.DefaultStyle
	ledStyle.Stroke = canvas.Paint{Color: canvas.Black}
	ledStyle.StrokeWidth = 2.0
	r.Catalog.Each(func(i int, p r3.Vector) {
		fill := unlitColor
		if st, ok := snapshot[i]; ok {
			fill = color.RGBA{R: st.Color.R, G: st.Color.G, B: st.Color.B, A: 255}
		}
		ledStyle.Fill = canvas.Paint{Color: fill}
		x, y := toCanvas(p)
		renderer.RenderPath(canvas.Circle(r.LedRadius).Translate(x, y), ledStyle, canvas.Identity)
	})

	for _, a := range agents {
		if !a.Connected {
			continue
		}
		c := color.RGBA{R: a.Color.R, G: a.Color.G, B: a.Color.B, A: 255}
		x, y := toCanvas(a.Position)

		rayStyle := canvas.DefaultStyle
		rayStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		rayStyle.Stroke = canvas.Paint{Color: c}
		rayStyle.StrokeWidth = 6.0
		if dx, dy, ok := floorDirection(a.Direction); ok {
			ray := &canvas.Path{}
			ray.MoveTo(x, y)
			ray.LineTo(x+dx*r.RayLength, y+dy*r.RayLength)
			renderer.RenderPath(ray, rayStyle, canvas.Identity)
		}

		controllerStyle := canvas.DefaultStyle
		controllerStyle.Fill = canvas.Paint{Color: c}
		controllerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		controllerStyle.StrokeWidth = 4.0
		renderer.RenderPath(canvas.Circle(2*r.LedRadius).Translate(x, y), controllerStyle, canvas.Identity)
	}
}

// floorDirection returns the unit direction on the floor plane
func floorDirection(v r3.Vector) (float64, float64, bool) {
	d := flatten(v)
	n := d.Norm()
	if n < 1e-9 {
		return 0, 0, false
	}
	return d.X / n, d.Y / n, true
}
