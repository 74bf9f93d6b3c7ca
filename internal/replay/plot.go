package replay

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"

	"driftpursuit/netsync/internal/entity"
)

const (
	defaultPlotSize = 800
	plotPadding     = 24.0
	markerRadius    = 5.0
)

// PlotOptions size the rendered trajectory image.
type PlotOptions struct {
	Width  int
	Height int
}

// projection maps world coordinates onto image pixels with Y pointing up.
type projection struct {
	minX, minY float64
	scale      float64
	height     float64
}

func (p projection) point(s entity.State) (float64, float64) {
	x := plotPadding + (float64(s.X)-p.minX)*p.scale
	y := p.height - plotPadding - (float64(s.Y)-p.minY)*p.scale
	return x, y
}

func fit(frames []Frame, width, height int) projection {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, f := range frames {
		for _, s := range f.States {
			minX = math.Min(minX, float64(s.X))
			maxX = math.Max(maxX, float64(s.X))
			minY = math.Min(minY, float64(s.Y))
			maxY = math.Max(maxY, float64(s.Y))
		}
	}
	if math.IsInf(minX, 1) {
		minX, minY, maxX, maxY = 0, 0, 1, 1
	}
	spanX := math.Max(maxX-minX, 1e-3)
	spanY := math.Max(maxY-minY, 1e-3)
	scale := math.Min((float64(width)-2*plotPadding)/spanX, (float64(height)-2*plotPadding)/spanY)
	return projection{minX: minX, minY: minY, scale: scale, height: float64(height)}
}

func rgb(c uint32) color.RGBA {
	return color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 255}
}

// Plot draws every entity's rendered path in its own colour and marks where it ended.
func Plot(frames []Frame, opts PlotOptions) image.Image {
	return plot(frames, opts).Image()
}

// WritePNG encodes Plot(frames, opts) as a PNG.
func WritePNG(w io.Writer, frames []Frame, opts PlotOptions) error {
	return plot(frames, opts).EncodePNG(w)
}

func plot(frames []Frame, opts PlotOptions) *gg.Context {
	if opts.Width <= 0 {
		opts.Width = defaultPlotSize
	}
	if opts.Height <= 0 {
		opts.Height = defaultPlotSize
	}
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.DrawRectangle(0, 0, float64(opts.Width), float64(opts.Height))
	dc.Fill()

	proj := fit(frames, opts.Width, opts.Height)

	//1.- Collect each entity's path in render order.
	paths := entity.NewRegistry[[]entity.State]()
	for _, f := range frames {
		for _, s := range f.States {
			if path, err := paths.Get(s.EID); err == nil {
				*path = append(*path, s)
				continue
			}
			paths.Add(s.EID, []entity.State{s})
		}
	}

	//2.- Stroke the path, then mark the last sampled position.
	dc.SetLineWidth(2)
	for i := 0; i < paths.Len(); i++ {
		path := *paths.At(i)
		last := path[len(path)-1]
		dc.SetColor(rgb(last.Color))
		for j, s := range path {
			x, y := proj.point(s)
			if j == 0 {
				dc.MoveTo(x, y)
				continue
			}
			dc.LineTo(x, y)
		}
		dc.Stroke()
		x, y := proj.point(last)
		dc.DrawCircle(x, y, markerRadius)
		dc.Fill()
	}
	return dc
}
