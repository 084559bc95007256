// Package geometry maps points between screen space and canvas space under a
// pan + uniform zoom viewport transform.
package geometry

import "math"

// Point is a 2D coordinate, either in screen or canvas space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p * k.
func (p Point) Scale(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Size is a width/height pair. The zero Size means "unset".
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether s is unset.
func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

// Viewport is the affine transform from canvas space to screen space:
// screen = canvas*Zoom + (X, Y).
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is the identity transform.
var DefaultViewport = Viewport{X: 0, Y: 0, Zoom: 1}

// Translation returns the pan offset as a point.
func (v Viewport) Translation() Point { return Point{X: v.X, Y: v.Y} }

// scale returns a zoom factor that is safe to divide by.
func (v Viewport) scale() float64 {
	if v.Zoom <= 0 || math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) {
		return 1
	}
	return v.Zoom
}

// ZoomLimits bounds the zoom factor a gesture may produce.
type ZoomLimits struct {
	Min float64
	Max float64
}

// DefaultZoomLimits matches the canvas defaults.
var DefaultZoomLimits = ZoomLimits{Min: 0.1, Max: 3}

// Clamp confines z to [Min, Max]. NaN clamps to Min.
func (l ZoomLimits) Clamp(z float64) float64 {
	if l.Min <= 0 || l.Max < l.Min {
		l = DefaultZoomLimits
	}
	if math.IsNaN(z) || z < l.Min {
		return l.Min
	}
	if z > l.Max {
		return l.Max
	}
	return z
}

// ScreenToCanvas converts a screen point to canvas coordinates.
func ScreenToCanvas(p Point, v Viewport) Point {
	return p.Sub(v.Translation()).Scale(1 / v.scale())
}

// CanvasToScreen converts a canvas point to screen coordinates.
func CanvasToScreen(p Point, v Viewport) Point {
	return p.Scale(v.scale()).Add(v.Translation())
}

// ZoomAt returns a viewport with zoom newZoom (clamped to limits) whose
// translation keeps the canvas point under focal fixed on screen.
func ZoomAt(v Viewport, focal Point, newZoom float64, limits ZoomLimits) Viewport {
	z := limits.Clamp(newZoom)
	anchor := ScreenToCanvas(focal, v)
	t := focal.Sub(anchor.Scale(z))
	return Viewport{X: t.X, Y: t.Y, Zoom: z}
}

// Pan translates v by a raw screen-space delta. Zoom is untouched.
func Pan(v Viewport, delta Point) Viewport {
	return Viewport{X: v.X + delta.X, Y: v.Y + delta.Y, Zoom: v.Zoom}
}

// VisibleCenter returns the canvas point shown at the centre of a screen of
// the given size.
func VisibleCenter(v Viewport, screen Size) Point {
	return ScreenToCanvas(Point{X: screen.Width / 2, Y: screen.Height / 2}, v)
}
