package geometry

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

const eps = 1e-6

func near(a, b Point) bool {
	tol := eps * math.Max(1, math.Max(math.Abs(a.X)+math.Abs(a.Y), math.Abs(b.X)+math.Abs(b.Y)))
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

func pointGen(label string) *rapid.Generator[Point] {
	return rapid.Custom(func(t *rapid.T) Point {
		return Point{
			X: rapid.Float64Range(-1e5, 1e5).Draw(t, label+".x"),
			Y: rapid.Float64Range(-1e5, 1e5).Draw(t, label+".y"),
		}
	})
}

func viewportGen() *rapid.Generator[Viewport] {
	return rapid.Custom(func(t *rapid.T) Viewport {
		return Viewport{
			X:    rapid.Float64Range(-1e4, 1e4).Draw(t, "vx"),
			Y:    rapid.Float64Range(-1e4, 1e4).Draw(t, "vy"),
			Zoom: rapid.Float64Range(0.1, 3).Draw(t, "zoom"),
		}
	})
}

func TestScreenCanvasRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := viewportGen().Draw(t, "viewport")
		p := pointGen("p").Draw(t, "screen")

		got := CanvasToScreen(ScreenToCanvas(p, v), v)
		if !near(got, p) {
			t.Fatalf("round trip %v -> %v under %+v", p, got, v)
		}
	})
}

func TestZoomAnchoring(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := viewportGen().Draw(t, "viewport")
		f := pointGen("f").Draw(t, "focal")
		z := rapid.Float64Range(0.1, 3).Draw(t, "target")

		next := ZoomAt(v, f, z, DefaultZoomLimits)
		got := CanvasToScreen(ScreenToCanvas(f, v), next)
		if !near(got, f) {
			t.Fatalf("focal moved: %v -> %v (v=%+v next=%+v)", f, got, v, next)
		}
		if next.Zoom != z {
			t.Fatalf("zoom = %v, want %v", next.Zoom, z)
		}
	})
}

func TestZoomAt_Clamps(t *testing.T) {
	v := DefaultViewport
	if got := ZoomAt(v, Point{}, 10, DefaultZoomLimits).Zoom; got != 3 {
		t.Errorf("zoom = %v, want 3", got)
	}
	if got := ZoomAt(v, Point{}, -1, DefaultZoomLimits).Zoom; got != 0.1 {
		t.Errorf("zoom = %v, want 0.1", got)
	}
	if got := ZoomAt(v, Point{}, math.NaN(), DefaultZoomLimits).Zoom; got != 0.1 {
		t.Errorf("NaN zoom = %v, want 0.1", got)
	}
}

func TestZoomAt_WheelScenario(t *testing.T) {
	v := Viewport{X: 0, Y: 0, Zoom: 1}
	f := Point{X: 400, Y: 300}
	next := ZoomAt(v, f, 2, DefaultZoomLimits)

	if next.X != -400 || next.Y != -300 || next.Zoom != 2 {
		t.Fatalf("viewport = %+v, want {-400 -300 2}", next)
	}
	if got := CanvasToScreen(ScreenToCanvas(f, v), next); !near(got, f) {
		t.Errorf("anchor drifted to %v", got)
	}
}

func TestScreenToCanvas_ZeroZoomIsIdentityScale(t *testing.T) {
	got := ScreenToCanvas(Point{X: 10, Y: 20}, Viewport{X: 5, Y: 5})
	if got != (Point{X: 5, Y: 15}) {
		t.Errorf("got %v", got)
	}
}

func TestPan(t *testing.T) {
	v := Pan(Viewport{X: 1, Y: 2, Zoom: 2}, Point{X: 10, Y: -5})
	if v != (Viewport{X: 11, Y: -3, Zoom: 2}) {
		t.Errorf("pan = %+v", v)
	}
}

func TestVisibleCenter(t *testing.T) {
	v := Viewport{X: -100, Y: -50, Zoom: 2}
	got := VisibleCenter(v, Size{Width: 800, Height: 600})
	want := Point{X: 250, Y: 175}
	if got != want {
		t.Errorf("center = %v, want %v", got, want)
	}
}

func TestClamp_InvalidLimitsFallBack(t *testing.T) {
	if got := (ZoomLimits{}).Clamp(5); got != 3 {
		t.Errorf("clamp = %v, want 3", got)
	}
}
