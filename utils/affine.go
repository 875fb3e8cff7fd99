package utils

import (
	"fmt"
	"math"
	"strconv"
)

// Affine is a 6-parameter map from pixel space to CRS coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// Parameter order follows the spatial:transform convention
// (a, b, c, d, e, f). For north-up rasters B and D are zero and E is
// negative.
type Affine struct {
	A, B, C, D, E, F float64
}

func NewAffine(params []float64) (Affine, error) {
	if len(params) != 6 {
		return Affine{}, fmt.Errorf("affine: expected 6 parameters, got %d", len(params))
	}
	return Affine{params[0], params[1], params[2], params[3], params[4], params[5]}, nil
}

// AffineFromBounds computes the north-up transform covering bounds
// (xmin, ymin, xmax, ymax) with the given raster size.
func AffineFromBounds(bounds [4]float64, width, height int) Affine {
	return Affine{
		A: (bounds[2] - bounds[0]) / float64(width),
		B: 0,
		C: bounds[0],
		D: 0,
		E: -(bounds[3] - bounds[1]) / float64(height),
		F: bounds[3],
	}
}

func (t Affine) Apply(col, row float64) (float64, float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Invert returns the CRS-to-pixel transform.
func (t Affine) Invert() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 {
		return Affine{}, fmt.Errorf("affine: transform is not invertible")
	}
	inv := Affine{
		A: t.E / det,
		B: -t.B / det,
		D: -t.D / det,
		E: t.A / det,
	}
	inv.C = -(inv.A*t.C + inv.B*t.F)
	inv.F = -(inv.D*t.C + inv.E*t.F)
	return inv, nil
}

func (t Affine) XRes() float64 { return math.Abs(t.A) }
func (t Affine) YRes() float64 { return math.Abs(t.E) }

// Bounds returns (xmin, ymin, xmax, ymax) covered by a raster of the
// given size under this transform.
func (t Affine) Bounds(width, height int) [4]float64 {
	x0, y0 := t.Apply(0, 0)
	x1, y1 := t.Apply(float64(width), float64(height))
	return [4]float64{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// Window is a fractional pixel window within a raster.
type Window struct {
	Col0, Row0 float64
	Col1, Row1 float64
}

func (w Window) Width() float64  { return math.Abs(w.Col1 - w.Col0) }
func (w Window) Height() float64 { return math.Abs(w.Row1 - w.Row0) }

// WindowFromBounds maps CRS bounds onto the pixel grid of this
// transform. The window may extend outside the raster.
func (t Affine) WindowFromBounds(bounds [4]float64) (Window, error) {
	inv, err := t.Invert()
	if err != nil {
		return Window{}, err
	}
	c0, r0 := inv.Apply(bounds[0], bounds[3])
	c1, r1 := inv.Apply(bounds[2], bounds[1])
	return Window{
		Col0: math.Min(c0, c1), Row0: math.Min(r0, r1),
		Col1: math.Max(c0, c1), Row1: math.Max(r0, r1),
	}, nil
}

// DefaultTransform computes the transform and size of a raster
// reprojected from srcCRS to dstCRS, keeping roughly the source pixel
// count. This mirrors the suggested-warp-output calculation used by
// warping tools.
func DefaultTransform(srcCRS, dstCRS CRS, width, height int, bounds [4]float64) (Affine, int, int, error) {
	if width <= 0 || height <= 0 {
		return Affine{}, 0, 0, fmt.Errorf("affine: invalid source size %dx%d", width, height)
	}

	dstBounds, err := TransformBounds(srcCRS, dstCRS, bounds, 21)
	if err != nil {
		return Affine{}, 0, 0, err
	}

	xres := (dstBounds[2] - dstBounds[0]) / float64(width)
	yres := (dstBounds[3] - dstBounds[1]) / float64(height)
	res := math.Max(xres, yres)
	if res <= 0 || math.IsNaN(res) || math.IsInf(res, 0) {
		return Affine{}, 0, 0, fmt.Errorf("affine: degenerate reprojected bounds %v", dstBounds)
	}

	dstWidth := int(math.Ceil((dstBounds[2] - dstBounds[0]) / res))
	dstHeight := int(math.Ceil((dstBounds[3] - dstBounds[1]) / res))
	if dstWidth < 1 {
		dstWidth = 1
	}
	if dstHeight < 1 {
		dstHeight = 1
	}

	transform := Affine{A: res, C: dstBounds[0], E: -res, F: dstBounds[3]}
	return transform, dstWidth, dstHeight, nil
}

// FormatCoord renders a coordinate value compactly for labels.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
