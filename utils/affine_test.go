package utils

import (
	"math"
	"testing"
)

func floatEq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAffineApplyInvert(t *testing.T) {
	tr, err := NewAffine([]float64{10, 0, 500000, 0, -10, 4200000})
	if err != nil {
		t.Fatalf("NewAffine failed: %v", err)
	}

	x, y := tr.Apply(0, 0)
	if x != 500000 || y != 4200000 {
		t.Errorf("origin mismatch: (%v, %v)", x, y)
	}

	x, y = tr.Apply(1000, 1000)
	if x != 510000 || y != 4190000 {
		t.Errorf("corner mismatch: (%v, %v)", x, y)
	}

	inv, err := tr.Invert()
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	col, row := inv.Apply(505000, 4195000)
	if !floatEq(col, 500, 1e-9) || !floatEq(row, 500, 1e-9) {
		t.Errorf("inverse mismatch: (%v, %v)", col, row)
	}
}

func TestAffineFromBounds(t *testing.T) {
	bounds := [4]float64{500000, 4190000, 510000, 4200000}
	tr := AffineFromBounds(bounds, 1000, 1000)
	if !floatEq(tr.A, 10, 1e-12) || !floatEq(tr.E, -10, 1e-12) {
		t.Errorf("unexpected resolution: a=%v e=%v", tr.A, tr.E)
	}
	if got := tr.Bounds(1000, 1000); got != bounds {
		t.Errorf("bounds round trip failed: %v", got)
	}
}

func TestWindowFromBounds(t *testing.T) {
	tr := AffineFromBounds([4]float64{500000, 4190000, 510000, 4200000}, 1000, 1000)
	win, err := tr.WindowFromBounds([4]float64{502000, 4196000, 505000, 4198000})
	if err != nil {
		t.Fatalf("WindowFromBounds failed: %v", err)
	}
	if !floatEq(win.Col0, 200, 1e-9) || !floatEq(win.Row0, 200, 1e-9) {
		t.Errorf("window origin mismatch: (%v, %v)", win.Col0, win.Row0)
	}
	if !floatEq(win.Width(), 300, 1e-9) || !floatEq(win.Height(), 200, 1e-9) {
		t.Errorf("window size mismatch: %vx%v", win.Width(), win.Height())
	}
}

func TestDefaultTransformIdentityCRS(t *testing.T) {
	bounds := [4]float64{500000, 4190000, 510000, 4200000}
	crs, _ := ParseCRS("EPSG:32633")
	tr, w, h, err := DefaultTransform(crs, crs, 1000, 1000, bounds)
	if err != nil {
		t.Fatalf("DefaultTransform failed: %v", err)
	}
	if w != 1000 || h != 1000 {
		t.Errorf("size changed under identity reprojection: %dx%d", w, h)
	}
	if !floatEq(tr.A, 10, 1e-9) {
		t.Errorf("resolution changed under identity reprojection: %v", tr.A)
	}
}

func TestDefaultTransformReprojectPreservesPixelCount(t *testing.T) {
	bounds := [4]float64{500000, 4190000, 510000, 4200000}
	utm, _ := ParseCRS("EPSG:32633")
	_, w, h, err := DefaultTransform(utm, CRSWebMercator, 1000, 1000, bounds)
	if err != nil {
		t.Fatalf("DefaultTransform failed: %v", err)
	}

	// The UTM grid near 37N stretches by roughly 1/cos(lat) in web
	// mercator; the suggested output keeps the max dimension at the
	// source pixel count.
	if w < 900 || w > 1100 || h < 900 || h > 1100 {
		t.Errorf("unexpected reprojected size: %dx%d", w, h)
	}
}
