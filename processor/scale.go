package processor

import (
	"log"
	"sort"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/utils"
)

// Strategy controls which neighbor wins when a target resolution falls
// between two scale tiers.
type Strategy int

const (
	// StrategyAuto rounds to the nearest tier, coarser on ties.
	StrategyAuto Strategy = iota
	// StrategyLower leans toward the coarser tier.
	StrategyLower
	// StrategyUpper leans toward the finer tier.
	StrategyUpper
)

func (s Strategy) percentage() float64 {
	switch s {
	case StrategyLower:
		return 100
	case StrategyUpper:
		return 0
	default:
		return 50
	}
}

// SelectScale picks the tier whose resolution best matches targetRes.
// The input is ordered finest first; the walk runs coarsest first over
// adjacent pairs and settles on a tier once the target clears the
// pair's threshold. A target finer than every tier, including the
// unconstrained target 0, falls through to the finest tier.
//
// The comparison keeps the exact > and == conditions relied on by
// callers at tier boundaries.
func SelectScale(scales []datatree.ScaleLevel, targetRes float64, strategy Strategy) string {
	if len(scales) == 1 {
		return scales[0].ID
	}

	sorted := make([]datatree.ScaleLevel, len(scales))
	copy(sorted, scales)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CellSize > sorted[j].CellSize })

	pct := strategy.percentage()
	for i := 0; i < len(sorted)-1; i++ {
		resCurrent := sorted[i].CellSize
		resFiner := sorted[i+1].CellSize
		threshold := resFiner - (resFiner-resCurrent)*pct/100
		if targetRes > threshold || targetRes == resCurrent {
			return sorted[i].ID
		}
	}
	return scales[0].ID
}

// SelectScaleForVariable runs the same selection restricted to the
// tiers that actually contain the variable.
func SelectScaleForVariable(g *datatree.Group, variable string, targetRes float64, strategy Strategy) (string, error) {
	var present []datatree.ScaleLevel
	for _, s := range g.Scales {
		if s.Variables[variable] {
			present = append(present, s)
		}
	}
	if len(present) == 0 {
		return "", &MissingVariablesError{Group: g.Path, Variables: []string{variable}}
	}
	return SelectScale(present, targetRes, strategy), nil
}

// GeoRequest carries the output-geometry constraints of one read.
// Bounds are expressed in DstCRS when DstCRS is set, otherwise in the
// group's native CRS.
type GeoRequest struct {
	Bounds    [4]float64
	HasBounds bool

	Width   int
	Height  int
	MaxSize int

	DstCRS utils.CRS

	Sel       map[string]string
	SelMethod datatree.SelMethod
	Strategy  Strategy
}

func (req *GeoRequest) unconstrained() bool {
	return !req.HasBounds && req.Width == 0 && req.Height == 0 && req.MaxSize == 0
}

// fitSize resolves the requested output size against a source window
// of winW x winH pixels. Explicit width and height win over max size.
func fitSize(req *GeoRequest, winW, winH float64) (int, int) {
	w, h := req.Width, req.Height
	switch {
	case w > 0 && h > 0:
		if req.MaxSize > 0 {
			log.Printf("processor: max_size ignored, width and height given")
		}
	case w > 0:
		h = iround(float64(w) * winH / winW)
	case h > 0:
		w = iround(float64(h) * winW / winH)
	case req.MaxSize > 0:
		ratio := float64(req.MaxSize) / winW
		if winH > winW {
			ratio = float64(req.MaxSize) / winH
		}
		if ratio > 1 {
			ratio = 1
		}
		w = iround(winW * ratio)
		h = iround(winH * ratio)
	default:
		w = iround(winW)
		h = iround(winH)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func iround(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}

// TargetResolution derives the native-CRS ground resolution implied by
// a request's output geometry against a group's finest tier. A zero
// return means the request carries no geometry constraint and the
// finest tier should win.
//
// With a destination CRS the derivation is a two-step round trip:
// build the suggested warp grid in the destination CRS, fit the
// requested size on that grid, then warp the fitted grid back to the
// native CRS and take its resolution. Scale selection always compares
// native cell sizes, while requested sizes are destination pixels.
func TargetResolution(g *datatree.Group, req *GeoRequest) (float64, error) {
	if req.unconstrained() {
		return 0, nil
	}

	finest := g.Finest()
	nativeBounds := finest.Transform.Bounds(finest.Shape[1], finest.Shape[0])

	if req.DstCRS.IsZero() || req.DstCRS.Equal(g.CRS) {
		win := utils.Window{Col1: float64(finest.Shape[1]), Row1: float64(finest.Shape[0])}
		bounds := nativeBounds
		if req.HasBounds {
			w, err := finest.Transform.WindowFromBounds(req.Bounds)
			if err != nil {
				return 0, err
			}
			win = w
			bounds = req.Bounds
		}
		outW, _ := fitSize(req, win.Width(), win.Height())
		return (bounds[2] - bounds[0]) / float64(outW), nil
	}

	dstTransform, dstW, dstH, err := utils.DefaultTransform(g.CRS, req.DstCRS, finest.Shape[1], finest.Shape[0], nativeBounds)
	if err != nil {
		return 0, err
	}

	outBounds := dstTransform.Bounds(dstW, dstH)
	if req.HasBounds {
		outBounds = req.Bounds
	}
	win, err := dstTransform.WindowFromBounds(outBounds)
	if err != nil {
		return 0, err
	}
	outW, outH := fitSize(req, win.Width(), win.Height())

	back, _, _, err := utils.DefaultTransform(req.DstCRS, g.CRS, outW, outH, outBounds)
	if err != nil {
		return 0, err
	}
	return back.XRes(), nil
}

// ResolveScale picks the tier serving a request for one variable of a
// group.
func ResolveScale(g *datatree.Group, variable string, req *GeoRequest) (string, error) {
	targetRes, err := TargetResolution(g, req)
	if err != nil {
		return "", err
	}
	return SelectScaleForVariable(g, variable, targetRes, req.Strategy)
}
