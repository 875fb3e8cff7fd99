package processor

import (
	"log"
	"strings"

	"golang.org/x/net/context"

	"github.com/edisonguo/govaluate"
	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/utils"
)

// CompositeRequest is one multi-variable read: an explicit variable
// list or a band-math expression, plus the shared output geometry.
type CompositeRequest struct {
	GeoRequest
	// Variables holds "group:variable" compound keys.
	Variables  []string
	Expression string
}

// SplitKey breaks a compound key into group path and variable name at
// the last colon. A bare variable name belongs to the root group.
func SplitKey(key string) (string, string) {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return "/", key
	}
	return key[:i], key[i+1:]
}

// ShortName returns the band label of a compound key.
func ShortName(key string) string {
	_, v := SplitKey(key)
	return v
}

func resolveVariables(dt *datatree.DataTree, req *CompositeRequest) ([]string, bool, error) {
	if req.Expression != "" {
		if len(req.Variables) > 0 {
			log.Printf("processor: both variables and expression supplied, expression wins")
		}
		vars, err := ParseExpression(req.Expression, dt.Variables)
		if err != nil {
			return nil, false, err
		}
		return vars, true, nil
	}
	if len(req.Variables) == 0 {
		return nil, false, &MissingVariablesError{}
	}
	return req.Variables, false, nil
}

// outputGeometry resolves the shared output grid of a composite read:
// destination CRS, bounds and pixel size. All variables of one
// request are resampled onto this grid.
func outputGeometry(dt *datatree.DataTree, g *datatree.Group, req *GeoRequest) ([4]float64, utils.CRS, int, int, error) {
	crs := req.DstCRS
	if crs.IsZero() {
		crs = g.CRS
	}

	bounds := req.Bounds
	if !req.HasBounds {
		var err error
		bounds, err = dt.GroupBounds(g.Path, crs)
		if err != nil {
			return bounds, crs, 0, 0, err
		}
	}

	finest := g.Finest()
	grid := finest.Transform
	if !crs.Equal(g.CRS) {
		nativeBounds := finest.Transform.Bounds(finest.Shape[1], finest.Shape[0])
		var err error
		grid, _, _, err = utils.DefaultTransform(g.CRS, crs, finest.Shape[1], finest.Shape[0], nativeBounds)
		if err != nil {
			return bounds, crs, 0, 0, err
		}
	}
	win, err := grid.WindowFromBounds(bounds)
	if err != nil {
		return bounds, crs, 0, 0, err
	}

	w, h := fitSize(req, win.Width(), win.Height())
	return bounds, crs, w, h, nil
}

type bandResult struct {
	img     *ImageData
	skipped bool
	err     error
}

func readOneVariable(dt *datatree.DataTree, key string, req *GeoRequest,
	outBounds [4]float64, outCRS utils.CRS, outW, outH int) bandResult {

	groupPath, variable := SplitKey(key)
	g, ok := dt.Group(groupPath)
	if !ok {
		return bandResult{err: &MissingVariablesError{Group: groupPath, Variables: []string{variable}}}
	}

	arr, level, err := GetVariable(dt, g, variable, req)
	if err != nil {
		return bandResult{err: err}
	}

	img, err := RasterizeVariable(arr, level, g.CRS, outBounds, outCRS, outW, outH)
	if err == ErrNoDataInBounds {
		log.Printf("processor: %s has no data in the requested bounds, skipping", key)
		return bandResult{skipped: true}
	}
	if err != nil {
		return bandResult{err: err}
	}
	return bandResult{img: img}
}

// Composite reads every requested variable onto one shared grid and
// stacks the results, band order matching request order. Variables
// with no data in the bounds are skipped; the read fails with
// ErrNoDataInBounds only when nothing survives.
func Composite(ctx context.Context, dt *datatree.DataTree, req *CompositeRequest, limiter *ConcLimiter) (*ImageData, error) {
	vars, usingExpr, err := resolveVariables(dt, req)
	if err != nil {
		return nil, err
	}

	firstGroup, _ := SplitKey(vars[0])
	g, ok := dt.Group(firstGroup)
	if !ok {
		return nil, &MissingVariablesError{Group: firstGroup, Variables: []string{ShortName(vars[0])}}
	}

	outBounds, outCRS, outW, outH, err := outputGeometry(dt, g, &req.GeoRequest)
	if err != nil {
		return nil, err
	}

	// Variable reads are independent; reassembly by index keeps the
	// band order deterministic.
	results := make([]bandResult, len(vars))
	for i, key := range vars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		limiter.Increase()
		go func(i int, key string) {
			defer limiter.Decrease()
			results[i] = readOneVariable(dt, key, &req.GeoRequest, outBounds, outCRS, outW, outH)
		}(i, key)
	}
	limiter.Wait()

	var images []*ImageData
	var kept []string
	for i, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		if res.skipped {
			continue
		}
		if usingExpr && res.img.NumBands() != 1 {
			return nil, &InvalidExpressionError{Expression: req.Expression}
		}
		images = append(images, res.img)
		kept = append(kept, vars[i])
	}
	if len(images) == 0 {
		return nil, ErrNoDataInBounds
	}

	if usingExpr {
		// Tag bands with the index tokens the tokenized expression
		// will reference.
		index := make(map[string]int, len(vars))
		for i, v := range vars {
			index[v] = i
		}
		for i, img := range images {
			img.RenameBand(0, VarToken(index[kept[i]]))
		}
		stacked, err := StackImages(images)
		if err != nil {
			return nil, err
		}
		out, err := ApplyExpression(stacked, SubstituteTokens(req.Expression, vars))
		if err != nil {
			return nil, err
		}
		out.RenameBand(0, RestoreTokens(out.Bands[0], vars))
		return out, nil
	}

	stacked, err := StackImages(images)
	if err != nil {
		return nil, err
	}
	for i, key := range kept {
		if stacked.NumBands() == len(kept) {
			stacked.RenameBand(i, ShortName(key))
		}
	}
	return stacked, nil
}

// PointData is the scalar counterpart of ImageData: one value per
// band at a single coordinate.
type PointData struct {
	X, Y  float64
	CRS   utils.CRS
	Bands []string
	Value []float64
	Valid []bool
}

// CompositePoint extracts per-variable values at one coordinate,
// honoring the same variable resolution, skip and expression policies
// as Composite. Scale selection falls back to the finest tier since
// there is no output raster to size.
func CompositePoint(ctx context.Context, dt *datatree.DataTree, req *CompositeRequest, x, y float64, limiter *ConcLimiter) (*PointData, error) {
	vars, usingExpr, err := resolveVariables(dt, req)
	if err != nil {
		return nil, err
	}

	ptCRS := req.DstCRS

	type ptResult struct {
		vals    []float64
		valid   []bool
		skipped bool
		err     error
	}
	results := make([]ptResult, len(vars))
	for i, key := range vars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		limiter.Increase()
		go func(i int, key string) {
			defer limiter.Decrease()
			groupPath, variable := SplitKey(key)
			g, ok := dt.Group(groupPath)
			if !ok {
				results[i] = ptResult{err: &MissingVariablesError{Group: groupPath, Variables: []string{variable}}}
				return
			}
			ptReq := *req
			ptReq.HasBounds = false
			ptReq.Width, ptReq.Height, ptReq.MaxSize = 0, 0, 0
			arr, level, err := GetVariable(dt, g, variable, &ptReq.GeoRequest)
			if err != nil {
				results[i] = ptResult{err: err}
				return
			}
			vals, valid, err := PointValue(arr, level, g.CRS, x, y, ptCRS)
			if err == ErrNoDataInBounds {
				log.Printf("processor: %s has no data at the requested point, skipping", key)
				results[i] = ptResult{skipped: true}
				return
			}
			if err != nil {
				results[i] = ptResult{err: err}
				return
			}
			results[i] = ptResult{vals: vals, valid: valid}
		}(i, key)
	}
	limiter.Wait()

	out := &PointData{X: x, Y: y, CRS: ptCRS}
	var kept []string
	for i, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		if res.skipped {
			continue
		}
		if usingExpr && len(res.vals) != 1 {
			return nil, &InvalidExpressionError{Expression: req.Expression}
		}
		kept = append(kept, vars[i])
		for b := range res.vals {
			name := ShortName(vars[i])
			if len(res.vals) > 1 {
				name = name + "_" + utils.FormatCoord(float64(b))
			}
			out.Bands = append(out.Bands, name)
			out.Value = append(out.Value, res.vals[b])
			out.Valid = append(out.Valid, res.valid[b])
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoDataInBounds
	}

	if usingExpr {
		return evalPointExpression(req.Expression, vars, kept, out)
	}
	return out, nil
}

func evalPointExpression(expr string, vars, kept []string, in *PointData) (*PointData, error) {
	index := make(map[string]int, len(vars))
	for i, v := range vars {
		index[v] = i
	}

	tokenExpr := SubstituteTokens(expr, vars)
	params := make(map[string]interface{}, len(kept))
	allValid := true
	for i, key := range kept {
		params[VarToken(index[key])] = in.Value[i]
		if !in.Valid[i] {
			allValid = false
		}
	}

	out := &PointData{X: in.X, Y: in.Y, CRS: in.CRS,
		Bands: []string{RestoreTokens(tokenExpr, vars)},
		Value: []float64{0}, Valid: []bool{false}}
	if !allValid {
		return out, nil
	}

	eval, err := govaluate.NewEvaluableExpression(tokenExpr)
	if err != nil {
		return nil, err
	}
	res, err := eval.Evaluate(params)
	if err != nil {
		return nil, err
	}
	if v, ok := numericResult(res); ok {
		out.Value[0] = v
		out.Valid[0] = true
	}
	return out, nil
}
