package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/utils"
)

var yAliases = []string{"lat", "latitude", "LAT", "LATITUDE", "Lat", "azimuth_time"}
var xAliases = []string{"lon", "longitude", "LON", "LONGITUDE", "Lon", "ground_range"}

// GetVariable materializes one variable of a group at the tier chosen
// for the request: a copy of the array with canonical y/x trailing
// dimensions, selectors applied and coordinates normalized. The
// returned tier carries the grid geometry of the slice.
func GetVariable(dt *datatree.DataTree, g *datatree.Group, variable string, req *GeoRequest) (*datatree.Array, *datatree.ScaleLevel, error) {
	scaleID, err := ResolveScale(g, variable, req)
	if err != nil {
		return nil, nil, err
	}
	level, _ := g.Scale(scaleID)

	arr, err := dt.ArrayAt(g.ScalePath(scaleID), variable)
	if err != nil {
		return nil, nil, &MissingVariablesError{Group: g.Path, Variables: []string{variable}}
	}
	arr = arr.Copy()

	for dim, raw := range req.Sel {
		val, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return nil, nil, fmt.Errorf("selector %s=%q is not numeric: %v", dim, raw, perr)
		}
		arr, err = arr.Sel(dim, val, req.SelMethod)
		if err != nil {
			return nil, nil, err
		}
	}

	// Tier CRS metadata may disagree within a group; the group CRS
	// is authoritative for every tier.
	if err := arrangeDims(arr, g.CRS); err != nil {
		return nil, nil, err
	}

	if nd := arr.NDim(); nd != 2 && nd != 3 {
		panic(fmt.Sprintf("processor: variable %s arranged to %d dims", variable, nd))
	}

	return arr, level, nil
}

// arrangeDims normalizes an array in place: canonical y/x/time
// dimension names, y and x as the trailing axes, valid_range promoted
// to valid_min/valid_max, and geographic x coordinates rewrapped into
// [-180, 180).
func arrangeDims(arr *datatree.Array, crs utils.CRS) error {
	if !arr.HasDim("y") {
		for _, alias := range yAliases {
			if arr.HasDim(alias) {
				arr.Rename(alias, "y")
				break
			}
		}
	}
	if !arr.HasDim("x") {
		for _, alias := range xAliases {
			if arr.HasDim(alias) {
				arr.Rename(alias, "x")
				break
			}
		}
	}
	if arr.HasDim("TIME") && !arr.HasDim("time") {
		arr.Rename("TIME", "time")
	}

	if !arr.HasDim("x") || !arr.HasDim("y") {
		return &DimensionError{Array: arr.Name}
	}

	order := make([]string, 0, arr.NDim())
	for _, d := range arr.Dims {
		if d != "y" && d != "x" {
			order = append(order, d)
		}
	}
	order = append(order, "y", "x")
	if err := arr.Transpose(order); err != nil {
		return err
	}

	promoteValidRange(arr)

	if crs.IsGeographic() {
		rewrapLongitudes(arr)
	}
	return nil
}

func promoteValidRange(arr *datatree.Array) {
	vr, ok := arr.Attrs["valid_range"].([]interface{})
	if !ok || len(vr) != 2 {
		return
	}
	lo, okLo := toFloat(vr[0])
	hi, okHi := toFloat(vr[1])
	if !okLo || !okHi {
		return
	}
	if _, has := arr.Attrs["valid_min"]; !has {
		arr.Attrs["valid_min"] = lo
	}
	if _, has := arr.Attrs["valid_max"]; !has {
		arr.Attrs["valid_max"] = hi
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// rewrapLongitudes shifts [0, 360) x coordinates into [-180, 180) and
// reorders the x axis ascending, keeping pixel values attached to
// their coordinates.
func rewrapLongitudes(arr *datatree.Array) {
	xs, ok := arr.Coords["x"]
	if !ok {
		return
	}
	over := false
	for _, x := range xs {
		if x > 180 {
			over = true
			break
		}
	}
	if !over {
		return
	}

	wrapped := make([]float64, len(xs))
	for i, x := range xs {
		wrapped[i] = math.Mod(x+180, 360) - 180
	}

	perm := make([]int, len(wrapped))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return wrapped[perm[i]] < wrapped[perm[j]] })

	newXs := make([]float64, len(wrapped))
	for i, p := range perm {
		newXs[i] = wrapped[p]
	}
	arr.Coords["x"] = newXs
	reorderLastAxis(arr, perm)
}

// reorderLastAxis permutes entries along the trailing axis.
func reorderLastAxis(arr *datatree.Array, perm []int) {
	n := arr.Shape[len(arr.Shape)-1]
	outer := arr.Size() / n
	newData := make([]float64, len(arr.Data))
	for o := 0; o < outer; o++ {
		base := o * n
		for i, p := range perm {
			newData[base+i] = arr.Data[base+p]
		}
	}
	arr.Data = newData
}
