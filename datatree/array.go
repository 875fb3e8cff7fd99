package datatree

import (
	"fmt"
	"sort"
	"strconv"
)

// Attrs is the free-form attribute bag attached to nodes and arrays.
type Attrs map[string]interface{}

func (a Attrs) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (a Attrs) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Array is an in-memory labeled n-dimensional array: flat row-major
// data plus dimension names, per-dimension coordinates and attributes.
// Chunk decoding happens in the store layer before an Array is handed
// out; this type never touches codecs.
type Array struct {
	Name  string
	Dims  []string
	Shape []int
	// Coords holds the 1-D coordinate values for dimensions that
	// have them (x, y, time as epoch seconds).
	Coords map[string][]float64
	Data   []float64
	Attrs  Attrs

	NoData    float64
	HasNoData bool
}

func (a *Array) NDim() int { return len(a.Dims) }

func (a *Array) Size() int {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

func (a *Array) dimIndex(name string) int {
	for i, d := range a.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// HasDim reports whether the array carries the named dimension.
func (a *Array) HasDim(name string) bool { return a.dimIndex(name) >= 0 }

// At returns the value at the given multi-index.
func (a *Array) At(idx ...int) float64 {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("array %s: index rank %d against shape rank %d", a.Name, len(idx), len(a.Shape)))
	}
	flat := 0
	for i, ix := range idx {
		flat = flat*a.Shape[i] + ix
	}
	return a.Data[flat]
}

// Copy returns a deep copy sharing no state with the receiver.
func (a *Array) Copy() *Array {
	out := &Array{
		Name:      a.Name,
		Dims:      append([]string(nil), a.Dims...),
		Shape:     append([]int(nil), a.Shape...),
		Coords:    make(map[string][]float64, len(a.Coords)),
		Data:      append([]float64(nil), a.Data...),
		Attrs:     make(Attrs, len(a.Attrs)),
		NoData:    a.NoData,
		HasNoData: a.HasNoData,
	}
	for k, v := range a.Coords {
		out.Coords[k] = append([]float64(nil), v...)
	}
	for k, v := range a.Attrs {
		out.Attrs[k] = v
	}
	return out
}

// Rename relabels a dimension in place, carrying its coordinates.
func (a *Array) Rename(from, to string) {
	i := a.dimIndex(from)
	if i < 0 {
		return
	}
	a.Dims[i] = to
	if c, ok := a.Coords[from]; ok {
		a.Coords[to] = c
		delete(a.Coords, from)
	}
}

// Transpose reorders dimensions into the supplied order, which must be
// a permutation of the current dimensions.
func (a *Array) Transpose(order []string) error {
	if len(order) != len(a.Dims) {
		return fmt.Errorf("array %s: transpose order %v against dims %v", a.Name, order, a.Dims)
	}
	perm := make([]int, len(order))
	for i, name := range order {
		j := a.dimIndex(name)
		if j < 0 {
			return fmt.Errorf("array %s: transpose order references unknown dim %q", a.Name, name)
		}
		perm[i] = j
	}

	same := true
	for i, p := range perm {
		if p != i {
			same = false
			break
		}
	}
	if same {
		return nil
	}

	newShape := make([]int, len(perm))
	for i, p := range perm {
		newShape[i] = a.Shape[p]
	}

	oldStrides := make([]int, len(a.Shape))
	stride := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		oldStrides[i] = stride
		stride *= a.Shape[i]
	}

	newData := make([]float64, len(a.Data))
	idx := make([]int, len(newShape))
	for flat := range newData {
		src := 0
		for i, p := range perm {
			src += idx[i] * oldStrides[p]
		}
		newData[flat] = a.Data[src]

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < newShape[i] {
				break
			}
			idx[i] = 0
		}
	}

	a.Data = newData
	a.Shape = newShape
	newDims := make([]string, len(order))
	copy(newDims, order)
	a.Dims = newDims
	return nil
}

// SelMethod controls how a selector value is matched against a
// coordinate axis.
type SelMethod string

const (
	SelNearest  SelMethod = "nearest"
	SelPad      SelMethod = "pad"
	SelFFill    SelMethod = "ffill"
	SelBackfill SelMethod = "backfill"
	SelBFill    SelMethod = "bfill"
)

// selIndex resolves a coordinate value to an index along an ascending
// or descending axis.
func selIndex(coords []float64, val float64, method SelMethod) (int, error) {
	if len(coords) == 0 {
		return 0, fmt.Errorf("empty coordinate axis")
	}

	asc := len(coords) < 2 || coords[0] <= coords[len(coords)-1]
	// Position of the first coordinate >= val in ascending order.
	var pos int
	if asc {
		pos = sort.SearchFloat64s(coords, val)
	} else {
		pos = sort.Search(len(coords), func(i int) bool { return coords[i] <= val })
	}

	exactAt := -1
	if pos < len(coords) && coords[pos] == val {
		exactAt = pos
	}
	if exactAt >= 0 {
		return exactAt, nil
	}

	// lower: last coordinate <= val; upper: first coordinate >= val
	// (in value order, independent of axis direction).
	lower, upper := pos-1, pos
	if !asc {
		lower, upper = pos, pos-1
	}

	switch method {
	case SelPad, SelFFill:
		if lower < 0 || lower >= len(coords) || coords[lower] > val {
			return 0, fmt.Errorf("value %v below axis range", val)
		}
		return lower, nil
	case SelBackfill, SelBFill:
		if upper < 0 || upper >= len(coords) || coords[upper] < val {
			return 0, fmt.Errorf("value %v above axis range", val)
		}
		return upper, nil
	default: // nearest
		if lower < 0 || lower >= len(coords) {
			if upper < 0 || upper >= len(coords) {
				return 0, fmt.Errorf("value %v outside axis", val)
			}
			return upper, nil
		}
		if upper < 0 || upper >= len(coords) {
			return lower, nil
		}
		if val-coords[lower] <= coords[upper]-val {
			return lower, nil
		}
		return upper, nil
	}
}

// Sel reduces the named dimension to the entry matching val, using the
// given method (nearest by default).
func (a *Array) Sel(dim string, val float64, method SelMethod) (*Array, error) {
	di := a.dimIndex(dim)
	if di < 0 {
		return nil, fmt.Errorf("array %s: no dimension %q", a.Name, dim)
	}
	coords, ok := a.Coords[dim]
	if !ok {
		return nil, fmt.Errorf("array %s: dimension %q has no coordinates", a.Name, dim)
	}
	if method == "" {
		method = SelNearest
	}
	ix, err := selIndex(coords, val, method)
	if err != nil {
		return nil, fmt.Errorf("array %s: selecting %s=%v: %v", a.Name, dim, val, err)
	}
	return a.isel(di, ix), nil
}

// isel drops dimension di, keeping only entry ix along it.
func (a *Array) isel(di, ix int) *Array {
	out := &Array{
		Name:      a.Name,
		Attrs:     a.Attrs,
		NoData:    a.NoData,
		HasNoData: a.HasNoData,
		Coords:    make(map[string][]float64, len(a.Coords)),
	}
	for i, d := range a.Dims {
		if i == di {
			continue
		}
		out.Dims = append(out.Dims, d)
		out.Shape = append(out.Shape, a.Shape[i])
	}
	for k, v := range a.Coords {
		if k != a.Dims[di] {
			out.Coords[k] = v
		}
	}

	outer := 1
	for i := 0; i < di; i++ {
		outer *= a.Shape[i]
	}
	inner := 1
	for i := di + 1; i < len(a.Shape); i++ {
		inner *= a.Shape[i]
	}

	out.Data = make([]float64, outer*inner)
	for o := 0; o < outer; o++ {
		src := (o*a.Shape[di] + ix) * inner
		copy(out.Data[o*inner:(o+1)*inner], a.Data[src:src+inner])
	}
	return out
}
