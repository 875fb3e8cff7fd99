package processor

import (
	"testing"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/utils"
)

func wgs84(t *testing.T) utils.CRS {
	t.Helper()
	crs, err := utils.ParseCRS("EPSG:4326")
	if err != nil {
		t.Fatal(err)
	}
	return crs
}

func TestArrangeDimsRenamesAliases(t *testing.T) {
	arr := &datatree.Array{
		Name:  "sst",
		Dims:  []string{"TIME", "latitude", "longitude"},
		Shape: []int{1, 2, 3},
		Coords: map[string][]float64{
			"TIME":      {0},
			"latitude":  {10, 20},
			"longitude": {100, 101, 102},
		},
		Data:  make([]float64, 6),
		Attrs: datatree.Attrs{},
	}
	if err := arrangeDims(arr, wgs84(t)); err != nil {
		t.Fatal(err)
	}
	if arr.Dims[0] != "time" || arr.Dims[1] != "y" || arr.Dims[2] != "x" {
		t.Fatalf("dims = %v", arr.Dims)
	}
}

func TestArrangeDimsTransposesTrailingYX(t *testing.T) {
	arr := &datatree.Array{
		Name:  "b02",
		Dims:  []string{"x", "y"},
		Shape: []int{3, 2},
		Coords: map[string][]float64{
			"x": {100, 101, 102},
			"y": {20, 10},
		},
		Data:  []float64{0, 1, 2, 3, 4, 5},
		Attrs: datatree.Attrs{},
	}
	if err := arrangeDims(arr, utils.CRS{}); err != nil {
		t.Fatal(err)
	}
	if arr.Dims[0] != "y" || arr.Dims[1] != "x" {
		t.Fatalf("dims = %v", arr.Dims)
	}
	// (x=2, y=0) held value 4; after transpose it sits at (y=0, x=2).
	if arr.At(0, 2) != 4 {
		t.Fatalf("value = %v", arr.At(0, 2))
	}
}

func TestArrangeDimsNoSpatialPair(t *testing.T) {
	arr := &datatree.Array{
		Name: "junk", Dims: []string{"a", "b"}, Shape: []int{2, 2},
		Data: make([]float64, 4), Attrs: datatree.Attrs{},
	}
	err := arrangeDims(arr, utils.CRS{})
	if _, ok := err.(*DimensionError); !ok {
		t.Fatalf("err = %v", err)
	}
}

func TestValidRangePromotion(t *testing.T) {
	arr := &datatree.Array{
		Name: "b02", Dims: []string{"y", "x"}, Shape: []int{1, 1},
		Data:  []float64{0},
		Attrs: datatree.Attrs{"valid_range": []interface{}{0.0, 10000.0}},
	}
	if err := arrangeDims(arr, utils.CRS{}); err != nil {
		t.Fatal(err)
	}
	if mn, _ := arr.Attrs.Float("valid_min"); mn != 0 {
		t.Fatalf("valid_min = %v", arr.Attrs["valid_min"])
	}
	if mx, _ := arr.Attrs.Float("valid_max"); mx != 10000 {
		t.Fatalf("valid_max = %v", arr.Attrs["valid_max"])
	}
}

func TestLongitudeRewrap(t *testing.T) {
	// x in [0, 360): 170, 190, 210 becomes -170, -150, 170 after the
	// shift, reordered ascending.
	arr := &datatree.Array{
		Name:  "sst",
		Dims:  []string{"y", "x"},
		Shape: []int{1, 3},
		Coords: map[string][]float64{
			"x": {170, 190, 210},
			"y": {0},
		},
		Data:  []float64{1, 2, 3},
		Attrs: datatree.Attrs{},
	}
	if err := arrangeDims(arr, wgs84(t)); err != nil {
		t.Fatal(err)
	}
	xs := arr.Coords["x"]
	want := []float64{-170, -150, 170}
	for i := range want {
		if xs[i] != want[i] {
			t.Fatalf("xs = %v", xs)
		}
	}
	// Pixel values follow their coordinates: 190E held 2 and is now
	// at -170.
	if arr.Data[0] != 2 || arr.Data[1] != 3 || arr.Data[2] != 1 {
		t.Fatalf("data = %v", arr.Data)
	}
}

func TestLongitudeRewrapSkippedForProjectedCRS(t *testing.T) {
	arr := &datatree.Array{
		Name:  "b02",
		Dims:  []string{"y", "x"},
		Shape: []int{1, 2},
		Coords: map[string][]float64{
			"x": {500000, 500010},
			"y": {0},
		},
		Data:  []float64{1, 2},
		Attrs: datatree.Attrs{},
	}
	if err := arrangeDims(arr, pyrCRS(t)); err != nil {
		t.Fatal(err)
	}
	if arr.Coords["x"][0] != 500000 {
		t.Fatalf("projected coordinates rewritten: %v", arr.Coords["x"])
	}
}

func TestGetVariableSelAndScale(t *testing.T) {
	dt := newPyramidTree(t)
	g, _ := dt.Group(pyrGroup)

	arr, level, err := GetVariable(dt, g, "b05", &GeoRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if level.ID != "1" {
		t.Fatalf("tier = %q", level.ID)
	}
	if arr.NDim() != 2 || arr.Shape[0] != 500 {
		t.Fatalf("shape = %v", arr.Shape)
	}

	_, _, err = GetVariable(dt, g, "nope", &GeoRequest{})
	if _, ok := err.(*MissingVariablesError); !ok {
		t.Fatalf("err = %v", err)
	}
}
