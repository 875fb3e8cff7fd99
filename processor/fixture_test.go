package processor

import (
	"testing"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/utils"
)

func pyrCRS(t *testing.T) utils.CRS {
	t.Helper()
	crs, err := utils.ParseCRS("EPSG:32633")
	if err != nil {
		t.Fatal(err)
	}
	return crs
}

const (
	pyrGroup = "/measurements/reflectance"
	pyrMinX  = 500000.0
	pyrMaxY  = 4200000.0
)

var pyrTiers = []struct {
	id   string
	res  float64
	size int
	vars []string
}{
	{"0", 10, 1000, []string{"b02", "b03", "b04", "b08"}},
	{"1", 20, 500, []string{"b02", "b03", "b04", "b05", "b06", "b07", "b08", "b11", "b12", "b8a"}},
	{"2", 60, 167, []string{"b02", "b03", "b04", "b05", "b06", "b07", "b08", "b11", "b12", "b8a"}},
	{"3", 120, 84, []string{"b02", "b03", "b04", "b05", "b06", "b07", "b08", "b11", "b12", "b8a"}},
}

func pyrArray(name string, res float64, size int) *datatree.Array {
	xs := make([]float64, size)
	ys := make([]float64, size)
	for i := 0; i < size; i++ {
		xs[i] = pyrMinX + res/2 + float64(i)*res
		ys[i] = pyrMaxY - res/2 - float64(i)*res
	}
	data := make([]float64, size*size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			data[r*size+c] = float64(r*size + c)
		}
	}
	return &datatree.Array{
		Name:   name,
		Dims:   []string{"y", "x"},
		Shape:  []int{size, size},
		Coords: map[string][]float64{"x": xs, "y": ys},
		Data:   data,
		Attrs:  datatree.Attrs{},
	}
}

func newPyramidTree(t *testing.T) *datatree.DataTree {
	t.Helper()
	st := datatree.NewMemStore()

	var tms []interface{}
	for _, tier := range pyrTiers {
		tms = append(tms, map[string]interface{}{
			"id":                tier.id,
			"cellSize":          tier.res,
			"spatial:shape":     []interface{}{float64(tier.size), float64(tier.size)},
			"spatial:transform": []interface{}{tier.res, 0.0, pyrMinX, 0.0, -tier.res, pyrMaxY},
		})
	}
	st.AddNode(pyrGroup, datatree.Attrs{
		"multiscales": map[string]interface{}{
			"tile_matrix_set": map[string]interface{}{
				"crs":          "EPSG:32633",
				"tileMatrices": tms,
			},
		},
	})
	for _, tier := range pyrTiers {
		path := pyrGroup + "/" + tier.id
		st.AddNode(path, datatree.Attrs{"proj:epsg": 32633.0})
		for _, v := range tier.vars {
			st.AddArray(path, pyrArray(v, tier.res, tier.size))
		}
	}

	dt, err := datatree.Open(st, false)
	if err != nil {
		t.Fatal(err)
	}
	return dt
}
