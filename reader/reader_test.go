package reader

import (
	"fmt"
	"testing"

	"golang.org/x/net/context"

	geo "github.com/nci/geometry"
	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/processor"
	"github.com/nci/geozarr/utils"
)

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
	for i := range data {
		data[i] = float64(i)
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

func newPyramidReader(t *testing.T, opts ...Option) *Reader {
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
	r, err := New(dt, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func datasetCenterLonLat(t *testing.T) (float64, float64) {
	t.Helper()
	native, err := utils.ParseCRS("EPSG:32633")
	if err != nil {
		t.Fatal(err)
	}
	lon, lat, err := utils.TransformPoint(native, utils.CRSWGS84, 505000, 4195000)
	if err != nil {
		t.Fatal(err)
	}
	return lon, lat
}

func TestReaderBoundsAndEnumeration(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	b := r.Bounds()
	if b[0] < 14 || b[0] > 16 || b[3] < 37 || b[3] > 39 {
		t.Fatalf("bounds = %v", b)
	}
	if len(r.Groups()) != 1 || r.Groups()[0] != pyrGroup {
		t.Fatalf("groups = %v", r.Groups())
	}
	if len(r.Variables()) != 10 {
		t.Fatalf("variables = %v", r.Variables())
	}
}

func TestTileReadsSquareOutput(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	lon, lat := datasetCenterLonLat(t)
	tx, ty, err := utils.WebMercatorQuad().Tile(lon, lat, 12)
	if err != nil {
		t.Fatal(err)
	}

	img, err := r.Tile(context.Background(), tx, ty, 12, &Params{
		Variables: []string{pyrGroup + ":b02"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 256 || img.Height != 256 {
		t.Fatalf("size = %dx%d", img.Width, img.Height)
	}
	if img.NumBands() != 1 || img.Bands[0] != "b02" {
		t.Fatalf("bands = %v", img.Bands)
	}
	anyValid := false
	for _, v := range img.Valid[0] {
		if v {
			anyValid = true
			break
		}
	}
	if !anyValid {
		t.Fatal("tile over the dataset center carries no data")
	}
}

func TestTileMatchesEquivalentPart(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	lon, lat := datasetCenterLonLat(t)
	scheme := utils.WebMercatorQuad()
	tx, ty, err := scheme.Tile(lon, lat, 12)
	if err != nil {
		t.Fatal(err)
	}

	tile, err := r.Tile(context.Background(), tx, ty, 12, &Params{
		Variables: []string{pyrGroup + ":b02"},
	})
	if err != nil {
		t.Fatal(err)
	}

	part, err := r.Part(context.Background(), scheme.XYBounds(tx, ty, 12), scheme.CRS(), &Params{
		Variables: []string{pyrGroup + ":b02"},
		Width:     256, Height: 256,
		DstCRS: scheme.CRS(),
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := range tile.Data[0] {
		if tile.Data[0][i] != part.Data[0][i] || tile.Valid[0][i] != part.Valid[0][i] {
			t.Fatalf("tile and equivalent part diverge at pixel %d", i)
		}
	}
}

func TestPreviewFitsMaxSize(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	img, err := r.Preview(context.Background(), &Params{
		Variables: []string{pyrGroup + ":b02"},
		MaxSize:   128,
	})
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 128 || img.Height != 128 {
		t.Fatalf("size = %dx%d", img.Width, img.Height)
	}
}

func TestPreviewIgnoresExplicitSize(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	img, err := r.Preview(context.Background(), &Params{
		Variables: []string{pyrGroup + ":b02"},
		Width:     32,
		Height:    16,
		MaxSize:   128,
	})
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 128 || img.Height != 128 {
		t.Fatalf("size = %dx%d, width/height should not apply to previews", img.Width, img.Height)
	}
}

func TestPointExtraction(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	lon, lat := datasetCenterLonLat(t)
	pt, err := r.Point(context.Background(), lon, lat, &Params{
		Variables: []string{pyrGroup + ":b02", pyrGroup + ":b05"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pt.Bands) != 2 || pt.Bands[0] != "b02" || pt.Bands[1] != "b05" {
		t.Fatalf("bands = %v", pt.Bands)
	}
	if !pt.Valid[0] || !pt.Valid[1] {
		t.Fatalf("valid = %v", pt.Valid)
	}

	_, err = r.Point(context.Background(), lon+5, lat, &Params{
		Variables: []string{pyrGroup + ":b02"},
	})
	if err != processor.ErrNoDataInBounds {
		t.Fatalf("err = %v", err)
	}
}

func TestPointRequiresVariables(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	lon, lat := datasetCenterLonLat(t)
	_, err := r.Point(context.Background(), lon, lat, &Params{})
	if _, ok := err.(*processor.MissingVariablesError); !ok {
		t.Fatalf("err = %v", err)
	}
}

func TestFeatureBBoxRead(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	lon, lat := datasetCenterLonLat(t)
	d := 0.01
	feature := fmt.Sprintf(`{
	  "type": "Feature",
	  "geometry": {
	    "type": "Polygon",
	    "coordinates": [[[%f,%f],[%f,%f],[%f,%f],[%f,%f],[%f,%f]]]
	  },
	  "properties": {}
	}`, lon-d, lat-d, lon+d, lat-d, lon+d, lat+d, lon-d, lat+d, lon-d, lat-d)

	img, err := r.Feature(context.Background(), []byte(feature), &Params{
		Variables: []string{pyrGroup + ":b02"},
		Width:     16, Height: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 16 || img.Height != 16 {
		t.Fatalf("size = %dx%d", img.Width, img.Height)
	}
}

func TestGeometryBounds(t *testing.T) {
	b, err := geometryBounds(&geo.Point{X: 3, Y: 4})
	if err != nil {
		t.Fatal(err)
	}
	if b != [4]float64{3, 4, 3, 4} {
		t.Fatalf("point bbox = %v", b)
	}

	poly := geo.Polygon{geo.LinearRing{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 0, Y: 0}}}
	mp := geo.MultiPolygon{poly, geo.Polygon{geo.LinearRing{{X: -1, Y: 5}, {X: -1, Y: 5}, {X: -1, Y: 5}, {X: -1, Y: 5}}}}
	b, err = geometryBounds(&mp)
	if err != nil {
		t.Fatal(err)
	}
	if b != [4]float64{-1, 0, 2, 5} {
		t.Fatalf("multipolygon bbox = %v", b)
	}

	if _, err := geometryBounds(&geo.Polygon{}); err == nil {
		t.Fatal("expected error for empty geometry")
	}
}

func TestInfoPartialFailure(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	info := r.Info()
	b02, ok := info[pyrGroup+":b02"]
	if !ok {
		t.Fatalf("info keys = %d", len(info))
	}
	if b02.Width != 1000 || b02.Scale != "0" {
		t.Fatalf("b02 info = %+v", b02)
	}
	b05, ok := info[pyrGroup+":b05"]
	if !ok || b05.Width != 500 || b05.Scale != "1" {
		t.Fatalf("b05 info = %+v", b05)
	}
	if b02.CRS != "EPSG:32633" {
		t.Fatalf("crs = %q", b02.CRS)
	}
}

func TestStatisticsNotImplemented(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()
	if err := r.Statistics(context.Background(), &Params{}); err != ErrNotImplemented {
		t.Fatalf("err = %v", err)
	}
}

func TestZoomRange(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	minZoom := r.MinZoom(pyrGroup)
	maxZoom := r.MaxZoom(pyrGroup)
	if minZoom >= maxZoom {
		t.Fatalf("min %d max %d", minZoom, maxZoom)
	}
	// 10 m pixels sit in the low teens of the web mercator pyramid.
	if maxZoom < 12 || maxZoom > 15 {
		t.Fatalf("max zoom = %d", maxZoom)
	}
	if minZoom < 8 || minZoom > 12 {
		t.Fatalf("min zoom = %d", minZoom)
	}
}

func TestParseExpressionSurface(t *testing.T) {
	r := newPyramidReader(t)
	defer r.Close()

	vars, err := r.ParseExpression(pyrGroup + ":b08 - " + pyrGroup + ":b04")
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 2 {
		t.Fatalf("vars = %v", vars)
	}
}

func TestInvalidGeographicBounds(t *testing.T) {
	st := datatree.NewMemStore()
	arr := pyrArray("sst", 1, 100)
	for i := range arr.Coords["x"] {
		arr.Coords["x"][i] = 150 + float64(i)*3
	}
	for i := range arr.Coords["y"] {
		arr.Coords["y"][i] = 40 - float64(i)*0.5
	}
	st.AddNode("/sea", datatree.Attrs{"proj:epsg": 4326.0})
	st.AddArray("/sea", arr)

	dt, err := datatree.Open(st, false)
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(dt)
	if _, ok := err.(*InvalidGeographicBoundsError); !ok {
		t.Fatalf("err = %v", err)
	}
}
