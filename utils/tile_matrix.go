package utils

import (
	"fmt"
	"io/ioutil"
	"math"

	yaml "gopkg.in/yaml.v2"
)

// TileMatrixSet is a quad-tree tiling scheme: a square grid of tiles
// per zoom level with the resolution halving at each level, anchored
// at a top-left origin in the scheme CRS.
type TileMatrixSet struct {
	ID       string  `yaml:"id"`
	CRSCode  string  `yaml:"crs"`
	MinX     float64 `yaml:"min_x"`
	MaxY     float64 `yaml:"max_y"`
	TileSize int     `yaml:"tile_size"`
	// Matrix width/height at zoom 0, in tiles.
	MatrixWidth  int `yaml:"matrix_width"`
	MatrixHeight int `yaml:"matrix_height"`
	MinZoom      int `yaml:"min_zoom"`
	MaxZoom      int `yaml:"max_zoom"`
	// CellSize is the ground resolution at zoom 0.
	CellSize float64 `yaml:"cell_size"`

	crs CRS
}

const webMercatorExtent = 20037508.342789244

// WebMercatorQuad is the standard spherical mercator scheme used by
// web maps.
func WebMercatorQuad() *TileMatrixSet {
	return &TileMatrixSet{
		ID:           "WebMercatorQuad",
		CRSCode:      "EPSG:3857",
		MinX:         -webMercatorExtent,
		MaxY:         webMercatorExtent,
		TileSize:     256,
		MatrixWidth:  1,
		MatrixHeight: 1,
		MinZoom:      0,
		MaxZoom:      24,
		CellSize:     2 * webMercatorExtent / 256,
		crs:          CRSWebMercator,
	}
}

// WorldCRS84Quad tiles geographic coordinates with two root tiles.
func WorldCRS84Quad() *TileMatrixSet {
	return &TileMatrixSet{
		ID:           "WorldCRS84Quad",
		CRSCode:      "EPSG:4326",
		MinX:         -180,
		MaxY:         90,
		TileSize:     256,
		MatrixWidth:  2,
		MatrixHeight: 1,
		MinZoom:      0,
		MaxZoom:      23,
		CellSize:     180.0 / 256,
		crs:          CRSWGS84,
	}
}

// LoadTileMatrixSet reads a custom scheme definition from a YAML file.
func LoadTileMatrixSet(path string) (*TileMatrixSet, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tms := &TileMatrixSet{TileSize: 256, MatrixWidth: 1, MatrixHeight: 1, MaxZoom: 24}
	if err := yaml.Unmarshal(buf, tms); err != nil {
		return nil, fmt.Errorf("tile matrix set %s: %v", path, err)
	}
	if err := tms.init(); err != nil {
		return nil, fmt.Errorf("tile matrix set %s: %v", path, err)
	}
	return tms, nil
}

func (t *TileMatrixSet) init() error {
	crs, err := ParseCRS(t.CRSCode)
	if err != nil {
		return err
	}
	t.crs = crs
	if t.TileSize <= 0 || t.CellSize <= 0 {
		return fmt.Errorf("invalid tile_size/cell_size")
	}
	return nil
}

func (t *TileMatrixSet) CRS() CRS { return t.crs }

// Resolution returns the ground resolution at a zoom level.
func (t *TileMatrixSet) Resolution(zoom int) float64 {
	return t.CellSize / math.Pow(2, float64(zoom))
}

// XYBounds returns the CRS bounds (xmin, ymin, xmax, ymax) of tile
// (x, y) at the given zoom.
func (t *TileMatrixSet) XYBounds(x, y, zoom int) [4]float64 {
	span := t.Resolution(zoom) * float64(t.TileSize)
	xmin := t.MinX + float64(x)*span
	ymax := t.MaxY - float64(y)*span
	return [4]float64{xmin, ymax - span, xmin + span, ymax}
}

// Tile returns the tile containing the given lon/lat at a zoom level.
func (t *TileMatrixSet) Tile(lon, lat float64, zoom int) (int, int, error) {
	x, y, err := t.crs.FromLonLat(lon, lat)
	if err != nil {
		return 0, 0, err
	}
	span := t.Resolution(zoom) * float64(t.TileSize)
	tx := int(math.Floor((x - t.MinX) / span))
	ty := int(math.Floor((t.MaxY - y) / span))

	maxTx := t.MatrixWidth<<uint(zoom) - 1
	maxTy := t.MatrixHeight<<uint(zoom) - 1
	if tx < 0 || tx > maxTx || ty < 0 || ty > maxTy {
		return 0, 0, fmt.Errorf("tile matrix set: point (%v, %v) outside %s at zoom %d", lon, lat, t.ID, zoom)
	}
	return tx, ty, nil
}

// ZoomForRes returns the coarsest zoom level whose resolution does not
// exceed the target resolution, with a relative tolerance so an exact
// level resolution maps to that level.
func (t *TileMatrixSet) ZoomForRes(res float64) int {
	for z := t.MinZoom; z <= t.MaxZoom; z++ {
		if t.Resolution(z) <= res*(1+1e-9) {
			return z
		}
	}
	return t.MaxZoom
}
