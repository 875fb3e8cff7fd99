package datatree

import (
	"encoding/json"
	"fmt"

	"github.com/nci/geozarr/utils"
)

// The conventions a store can declare on a node, identified by the
// UUIDs published with each convention spec. Identification is a table
// lookup so a future convention revision is a new entry here, not a
// new code path.
const (
	ConventionMultiscales = "multiscales"
	ConventionSpatial     = "spatial:"
	ConventionProj        = "proj:"
)

var knownConventionUUIDs = map[string]string{
	"d35379db-88df-4056-af3a-620245f8e347": ConventionMultiscales,
	"689b58e2-cf7b-45e0-9fff-9cfc0883d6b4": ConventionSpatial,
	"f17cb550-5864-4468-aeb7-f3180cfb622f": ConventionProj,
}

// HasConvention reports whether a node's attributes declare the named
// convention, either through a zarr_conventions block or through the
// presence of the convention's own attribute key.
func HasConvention(attrs Attrs, name string) bool {
	if raw, ok := attrs["zarr_conventions"]; ok {
		if entries, ok := raw.([]interface{}); ok {
			for _, e := range entries {
				entry, ok := e.(map[string]interface{})
				if !ok {
					continue
				}
				if uuid, _ := entry["uuid"].(string); uuid != "" {
					if knownConventionUUIDs[uuid] == name {
						return true
					}
				}
				if n, _ := entry["name"].(string); n == name {
					return true
				}
			}
		}
	}

	// Datasets predating the conventions block carry the attribute
	// directly.
	if name == ConventionMultiscales {
		_, ok := attrs["multiscales"]
		return ok
	}
	return false
}

// tileMatrixSetMeta is the tile-matrix-set multiscale shape:
//
//	{"tile_matrix_set": {"crs": ..., "tileMatrices": [{"id", "cellSize"}, ...]}}
type tileMatrixSetMeta struct {
	TileMatrixSet struct {
		CRS          string `json:"crs"`
		TileMatrices []struct {
			ID       string    `json:"id"`
			CellSize float64   `json:"cellSize"`
			Shape    []int     `json:"spatial:shape"`
			Affine   []float64 `json:"spatial:transform"`
		} `json:"tileMatrices"`
	} `json:"tile_matrix_set"`
}

// layoutMeta is the layout/derived-from multiscale shape:
//
//	{"layout": [{"asset": "r10m", "spatial:shape": [...], "spatial:transform": [...]}, ...]}
type layoutMeta struct {
	Layout []struct {
		Asset       string    `json:"asset"`
		DerivedFrom string    `json:"derived_from"`
		Shape       []int     `json:"spatial:shape"`
		Affine      []float64 `json:"spatial:transform"`
	} `json:"layout"`
	ResamplingMethod string `json:"resampling_method"`
}

// parseMultiscales normalizes either multiscale metadata shape into
// the ScaleLevel model, ordered as declared (finest first by
// convention). The returned CRS identifier may be empty if the
// metadata does not carry one.
func parseMultiscales(attrs Attrs) ([]ScaleLevel, string, error) {
	raw, ok := attrs["multiscales"]
	if !ok {
		return nil, "", fmt.Errorf("no multiscales attribute")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, "", fmt.Errorf("multiscales attribute is not serializable: %v", err)
	}

	var tmsShape tileMatrixSetMeta
	if err := json.Unmarshal(buf, &tmsShape); err == nil && len(tmsShape.TileMatrixSet.TileMatrices) > 0 {
		levels := make([]ScaleLevel, 0, len(tmsShape.TileMatrixSet.TileMatrices))
		for _, mt := range tmsShape.TileMatrixSet.TileMatrices {
			level := ScaleLevel{ID: mt.ID, CellSize: mt.CellSize, Variables: map[string]bool{}}
			if len(mt.Shape) == 2 {
				level.Shape = [2]int{mt.Shape[0], mt.Shape[1]}
			}
			if len(mt.Affine) == 6 {
				if level.Transform, err = utils.NewAffine(mt.Affine); err != nil {
					return nil, "", err
				}
			}
			levels = append(levels, level)
		}
		return levels, tmsShape.TileMatrixSet.CRS, nil
	}

	var layoutShape layoutMeta
	if err := json.Unmarshal(buf, &layoutShape); err == nil && len(layoutShape.Layout) > 0 {
		levels := make([]ScaleLevel, 0, len(layoutShape.Layout))
		for _, entry := range layoutShape.Layout {
			level := ScaleLevel{ID: entry.Asset, Variables: map[string]bool{}}
			if len(entry.Shape) == 2 {
				level.Shape = [2]int{entry.Shape[0], entry.Shape[1]}
			}
			if len(entry.Affine) == 6 {
				if level.Transform, err = utils.NewAffine(entry.Affine); err != nil {
					return nil, "", err
				}
				level.CellSize = level.Transform.XRes()
			}
			levels = append(levels, level)
		}
		return levels, "", nil
	}

	return nil, "", fmt.Errorf("unrecognized multiscales metadata shape")
}
