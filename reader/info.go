package reader

import (
	"log"

	"github.com/nci/geozarr/processor"
)

// VariableInfo is the per-variable metadata returned by Info.
type VariableInfo struct {
	Group  string                 `json:"group"`
	Name   string                 `json:"name"`
	Scale  string                 `json:"scale"`
	Width  int                    `json:"width"`
	Height int                    `json:"height"`
	CRS    string                 `json:"crs"`
	Bounds [4]float64             `json:"bounds"`
	Dims   []string               `json:"dimensions"`
	Dtype  string                 `json:"dtype,omitempty"`
	Attrs  map[string]interface{} `json:"attrs,omitempty"`
}

var infoAttrKeys = []string{"long_name", "units", "scale_factor", "add_offset", "valid_min", "valid_max"}

// Info returns metadata for every variable, keyed by compound key.
// Variables whose metadata cannot be computed are omitted rather than
// failing the call.
func (r *Reader) Info() map[string]VariableInfo {
	out := make(map[string]VariableInfo, len(r.dt.Variables))

	for _, key := range r.dt.Variables {
		groupPath, variable := processor.SplitKey(key)
		g, ok := r.dt.Group(groupPath)
		if !ok {
			continue
		}

		scaleID, err := processor.SelectScaleForVariable(g, variable, 0, processor.StrategyAuto)
		if err != nil {
			if r.verbose {
				log.Printf("reader: info: skipping %s: %v", key, err)
			}
			continue
		}
		level, _ := g.Scale(scaleID)

		arr, err := r.dt.ArrayAt(g.ScalePath(scaleID), variable)
		if err != nil {
			if r.verbose {
				log.Printf("reader: info: skipping %s: %v", key, err)
			}
			continue
		}

		info := VariableInfo{
			Group:  groupPath,
			Name:   variable,
			Scale:  scaleID,
			Width:  level.Shape[1],
			Height: level.Shape[0],
			CRS:    g.CRS.String(),
			Bounds: level.Transform.Bounds(level.Shape[1], level.Shape[0]),
			Dims:   append([]string(nil), arr.Dims...),
		}
		if dtype, ok := arr.Attrs.String("dtype"); ok {
			info.Dtype = dtype
		}
		for _, k := range infoAttrKeys {
			if v, ok := arr.Attrs[k]; ok {
				if info.Attrs == nil {
					info.Attrs = make(map[string]interface{})
				}
				info.Attrs[k] = v
			}
		}
		out[key] = info
	}
	return out
}
