package reader

import (
	"encoding/json"
	"fmt"
	"log"
	"math"

	"golang.org/x/net/context"

	geo "github.com/nci/geometry"
	"github.com/nci/geozarr/processor"
	"github.com/nci/geozarr/utils"
)

// Feature reads the bounding box of a GeoJSON feature, geometry given
// in WGS84. The read itself is a part request over the geometry's
// bbox.
func (r *Reader) Feature(ctx context.Context, featureJSON []byte, p *Params) (*processor.ImageData, error) {
	var feat geo.Feature
	if err := json.Unmarshal(featureJSON, &feat); err != nil {
		return nil, fmt.Errorf("reader: unmarshalling GeoJSON feature: %v", err)
	}
	if feat.Geometry == nil {
		return nil, fmt.Errorf("reader: feature carries no geometry")
	}

	bbox, err := geometryBounds(feat.Geometry)
	if err != nil {
		return nil, err
	}
	if r.verbose {
		log.Printf("reader: feature geometry %s bbox %v", feat.Geometry.MarshalWKT(), bbox)
	}
	return r.Part(ctx, bbox, utils.CRSWGS84, p)
}

// geometryBounds computes the bbox of a point, polygon or
// multipolygon geometry.
func geometryBounds(geom geo.Geometry) ([4]float64, error) {
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	grow := func(x, y float64) {
		b[0] = math.Min(b[0], x)
		b[1] = math.Min(b[1], y)
		b[2] = math.Max(b[2], x)
		b[3] = math.Max(b[3], y)
	}

	switch g := geom.(type) {
	case *geo.Point:
		grow(g.X, g.Y)
	case *geo.Polygon:
		for _, ring := range *g {
			for _, pt := range ring {
				grow(pt.X, pt.Y)
			}
		}
	case *geo.MultiPolygon:
		for _, poly := range *g {
			for _, ring := range poly {
				for _, pt := range ring {
					grow(pt.X, pt.Y)
				}
			}
		}
	default:
		return b, fmt.Errorf("reader: unsupported geometry type %T", geom)
	}

	if math.IsInf(b[0], 1) {
		return b, fmt.Errorf("reader: empty geometry")
	}
	return b, nil
}
