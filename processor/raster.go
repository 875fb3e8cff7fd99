package processor

import (
	"fmt"
	"math"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/utils"
)

// checkBacked rejects arrays whose store supplied metadata without
// samples, e.g. one parsed from a bare consolidated-metadata file.
func checkBacked(arr *datatree.Array) error {
	if len(arr.Data) < arr.Size() {
		return fmt.Errorf("processor: array %s carries %d of %d samples, store has no data",
			arr.Name, len(arr.Data), arr.Size())
	}
	return nil
}

// gridTransform returns the pixel-to-CRS map of an arranged array:
// from its x/y coordinates when present (they survive reordering),
// otherwise from the tier metadata.
func gridTransform(arr *datatree.Array, level *datatree.ScaleLevel) utils.Affine {
	xs, okx := arr.Coords["x"]
	ys, oky := arr.Coords["y"]
	if okx && oky && len(xs) > 1 && len(ys) > 1 {
		dx := xs[1] - xs[0]
		dy := ys[1] - ys[0]
		return utils.Affine{A: dx, C: xs[0] - dx/2, E: dy, F: ys[0] - dy/2}
	}
	return level.Transform
}

// bandCount returns the number of trailing-y/x planes of an arranged
// array.
func bandCount(arr *datatree.Array) int {
	if arr.NDim() == 2 {
		return 1
	}
	return arr.Shape[0]
}

// RasterizeVariable resamples one arranged 2D/3D array onto an output
// grid in the destination CRS, nearest neighbor, producing one band
// per leading plane. Returns ErrNoDataInBounds when the output extent
// misses the source grid entirely.
func RasterizeVariable(arr *datatree.Array, level *datatree.ScaleLevel, srcCRS utils.CRS,
	outBounds [4]float64, outCRS utils.CRS, outW, outH int) (*ImageData, error) {

	if err := checkBacked(arr); err != nil {
		return nil, err
	}

	src := gridTransform(arr, level)
	srcInv, err := src.Invert()
	if err != nil {
		return nil, err
	}

	ndim := arr.NDim()
	rows := arr.Shape[ndim-2]
	cols := arr.Shape[ndim-1]

	// Quick reject on extents before the per-pixel loop.
	srcBounds := src.Bounds(cols, rows)
	reqNative := outBounds
	if !outCRS.IsZero() && !outCRS.Equal(srcCRS) {
		reqNative, err = utils.TransformBounds(outCRS, srcCRS, outBounds, 21)
		if err != nil {
			return nil, err
		}
	}
	if reqNative[0] >= srcBounds[2] || reqNative[2] <= srcBounds[0] ||
		reqNative[1] >= srcBounds[3] || reqNative[3] <= srcBounds[1] {
		return nil, ErrNoDataInBounds
	}

	out := utils.AffineFromBounds(outBounds, outW, outH)
	nBands := bandCount(arr)
	plane := rows * cols

	img := NewImageData(outW, outH, outBounds, outCRS)
	sameCRS := outCRS.IsZero() || outCRS.Equal(srcCRS)

	for b := 0; b < nBands; b++ {
		data := make([]float64, outW*outH)
		valid := make([]bool, outW*outH)
		offset := b * plane

		for r := 0; r < outH; r++ {
			for c := 0; c < outW; c++ {
				x, y := out.Apply(float64(c)+0.5, float64(r)+0.5)
				if !sameCRS {
					x, y, err = utils.TransformPoint(outCRS, srcCRS, x, y)
					if err != nil {
						continue
					}
				}
				fc, fr := srcInv.Apply(x, y)
				sc, sr := int(math.Floor(fc)), int(math.Floor(fr))
				if sc < 0 || sc >= cols || sr < 0 || sr >= rows {
					continue
				}
				v := arr.Data[offset+sr*cols+sc]
				if arr.HasNoData && v == arr.NoData {
					continue
				}
				i := r*outW + c
				data[i] = v
				valid[i] = true
			}
		}

		name := arr.Name
		if nBands > 1 {
			name = bandPlaneName(arr, b)
		}
		img.AddBand(name, data, valid)
	}

	return img, nil
}

func bandPlaneName(arr *datatree.Array, b int) string {
	lead := arr.Dims[0]
	if coords, ok := arr.Coords[lead]; ok && b < len(coords) {
		return arr.Name + "_" + utils.FormatCoord(coords[b])
	}
	return arr.Name + "_" + utils.FormatCoord(float64(b))
}

// PointValue extracts the nearest-pixel value of every band plane at a
// single coordinate given in ptCRS. Returns ErrNoDataInBounds when
// the point misses the grid.
func PointValue(arr *datatree.Array, level *datatree.ScaleLevel, srcCRS utils.CRS,
	x, y float64, ptCRS utils.CRS) ([]float64, []bool, error) {

	if err := checkBacked(arr); err != nil {
		return nil, nil, err
	}

	src := gridTransform(arr, level)
	srcInv, err := src.Invert()
	if err != nil {
		return nil, nil, err
	}

	if !ptCRS.IsZero() && !ptCRS.Equal(srcCRS) {
		x, y, err = utils.TransformPoint(ptCRS, srcCRS, x, y)
		if err != nil {
			return nil, nil, err
		}
	}

	ndim := arr.NDim()
	rows := arr.Shape[ndim-2]
	cols := arr.Shape[ndim-1]

	fc, fr := srcInv.Apply(x, y)
	sc, sr := int(math.Floor(fc)), int(math.Floor(fr))
	if sc < 0 || sc >= cols || sr < 0 || sr >= rows {
		return nil, nil, ErrNoDataInBounds
	}

	nBands := bandCount(arr)
	plane := rows * cols
	vals := make([]float64, nBands)
	valid := make([]bool, nBands)
	for b := 0; b < nBands; b++ {
		v := arr.Data[b*plane+sr*cols+sc]
		vals[b] = v
		valid[b] = !(arr.HasNoData && v == arr.NoData)
	}
	return vals, valid, nil
}
