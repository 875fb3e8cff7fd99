package processor

import (
	"fmt"

	"github.com/nci/geozarr/utils"
)

// ImageData is a georeferenced multi-band raster: band-major float64
// samples with a per-band validity mask.
type ImageData struct {
	Width  int
	Height int
	Bounds [4]float64
	CRS    utils.CRS
	Bands  []string
	// Data[b] and Valid[b] hold Width*Height row-major samples of
	// band b.
	Data  [][]float64
	Valid [][]bool
}

func NewImageData(width, height int, bounds [4]float64, crs utils.CRS) *ImageData {
	return &ImageData{Width: width, Height: height, Bounds: bounds, CRS: crs}
}

func (img *ImageData) NumBands() int { return len(img.Bands) }

// AddBand appends a band. The slices are adopted, not copied.
func (img *ImageData) AddBand(name string, data []float64, valid []bool) {
	img.Bands = append(img.Bands, name)
	img.Data = append(img.Data, data)
	img.Valid = append(img.Valid, valid)
}

// Rename relabels band i.
func (img *ImageData) RenameBand(i int, name string) {
	img.Bands[i] = name
}

// StackImages concatenates per-variable images into one multi-band
// image, preserving input order as band order. Every input must share
// the first image's geometry.
func StackImages(images []*ImageData) (*ImageData, error) {
	if len(images) == 0 {
		return nil, ErrNoDataInBounds
	}
	first := images[0]
	out := NewImageData(first.Width, first.Height, first.Bounds, first.CRS)
	for _, img := range images {
		if img.Width != first.Width || img.Height != first.Height {
			return nil, fmt.Errorf("stacking %dx%d band group onto %dx%d image",
				img.Width, img.Height, first.Width, first.Height)
		}
		for b := range img.Bands {
			out.AddBand(img.Bands[b], img.Data[b], img.Valid[b])
		}
	}
	return out, nil
}
