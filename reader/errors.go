package reader

import (
	"errors"
	"fmt"

	"github.com/nci/geozarr/processor"
)

// ErrNotImplemented marks operations this data source deliberately
// does not support.
var ErrNotImplemented = errors.New("operation not implemented for this data source")

// Read-path errors surface here so callers only need this package.
type MissingVariablesError = processor.MissingVariablesError
type InvalidExpressionError = processor.InvalidExpressionError

var ErrNoDataInBounds = processor.ErrNoDataInBounds

// InvalidGeographicBoundsError reports dataset bounds outside the
// valid WGS84 range by more than the half-pixel tolerance, a
// data-integrity failure raised at open time.
type InvalidGeographicBoundsError struct {
	Bounds [4]float64
}

func (e *InvalidGeographicBoundsError) Error() string {
	return fmt.Sprintf("dataset bounds %v outside valid geographic range", e.Bounds)
}
