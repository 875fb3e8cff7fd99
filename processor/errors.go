package processor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDataInBounds reports that a read window does not intersect any
// data. During multi-variable composition it is recoverable per
// variable and only terminal when every variable misses.
var ErrNoDataInBounds = errors.New("no data in the requested bounds")

// MissingVariablesError reports variables that do not exist at any
// scale of their group, or an operation invoked with no variables at
// all.
type MissingVariablesError struct {
	Group     string
	Variables []string
}

func (e *MissingVariablesError) Error() string {
	if len(e.Variables) == 0 {
		return "no variables or expression supplied"
	}
	return fmt.Sprintf("variables [%s] not found in group %s",
		strings.Join(e.Variables, ", "), e.Group)
}

// InvalidExpressionError reports an expression referencing no known
// variable.
type InvalidExpressionError struct {
	Expression string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("expression %q references no known variables", e.Expression)
}

// DimensionError reports an array whose spatial dimensions cannot be
// identified.
type DimensionError struct {
	Array string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("array %q has no recognizable x/y dimensions", e.Array)
}
