package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edisonguo/govaluate"
)

// Expression handling. Variable keys contain slashes and colons, which
// the arithmetic grammar would misread, so evaluation round-trips each
// key through an opaque index token: literal key -> VarN -> evaluate
// -> VarN -> literal key in the output band label.

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// keyMatches finds non-overlapping occurrences of known variable keys
// in an expression, longest match first, each bounded by non-word
// bytes.
func keyMatches(expr string, known []string) []struct {
	start int
	key   string
} {
	keys := make([]string, len(known))
	copy(keys, known)
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	taken := make([]bool, len(expr))
	var matches []struct {
		start int
		key   string
	}

	for _, key := range keys {
		if key == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(expr[from:], key)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(key)
			from = start + 1

			if start > 0 && isWordByte(expr[start-1]) {
				continue
			}
			if end < len(expr) && isWordByte(expr[end]) {
				continue
			}
			overlap := false
			for p := start; p < end; p++ {
				if taken[p] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for p := start; p < end; p++ {
				taken[p] = true
			}
			matches = append(matches, struct {
				start int
				key   string
			}{start, key})
			from = end
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	return matches
}

// ParseExpression extracts the distinct variable keys an expression
// references, in first-appearance order.
func ParseExpression(expr string, known []string) ([]string, error) {
	seen := make(map[string]bool)
	var vars []string
	for _, m := range keyMatches(expr, known) {
		if !seen[m.key] {
			seen[m.key] = true
			vars = append(vars, m.key)
		}
	}
	if len(vars) == 0 {
		return nil, &InvalidExpressionError{Expression: expr}
	}
	return vars, nil
}

// VarToken is the opaque stand-in for variable i inside an evaluated
// expression.
func VarToken(i int) string {
	return fmt.Sprintf("Var%d", i)
}

// SubstituteTokens rewrites every variable key in the expression to
// its index token, using the key order produced by ParseExpression.
func SubstituteTokens(expr string, vars []string) string {
	index := make(map[string]int, len(vars))
	for i, v := range vars {
		index[v] = i
	}

	matches := keyMatches(expr, vars)
	var out strings.Builder
	prev := 0
	for _, m := range matches {
		out.WriteString(expr[prev:m.start])
		out.WriteString(VarToken(index[m.key]))
		prev = m.start + len(m.key)
	}
	out.WriteString(expr[prev:])
	return out.String()
}

// RestoreTokens maps index tokens in a band label back to the literal
// variable keys. Higher indices are replaced first so Var12 never
// matches as Var1.
func RestoreTokens(label string, vars []string) string {
	for i := len(vars) - 1; i >= 0; i-- {
		label = strings.ReplaceAll(label, VarToken(i), vars[i])
	}
	return label
}

// numericResult unwraps an evaluation result. The evaluator computes
// arithmetic in float32, so both float widths count as numeric.
func numericResult(res interface{}) (float64, bool) {
	switch v := res.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// ApplyExpression evaluates band math over a stacked image whose bands
// are labeled with index tokens, yielding a single-band image labeled
// with the token expression. Output pixels are valid only where every
// referenced input pixel is.
func ApplyExpression(img *ImageData, tokenExpr string) (*ImageData, error) {
	eval, err := govaluate.NewEvaluableExpression(tokenExpr)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %v", tokenExpr, err)
	}

	n := img.Width * img.Height
	data := make([]float64, n)
	valid := make([]bool, n)
	params := make(map[string]interface{}, img.NumBands())

	for i := 0; i < n; i++ {
		ok := true
		for b, name := range img.Bands {
			if !img.Valid[b][i] {
				ok = false
				break
			}
			params[name] = img.Data[b][i]
		}
		if !ok {
			continue
		}
		res, err := eval.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %v", tokenExpr, err)
		}
		v, ok := numericResult(res)
		if !ok {
			return nil, fmt.Errorf("expression %q: non-numeric result %v", tokenExpr, res)
		}
		data[i] = v
		valid[i] = true
	}

	out := NewImageData(img.Width, img.Height, img.Bounds, img.CRS)
	out.AddBand(tokenExpr, data, valid)
	return out, nil
}
