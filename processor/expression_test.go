package processor

import (
	"testing"
)

var knownKeys = []string{
	"/measurements/reflectance:b02",
	"/measurements/reflectance:b03",
	"/measurements/reflectance:b04",
	"/measurements/reflectance:b08",
}

func TestParseExpressionFirstAppearanceOrder(t *testing.T) {
	expr := "(/measurements/reflectance:b08 - /measurements/reflectance:b04) / (/measurements/reflectance:b08 + /measurements/reflectance:b04)"
	vars, err := ParseExpression(expr, knownKeys)
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 2 || vars[0] != "/measurements/reflectance:b08" || vars[1] != "/measurements/reflectance:b04" {
		t.Fatalf("vars = %v", vars)
	}
}

func TestParseExpressionWordBoundaries(t *testing.T) {
	// b02x must not match b02.
	known := []string{"/g:b02", "/g:b02x"}
	vars, err := ParseExpression("/g:b02x * 2", known)
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 1 || vars[0] != "/g:b02x" {
		t.Fatalf("vars = %v", vars)
	}
}

func TestParseExpressionInvalid(t *testing.T) {
	_, err := ParseExpression("foo + bar", knownKeys)
	if _, ok := err.(*InvalidExpressionError); !ok {
		t.Fatalf("err = %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	expr := "/measurements/reflectance:b08 + /measurements/reflectance:b04 * 0.5"
	vars, err := ParseExpression(expr, knownKeys)
	if err != nil {
		t.Fatal(err)
	}
	tokenized := SubstituteTokens(expr, vars)
	if tokenized != "Var0 + Var1 * 0.5" {
		t.Fatalf("tokenized = %q", tokenized)
	}
	if restored := RestoreTokens(tokenized, vars); restored != expr {
		t.Fatalf("restored = %q", restored)
	}
}

func TestRestoreTokensDoubleDigit(t *testing.T) {
	vars := make([]string, 13)
	for i := range vars {
		vars[i] = "/g:v" + string(rune('a'+i))
	}
	// Var12 must not be read as Var1 followed by "2".
	if got := RestoreTokens("Var12 + Var1", vars); got != "/g:vm + /g:vb" {
		t.Fatalf("restored = %q", got)
	}
}

func TestApplyExpressionMasksInvalidPixels(t *testing.T) {
	img := NewImageData(2, 1, [4]float64{0, 0, 2, 1}, pyrCRS(t))
	img.AddBand("Var0", []float64{1, 2}, []bool{true, false})
	img.AddBand("Var1", []float64{10, 20}, []bool{true, true})
	out, err := ApplyExpression(img, "Var0 + Var1")
	if err != nil {
		t.Fatal(err)
	}
	if out.NumBands() != 1 {
		t.Fatalf("bands = %v", out.Bands)
	}
	if !out.Valid[0][0] || out.Data[0][0] != 11 {
		t.Fatalf("pixel 0 = %v valid %v", out.Data[0][0], out.Valid[0][0])
	}
	if out.Valid[0][1] {
		t.Fatal("masked input leaked into output")
	}
}
