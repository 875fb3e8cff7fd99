package metrics

import (
	"strings"
	"testing"
)

func TestMetricsInfoToJSON(t *testing.T) {
	col := NewMetricsCollector(nil)
	col.Info.Operation = " Tile "
	col.Info.TileZ = 12
	col.Info.Read.Dataset = "/data/s2.zarr"
	col.Info.Read.Variables = []string{"b02", "b03"}
	col.Info.Cache.Hit = true

	out, err := col.Info.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"operation":"tile"`) {
		t.Fatalf("json = %s", out)
	}
	if !strings.Contains(out, `"band_count":2`) {
		t.Fatalf("json = %s", out)
	}
}
