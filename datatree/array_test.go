package datatree

import (
	"testing"
)

func timeStack() *Array {
	// 2 time steps over a 2x3 grid.
	return &Array{
		Name:  "b02",
		Dims:  []string{"time", "y", "x"},
		Shape: []int{2, 2, 3},
		Coords: map[string][]float64{
			"time": {100, 200},
			"y":    {30, 10},
			"x":    {1, 2, 3},
		},
		Data:  []float64{0, 1, 2, 3, 4, 5, 10, 11, 12, 13, 14, 15},
		Attrs: Attrs{},
	}
}

func TestSelDropsDimension(t *testing.T) {
	a := timeStack()
	out, err := a.Sel("time", 200, SelNearest)
	if err != nil {
		t.Fatal(err)
	}
	if out.NDim() != 2 || out.Shape[0] != 2 || out.Shape[1] != 3 {
		t.Fatalf("shape = %v", out.Shape)
	}
	if out.At(0, 0) != 10 || out.At(1, 2) != 15 {
		t.Fatalf("data = %v", out.Data)
	}
	if _, ok := out.Coords["time"]; ok {
		t.Fatal("selected dimension coordinate survived")
	}
}

func TestSelMethods(t *testing.T) {
	a := timeStack()

	// 140 is nearer 100 than 200.
	out, err := a.Sel("time", 140, SelNearest)
	if err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0) != 0 {
		t.Fatalf("nearest picked %v", out.At(0, 0))
	}

	// pad picks the last value at or below.
	out, err = a.Sel("time", 199, SelPad)
	if err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0) != 0 {
		t.Fatalf("pad picked %v", out.At(0, 0))
	}

	// backfill picks the first value at or above.
	out, err = a.Sel("time", 101, SelBackfill)
	if err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0) != 10 {
		t.Fatalf("backfill picked %v", out.At(0, 0))
	}

	if _, err = a.Sel("time", 50, SelPad); err == nil {
		t.Fatal("pad below range must fail")
	}
	if _, err = a.Sel("time", 250, SelBFill); err == nil {
		t.Fatal("bfill above range must fail")
	}
}

func TestSelDescendingAxis(t *testing.T) {
	a := timeStack()
	// y runs 30 then 10.
	out, err := a.Sel("y", 12, SelNearest)
	if err != nil {
		t.Fatal(err)
	}
	if out.Dims[0] != "time" || out.Dims[1] != "x" {
		t.Fatalf("dims = %v", out.Dims)
	}
	// y=10 is row 1.
	if out.At(0, 0) != 3 || out.At(1, 2) != 15 {
		t.Fatalf("data = %v", out.Data)
	}
}

func TestTranspose(t *testing.T) {
	a := timeStack()
	if err := a.Transpose([]string{"y", "x", "time"}); err != nil {
		t.Fatal(err)
	}
	if a.Shape[0] != 2 || a.Shape[1] != 3 || a.Shape[2] != 2 {
		t.Fatalf("shape = %v", a.Shape)
	}
	// (time=1, y=0, x=2) was 12; now at (y=0, x=2, time=1).
	if a.At(0, 2, 1) != 12 {
		t.Fatalf("value = %v", a.At(0, 2, 1))
	}
	if err := a.Transpose([]string{"y", "x"}); err == nil {
		t.Fatal("short order must fail")
	}
}

func TestRenameCarriesCoords(t *testing.T) {
	a := timeStack()
	a.Rename("y", "lat")
	if !a.HasDim("lat") || a.HasDim("y") {
		t.Fatalf("dims = %v", a.Dims)
	}
	if len(a.Coords["lat"]) != 2 {
		t.Fatal("coords not carried")
	}
}

func TestAtPanicsOnRankMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("no panic")
		}
	}()
	timeStack().At(0, 0)
}

func TestCopyIsDeep(t *testing.T) {
	a := timeStack()
	b := a.Copy()
	b.Data[0] = 99
	b.Coords["x"][0] = 99
	if a.Data[0] == 99 || a.Coords["x"][0] == 99 {
		t.Fatal("copy shares state")
	}
}
