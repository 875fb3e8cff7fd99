// zarr-info prints the structure of a consolidated dataset: groups,
// scale tiers, variables and per-variable metadata.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/reader"
	"github.com/nci/geozarr/utils"
)

var (
	metadataFile = flag.String("metadata", "", "path to a consolidated .zmetadata file")
	asJSON       = flag.Bool("json", false, "emit the info document as JSON")
	verbose      = flag.Bool("v", false, "verbose discovery logging")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *metadataFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	handles := datatree.NewHandleCache(utils.DefaultConfig().Service.MaxOpenHandles)
	defer handles.Clear()

	dt, err := handles.OpenFile(*metadataFile, *verbose)
	if err != nil {
		log.Fatalf("zarr-info: %v", err)
	}

	r, err := reader.New(dt, reader.WithVerbose(*verbose))
	if err != nil {
		log.Fatalf("zarr-info: %v", err)
	}

	if *asJSON {
		doc := map[string]interface{}{
			"bounds":    r.Bounds(),
			"groups":    r.Groups(),
			"variables": r.Variables(),
			"info":      r.Info(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			log.Fatalf("zarr-info: %v", err)
		}
		return
	}

	printSummary(r, dt)
}

func printSummary(r *reader.Reader, dt *datatree.DataTree) {
	b := r.Bounds()
	fmt.Printf("bounds (WGS84): %.6f, %.6f, %.6f, %.6f\n", b[0], b[1], b[2], b[3])
	fmt.Printf("groups: %d, variables: %d\n\n", len(r.Groups()), len(r.Variables()))

	for _, path := range r.Groups() {
		g, _ := dt.Group(path)
		kind := "plain"
		if g.Multiscale {
			kind = "multiscale"
		}
		fmt.Printf("%s (%s, %s)\n", path, kind, g.CRS)

		for _, s := range g.Scales {
			size := uint64(s.Shape[0]) * uint64(s.Shape[1]) * 8
			fmt.Printf("  scale %-6s cell %-10s %s x %s  ~%s/variable  %d variables\n",
				s.ID,
				utils.FormatCoord(s.CellSize),
				humanize.Comma(int64(s.Shape[1])),
				humanize.Comma(int64(s.Shape[0])),
				humanize.Bytes(size),
				len(s.Variables))
		}

		fmt.Printf("  variables: ")
		for i, v := range g.Variables() {
			if i > 0 {
				fmt.Printf(", ")
			}
			fmt.Printf("%s", v)
		}
		fmt.Printf("\n  zoom range: %d - %d\n\n", r.MinZoom(path), r.MaxZoom(path))
	}
}
