// zarr-query runs one read operation (tile, part, preview or point)
// against a consolidated dataset and prints the result as JSON: the
// point values, or a per-band summary of the composed image.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/context"

	"github.com/dustin/go-humanize"

	"github.com/nci/geozarr/cache"
	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/metrics"
	"github.com/nci/geozarr/processor"
	"github.com/nci/geozarr/reader"
	"github.com/nci/geozarr/utils"
)

var (
	metadataFile = flag.String("metadata", "", "path to a consolidated .zmetadata file")
	confFile     = flag.String("conf", "", "optional JSON config file")
	operation    = flag.String("op", "tile", "operation: tile, part, preview, point")
	variables    = flag.String("variables", "", "comma separated group:variable keys")
	expression   = flag.String("expression", "", "band math expression")
	tileSpec     = flag.String("tile", "", "tile as z/x/y")
	bboxSpec     = flag.String("bbox", "", "part bounds as xmin,ymin,xmax,ymax")
	bboxCRS      = flag.String("bbox-crs", "EPSG:4326", "CRS of -bbox")
	pointSpec    = flag.String("point", "", "point as lon,lat")
	width        = flag.Int("width", 0, "output width")
	height       = flag.Int("height", 0, "output height")
	maxSize      = flag.Int("max-size", 0, "output max size")
	verbose      = flag.Bool("v", false, "verbose logging")
)

type bandSummary struct {
	Band  string  `json:"band"`
	Valid int     `json:"valid_pixels"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *metadataFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	config := utils.DefaultConfig()
	if *confFile != "" {
		if err := config.LoadConfig(*confFile, *verbose); err != nil {
			log.Fatalf("zarr-query: %v", err)
		}
	}
	if *verbose {
		config.Service.Verbose = true
	}

	collector := metrics.NewMetricsCollector(metrics.NewStdoutLogger())
	collector.Info.Operation = *operation
	collector.Info.Read.Dataset = *metadataFile
	t0 := time.Now()

	handles := datatree.NewHandleCache(config.Service.MaxOpenHandles)
	defer handles.Clear()
	r, store := openReader(config, handles)
	defer store.Close()

	params := &reader.Params{
		Expression: *expression,
		MaxSize:    *maxSize,
		Width:      *width,
		Height:     *height,
	}
	if *variables != "" {
		params.Variables = strings.Split(*variables, ",")
	}
	collector.Info.Read.Variables = params.Variables
	collector.Info.Read.Expression = params.Expression

	out, err := runOperation(r, store, config, params, collector)
	collector.Info.ReqDuration = time.Since(t0)
	if err != nil {
		collector.Info.Error = err.Error()
		collector.Log()
		log.Fatalf("zarr-query: %v", err)
	}
	collector.Log()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("zarr-query: %v", err)
	}
}

func openReader(config *utils.Config, handles *datatree.HandleCache) (*reader.Reader, *cache.Store) {
	dt, err := handles.OpenFile(*metadataFile, config.Service.Verbose)
	if err != nil {
		log.Fatalf("zarr-query: %v", err)
	}

	opts := []reader.Option{
		reader.WithVerbose(config.Service.Verbose),
		reader.WithTileSize(config.Reader.TileSize),
		reader.WithPreviewMaxSize(config.Reader.PreviewMaxSize),
		reader.WithConcurrency(config.Reader.MaxConcurrency),
	}
	if config.Reader.TileMatrixSet == "WorldCRS84Quad" {
		opts = append(opts, reader.WithTileMatrixSet(utils.WorldCRS84Quad()))
	} else if strings.HasSuffix(config.Reader.TileMatrixSet, ".yaml") {
		tms, err := utils.LoadTileMatrixSet(config.Reader.TileMatrixSet)
		if err != nil {
			log.Fatalf("zarr-query: %v", err)
		}
		opts = append(opts, reader.WithTileMatrixSet(tms))
	}

	r, err := reader.New(dt, opts...)
	if err != nil {
		log.Fatalf("zarr-query: %v", err)
	}
	return r, newCacheStore(&config.Cache, config.Service.Verbose)
}

func newCacheStore(cfg *utils.CacheConfig, verbose bool) *cache.Store {
	var backend cache.Backend
	switch {
	case cfg.MemcacheURI != "":
		backend = cache.NewMemcacheBackend(strings.Split(cfg.MemcacheURI, ",")...)
	case cfg.LocalSize > 0:
		backend = cache.NewLocalBackend(cfg.LocalSize)
	default:
		return nil
	}
	return cache.NewStore(backend, cache.NewSigner(cfg.Secret),
		time.Duration(cfg.TTLSeconds)*time.Second,
		time.Duration(cfg.JitterSeconds)*time.Second, verbose)
}

func runOperation(r *reader.Reader, store *cache.Store, config *utils.Config,
	params *reader.Params, collector *metrics.MetricsCollector) (interface{}, error) {

	ctx := context.Background()

	cacheKey := cache.Key(config.Cache.Namespace, *operation, *metadataFile, map[string]interface{}{
		"variables":  params.Variables,
		"expression": params.Expression,
		"tile":       *tileSpec,
		"bbox":       *bboxSpec,
		"point":      *pointSpec,
		"width":      *width,
		"height":     *height,
		"max_size":   *maxSize,
	})
	collector.Info.Cache.Key = cacheKey
	if cached, ok := store.Get(cacheKey); ok {
		collector.Info.Cache.Hit = true
		var doc interface{}
		if err := json.Unmarshal(cached, &doc); err == nil {
			return doc, nil
		}
	}

	var out interface{}
	switch *operation {
	case "tile":
		z, x, y, err := parseTile(*tileSpec)
		if err != nil {
			return nil, err
		}
		collector.Info.TileX, collector.Info.TileY, collector.Info.TileZ = x, y, z
		img, err := r.Tile(ctx, x, y, z, params)
		if err != nil {
			return nil, err
		}
		out = summarize(img, collector)

	case "part":
		bounds, err := parseBounds(*bboxSpec)
		if err != nil {
			return nil, err
		}
		crs, err := utils.ParseCRS(*bboxCRS)
		if err != nil {
			return nil, err
		}
		img, err := r.Part(ctx, bounds, crs, params)
		if err != nil {
			return nil, err
		}
		out = summarize(img, collector)

	case "preview":
		img, err := r.Preview(ctx, params)
		if err != nil {
			return nil, err
		}
		out = summarize(img, collector)

	case "point":
		lon, lat, err := parsePoint(*pointSpec)
		if err != nil {
			return nil, err
		}
		pt, err := r.Point(ctx, lon, lat, params)
		if err != nil {
			return nil, err
		}
		collector.Info.Read.BandCount = len(pt.Bands)
		out = pt

	default:
		return nil, fmt.Errorf("unknown operation %q", *operation)
	}

	if buf, err := json.Marshal(out); err == nil {
		store.Put(cacheKey, buf)
	}
	return out, nil
}

func summarize(img *processor.ImageData, collector *metrics.MetricsCollector) interface{} {
	collector.Info.Read.BandCount = img.NumBands()

	summaries := make([]bandSummary, 0, img.NumBands())
	for b := range img.Bands {
		s := bandSummary{Band: img.Bands[b], Min: math.Inf(1), Max: math.Inf(-1)}
		sum := 0.0
		for i, ok := range img.Valid[b] {
			if !ok {
				continue
			}
			v := img.Data[b][i]
			s.Valid++
			sum += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		if s.Valid > 0 {
			s.Mean = sum / float64(s.Valid)
		} else {
			s.Min, s.Max = 0, 0
		}
		summaries = append(summaries, s)
	}

	pixels := uint64(img.Width) * uint64(img.Height) * uint64(img.NumBands()) * 8
	return map[string]interface{}{
		"width":       img.Width,
		"height":      img.Height,
		"bounds":      img.Bounds,
		"crs":         img.CRS.String(),
		"raster_size": humanize.Bytes(pixels),
		"bands":       summaries,
	}
}

func parseTile(spec string) (int, int, int, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("tile spec %q, want z/x/y", spec)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("tile spec %q: %v", spec, err)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

func parseBounds(spec string) ([4]float64, error) {
	var b [4]float64
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("bbox %q, want xmin,ymin,xmax,ymax", spec)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("bbox %q: %v", spec, err)
		}
		b[i] = v
	}
	return b, nil
}

func parsePoint(spec string) (float64, float64, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("point %q, want lon,lat", spec)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lon, lat, nil
}
