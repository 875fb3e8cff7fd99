package reader

import (
	"math"

	"golang.org/x/net/context"

	"github.com/nci/geozarr/datatree"
	"github.com/nci/geozarr/processor"
	"github.com/nci/geozarr/utils"
)

// Params carries the per-request options shared by every read
// operation.
type Params struct {
	// Variables holds "group:variable" compound keys. Expression, if
	// set, wins over Variables.
	Variables  []string
	Expression string

	Sel       map[string]string
	SelMethod datatree.SelMethod
	Strategy  processor.Strategy

	Width   int
	Height  int
	MaxSize int

	// DstCRS overrides the operation's default output CRS where the
	// operation allows it (part, preview).
	DstCRS utils.CRS
}

// Reader serves tile, part, preview, point and feature reads over one
// opened dataset. Safe for concurrent use: the tree is immutable after
// open and every request carries its own state.
type Reader struct {
	dt       *datatree.DataTree
	tms      *utils.TileMatrixSet
	tileSize int
	maxSize  int
	limiter  *processor.ConcLimiter
	verbose  bool

	// bounds is the dataset extent in WGS84, unioned over groups.
	bounds [4]float64
}

type Option func(*Reader)

func WithTileMatrixSet(tms *utils.TileMatrixSet) Option {
	return func(r *Reader) { r.tms = tms }
}

func WithTileSize(size int) Option {
	return func(r *Reader) { r.tileSize = size }
}

func WithPreviewMaxSize(size int) Option {
	return func(r *Reader) { r.maxSize = size }
}

func WithConcurrency(n int) Option {
	return func(r *Reader) { r.limiter = processor.NewConcLimiter(n) }
}

func WithVerbose(v bool) Option {
	return func(r *Reader) { r.verbose = v }
}

// New wraps an opened tree. Dataset bounds are derived and validated
// immediately so malformed georeferencing fails at open time, not on
// the first tile.
func New(dt *datatree.DataTree, opts ...Option) (*Reader, error) {
	r := &Reader{
		dt:       dt,
		tms:      utils.WebMercatorQuad(),
		tileSize: 256,
		maxSize:  1024,
		limiter:  processor.NewConcLimiter(4),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.deriveBounds(); err != nil {
		return nil, err
	}
	return r, nil
}

// deriveBounds unions per-group WGS84 extents and applies the
// half-pixel tolerance rule: bounds may exceed the valid range by up
// to half a cell (a common artifact of center-vs-edge registration)
// and are clamped; anything further out is a data error.
func (r *Reader) deriveBounds() error {
	first := true
	halfPixel := 0.0

	for _, path := range r.dt.Groups {
		g, _ := r.dt.Group(path)
		b, err := r.dt.GroupBounds(path, utils.CRSWGS84)
		if err != nil {
			continue
		}
		finest := g.Finest()
		hp := (b[2] - b[0]) / float64(finest.Shape[1]) / 2
		if hp > halfPixel {
			halfPixel = hp
		}
		if first {
			r.bounds = b
			first = false
			continue
		}
		r.bounds[0] = math.Min(r.bounds[0], b[0])
		r.bounds[1] = math.Min(r.bounds[1], b[1])
		r.bounds[2] = math.Max(r.bounds[2], b[2])
		r.bounds[3] = math.Max(r.bounds[3], b[3])
	}
	if first {
		return &InvalidGeographicBoundsError{}
	}

	b := r.bounds
	if b[0] < -180-halfPixel || b[2] > 180+halfPixel ||
		b[1] < -90-halfPixel || b[3] > 90+halfPixel {
		return &InvalidGeographicBoundsError{Bounds: b}
	}
	r.bounds[0] = math.Max(b[0], -180)
	r.bounds[1] = math.Max(b[1], -90)
	r.bounds[2] = math.Min(b[2], 180)
	r.bounds[3] = math.Min(b[3], 90)
	return nil
}

// Bounds returns the dataset extent in WGS84.
func (r *Reader) Bounds() [4]float64 { return r.bounds }

// Groups lists the discovered group paths.
func (r *Reader) Groups() []string { return r.dt.Groups }

// Variables lists the "group:variable" compound keys.
func (r *Reader) Variables() []string { return r.dt.Variables }

// ParseExpression extracts the variables a band-math expression
// references.
func (r *Reader) ParseExpression(expr string) ([]string, error) {
	return processor.ParseExpression(expr, r.dt.Variables)
}

// Close releases the underlying store.
func (r *Reader) Close() error { return r.dt.Close() }

func (r *Reader) compositeRequest(p *Params) *processor.CompositeRequest {
	return &processor.CompositeRequest{
		GeoRequest: processor.GeoRequest{
			Width:     p.Width,
			Height:    p.Height,
			MaxSize:   p.MaxSize,
			DstCRS:    p.DstCRS,
			Sel:       p.Sel,
			SelMethod: p.SelMethod,
			Strategy:  p.Strategy,
		},
		Variables:  p.Variables,
		Expression: p.Expression,
	}
}

// Tile reads one tile of the reader's tiling scheme.
func (r *Reader) Tile(ctx context.Context, tileX, tileY, tileZ int, p *Params) (*processor.ImageData, error) {
	req := r.compositeRequest(p)
	req.Bounds = r.tms.XYBounds(tileX, tileY, tileZ)
	req.HasBounds = true
	req.DstCRS = r.tms.CRS()
	req.Width = r.tileSize
	req.Height = r.tileSize
	req.MaxSize = 0
	return processor.Composite(ctx, r.dt, req, r.limiter)
}

// Part reads an arbitrary bounding box given in boundsCRS, output in
// p.DstCRS when set, otherwise in boundsCRS.
func (r *Reader) Part(ctx context.Context, bounds [4]float64, boundsCRS utils.CRS, p *Params) (*processor.ImageData, error) {
	dst := p.DstCRS
	if dst.IsZero() {
		dst = boundsCRS
	}
	if !dst.Equal(boundsCRS) {
		var err error
		bounds, err = utils.TransformBounds(boundsCRS, dst, bounds, 21)
		if err != nil {
			return nil, err
		}
	}

	req := r.compositeRequest(p)
	req.Bounds = bounds
	req.HasBounds = true
	req.DstCRS = dst
	return processor.Composite(ctx, r.dt, req, r.limiter)
}

// Preview reads the whole group extent fitted into a maximum size.
// Explicit width/height do not apply to previews and are discarded.
func (r *Reader) Preview(ctx context.Context, p *Params) (*processor.ImageData, error) {
	req := r.compositeRequest(p)
	req.Width, req.Height = 0, 0
	if req.MaxSize == 0 {
		req.MaxSize = r.maxSize
	}
	return processor.Composite(ctx, r.dt, req, r.limiter)
}

// Point extracts per-variable values at a WGS84 coordinate.
func (r *Reader) Point(ctx context.Context, lon, lat float64, p *Params) (*processor.PointData, error) {
	req := r.compositeRequest(p)
	req.DstCRS = utils.CRSWGS84
	return processor.CompositePoint(ctx, r.dt, req, lon, lat, r.limiter)
}

// Statistics is not supported for this data source.
func (r *Reader) Statistics(ctx context.Context, p *Params) error {
	return ErrNotImplemented
}

// zoomFor maps a native ground resolution of a group into the tiling
// scheme's zoom range.
func (r *Reader) zoomFor(g *datatree.Group, nativeRes float64) int {
	schemeCRS := r.tms.CRS()
	if schemeCRS.Equal(g.CRS) {
		return r.tms.ZoomForRes(nativeRes)
	}

	finest := g.Finest()
	nativeBounds := finest.Transform.Bounds(finest.Shape[1], finest.Shape[0])
	dstBounds, err := utils.TransformBounds(g.CRS, schemeCRS, nativeBounds, 21)
	if err != nil {
		return r.tms.MinZoom
	}
	scale := (dstBounds[2] - dstBounds[0]) / (nativeBounds[2] - nativeBounds[0])
	return r.tms.ZoomForRes(nativeRes * scale)
}

// MinZoom returns the coarsest useful zoom of a group under the
// reader's tiling scheme.
func (r *Reader) MinZoom(groupPath string) int {
	g, ok := r.dt.Group(groupPath)
	if !ok {
		return r.tms.MinZoom
	}
	return r.zoomFor(g, g.Coarsest().CellSize)
}

// MaxZoom returns the finest useful zoom of a group under the
// reader's tiling scheme.
func (r *Reader) MaxZoom(groupPath string) int {
	g, ok := r.dt.Group(groupPath)
	if !ok {
		return r.tms.MaxZoom
	}
	return r.zoomFor(g, g.Finest().CellSize)
}
