package datatree

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/nci/geozarr/utils"
)

// ScaleLevel is one resolution tier of a multiscale group, ordered
// finest to coarsest within Group.Scales.
type ScaleLevel struct {
	ID       string
	CellSize float64
	// Shape is (height, width).
	Shape     [2]int
	Transform utils.Affine
	// Variables present at this tier. Tiers need not agree: a
	// variable may only exist from some coarser tier onward.
	Variables map[string]bool
}

// Group is a validated node of the tree: either a plain group holding
// arrays directly, or a multiscale group whose children are the scale
// tiers.
type Group struct {
	Path       string
	Multiscale bool
	Scales     []ScaleLevel
	CRS        utils.CRS
}

// ScalePath returns the node path of a scale tier.
func (g *Group) ScalePath(scaleID string) string {
	if !g.Multiscale {
		return g.Path
	}
	if g.Path == "/" {
		return "/" + scaleID
	}
	return g.Path + "/" + scaleID
}

// Scale returns the tier with the given id.
func (g *Group) Scale(scaleID string) (*ScaleLevel, bool) {
	for i := range g.Scales {
		if g.Scales[i].ID == scaleID {
			return &g.Scales[i], true
		}
	}
	return nil, false
}

// Finest returns the highest-resolution tier.
func (g *Group) Finest() *ScaleLevel {
	if len(g.Scales) == 0 {
		return nil
	}
	return &g.Scales[0]
}

// Coarsest returns the lowest-resolution tier.
func (g *Group) Coarsest() *ScaleLevel {
	if len(g.Scales) == 0 {
		return nil
	}
	return &g.Scales[len(g.Scales)-1]
}

// Variables returns the union of variable names across every tier,
// sorted.
func (g *Group) Variables() []string {
	seen := make(map[string]bool)
	for _, s := range g.Scales {
		for v := range s.Variables {
			seen[v] = true
		}
	}
	names := make([]string, 0, len(seen))
	for v := range seen {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

// DataTree is the read-only view over an opened store: the accepted
// groups and their compound variable keys, in discovery order. Safe
// for concurrent reads once built.
type DataTree struct {
	store Store
	// Groups holds accepted group paths; Variables the
	// "group:variable" compound keys, groups first, variables
	// alphabetical within a group.
	Groups    []string
	Variables []string

	groups map[string]*Group
}

// Open walks the store and discovers the usable groups. Nodes that
// fail validation (no resolvable spatial dimensions or CRS) are
// excluded, not errors: a partially malformed dataset still serves its
// valid groups.
func Open(store Store, verbose bool) (*DataTree, error) {
	dt := &DataTree{store: store, groups: make(map[string]*Group)}

	var msPrefixes []string
	for _, p := range store.List() {
		node, err := store.Node(p)
		if err != nil {
			return nil, err
		}

		if HasConvention(node.Attrs, ConventionMultiscales) {
			msPrefixes = append(msPrefixes, p)

			g, err := dt.buildMultiscaleGroup(node)
			if err != nil {
				if verbose {
					log.Printf("datatree: skipping group %s: %v", p, err)
				}
				continue
			}
			dt.accept(g)
			continue
		}

		if underAny(p, msPrefixes) {
			continue
		}

		if g, ok := dt.buildPlainGroup(node, verbose); ok {
			dt.accept(g)
		}
	}

	for _, p := range dt.Groups {
		for _, v := range dt.groups[p].Variables() {
			dt.Variables = append(dt.Variables, p+":"+v)
		}
	}

	return dt, nil
}

func (dt *DataTree) accept(g *Group) {
	dt.Groups = append(dt.Groups, g.Path)
	dt.groups[g.Path] = g
}

func underAny(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if p != pre && strings.HasPrefix(p, pre+"/") {
			return true
		}
	}
	return false
}

func (dt *DataTree) buildMultiscaleGroup(node *Node) (*Group, error) {
	scales, crsCode, err := parseMultiscales(node.Attrs)
	if err != nil {
		return nil, err
	}
	if len(scales) == 0 {
		return nil, fmt.Errorf("multiscale group without scale tiers")
	}

	g := &Group{Path: node.Path, Multiscale: true, Scales: scales}

	// Validate the group through its first (finest) tier, like the
	// rest of the format tooling does.
	first, err := dt.store.Node(g.ScalePath(scales[0].ID))
	if err != nil {
		return nil, fmt.Errorf("finest tier %s unreadable: %v", scales[0].ID, err)
	}
	if err := validateSpatialNode(first); err != nil {
		return nil, err
	}

	g.CRS, err = resolveCRS(crsCode, node, first)
	if err != nil {
		return nil, err
	}

	for i := range g.Scales {
		level := &g.Scales[i]
		tier, err := dt.store.Node(g.ScalePath(level.ID))
		if err != nil {
			return nil, fmt.Errorf("tier %s unreadable: %v", level.ID, err)
		}
		for name, arr := range tier.Arrays {
			if arr.NDim() > 0 && !isCoordinateArray(name, arr) {
				level.Variables[name] = true
			}
		}
		if err := fillScaleGeometry(level, tier); err != nil {
			return nil, fmt.Errorf("tier %s: %v", level.ID, err)
		}
	}

	return g, nil
}

func (dt *DataTree) buildPlainGroup(node *Node, verbose bool) (*Group, bool) {
	hasData := false
	for name, arr := range node.Arrays {
		if arr.NDim() > 0 && !isCoordinateArray(name, arr) {
			hasData = true
			break
		}
	}
	if !hasData {
		return nil, false
	}

	if err := validateSpatialNode(node); err != nil {
		if verbose {
			log.Printf("datatree: skipping group %s: %v", node.Path, err)
		}
		return nil, false
	}

	crs, err := resolveCRS("", node, node)
	if err != nil {
		if verbose {
			log.Printf("datatree: skipping group %s: %v", node.Path, err)
		}
		return nil, false
	}

	level := ScaleLevel{Variables: map[string]bool{}}
	for name, arr := range node.Arrays {
		if arr.NDim() > 0 && !isCoordinateArray(name, arr) {
			level.Variables[name] = true
		}
	}
	if err := fillScaleGeometry(&level, node); err != nil {
		if verbose {
			log.Printf("datatree: skipping group %s: %v", node.Path, err)
		}
		return nil, false
	}

	return &Group{Path: node.Path, Scales: []ScaleLevel{level}, CRS: crs}, true
}

// Group returns a discovered group.
func (dt *DataTree) Group(path string) (*Group, bool) {
	g, ok := dt.groups[path]
	return g, ok
}

// ArrayAt fetches a named array from a node.
func (dt *DataTree) ArrayAt(nodePath, name string) (*Array, error) {
	node, err := dt.store.Node(nodePath)
	if err != nil {
		return nil, err
	}
	arr, ok := node.Arrays[name]
	if !ok {
		return nil, fmt.Errorf("datatree: no array %q in %s", name, nodePath)
	}
	return arr, nil
}

// GroupBounds returns a group's bounds in the requested CRS, from the
// finest tier's geometry.
func (dt *DataTree) GroupBounds(groupPath string, dst utils.CRS) ([4]float64, error) {
	g, ok := dt.groups[groupPath]
	if !ok {
		return [4]float64{}, fmt.Errorf("datatree: no group %q", groupPath)
	}
	finest := g.Finest()
	native := finest.Transform.Bounds(finest.Shape[1], finest.Shape[0])
	return utils.TransformBounds(g.CRS, dst, native, 21)
}

// Close releases the underlying store.
func (dt *DataTree) Close() error {
	return dt.store.Close()
}

var spatialXNames = []string{"x", "lon", "longitude", "LON", "LONGITUDE", "Lon", "ground_range"}
var spatialYNames = []string{"y", "lat", "latitude", "LAT", "LATITUDE", "Lat", "azimuth_time"}

func hasAnyDim(arr *Array, names []string) bool {
	for _, n := range names {
		if arr.HasDim(n) {
			return true
		}
	}
	return false
}

// validateSpatialNode checks that a node's data arrays expose a
// recognizable x/y dimension pair, directly or via declared spatial
// dimensions.
func validateSpatialNode(node *Node) error {
	if _, ok := node.Attrs["spatial:dimensions"]; ok {
		return nil
	}
	for name, arr := range node.Arrays {
		if arr.NDim() < 2 || isCoordinateArray(name, arr) {
			continue
		}
		if hasAnyDim(arr, spatialXNames) && hasAnyDim(arr, spatialYNames) {
			return nil
		}
	}
	return fmt.Errorf("no resolvable spatial dimensions")
}

// isCoordinateArray filters out coordinate and grid-mapping arrays so
// they never count as data variables.
func isCoordinateArray(name string, arr *Array) bool {
	if name == "spatial_ref" || name == "crs" {
		return true
	}
	// 1-D arrays labeling their own dimension are coordinates.
	return arr.NDim() == 1 && len(arr.Dims) == 1 && arr.Dims[0] == name
}

var crsAttrKeys = []string{"proj:code", "proj:epsg", "crs", "spatial_ref"}

func crsFromAttrs(attrs Attrs) (utils.CRS, bool) {
	for _, key := range crsAttrKeys {
		if v, ok := attrs[key]; ok {
			switch code := v.(type) {
			case string:
				if crs, err := utils.ParseCRS(code); err == nil {
					return crs, true
				}
			case float64:
				if crs, err := utils.ParseCRS(fmt.Sprintf("%d", int(code))); err == nil {
					return crs, true
				}
			case int:
				if crs, err := utils.ParseCRS(fmt.Sprintf("%d", code)); err == nil {
					return crs, true
				}
			}
		}
	}
	return utils.CRS{}, false
}

// resolveCRS looks for a CRS in the multiscale metadata, the group
// attributes, the tier attributes and finally the arrays themselves.
func resolveCRS(metaCode string, nodes ...*Node) (utils.CRS, error) {
	if metaCode != "" {
		if crs, err := utils.ParseCRS(metaCode); err == nil {
			return crs, nil
		}
	}
	for _, node := range nodes {
		if node == nil {
			continue
		}
		if crs, ok := crsFromAttrs(node.Attrs); ok {
			return crs, nil
		}
		for _, arr := range node.Arrays {
			if crs, ok := crsFromAttrs(arr.Attrs); ok {
				return crs, nil
			}
		}
	}
	return utils.CRS{}, fmt.Errorf("no resolvable CRS")
}

// fillScaleGeometry derives missing shape/transform/cell size from a
// tier's arrays: shape from the y/x axes, transform from coordinate
// spacing. Scale-level metadata, when present, wins.
func fillScaleGeometry(level *ScaleLevel, node *Node) error {
	if level.Shape != [2]int{} && level.Transform.XRes() > 0 {
		if level.CellSize == 0 {
			level.CellSize = level.Transform.XRes()
		}
		return nil
	}

	for name, arr := range node.Arrays {
		if arr.NDim() < 2 || isCoordinateArray(name, arr) {
			continue
		}
		xd, yd := spatialDimsOf(arr)
		if xd == "" || yd == "" {
			continue
		}
		xi, yi := arr.dimIndex(xd), arr.dimIndex(yd)
		h, w := arr.Shape[yi], arr.Shape[xi]
		if level.Shape == [2]int{} {
			level.Shape = [2]int{h, w}
		}
		if level.Transform.XRes() == 0 {
			xc, okx := arr.Coords[xd]
			yc, oky := arr.Coords[yd]
			if okx && oky && len(xc) > 1 && len(yc) > 1 {
				dx := xc[1] - xc[0]
				dy := yc[1] - yc[0]
				// Coordinates are cell centers.
				level.Transform = utils.Affine{A: dx, C: xc[0] - dx/2, E: dy, F: yc[0] - dy/2}
			}
		}
		if level.CellSize == 0 && level.Transform.XRes() > 0 {
			level.CellSize = level.Transform.XRes()
		}
		return nil
	}

	if level.Shape == [2]int{} {
		return fmt.Errorf("cannot derive tier geometry")
	}
	return nil
}

// spatialDimsOf returns the (x, y) dimension names of an array, empty
// when unresolvable.
func spatialDimsOf(arr *Array) (string, string) {
	var xd, yd string
	for _, n := range spatialXNames {
		if arr.HasDim(n) {
			xd = n
			break
		}
	}
	for _, n := range spatialYNames {
		if arr.HasDim(n) {
			yd = n
			break
		}
	}
	return xd, yd
}
