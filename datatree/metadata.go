package datatree

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path"
	"strings"
)

// Consolidated metadata handling: a single .zmetadata JSON document
// describing every node and array of a store, keyed
// "<path>/.zgroup|.zattrs|.zarray". Parsing it yields a metadata-only
// MemStore (array shapes and attributes, no chunk data), which is all
// the discovery and info paths need.

const (
	keyAttrs = ".zattrs"
	keyArray = ".zarray"
	keyGroup = ".zgroup"
)

// dimensionsAttr names the attribute carrying dimension labels for an
// array, as written by consolidating writers.
const dimensionsAttr = "_ARRAY_DIMENSIONS"

type consolidatedDoc struct {
	Format   int                        `json:"zarr_consolidated_format"`
	Metadata map[string]json.RawMessage `json:"metadata"`
}

type arrayMeta struct {
	ZarrFormat int    `json:"zarr_format"`
	Shape      []int  `json:"shape"`
	Dtype      string `json:"dtype"`
	FillValue  *json.RawMessage `json:"fill_value"`
}

// splitMetaKey splits "a/b/.zattrs" into the node path and key kind.
func splitMetaKey(key string) (string, string, bool) {
	base := path.Base(key)
	switch base {
	case keyAttrs, keyArray, keyGroup:
	default:
		return "", "", false
	}
	dir := path.Dir(key)
	if dir == "." {
		dir = ""
	}
	return dir, base, true
}

// ParseConsolidated builds a metadata-only store from a consolidated
// metadata document.
func ParseConsolidated(buf []byte) (*MemStore, error) {
	var doc consolidatedDoc
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("consolidated metadata: %v", err)
	}
	if doc.Metadata == nil {
		return nil, fmt.Errorf("consolidated metadata: missing metadata section")
	}

	store := NewMemStore()
	store.AddNode("/", nil)

	// .zarray keys identify array entries; everything else is a group.
	arrayPaths := make(map[string]bool)
	for key := range doc.Metadata {
		if p, kind, ok := splitMetaKey(key); ok && kind == keyArray {
			arrayPaths[p] = true
		}
	}

	for key, raw := range doc.Metadata {
		p, kind, ok := splitMetaKey(key)
		if !ok {
			return nil, fmt.Errorf("consolidated metadata: invalid key %q", key)
		}

		switch kind {
		case keyGroup:
			store.AddNode(p, nil)

		case keyArray:
			var meta arrayMeta
			if err := json.Unmarshal(raw, &meta); err != nil {
				return nil, fmt.Errorf("consolidated metadata: reading %q: %v", key, err)
			}
			nodePath, name := path.Split(p)
			arr := &Array{Name: name, Shape: meta.Shape, Attrs: Attrs{"dtype": meta.Dtype}}
			if meta.FillValue != nil {
				var fv float64
				if err := json.Unmarshal(*meta.FillValue, &fv); err == nil {
					arr.NoData = fv
					arr.HasNoData = true
				}
			}
			if err := applyArrayAttrs(doc.Metadata, p, arr); err != nil {
				return nil, err
			}
			store.AddArray(strings.TrimSuffix(nodePath, "/"), arr)

		case keyAttrs:
			if arrayPaths[p] {
				continue // folded into the array entry above
			}
			attrs := Attrs{}
			if err := json.Unmarshal(raw, &attrs); err != nil {
				return nil, fmt.Errorf("consolidated metadata: reading %q: %v", key, err)
			}
			store.AddNode(p, attrs)
		}
	}

	return store, nil
}

func applyArrayAttrs(metadata map[string]json.RawMessage, arrayPath string, arr *Array) error {
	raw, ok := metadata[arrayPath+"/"+keyAttrs]
	if !ok {
		return nil
	}
	attrs := Attrs{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return fmt.Errorf("consolidated metadata: attributes of %q: %v", arrayPath, err)
	}
	for k, v := range attrs {
		arr.Attrs[k] = v
	}

	if dims, ok := attrs[dimensionsAttr].([]interface{}); ok {
		for _, d := range dims {
			if s, ok := d.(string); ok {
				arr.Dims = append(arr.Dims, s)
			}
		}
	}
	if fv, ok := attrs.Float("fill_value"); ok {
		arr.NoData = fv
		arr.HasNoData = true
	}
	return nil
}

// ParseConsolidatedFile reads a consolidated metadata document from
// disk.
func ParseConsolidatedFile(filePath string) (*MemStore, error) {
	buf, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseConsolidated(buf)
}
