package datatree

import (
	"fmt"
	"sort"
	"strings"
)

// Node is one group in the hierarchy: its attributes and the data
// arrays stored directly under it.
type Node struct {
	Path   string
	Attrs  Attrs
	Arrays map[string]*Array
}

// Store hands out the nodes of an opened hierarchical dataset. The
// chunk/codec machinery behind it is not this package's business: a
// store returns whole logical arrays.
type Store interface {
	// List returns every node path, sorted, using slash-delimited
	// paths with a leading slash ("/" is the root).
	List() []string
	Node(path string) (*Node, error)
	Close() error
}

// MemStore is an in-memory Store used by tests and by stores built
// from parsed consolidated metadata.
type MemStore struct {
	nodes map[string]*Node
}

func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[string]*Node)}
}

func normPath(p string) string {
	p = "/" + strings.Trim(p, "/")
	return p
}

// AddNode registers a node, creating it if needed, and returns it.
func (s *MemStore) AddNode(path string, attrs Attrs) *Node {
	path = normPath(path)
	if n, ok := s.nodes[path]; ok {
		if attrs != nil {
			n.Attrs = attrs
		}
		return n
	}
	n := &Node{Path: path, Attrs: attrs, Arrays: make(map[string]*Array)}
	if n.Attrs == nil {
		n.Attrs = Attrs{}
	}
	s.nodes[path] = n
	return n
}

// AddArray attaches an array to a node, creating the node if needed.
func (s *MemStore) AddArray(path string, a *Array) {
	n := s.AddNode(path, nil)
	n.Arrays[a.Name] = a
}

func (s *MemStore) List() []string {
	paths := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (s *MemStore) Node(path string) (*Node, error) {
	n, ok := s.nodes[normPath(path)]
	if !ok {
		return nil, fmt.Errorf("store: no node %q", path)
	}
	return n, nil
}

func (s *MemStore) Close() error { return nil }
