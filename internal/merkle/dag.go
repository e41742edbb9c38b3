// Package merkle implements the in-memory content-addressed DAG used
// for change detection. Node ids are derived purely from node data, so
// two independently built DAGs agree on ids for equal data and a
// structural diff reduces to set operations over ids.
package merkle

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/semindex-mcp/internal/hasher"
)

// Node is a single DAG entry keyed by the hash of its data.
type Node struct {
	ID       string   `json:"id"`
	Data     string   `json:"data"`
	Parents  []string `json:"parents"`
	Children []string `json:"children"`
}

// DAG holds nodes by id plus the insertion-ordered list of roots
// (nodes with no parents).
type DAG struct {
	nodes   map[string]*Node
	rootIDs []string
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{nodes: make(map[string]*Node)}
}

// AddNode inserts a node for data and returns its content-addressed id.
// Existing nodes are reused. With no parent the node becomes a root.
// With a parent id that exists, a bidirectional edge is recorded; with
// a parent id that doesn't exist, the node is inserted without an edge
// and is not a root.
func (d *DAG) AddNode(data string, parent ...string) string {
	id := hasher.Hash(data)

	node, exists := d.nodes[id]
	if !exists {
		node = &Node{ID: id, Data: data}
		d.nodes[id] = node
	}

	if len(parent) == 0 || parent[0] == "" {
		if !exists {
			d.rootIDs = append(d.rootIDs, id)
		}
		return id
	}

	parentID := parent[0]
	parentNode, ok := d.nodes[parentID]
	if !ok || parentID == id {
		// Dangling parent reference, or a parent whose content hash
		// equals the child's (idempotent, never cyclic): keep the
		// node, establish nothing.
		return id
	}

	if !contains(parentNode.Children, id) {
		parentNode.Children = append(parentNode.Children, id)
	}
	if !contains(node.Parents, parentID) {
		node.Parents = append(node.Parents, parentID)
	}
	return id
}

// GetNode returns the node for id, or nil when absent.
func (d *DAG) GetNode(id string) *Node {
	return d.nodes[id]
}

// GetAllNodes returns every node keyed by id.
func (d *DAG) GetAllNodes() map[string]*Node {
	return d.nodes
}

// GetRoots returns root nodes in insertion order.
func (d *DAG) GetRoots() []*Node {
	roots := make([]*Node, 0, len(d.rootIDs))
	for _, id := range d.rootIDs {
		if n, ok := d.nodes[id]; ok {
			roots = append(roots, n)
		}
	}
	return roots
}

// GetLeaves returns every node that has no children.
func (d *DAG) GetLeaves() []*Node {
	leaves := make([]*Node, 0)
	for _, n := range d.nodes {
		if len(n.Children) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Size returns the number of nodes.
func (d *DAG) Size() int {
	return len(d.nodes)
}

// serialized is the plain wire record for a DAG.
type serialized struct {
	Nodes   []*Node  `json:"nodes"`
	RootIDs []string `json:"rootIds"`
}

// Serialize encodes the DAG as JSON, roots first. Round-trips
// preserve ids, edges, and the root list exactly.
func (d *DAG) Serialize() ([]byte, error) {
	s := serialized{RootIDs: append([]string(nil), d.rootIDs...)}

	emitted := make(map[string]bool, len(d.nodes))
	for _, id := range d.rootIDs {
		if n, ok := d.nodes[id]; ok && !emitted[id] {
			s.Nodes = append(s.Nodes, n)
			emitted[id] = true
		}
	}
	for id, n := range d.nodes {
		if !emitted[id] {
			s.Nodes = append(s.Nodes, n)
			emitted[id] = true
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize dag: %w", err)
	}
	return data, nil
}

// Deserialize decodes a DAG previously produced by Serialize,
// preserving ids, edges, and root order exactly.
func Deserialize(data []byte) (*DAG, error) {
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to deserialize dag: %w", err)
	}

	d := NewDAG()
	for _, n := range s.Nodes {
		d.nodes[n.ID] = n
	}
	d.rootIDs = s.RootIDs
	return d, nil
}

// Diff is the result of comparing two DAGs by node id.
type Diff struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Compare diffs two DAGs. Because ids are content-addressed, a change
// in data surfaces as one added plus one removed id; Modified is kept
// in the result shape for keyed views layered on top, and is always
// empty here.
func Compare(prev, next *DAG) Diff {
	diff := Diff{Added: []string{}, Removed: []string{}, Modified: []string{}}
	for id := range next.nodes {
		if _, ok := prev.nodes[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	for id := range prev.nodes {
		if _, ok := next.nodes[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
