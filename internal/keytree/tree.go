package keytree

import (
	"fmt"
	"slices"
	"sort"

	"github.com/tiagocoutinho/qredis/internal/keypath"
	"github.com/tiagocoutinho/qredis/internal/store"
)

// node is one arena slot. Ownership flows from the root through children
// indexes; parent is a plain back index.
type node struct {
	name     string // path segment, delimiter included
	path     string // joined segments from the root, equal to the key for key nodes
	isKey    bool
	parent   int
	children map[string]int
	order    []string // child names in insertion order
}

// arena is one built database subtree. Slot 0 is the database root.
type arena struct {
	nodes []node
	index map[string]int // key -> node
	desc  store.Description
}

func newArena(desc store.Description, capacity int) *arena {
	a := &arena{
		nodes: make([]node, 1, capacity+1),
		index: make(map[string]int, capacity),
		desc:  desc,
	}
	a.nodes[0] = node{name: desc.Short, parent: -1, children: map[string]int{}}
	return a
}

// segments splits a key for the tree. The empty key is a single empty segment.
func segments(key, delims string) []string {
	segs := keypath.Split(key, delims)
	if len(segs) == 0 {
		return []string{""}
	}
	return segs
}

// build sorts keys and inserts them one by one. A prefix node created for an
// earlier key is promoted to a key node instead of being duplicated.
func build(desc store.Description, keys []string, delims string) *arena {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	a := newArena(desc, len(sorted))
	for _, key := range sorted {
		if _, dup := a.index[key]; dup {
			continue
		}
		cur := 0
		for _, seg := range segments(key, delims) {
			cur = a.child(cur, seg)
		}
		a.nodes[cur].isKey = true
		a.index[key] = cur
	}
	return a
}

// child returns the child of parent named seg, creating it if needed.
func (a *arena) child(parent int, seg string) int {
	if id, ok := a.nodes[parent].children[seg]; ok {
		return id
	}
	id := len(a.nodes)
	prefix := ""
	if parent != 0 {
		prefix = a.nodes[parent].path
	}
	a.nodes = append(a.nodes, node{
		name:     seg,
		path:     prefix + seg,
		parent:   parent,
		children: map[string]int{},
	})
	p := &a.nodes[parent]
	p.children[seg] = id
	p.order = append(p.order, seg)
	return id
}

// relabel renames a leaf key node in place. The caller has checked that
// the parent path is unchanged and the new name is free.
func (a *arena) relabel(id int, oldKey, newKey, newName string) {
	n := &a.nodes[id]
	p := &a.nodes[n.parent]
	delete(p.children, n.name)
	p.children[newName] = id
	for i, name := range p.order {
		if name == n.name {
			p.order[i] = newName
			break
		}
	}
	n.name = newName
	n.path = newKey
	delete(a.index, oldKey)
	a.index[newKey] = id
}

// canRelabel reports why a rename cannot be patched, or "" when it can.
func (a *arena) canRelabel(id int, oldSegs, newSegs []string, newKey string) string {
	if !slices.Equal(keypath.Parent(oldSegs), keypath.Parent(newSegs)) {
		return "move"
	}
	if len(a.nodes[id].children) > 0 {
		return "folder_rename"
	}
	if _, taken := a.index[newKey]; taken {
		return "overwrite"
	}
	if _, taken := a.nodes[a.nodes[id].parent].children[newSegs[len(newSegs)-1]]; taken {
		return "merge"
	}
	return ""
}

func (a *arena) valid(id int) error {
	if id < 0 || id >= len(a.nodes) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return nil
}
