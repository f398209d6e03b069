// Package keytree maintains a hierarchical index over flat key namespaces.
//
// Every database added to an Index owns an independent subtree with its own
// state. A subtree is queryable only while Built: deletions and structural
// renames mark it Stale and every query then fails with ErrStaleIndex until
// Refresh is called. Queries never perform store I/O, except Tooltip on a key
// node which reads the current item.
package keytree

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tiagocoutinho/qredis/internal/keypath"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/metrics"
	"github.com/tiagocoutinho/qredis/internal/store"
)

var (
	ErrStaleIndex  = errors.New("key 树已过期，需要刷新")
	ErrNotBuilt    = errors.New("key 树尚未构建")
	ErrUnknownNode = errors.New("节点不存在")
)

// State of one database subtree.
type State int

const (
	StateEmpty State = iota
	StateBuilt
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilt:
		return "built"
	case StateStale:
		return "stale"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Source is what a subtree is built from. *store.Store implements it.
type Source interface {
	Keys(pattern string) ([]string, error)
	Describe() (store.Description, error)
	Get(key string) (*store.Item, error)
}

// NodeID addresses a node of one build generation of one database.
type NodeID struct {
	DB  int    `json:"db"`
	Gen uint64 `json:"gen"`
	N   int    `json:"n"`
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d:%d:%d", id.DB, id.Gen, id.N)
}

// Node is a read-only snapshot of a tree node.
type Node struct {
	ID         NodeID `json:"id"`
	Name       string `json:"name"`     // path segment, or the short connection text for a database root
	Label      string `json:"label"`    // Name without its leading delimiter
	FullName   string `json:"fullName"` // joined path, or the long connection text for a database root
	Key        string `json:"key,omitempty"`
	IsKey      bool   `json:"isKey"`
	IsDB       bool   `json:"isDB"`
	Parent     NodeID `json:"parent"` // N is -1 for a database root
	ChildCount int    `json:"childCount"`
}

// Database describes one subtree of the index.
type Database struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Delims  string `json:"delims"`
	State   State  `json:"state"`
	Keys    int    `json:"keys"`
}

type database struct {
	id      int
	src     Source
	pattern string
	delims  string
	state   State
	tree    *arena
	gen     uint64
	version uint64 // bumped on every invalidation
}

// Index holds one subtree per database.
type Index struct {
	mu       sync.RWMutex
	dbs      map[int]*database
	order    []int
	nextID   int
	rebuilds int
}

func New() *Index {
	return &Index{dbs: make(map[int]*database)}
}

// Add registers a database subtree in the Empty state and returns its id.
func (x *Index) Add(src Source, pattern, delims string) int {
	if pattern == "" {
		pattern = "*"
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextID
	x.nextID++
	x.dbs[id] = &database{id: id, src: src, pattern: pattern, delims: delims}
	x.order = append(x.order, id)
	return id
}

// Remove drops a database subtree.
func (x *Index) Remove(db int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.dbs[db]; !ok {
		return fmt.Errorf("%w: db %d", ErrUnknownNode, db)
	}
	delete(x.dbs, db)
	for i, id := range x.order {
		if id == db {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
	return nil
}

// Find returns the subtree id built from src.
func (x *Index) Find(src Source) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, id := range x.order {
		if x.dbs[id].src == src {
			return id, true
		}
	}
	return 0, false
}

// Source returns the connection a subtree was built from.
func (x *Index) Source(db int) (Source, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.dbs[db]
	if !ok {
		return nil, fmt.Errorf("%w: db %d", ErrUnknownNode, db)
	}
	return d.src, nil
}

// Refresh rebuilds one subtree from scratch. On failure the previous tree
// and state are kept.
func (x *Index) Refresh(db int) error {
	x.mu.RLock()
	d, ok := x.dbs[db]
	if !ok {
		x.mu.RUnlock()
		return fmt.Errorf("%w: db %d", ErrUnknownNode, db)
	}
	src, pattern, delims, version := d.src, d.pattern, d.delims, d.version
	x.mu.RUnlock()

	keys, err := src.Keys(pattern)
	if err != nil {
		return fmt.Errorf("刷新 key 树失败: %w", err)
	}
	desc, err := src.Describe()
	if err != nil {
		return fmt.Errorf("刷新 key 树失败: %w", err)
	}
	tree := build(desc, keys, delims)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dbs[db] != d {
		return fmt.Errorf("%w: db %d", ErrUnknownNode, db)
	}
	d.tree = tree
	d.gen++
	d.state = StateBuilt
	// an invalidation that raced with the build wins
	if d.version != version {
		d.state = StateStale
	}
	x.rebuilds++
	metrics.RecordRebuild(len(tree.index))
	logger.Debugf("key 树已重建：%s 共 %d 个 key", desc.Short, len(tree.index))
	return nil
}

// RefreshAll rebuilds every subtree and joins the errors.
func (x *Index) RefreshAll() error {
	var errs []error
	for _, db := range x.Databases() {
		if err := x.Refresh(db.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rebuilds counts successful full builds since New.
func (x *Index) Rebuilds() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.rebuilds
}

func (x *Index) State(db int) State {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if d, ok := x.dbs[db]; ok {
		return d.state
	}
	return StateEmpty
}

// Databases lists subtrees in the order they were added.
func (x *Index) Databases() []Database {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Database, 0, len(x.order))
	for _, id := range x.order {
		d := x.dbs[id]
		info := Database{ID: id, Pattern: d.pattern, Delims: d.delims, State: d.state}
		if d.tree != nil {
			info.Name = d.tree.desc.Short
			info.Keys = len(d.tree.index)
		}
		out = append(out, info)
	}
	return out
}

// queryable returns the built subtree or the reason it cannot be read.
// Callers hold at least the read lock.
func (x *Index) queryable(db int) (*database, error) {
	d, ok := x.dbs[db]
	if !ok {
		return nil, fmt.Errorf("%w: db %d", ErrUnknownNode, db)
	}
	switch d.state {
	case StateEmpty:
		return nil, ErrNotBuilt
	case StateStale:
		return nil, ErrStaleIndex
	}
	return d, nil
}

func (x *Index) resolve(id NodeID) (*database, error) {
	d, err := x.queryable(id.DB)
	if err != nil {
		return nil, err
	}
	if id.Gen != d.gen {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if err := d.tree.valid(id.N); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *database) view(n int) Node {
	nd := &d.tree.nodes[n]
	v := Node{
		ID:         NodeID{DB: d.id, Gen: d.gen, N: n},
		Name:       nd.name,
		Label:      keypath.Label(nd.name, d.delims),
		FullName:   nd.path,
		IsKey:      nd.isKey,
		Parent:     NodeID{DB: d.id, Gen: d.gen, N: nd.parent},
		ChildCount: len(nd.children),
	}
	if n == 0 {
		v.IsDB = true
		v.Label = nd.name
		v.FullName = d.tree.desc.Long
	}
	if nd.isKey {
		v.Key = nd.path
	}
	return v
}

// Root returns the database root node.
func (x *Index) Root(db int) (Node, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, err := x.queryable(db)
	if err != nil {
		return Node{}, err
	}
	return d.view(0), nil
}

// Node returns a snapshot of id.
func (x *Index) Node(id NodeID) (Node, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, err := x.resolve(id)
	if err != nil {
		return Node{}, err
	}
	return d.view(id.N), nil
}

// Children returns the children of id in insertion order.
func (x *Index) Children(id NodeID) ([]Node, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, err := x.resolve(id)
	if err != nil {
		return nil, err
	}
	nd := &d.tree.nodes[id.N]
	out := make([]Node, 0, len(nd.order))
	for _, name := range nd.order {
		out = append(out, d.view(nd.children[name]))
	}
	return out, nil
}

// Lookup finds the node of an indexed key.
func (x *Index) Lookup(db int, key string) (Node, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, err := x.queryable(db)
	if err != nil {
		return Node{}, false, err
	}
	n, ok := d.tree.index[key]
	if !ok {
		return Node{}, false, nil
	}
	return d.view(n), true, nil
}

// Keys returns the indexed keys, sorted.
func (x *Index) Keys(db int) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, err := x.queryable(db)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(d.tree.index))
	for k := range d.tree.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Walk visits a subtree depth first. The snapshot is taken before fn runs,
// so fn may call back into the index.
func (x *Index) Walk(db int, fn func(n Node, depth int) error) error {
	type visit struct {
		n     Node
		depth int
	}
	x.mu.RLock()
	d, err := x.queryable(db)
	if err != nil {
		x.mu.RUnlock()
		return err
	}
	visits := make([]visit, 0, len(d.tree.nodes))
	var walk func(n, depth int)
	walk = func(n, depth int) {
		visits = append(visits, visit{d.view(n), depth})
		nd := &d.tree.nodes[n]
		for _, name := range nd.order {
			walk(nd.children[name], depth+1)
		}
	}
	walk(0, 0)
	x.mu.RUnlock()

	for _, v := range visits {
		if err := fn(v.n, v.depth); err != nil {
			return err
		}
	}
	return nil
}

// Tooltip is the hover text of a node. A key node reads its item from the
// store and shows "?" when the key has vanished.
func (x *Index) Tooltip(id NodeID) (string, error) {
	x.mu.RLock()
	d, err := x.resolve(id)
	if err != nil {
		x.mu.RUnlock()
		return "", err
	}
	v := d.view(id.N)
	src := d.src
	x.mu.RUnlock()

	if !v.IsKey {
		return v.FullName, nil
	}
	item, err := src.Get(v.Key)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "?", nil
	}
	return item.Tooltip(), nil
}
