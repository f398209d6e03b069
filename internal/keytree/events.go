package keytree

import (
	"github.com/tiagocoutinho/qredis/internal/keypath"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/metrics"
	"github.com/tiagocoutinho/qredis/internal/store"
)

// Apply feeds store events to the subtree of their origin. Events from a
// store that is not part of the index are ignored.
func (x *Index) Apply(events ...store.Event) {
	for _, ev := range events {
		if ev.Origin == nil {
			continue
		}
		db, ok := x.Find(ev.Origin)
		if !ok {
			continue
		}
		switch ev.Type {
		case store.EventKeysDeleted:
			x.OnKeysDeleted(db)
		case store.EventKeyRenamed:
			if len(ev.Keys) == 2 {
				x.OnKeyRenamed(db, ev.Keys[0], ev.Keys[1])
			}
		case store.EventKeyWritten:
			for _, key := range ev.Keys {
				x.OnKeyWritten(db, key)
			}
		}
	}
}

// invalidate marks a built subtree Stale. Callers hold the write lock.
func (x *Index) invalidate(d *database, reason string) {
	d.version++
	if d.state != StateBuilt {
		return
	}
	d.state = StateStale
	metrics.RecordInvalidation(reason)
	logger.Debugf("key 树已失效（%s）：db %d", reason, d.id)
}

// OnKeyRenamed patches a leaf rename in place. A rename that changes the
// parent path, leaves the key filter, renames a folder or collides with an
// existing node marks the subtree Stale instead.
func (x *Index) OnKeyRenamed(db int, oldKey, newKey string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	d, ok := x.dbs[db]
	if !ok || oldKey == newKey {
		return
	}
	if d.state != StateBuilt {
		x.invalidate(d, "rename")
		return
	}
	n, ok := d.tree.index[oldKey]
	if !ok {
		return
	}
	if !keypath.Match(d.pattern, newKey) {
		x.invalidate(d, "filter")
		return
	}
	oldSegs := segments(oldKey, d.delims)
	newSegs := segments(newKey, d.delims)
	if reason := d.tree.canRelabel(n, oldSegs, newSegs, newKey); reason != "" {
		x.invalidate(d, reason)
		return
	}
	d.tree.relabel(n, oldKey, newKey, newSegs[len(newSegs)-1])
	metrics.RecordRenamePatch()
	logger.Debugf("key 树原地重命名：%s -> %s", oldKey, newKey)
}

// OnKeysDeleted marks the subtree Stale. Deletions may leave empty folders
// behind, so the next Refresh rebuilds the whole subtree.
func (x *Index) OnKeysDeleted(db int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if d, ok := x.dbs[db]; ok {
		x.invalidate(d, "delete")
	}
}

// OnKeyWritten marks the subtree Stale when a key the filter accepts is not
// indexed yet.
func (x *Index) OnKeyWritten(db int, key string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	d, ok := x.dbs[db]
	if !ok {
		return
	}
	if d.state != StateBuilt {
		x.invalidate(d, "write")
		return
	}
	if _, known := d.tree.index[key]; !known && keypath.Match(d.pattern, key) {
		x.invalidate(d, "new_key")
	}
}
