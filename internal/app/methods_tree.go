package app

import (
	"errors"

	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/keytree"
	"github.com/tiagocoutinho/qredis/internal/logger"
)

// TreeNode is a node with its whole subtree, for front ends that render
// the tree in one go.
type TreeNode struct {
	keytree.Node
	Children []TreeNode `json:"children,omitempty"`
}

// tree assembles the nested view from one depth-first snapshot.
func (a *App) tree(db int) (TreeNode, error) {
	var root TreeNode
	var path []*TreeNode
	err := a.index.Walk(db, func(n keytree.Node, depth int) error {
		if depth == 0 {
			root = TreeNode{Node: n}
			path = []*TreeNode{&root}
			return nil
		}
		parent := path[depth-1]
		parent.Children = append(parent.Children, TreeNode{Node: n})
		path = append(path[:depth], &parent.Children[len(parent.Children)-1])
		return nil
	})
	return root, err
}

// RedisKeyTree returns the key tree of a connection. The first call builds
// it; a stale tree is reported and needs RedisRefreshTree.
func (a *App) RedisKeyTree(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	if a.index.State(s.db) == keytree.StateEmpty {
		if err := a.index.Refresh(s.db); err != nil {
			logger.Error(err, "RedisKeyTree 构建失败")
			return fail(err)
		}
	}
	tree, err := a.tree(s.db)
	if err != nil {
		if errors.Is(err, keytree.ErrStaleIndex) {
			return connection.QueryResult{Success: false, Message: err.Error(), Data: map[string]string{"state": keytree.StateStale.String()}}
		}
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: tree}
}

// RedisRefreshTree rebuilds the key tree of a connection
func (a *App) RedisRefreshTree(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	if err := a.index.Refresh(s.db); err != nil {
		logger.Error(err, "RedisRefreshTree 刷新失败")
		return fail(err)
	}
	root, err := a.index.Root(s.db)
	if err != nil {
		return fail(err)
	}
	return connection.QueryResult{Success: true, Message: "刷新成功", Data: root}
}

// RedisTreeChildren returns the direct children of a node
func (a *App) RedisTreeChildren(id keytree.NodeID) connection.QueryResult {
	children, err := a.index.Children(id)
	if err != nil {
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: children}
}

// RedisNodeTooltip returns the hover text of a node
func (a *App) RedisNodeTooltip(id keytree.NodeID) connection.QueryResult {
	tip, err := a.index.Tooltip(id)
	if err != nil {
		logger.Error(err, "RedisNodeTooltip 获取失败：node=%s", id)
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: tip}
}

// RedisTreeDatabases lists every connection in the tree with its state
func (a *App) RedisTreeDatabases() connection.QueryResult {
	return connection.QueryResult{Success: true, Data: a.index.Databases()}
}
