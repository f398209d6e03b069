package app

import (
	"context"
	"sync"

	"github.com/tiagocoutinho/qredis/internal/keytree"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/ssh"
	"github.com/tiagocoutinho/qredis/internal/store"

	"github.com/puzpuzpuz/xsync/v3"
)

// session is one cached connection and its subtree in the key index.
type session struct {
	store *store.Store
	db    int
}

// App is the presentation-facing API. Every method returns a QueryResult.
type App struct {
	ctx      context.Context
	sessions *xsync.MapOf[string, *session] // keyed by config hash
	connMu   sync.Mutex                     // serializes session creation
	index    *keytree.Index
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{
		ctx:      context.Background(),
		sessions: xsync.NewMapOf[string, *session](),
		index:    keytree.New(),
	}
}

// Startup keeps the caller context for later use
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
}

// Index exposes the shared key tree
func (a *App) Index() *keytree.Index {
	return a.index
}

// Shutdown closes every session and SSH tunnel
func (a *App) Shutdown(ctx context.Context) {
	a.CloseAll()
	ssh.CloseAllForwarders()
	logger.Close()
}

// CloseAll closes every cached connection and drops its subtree
func (a *App) CloseAll() {
	a.sessions.Range(func(key string, s *session) bool {
		a.dropSession(key, s)
		return true
	})
}

func (a *App) dropSession(key string, s *session) {
	a.sessions.Delete(key)
	_ = a.index.Remove(s.db)
	if err := s.store.Close(); err != nil {
		logger.Error(err, "关闭 Redis 连接失败：缓存Key=%s", shortKey(key))
		return
	}
	logger.Infof("已关闭 Redis 连接：缓存Key=%s", shortKey(key))
}
