package redis

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/tiagocoutinho/qredis/internal/connection"

	"github.com/redis/go-redis/v9"
)

// ErrNotConnected is returned by every call made before Connect or after Close.
var ErrNotConnected = errors.New("Redis 客户端未连接")

// Nil is the reply error of a getter on a missing key.
const Nil = redis.Nil

// RedisDBInfo represents information about a Redis database
type RedisDBInfo struct {
	Index int   `json:"index"` // Database index (0-15)
	Keys  int64 `json:"keys"`  // Number of keys in this database
}

// RedisKeyInfo represents information about a Redis key
type RedisKeyInfo struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	TTL  int64  `json:"ttl"`
}

// RedisScanResult represents the result of a SCAN operation
type RedisScanResult struct {
	Keys   []RedisKeyInfo `json:"keys"`
	Cursor uint64         `json:"cursor"`
}

// RedisClientInfo describes the live connection
type RedisClientInfo struct {
	Address string `json:"address"` // unix socket path or host:port as configured
	DB      int    `json:"db"`
	ID      string `json:"id"`   // CLIENT ID, "?" when the server does not answer it
	Name    string `json:"name"` // CLIENT GETNAME, empty when unset
}

// RedisClient defines the raw store operations the facade relies on.
// TTL values follow the server: -1 no expiry, -2 missing key.
type RedisClient interface {
	// Connection management
	Connect(config connection.ConnectionConfig) error
	Close() error
	Ping() error
	ClientInfo() (*RedisClientInfo, error)

	// Key operations
	Keys(pattern string) ([]string, error)
	ScanKeys(pattern string, cursor uint64, count int64) (*RedisScanResult, error)
	KeyExists(key string) (bool, error)
	GetKeyType(key string) (string, error)
	GetTTL(key string) (int64, error)
	SetTTL(key string, ttl int64) error
	TouchKeys(keys ...string) (int64, error)
	DeleteKeys(keys []string) (int64, error)
	RenameKey(oldKey, newKey string) error

	// String operations
	GetString(key string) (string, error)
	SetString(key, value string, ttl int64) error

	// Hash operations
	GetHash(key string) (map[string]string, error)
	ReplaceHash(key string, fields map[string]string) error

	// List operations
	GetList(key string, start, stop int64) ([]string, error)
	ListPush(key string, values ...string) error

	// Set operations
	GetSet(key string) ([]string, error)
	SetAdd(key string, members ...string) error

	// Server information
	GetServerInfo() (map[string]string, error)
	GetDatabases() ([]RedisDBInfo, error)
	GetCurrentDB() int
	FlushDB() error

	// Server configuration
	ConfigGet(pattern string) (map[string]string, error)
	ConfigSet(key, value string) error
	ClientList() ([]map[string]string, error)
}

// IsConnectionError reports whether err means the server could not be reached
// or the connection was lost, as opposed to a command level error.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, Nil) {
		return false
	}
	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
