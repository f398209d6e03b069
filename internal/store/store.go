package store

import (
	"errors"
	"fmt"

	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/metrics"
	"github.com/tiagocoutinho/qredis/internal/redis"
)

var (
	// ErrNotFound is returned when an operation targets a key that does not exist.
	ErrNotFound = errors.New("key 不存在")
	// ErrConnection wraps every transport failure: the server is unreachable or the connection was lost.
	ErrConnection = errors.New("Redis 连接错误")
)

// Description is the human readable identity of a connection.
type Description struct {
	Short string `json:"short"` // DB 0 @ 127.0.0.1:6379 (12 - qredis)
	Long  string `json:"long"`
}

// Store wraps a raw client and speaks in Items and Values.
type Store struct {
	client redis.RedisClient
	config connection.ConnectionConfig
}

// New wraps an already connected client.
func New(client redis.RedisClient, config connection.ConnectionConfig) *Store {
	return &Store{client: client, config: config.WithDefaults()}
}

// Open connects a new go-redis client with config.
func Open(config connection.ConnectionConfig) (*Store, error) {
	client := redis.NewRedisClient()
	if err := client.Connect(config); err != nil {
		return nil, wrap("connect", err)
	}
	return New(client, config), nil
}

func (s *Store) Ping() error {
	return wrap("ping", s.client.Ping())
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Config() connection.ConnectionConfig {
	return s.config
}

// DB is the selected database index.
func (s *Store) DB() int {
	return s.client.GetCurrentDB()
}

// wrap records the outcome of op and tags transport failures with ErrConnection.
func wrap(op string, err error) error {
	metrics.ObserveOp(op, err)
	if err == nil {
		return nil
	}
	if redis.IsConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) event(e Event) Event {
	e.Origin = s
	metrics.RecordEvent(string(e.Type))
	return e
}

// Get reads the item stored at key. It returns (nil, nil) if the key does not exist.
func (s *Store) Get(key string) (*Item, error) {
	exists, err := s.client.KeyExists(key)
	if err = wrap("exists", err); err != nil || !exists {
		return nil, err
	}
	tag, err := s.client.GetKeyType(key)
	if err = wrap("type", err); err != nil {
		return nil, err
	}
	kind, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}
	if kind == KindNone {
		return nil, nil
	}
	ttl, err := s.client.GetTTL(key)
	if err = wrap("ttl", err); err != nil {
		return nil, err
	}
	if ttl == -2 {
		return nil, nil
	}

	var raw interface{}
	switch kind {
	case KindString:
		raw, err = s.client.GetString(key)
	case KindHash:
		raw, err = s.client.GetHash(key)
	case KindList:
		raw, err = s.client.GetList(key, 0, -1)
	case KindSet:
		raw, err = s.client.GetSet(key)
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err = wrap("get_"+kind.String(), err); err != nil {
		return nil, err
	}
	value, err := Normalize(tag, raw)
	if err != nil {
		return nil, err
	}
	// the key may expire between TYPE and the getter
	if Empty(value) && kind != KindString {
		return nil, nil
	}
	return &Item{Store: s, Key: key, Kind: kind, TTL: ttl, Value: value}, nil
}

// MustGet is Get with ErrNotFound for a missing key.
func (s *Store) MustGet(key string) (*Item, error) {
	item, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return item, nil
}

// Set writes v at key, replacing any previous value. A nil value deletes the
// key, and so does an empty hash, list or set.
func (s *Store) Set(key string, v Value) (Event, error) {
	if Empty(v) {
		return s.Delete(key)
	}
	var err error
	switch x := v.(type) {
	case StringValue:
		err = wrap("set", s.client.SetString(key, string(x), 0))
	case HashValue:
		err = wrap("hset", s.client.ReplaceHash(key, x))
	case ListValue:
		if err = s.del(key); err == nil {
			err = wrap("rpush", s.client.ListPush(key, x...))
		}
	case SetValue:
		if err = s.del(key); err == nil {
			err = wrap("sadd", s.client.SetAdd(key, x...))
		}
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedKind, v)
	}
	if err != nil {
		return Event{}, err
	}
	logger.Debugf("写入 key：%s 类型=%s", key, v.Kind())
	return s.event(Event{Type: EventKeyWritten, Keys: []string{key}}), nil
}

// Write stores the item's value under the item's key.
func (s *Store) Write(item *Item) (Event, error) {
	return s.Set(item.Key, item.Value)
}

func (s *Store) del(keys ...string) error {
	_, err := s.client.DeleteKeys(keys)
	return wrap("del", err)
}

// Delete removes keys in one call and reports them in a single event.
func (s *Store) Delete(keys ...string) (Event, error) {
	if err := s.del(keys...); err != nil {
		return Event{}, err
	}
	return s.event(Event{Type: EventKeysDeleted, Keys: keys}), nil
}

// Rename moves old to new. The event carries the item before and after.
func (s *Store) Rename(oldKey, newKey string) (Event, error) {
	oldItem, err := s.MustGet(oldKey)
	if err != nil {
		return Event{}, err
	}
	if err := wrap("rename", s.client.RenameKey(oldKey, newKey)); err != nil {
		return Event{}, err
	}
	logger.Debugf("重命名 key：%s -> %s", oldKey, newKey)
	// the rename is committed: the event goes out even if the read back fails
	newItem, err := s.Get(newKey)
	return s.event(Event{
		Type: EventKeyRenamed,
		Keys: []string{oldKey, newKey},
		Old:  oldItem,
		New:  newItem,
	}), err
}

// Expire sets the TTL in seconds; a negative value removes the expiry.
// A zero TTL makes the server delete the key, reported as EventKeysDeleted.
// Other TTLs return a zero Event.
func (s *Store) Expire(key string, seconds int64) (Event, error) {
	if seconds < 0 {
		return Event{}, s.Persist(key)
	}
	if err := wrap("expire", s.client.SetTTL(key, seconds)); err != nil {
		return Event{}, err
	}
	if seconds == 0 {
		return s.event(Event{Type: EventKeysDeleted, Keys: []string{key}}), nil
	}
	return Event{}, nil
}

func (s *Store) Persist(key string) error {
	return wrap("persist", s.client.SetTTL(key, -1))
}

// Touch returns the number of keys that exist.
func (s *Store) Touch(keys ...string) (int64, error) {
	n, err := s.client.TouchKeys(keys...)
	return n, wrap("touch", err)
}

// Copy writes the value of src to dst through the regular write path.
// The TTL of src is not copied.
func (s *Store) Copy(src, dst string) (Event, error) {
	item, err := s.MustGet(src)
	if err != nil {
		return Event{}, err
	}
	return s.Set(dst, item.Value)
}

// FlushDB removes every key of the selected database.
func (s *Store) FlushDB() (Event, error) {
	if err := wrap("flushdb", s.client.FlushDB()); err != nil {
		return Event{}, err
	}
	logger.Infof("已清空数据库 db%d：%s", s.DB(), s.config.Address())
	return s.event(Event{Type: EventKeysDeleted}), nil
}

// Keys enumerates keys matching a glob pattern in a single KEYS call.
func (s *Store) Keys(pattern string) ([]string, error) {
	keys, err := s.client.Keys(pattern)
	return keys, wrap("keys", err)
}

// Scan is one SCAN page with type and TTL of each key.
func (s *Store) Scan(pattern string, cursor uint64, count int64) (*redis.RedisScanResult, error) {
	res, err := s.client.ScanKeys(pattern, cursor, count)
	return res, wrap("scan", err)
}

// Describe returns the short and long connection texts.
func (s *Store) Describe() (Description, error) {
	info, err := s.client.ClientInfo()
	if err = wrap("client_info", err); err != nil {
		return Description{}, err
	}
	return describe(info), nil
}

func describe(info *redis.RedisClientInfo) Description {
	short := fmt.Sprintf("DB %d @ %s (%s", info.DB, info.Address, info.ID)
	if info.Name != "" {
		short += " - " + info.Name
	}
	short += ")"

	name := info.Name
	if name == "" {
		name = "---"
	}
	long := fmt.Sprintf("Db: %d\nAddress: %s\nClient ID: %s\nClient Name: %s", info.DB, info.Address, info.ID, name)
	return Description{Short: short, Long: long}
}

func (s *Store) ServerInfo() (map[string]string, error) {
	info, err := s.client.GetServerInfo()
	return info, wrap("info", err)
}

func (s *Store) Databases() ([]redis.RedisDBInfo, error) {
	dbs, err := s.client.GetDatabases()
	return dbs, wrap("info_keyspace", err)
}

// ServerConfig returns the server parameters matching pattern ("*" if empty).
func (s *Store) ServerConfig(pattern string) (map[string]string, error) {
	cfg, err := s.client.ConfigGet(pattern)
	return cfg, wrap("config_get", err)
}

// SetServerConfig changes a server parameter and returns the value now in
// effect. When the server rejects the change, the current value is read
// back so the caller can show it again.
func (s *Store) SetServerConfig(key, value string) (string, error) {
	if err := wrap("config_set", s.client.ConfigSet(key, value)); err != nil {
		cfg, getErr := s.client.ConfigGet(key)
		if wrap("config_get", getErr) != nil {
			return "", err
		}
		return cfg[key], err
	}
	logger.Infof("已修改服务器配置：%s=%s（%s）", key, value, s.config.Address())
	return value, nil
}

// Clients lists the connections of the server.
func (s *Store) Clients() ([]map[string]string, error) {
	clients, err := s.client.ClientList()
	return clients, wrap("client_list", err)
}

// Apply commits an edit made on a copy of original: rename if the key
// changed, write the value if it changed, then the TTL. A template from
// NewItem (empty original key) always writes.
func (s *Store) Apply(original, edited *Item) ([]Event, error) {
	if edited.Key == "" {
		return nil, errors.New("key 不能为空")
	}
	var events []Event
	created := original.Key == ""

	if !created && original.Key != edited.Key {
		ev, err := s.Rename(original.Key, edited.Key)
		if ev.Type != "" {
			events = append(events, ev)
		}
		if err != nil {
			return events, err
		}
	}

	written := false
	if created || !Equal(original.Value, edited.Value) {
		ev, err := s.Set(edited.Key, edited.Value)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		written = ev.Type == EventKeyWritten
	}

	// SET and DEL drop the expiry, so a rewritten key gets its TTL back
	if edited.Value != nil && (edited.TTL != original.TTL || (written && edited.TTL > 0)) {
		ev, err := s.Expire(edited.Key, edited.TTL)
		if err != nil {
			return events, err
		}
		if ev.Type != "" {
			events = append(events, ev)
		}
	}
	return events, nil
}
