package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tiagocoutinho/qredis/internal/codec"
	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/metrics"
	"github.com/tiagocoutinho/qredis/internal/store"
)

// getSession gets or creates a cached connection for config
func (a *App) getSession(config connection.ConnectionConfig) (*session, error) {
	config = config.WithDefaults()
	key := getSessionCacheKey(config)
	logger.Debugf("获取 Redis 连接：%s 缓存Key=%s", formatRedisConnSummary(config), shortKey(key))

	if s, ok := a.sessions.Load(key); ok {
		if err := s.store.Ping(); err == nil {
			return s, nil
		} else {
			logger.Error(err, "缓存 Redis 连接不可用，准备重建：缓存Key=%s", shortKey(key))
		}
		a.dropSession(key, s)
	}

	a.connMu.Lock()
	defer a.connMu.Unlock()
	if s, ok := a.sessions.Load(key); ok {
		return s, nil
	}

	st, err := store.Open(config)
	if err != nil {
		logger.Error(err, "Redis 连接失败：%s 缓存Key=%s", formatRedisConnSummary(config), shortKey(key))
		return nil, err
	}
	s := &session{
		store: st,
		db:    a.index.Add(st, config.KeyFilter, config.KeySplit),
	}
	a.sessions.Store(key, s)
	logger.Infof("Redis 连接成功并写入缓存：%s 缓存Key=%s", formatRedisConnSummary(config), shortKey(key))
	return s, nil
}

func getSessionCacheKey(config connection.ConnectionConfig) string {
	if !config.UseSSH {
		config.SSH = connection.SSHConfig{}
	}
	b, _ := json.Marshal(config)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func formatRedisConnSummary(config connection.ConnectionConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "地址=%s DB=%d", config.Address(), config.RedisDB)
	if config.UseSSH {
		fmt.Fprintf(&b, " SSH=%s:%d 用户=%s", config.SSH.Host, config.SSH.Port, config.SSH.User)
	}
	return b.String()
}

func fail(err error) connection.QueryResult {
	return connection.QueryResult{Success: false, Message: err.Error()}
}

// ItemView is an item prepared for display. Display holds the decoded
// form of the value; Value keeps the stored text.
type ItemView struct {
	Key     string      `json:"key"`
	Type    string      `json:"type"`
	TTL     int64       `json:"ttl"`
	TTLText string      `json:"ttlText"`
	Value   interface{} `json:"value"`
	Display interface{} `json:"display"`
	Format  string      `json:"format,omitempty"` // decoder used for a string value
	Tooltip string      `json:"tooltip"`
}

func newItemView(item *store.Item) ItemView {
	v := ItemView{
		Key:     item.Key,
		Type:    item.Kind.String(),
		TTL:     item.TTL,
		TTLText: store.FormatTTL(item.TTL),
		Tooltip: item.Tooltip(),
	}
	decodeAll := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = codec.Decode([]byte(s))
		}
		return out
	}
	switch x := item.Value.(type) {
	case store.StringValue:
		v.Value = string(x)
		v.Display, v.Format = codec.Inspect([]byte(x))
	case store.HashValue:
		v.Value = map[string]string(x)
		display := make(map[string]string, len(x))
		for f, val := range x {
			display[f] = codec.Decode([]byte(val))
		}
		v.Display = display
	case store.ListValue:
		v.Value = []string(x)
		v.Display = decodeAll(x)
	case store.SetValue:
		v.Value = []string(x)
		v.Display = decodeAll(x)
	}
	return v
}

// ItemInput is an item as sent back by a front end.
type ItemInput struct {
	Key   string      `json:"key"`
	Type  string      `json:"type"`
	TTL   int64       `json:"ttl"`
	Value interface{} `json:"value"`
}

func (in ItemInput) item() (*store.Item, error) {
	v, err := valueFromInput(in.Type, in.Value)
	if err != nil {
		return nil, err
	}
	return &store.Item{Key: in.Key, Kind: store.KindOf(v), TTL: in.TTL, Value: v}, nil
}

// valueFromInput converts decoded JSON (or plain Go values) into a store.Value
func valueFromInput(kind string, raw interface{}) (store.Value, error) {
	k, err := store.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	strs := func() ([]string, error) {
		switch x := raw.(type) {
		case nil:
			return nil, nil
		case []string:
			return x, nil
		case []interface{}:
			out := make([]string, len(x))
			for i, e := range x {
				out[i] = fmt.Sprint(e)
			}
			return out, nil
		}
		return nil, fmt.Errorf("%s 类型需要数组值，实际=%T", kind, raw)
	}
	switch k {
	case store.KindNone:
		return nil, nil
	case store.KindString:
		if raw == nil {
			return store.StringValue(""), nil
		}
		if s, ok := raw.(string); ok {
			return store.StringValue(s), nil
		}
		return store.StringValue(fmt.Sprint(raw)), nil
	case store.KindHash:
		switch x := raw.(type) {
		case nil:
			return store.HashValue{}, nil
		case map[string]string:
			return store.HashValue(x), nil
		case map[string]interface{}:
			m := make(store.HashValue, len(x))
			for f, val := range x {
				m[f] = fmt.Sprint(val)
			}
			return m, nil
		}
		return nil, fmt.Errorf("hash 类型需要对象值，实际=%T", raw)
	case store.KindList:
		l, err := strs()
		return store.ListValue(l), err
	case store.KindSet:
		l, err := strs()
		return store.NewSetValue(l...), err
	}
	return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedKind, kind)
}

// RedisConnect tests a Redis connection
func (a *App) RedisConnect(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		logger.Error(err, "RedisConnect 连接失败：%s", formatRedisConnSummary(config.WithDefaults()))
		return fail(err)
	}
	desc, err := s.store.Describe()
	if err != nil {
		return fail(err)
	}
	return connection.QueryResult{Success: true, Message: "连接成功", Data: desc}
}

// RedisGetItem reads one key
func (a *App) RedisGetItem(config connection.ConnectionConfig, key string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	item, err := s.store.MustGet(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error(err, "RedisGetItem 获取失败：key=%s", key)
		}
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: newItemView(item)}
}

// RedisSetValue replaces the value of key. A "none" kind deletes the key.
func (a *App) RedisSetValue(config connection.ConnectionConfig, key, kind string, value interface{}) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	v, err := valueFromInput(kind, value)
	if err != nil {
		return fail(err)
	}
	ev, err := s.store.Set(key, v)
	if err != nil {
		logger.Error(err, "RedisSetValue 写入失败：key=%s type=%s", key, kind)
		return fail(err)
	}
	a.index.Apply(ev)
	return connection.QueryResult{Success: true, Message: "保存成功"}
}

// RedisDeleteKeys deletes keys
func (a *App) RedisDeleteKeys(config connection.ConnectionConfig, keys []string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	ev, err := s.store.Delete(keys...)
	if err != nil {
		logger.Error(err, "RedisDeleteKeys 删除失败：keys=%v", keys)
		return fail(err)
	}
	a.index.Apply(ev)
	return connection.QueryResult{Success: true, Message: "删除成功"}
}

// RedisRenameKey renames a key
func (a *App) RedisRenameKey(config connection.ConnectionConfig, oldKey, newKey string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	ev, err := s.store.Rename(oldKey, newKey)
	// a failed read back still reports the committed rename
	a.index.Apply(ev)
	if err != nil {
		logger.Error(err, "RedisRenameKey 重命名失败：%s -> %s", oldKey, newKey)
		return fail(err)
	}
	return connection.QueryResult{Success: true, Message: "重命名成功"}
}

// RedisSetTTL sets the TTL of a key, a negative ttl persists it
func (a *App) RedisSetTTL(config connection.ConnectionConfig, key string, ttl int64) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	ev, err := s.store.Expire(key, ttl)
	if err != nil {
		logger.Error(err, "RedisSetTTL 设置失败：key=%s ttl=%d", key, ttl)
		return fail(err)
	}
	a.index.Apply(ev)
	return connection.QueryResult{Success: true, Message: "设置成功"}
}

// RedisPersistKeys removes the expiry of keys
func (a *App) RedisPersistKeys(config connection.ConnectionConfig, keys []string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	for _, key := range keys {
		if err := s.store.Persist(key); err != nil {
			logger.Error(err, "RedisPersistKeys 失败：key=%s", key)
			return fail(err)
		}
	}
	return connection.QueryResult{Success: true, Message: "设置成功"}
}

// RedisTouchKeys updates the access time of keys
func (a *App) RedisTouchKeys(config connection.ConnectionConfig, keys []string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	n, err := s.store.Touch(keys...)
	if err != nil {
		logger.Error(err, "RedisTouchKeys 失败：keys=%v", keys)
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: map[string]int64{"touched": n}}
}

// RedisCopyKey copies the value of src into dst
func (a *App) RedisCopyKey(config connection.ConnectionConfig, src, dst string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	ev, err := s.store.Copy(src, dst)
	if err != nil {
		logger.Error(err, "RedisCopyKey 复制失败：%s -> %s", src, dst)
		return fail(err)
	}
	a.index.Apply(ev)
	return connection.QueryResult{Success: true, Message: "复制成功"}
}

// RedisApplyEdit commits an item edited in a front end
func (a *App) RedisApplyEdit(config connection.ConnectionConfig, original, edited ItemInput) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	orig, err := original.item()
	if err != nil {
		return fail(err)
	}
	next, err := edited.item()
	if err != nil {
		return fail(err)
	}
	events, err := s.store.Apply(orig, next)
	// events of the steps that did succeed are still committed
	a.index.Apply(events...)
	if err != nil {
		logger.Error(err, "RedisApplyEdit 保存失败：key=%s", edited.Key)
		return fail(err)
	}
	return connection.QueryResult{Success: true, Message: "保存成功"}
}

// RedisFlushDB flushes the current database
func (a *App) RedisFlushDB(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	ev, err := s.store.FlushDB()
	if err != nil {
		logger.Error(err, "RedisFlushDB 清空失败")
		return fail(err)
	}
	a.index.Apply(ev)
	return connection.QueryResult{Success: true, Message: "清空成功"}
}

// RedisScanKeys scans keys matching a pattern
func (a *App) RedisScanKeys(config connection.ConnectionConfig, pattern string, cursor uint64, count int64) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	result, err := s.store.Scan(pattern, cursor, count)
	if err != nil {
		logger.Error(err, "RedisScanKeys 扫描失败：pattern=%s", pattern)
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: result}
}

// RedisGetServerInfo returns INFO fields
func (a *App) RedisGetServerInfo(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	info, err := s.store.ServerInfo()
	if err != nil {
		logger.Error(err, "RedisGetServerInfo 获取失败")
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: info}
}

// RedisGetDatabases returns the key count of every database
func (a *App) RedisGetDatabases(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	dbs, err := s.store.Databases()
	if err != nil {
		logger.Error(err, "RedisGetDatabases 获取失败")
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: dbs}
}

// RedisGetConfig returns the server parameters matching pattern
func (a *App) RedisGetConfig(config connection.ConnectionConfig, pattern string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	cfg, err := s.store.ServerConfig(pattern)
	if err != nil {
		logger.Error(err, "RedisGetConfig 获取失败：pattern=%s", pattern)
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: cfg}
}

// RedisSetConfig changes a server parameter. On failure Data carries the
// value still in effect so the front end can restore it.
func (a *App) RedisSetConfig(config connection.ConnectionConfig, key, value string) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	current, err := s.store.SetServerConfig(key, value)
	if err != nil {
		logger.Error(err, "RedisSetConfig 修改失败：%s=%s", key, value)
		res := fail(err)
		res.Data = map[string]string{key: current}
		return res
	}
	return connection.QueryResult{Success: true, Message: "设置成功", Data: map[string]string{key: current}}
}

// RedisClientList returns the connections of the server
func (a *App) RedisClientList(config connection.ConnectionConfig) connection.QueryResult {
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	clients, err := s.store.Clients()
	if err != nil {
		logger.Error(err, "RedisClientList 获取失败")
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: clients}
}

// RedisMetrics returns the process metrics in the prometheus text format
func (a *App) RedisMetrics() connection.QueryResult {
	var b strings.Builder
	if err := metrics.WriteText(&b); err != nil {
		return fail(err)
	}
	return connection.QueryResult{Success: true, Data: b.String()}
}
