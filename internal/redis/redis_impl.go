package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/ssh"
	"github.com/tiagocoutinho/qredis/internal/utils"

	"github.com/redis/go-redis/v9"
)

// RedisClientImpl implements RedisClient using go-redis
type RedisClientImpl struct {
	client    *redis.Client
	config    connection.ConnectionConfig
	timeout   time.Duration
	currentDB int
	forwarder *ssh.LocalForwarder
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient() RedisClient {
	return &RedisClientImpl{}
}

// Connect establishes a connection to Redis
func (r *RedisClientImpl) Connect(config connection.ConnectionConfig) error {
	config = config.WithDefaults()
	r.config = config
	r.currentDB = config.RedisDB
	r.timeout = time.Duration(config.Timeout) * time.Second

	network, addr := config.Network(), config.Address()

	// Handle SSH tunnel if enabled
	if config.UseSSH {
		if config.Socket != "" {
			return fmt.Errorf("SSH 隧道不支持 unix socket 连接")
		}
		forwarder, err := ssh.GetOrCreateLocalForwarder(config.SSH, config.Host, config.Port)
		if err != nil {
			return fmt.Errorf("创建 SSH 隧道失败: %w", err)
		}
		r.forwarder = forwarder
		addr = forwarder.LocalAddr
		logger.Infof("Redis 通过 SSH 隧道连接: %s -> %s", addr, config.Address())
	}

	opts := &redis.Options{
		Network:      network,
		Addr:         addr,
		Password:     config.Password,
		DB:           config.RedisDB,
		ClientName:   config.ClientName,
		DialTimeout:  r.timeout,
		ReadTimeout:  r.timeout,
		WriteTimeout: r.timeout,
	}

	r.client = redis.NewClient(opts)

	// Test connection
	ctx, cancel := utils.ContextWithTimeout(opts.DialTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.client.Close()
		r.client = nil
		return fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Infof("Redis 连接成功: %s DB=%d", config.Address(), config.RedisDB)
	return nil
}

// Close closes the Redis connection
func (r *RedisClientImpl) Close() error {
	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

// ctx returns the per-call context, or ErrNotConnected
func (r *RedisClientImpl) ctx() (context.Context, context.CancelFunc, error) {
	if r.client == nil {
		return nil, nil, ErrNotConnected
	}
	ctx, cancel := utils.ContextWithTimeout(r.timeout)
	return ctx, cancel, nil
}

// Ping tests the connection
func (r *RedisClientImpl) Ping() error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// ClientInfo returns the address, database and client identity of the connection
func (r *RedisClientImpl) ClientInfo() (*RedisClientInfo, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	info := &RedisClientInfo{
		Address: r.config.Address(),
		DB:      r.currentDB,
		ID:      "?",
	}
	if id, err := r.client.ClientID(ctx).Result(); err == nil {
		info.ID = strconv.FormatInt(id, 10)
	} else if IsConnectionError(err) {
		return nil, err
	}
	name, err := r.client.ClientGetName(ctx).Result()
	if err != nil && err != redis.Nil {
		if IsConnectionError(err) {
			return nil, err
		}
		name = r.config.ClientName
	}
	info.Name = name
	return info, nil
}

// Keys returns every key matching pattern in one KEYS call
func (r *RedisClientImpl) Keys(pattern string) ([]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()
	if pattern == "" {
		pattern = "*"
	}
	return r.client.Keys(ctx, pattern).Result()
}

// ScanKeys scans keys matching a pattern
func (r *RedisClientImpl) ScanKeys(pattern string, cursor uint64, count int64) (*RedisScanResult, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	if pattern == "" {
		pattern = "*"
	}
	if count <= 0 {
		count = 100
	}

	keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, count).Result()
	if err != nil {
		return nil, err
	}

	result := &RedisScanResult{
		Keys:   make([]RedisKeyInfo, 0, len(keys)),
		Cursor: nextCursor,
	}

	// Get type and TTL for each key
	pipe := r.client.Pipeline()
	typeResults := make([]*redis.StatusCmd, len(keys))
	ttlResults := make([]*redis.DurationCmd, len(keys))

	for i, key := range keys {
		typeResults[i] = pipe.Type(ctx, key)
		ttlResults[i] = pipe.TTL(ctx, key)
	}

	if _, err = pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for i, key := range keys {
		result.Keys = append(result.Keys, RedisKeyInfo{
			Key:  key,
			Type: typeResults[i].Val(),
			TTL:  ttlSeconds(ttlResults[i].Val()),
		})
	}

	return result, nil
}

// KeyExists checks if a key exists
func (r *RedisClientImpl) KeyExists(key string) (bool, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return false, err
	}
	defer cancel()
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// GetKeyType returns the type of a key
func (r *RedisClientImpl) GetKeyType(key string) (string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return "", err
	}
	defer cancel()
	return r.client.Type(ctx, key).Result()
}

// GetTTL returns the TTL of a key in seconds
func (r *RedisClientImpl) GetTTL(key string) (int64, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return 0, err
	}
	defer cancel()

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return ttlSeconds(ttl), nil
}

// ttlSeconds maps go-redis TTL replies to seconds, keeping -1 (no expiry)
// and -2 (missing key) as they are.
func ttlSeconds(ttl time.Duration) int64 {
	switch ttl {
	case -1:
		return -1
	case -2:
		return -2
	}
	return int64(ttl.Seconds())
}

// SetTTL sets the TTL of a key, a negative ttl removes the expiry
func (r *RedisClientImpl) SetTTL(key string, ttl int64) error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()

	if ttl < 0 {
		return r.client.Persist(ctx, key).Err()
	}
	return r.client.Expire(ctx, key, time.Duration(ttl)*time.Second).Err()
}

// TouchKeys updates the last access time of keys
func (r *RedisClientImpl) TouchKeys(keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel, err := r.ctx()
	if err != nil {
		return 0, err
	}
	defer cancel()
	return r.client.Touch(ctx, keys...).Result()
}

// DeleteKeys deletes one or more keys
func (r *RedisClientImpl) DeleteKeys(keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel, err := r.ctx()
	if err != nil {
		return 0, err
	}
	defer cancel()
	return r.client.Del(ctx, keys...).Result()
}

// RenameKey renames a key
func (r *RedisClientImpl) RenameKey(oldKey, newKey string) error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()
	return r.client.Rename(ctx, oldKey, newKey).Err()
}

// GetString gets a string value
func (r *RedisClientImpl) GetString(key string) (string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return "", err
	}
	defer cancel()
	return r.client.Get(ctx, key).Result()
}

// SetString sets a string value with optional TTL
func (r *RedisClientImpl) SetString(key, value string, ttl int64) error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()

	var expiration time.Duration
	if ttl > 0 {
		expiration = time.Duration(ttl) * time.Second
	}
	return r.client.Set(ctx, key, value, expiration).Err()
}

// GetHash gets all fields of a hash
func (r *RedisClientImpl) GetHash(key string) (map[string]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()
	return r.client.HGetAll(ctx, key).Result()
}

// ReplaceHash replaces the whole hash in one MULTI/EXEC so no old field survives
func (r *RedisClientImpl) ReplaceHash(key string, fields map[string]string) error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()

	args := make([]interface{}, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(args) > 0 {
			pipe.HSet(ctx, key, args...)
		}
		return nil
	})
	return err
}

// GetList gets a range of elements from a list
func (r *RedisClientImpl) GetList(key string, start, stop int64) ([]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()
	return r.client.LRange(ctx, key, start, stop).Result()
}

// ListPush pushes values to the end of a list
func (r *RedisClientImpl) ListPush(key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()
	return r.client.RPush(ctx, key, toArgs(values)...).Err()
}

// GetSet gets all members of a set
func (r *RedisClientImpl) GetSet(key string) ([]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()
	return r.client.SMembers(ctx, key).Result()
}

// SetAdd adds members to a set
func (r *RedisClientImpl) SetAdd(key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()
	return r.client.SAdd(ctx, key, toArgs(members)...).Err()
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// GetServerInfo returns server information
func (r *RedisClientImpl) GetServerInfo() (map[string]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	info, err := r.client.Info(ctx).Result()
	if err != nil {
		return nil, err
	}
	return parseInfo(info), nil
}

// parseInfo turns an INFO reply into a field map, skipping section headers
func parseInfo(info string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// GetDatabases returns information about all databases
func (r *RedisClientImpl) GetDatabases() ([]RedisDBInfo, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	info, err := r.client.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, err
	}
	return parseKeyspace(info), nil
}

// parseKeyspace reads "db0:keys=123,expires=0,avg_ttl=0" lines and returns
// all 16 databases, zero filled.
func parseKeyspace(info string) []RedisDBInfo {
	dbMap := make(map[int]int64)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "db") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		dbIndex, err := strconv.Atoi(strings.TrimPrefix(parts[0], "db"))
		if err != nil {
			continue
		}
		for _, kv := range strings.Split(parts[1], ",") {
			if strings.HasPrefix(kv, "keys=") {
				keys, _ := strconv.ParseInt(strings.TrimPrefix(kv, "keys="), 10, 64)
				dbMap[dbIndex] = keys
				break
			}
		}
	}

	result := make([]RedisDBInfo, 16)
	for i := 0; i < 16; i++ {
		result[i] = RedisDBInfo{Index: i, Keys: dbMap[i]}
	}
	return result
}

// GetCurrentDB returns the current database index
func (r *RedisClientImpl) GetCurrentDB() int {
	return r.currentDB
}

// FlushDB flushes the current database
func (r *RedisClientImpl) FlushDB() error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()
	return r.client.FlushDB(ctx).Err()
}

// ConfigGet returns the server parameters matching pattern
func (r *RedisClientImpl) ConfigGet(pattern string) (map[string]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	if pattern == "" {
		pattern = "*"
	}
	return r.client.ConfigGet(ctx, pattern).Result()
}

// ConfigSet changes one server parameter at runtime
func (r *RedisClientImpl) ConfigSet(key, value string) error {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return err
	}
	defer cancel()
	return r.client.ConfigSet(ctx, key, value).Err()
}

// ClientList returns the connected clients, one field map per client
func (r *RedisClientImpl) ClientList() ([]map[string]string, error) {
	ctx, cancel, err := r.ctx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	list, err := r.client.ClientList(ctx).Result()
	if err != nil {
		return nil, err
	}
	return parseClientList(list), nil
}

// parseClientList reads "id=3 addr=127.0.0.1:50412 name= db=0 ..." lines
func parseClientList(list string) []map[string]string {
	var result []map[string]string
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		client := make(map[string]string)
		for _, field := range strings.Fields(line) {
			k, v, ok := strings.Cut(field, "=")
			if ok {
				client[k] = v
			}
		}
		result = append(result, client)
	}
	return result
}
