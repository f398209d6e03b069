package redis

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiagocoutinho/qredis/internal/connection"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, RedisClient) {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	c := NewRedisClient()
	require.NoError(t, c.Connect(connection.ConnectionConfig{Host: srv.Host(), Port: port, Timeout: 5}))
	t.Cleanup(func() { _ = c.Close() })
	return srv, c
}

func TestNotConnected(t *testing.T) {
	c := NewRedisClient()
	_, err := c.Keys("*")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, IsConnectionError(err))
	assert.NoError(t, c.Close())
}

func TestKeysAndTypes(t *testing.T) {
	srv, c := newTestClient(t)
	require.NoError(t, srv.Set("s", "v"))
	srv.HSet("h", "f", "1")
	_, err := srv.Lpush("l", "x")
	require.NoError(t, err)
	_, err = srv.SetAdd("z", "m")
	require.NoError(t, err)

	keys, err := c.Keys("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s", "h", "l", "z"}, keys)

	for key, want := range map[string]string{"s": "string", "h": "hash", "l": "list", "z": "set", "missing": "none"} {
		got, err := c.GetKeyType(key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}

	ok, err := c.KeyExists("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTL(t *testing.T) {
	srv, c := newTestClient(t)
	require.NoError(t, srv.Set("k", "v"))

	ttl, err := c.GetTTL("k")
	require.NoError(t, err)
	assert.EqualValues(t, -1, ttl)

	ttl, err = c.GetTTL("missing")
	require.NoError(t, err)
	assert.EqualValues(t, -2, ttl)

	require.NoError(t, c.SetTTL("k", 100))
	assert.Equal(t, 100*time.Second, srv.TTL("k"))

	require.NoError(t, c.SetTTL("k", -1))
	assert.Equal(t, time.Duration(0), srv.TTL("k"))
}

func TestReplaceHash_DropsOldFields(t *testing.T) {
	srv, c := newTestClient(t)
	srv.HSet("h", "old", "1")

	require.NoError(t, c.ReplaceHash("h", map[string]string{"a": "1", "b": "2"}))
	got, err := c.GetHash("h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	require.NoError(t, c.ReplaceHash("h", nil))
	assert.False(t, srv.Exists("h"))
}

func TestListAndSet(t *testing.T) {
	_, c := newTestClient(t)

	require.NoError(t, c.ListPush("l", "a", "b", "a"))
	list, err := c.GetList("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, list)

	require.NoError(t, c.SetAdd("s", "x", "y", "x"))
	members, err := c.GetSet("s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, members)

	// empty writes are no-ops
	require.NoError(t, c.ListPush("empty"))
	require.NoError(t, c.SetAdd("empty"))
	ok, err := c.KeyExists("empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenameDeleteFlush(t *testing.T) {
	srv, c := newTestClient(t)
	require.NoError(t, c.SetString("a", "1", 0))
	require.NoError(t, c.SetString("b", "2", 0))

	require.NoError(t, c.RenameKey("a", "c"))
	assert.False(t, srv.Exists("a"))
	assert.True(t, srv.Exists("c"))

	n, err := c.DeleteKeys([]string{"c", "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.DeleteKeys(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.FlushDB())
	assert.Empty(t, srv.Keys())
}

func TestScanKeys(t *testing.T) {
	srv, c := newTestClient(t)
	require.NoError(t, srv.Set("user:1", "a"))
	srv.SetTTL("user:1", time.Minute)
	require.NoError(t, srv.Set("other", "b"))

	res, err := c.ScanKeys("user:*", 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Keys, 1)
	assert.Equal(t, RedisKeyInfo{Key: "user:1", Type: "string", TTL: 60}, res.Keys[0])
}

func TestClientInfo(t *testing.T) {
	_, c := newTestClient(t)
	info, err := c.ClientInfo()
	require.NoError(t, err)
	assert.Equal(t, 0, info.DB)
	assert.NotEmpty(t, info.ID)
	assert.Contains(t, info.Address, ":")
}

func TestParseInfo(t *testing.T) {
	info := parseInfo("# Server\r\nredis_version:7.2.0\r\nuptime_in_days:3\r\n\r\n# Clients\r\nconnected_clients:1\r\n")
	assert.Equal(t, map[string]string{
		"redis_version":     "7.2.0",
		"uptime_in_days":    "3",
		"connected_clients": "1",
	}, info)
}

func TestParseKeyspace(t *testing.T) {
	dbs := parseKeyspace("# Keyspace\r\ndb0:keys=12,expires=0,avg_ttl=0\r\ndb3:keys=4,expires=1,avg_ttl=10\r\n")
	require.Len(t, dbs, 16)
	assert.EqualValues(t, 12, dbs[0].Keys)
	assert.EqualValues(t, 4, dbs[3].Keys)
	assert.Zero(t, dbs[15].Keys)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE")))
	assert.True(t, IsConnectionError(ErrNotConnected))
}

func TestParseClientList(t *testing.T) {
	clients := parseClientList("id=3 addr=127.0.0.1:50412 name=qredis db=0 cmd=client\nid=4 addr=127.0.0.1:50413 name= db=2\n")
	require.Len(t, clients, 2)
	assert.Equal(t, "3", clients[0]["id"])
	assert.Equal(t, "qredis", clients[0]["name"])
	assert.Equal(t, "client", clients[0]["cmd"])
	assert.Equal(t, "", clients[1]["name"])
	assert.Equal(t, "2", clients[1]["db"])
	assert.Empty(t, parseClientList(""))
}

func TestServerConfig_NotConnected(t *testing.T) {
	c := NewRedisClient()
	_, err := c.ConfigGet("maxmemory")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.ConfigSet("maxmemory", "0"), ErrNotConnected)
	_, err = c.ClientList()
	assert.ErrorIs(t, err, ErrNotConnected)
}
