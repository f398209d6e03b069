package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/keytree"
	"github.com/tiagocoutinho/qredis/internal/store"
)

func newTestApp(t *testing.T) (*miniredis.Miniredis, *App, connection.ConnectionConfig) {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	a := NewApp()
	t.Cleanup(a.CloseAll)
	return srv, a, connection.ConnectionConfig{Host: srv.Host(), Port: port, Timeout: 5, KeySplit: ":"}
}

func TestRedisConnect_ReusesSession(t *testing.T) {
	_, a, cfg := newTestApp(t)

	res := a.RedisConnect(cfg)
	require.True(t, res.Success, res.Message)
	desc, ok := res.Data.(store.Description)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(desc.Short, "DB 0 @ "))

	require.True(t, a.RedisConnect(cfg).Success)
	assert.Equal(t, 1, a.sessions.Size())
	assert.Len(t, a.index.Databases(), 1)
}

func TestRedisConnect_Failure(t *testing.T) {
	a := NewApp()
	res := a.RedisConnect(connection.ConnectionConfig{Host: "127.0.0.1", Port: 1, Timeout: 1})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Zero(t, a.sessions.Size())
}

func TestRedisGetItem_DecodesDisplay(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.NoError(t, srv.Set("pickled", "\x80\x02X\x05\x00\x00\x00helloq\x00."))
	srv.HSet("h", "f", "plain")

	res := a.RedisGetItem(cfg, "pickled")
	require.True(t, res.Success, res.Message)
	view := res.Data.(ItemView)
	assert.Equal(t, "string", view.Type)
	assert.Equal(t, "hello", view.Display)
	assert.Equal(t, "pickle", view.Format)
	assert.Equal(t, "Persistent", view.TTLText)

	res = a.RedisGetItem(cfg, "h")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, map[string]string{"f": "plain"}, res.Data.(ItemView).Display)

	res = a.RedisGetItem(cfg, "missing")
	assert.False(t, res.Success)
}

func TestRedisSetValue_FromJSON(t *testing.T) {
	srv, a, cfg := newTestApp(t)

	var list interface{}
	require.NoError(t, json.Unmarshal([]byte(`["a", "b"]`), &list))
	require.True(t, a.RedisSetValue(cfg, "l", "list", list).Success)
	got, err := srv.List("l")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	var hash interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"n": 1}`), &hash))
	require.True(t, a.RedisSetValue(cfg, "h", "hash", hash).Success)
	assert.Equal(t, "1", srv.HGet("h", "n"))

	require.True(t, a.RedisSetValue(cfg, "h", "none", nil).Success)
	assert.False(t, srv.Exists("h"))

	assert.False(t, a.RedisSetValue(cfg, "z", "zset", nil).Success)
}

func TestKeyTree_FollowsEdits(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	for _, k := range []string{"a", "a:b", "c:d"} {
		require.NoError(t, srv.Set(k, "v"))
	}

	res := a.RedisKeyTree(cfg)
	require.True(t, res.Success, res.Message)
	tree := res.Data.(TreeNode)
	assert.True(t, tree.IsDB)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "a", tree.Children[0].Name)
	assert.Equal(t, "a:b", tree.Children[0].Children[0].Key)
	rebuilds := a.index.Rebuilds()

	require.True(t, a.RedisRenameKey(cfg, "a:b", "a:x").Success)
	res = a.RedisKeyTree(cfg)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "a:x", res.Data.(TreeNode).Children[0].Children[0].Key)
	assert.Equal(t, rebuilds, a.index.Rebuilds())

	require.True(t, a.RedisDeleteKeys(cfg, []string{"c:d"}).Success)
	res = a.RedisKeyTree(cfg)
	assert.False(t, res.Success)
	assert.Equal(t, map[string]string{"state": "stale"}, res.Data)

	require.True(t, a.RedisRefreshTree(cfg).Success)
	res = a.RedisKeyTree(cfg)
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Data.(TreeNode).Children, 1)
}

func TestRedisSetTTL_ZeroMarksTreeStale(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.NoError(t, srv.Set("a:b", "v"))
	require.True(t, a.RedisKeyTree(cfg).Success)

	require.True(t, a.RedisSetTTL(cfg, "a:b", 0).Success)
	assert.False(t, srv.Exists("a:b"))
	res := a.RedisKeyTree(cfg)
	assert.False(t, res.Success)
	assert.Equal(t, map[string]string{"state": "stale"}, res.Data)
}

func TestNodeTooltip(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.NoError(t, srv.Set("k", "v"))
	require.True(t, a.RedisKeyTree(cfg).Success)

	s, err := a.getSession(cfg)
	require.NoError(t, err)
	n, ok, err := a.index.Lookup(s.db, "k")
	require.NoError(t, err)
	require.True(t, ok)

	res := a.RedisNodeTooltip(n.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "name: k\ntype: string\nTTL: -1", res.Data)

	res = a.RedisNodeTooltip(keytree.NodeID{DB: s.db, Gen: 99})
	assert.False(t, res.Success)
}

func TestRedisApplyEdit(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.True(t, a.RedisKeyTree(cfg).Success)

	res := a.RedisApplyEdit(cfg,
		ItemInput{Type: "set", TTL: -1},
		ItemInput{Key: "fresh", Type: "set", TTL: 120, Value: []interface{}{"b", "a"}},
	)
	require.True(t, res.Success, res.Message)
	members, err := srv.Members("fresh")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
	assert.EqualValues(t, 120, srv.TTL("fresh").Seconds())

	// the new key is not in the tree yet
	s, err := a.getSession(cfg)
	require.NoError(t, err)
	assert.Equal(t, keytree.StateStale, a.index.State(s.db))
}

func TestCopyTouchPersistFlush(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.NoError(t, srv.Set("src", "v"))

	require.True(t, a.RedisCopyKey(cfg, "src", "dst").Success)
	got, err := srv.Get("dst")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	res := a.RedisTouchKeys(cfg, []string{"src", "dst", "nope"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, map[string]int64{"touched": 2}, res.Data)

	require.True(t, a.RedisSetTTL(cfg, "src", 50).Success)
	require.True(t, a.RedisPersistKeys(cfg, []string{"src"}).Success)
	assert.Zero(t, srv.TTL("src"))

	require.True(t, a.RedisFlushDB(cfg).Success)
	assert.Empty(t, srv.Keys())
}

func TestRedisExportKeys(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.NoError(t, srv.Set("user:1", "alice"))
	_, err := srv.Lpush("queue", "job")
	require.NoError(t, err)

	dir := t.TempDir()
	for _, format := range []string{"csv", "json", "md", "xlsx"} {
		name := filepath.Join(dir, "keys."+format)
		res := a.RedisExportKeys(cfg, "*", name, format)
		require.True(t, res.Success, "%s: %s", format, res.Message)
		assert.Equal(t, map[string]int{"keys": 2}, res.Data)
	}

	b, err := os.ReadFile(filepath.Join(dir, "keys.json"))
	require.NoError(t, err)
	var rows []exportRow
	require.NoError(t, json.Unmarshal(b, &rows))
	require.Len(t, rows, 2)

	b, err = os.ReadFile(filepath.Join(dir, "keys.md"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "| user:1 | string | -1 | alice |")
	assert.Contains(t, string(b), `| queue | list | -1 | ["job"] |`)

	f, err := excelize.OpenFile(filepath.Join(dir, "keys.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	xrows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, xrows, 3)
	assert.Equal(t, exportColumns, xrows[0])

	res := a.RedisExportKeys(cfg, "*", filepath.Join(dir, "keys.txt"), "txt")
	assert.False(t, res.Success)
}

func TestValueFromInput(t *testing.T) {
	v, err := valueFromInput("set", []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, store.SetValue{"a", "b"}, v)

	v, err = valueFromInput("string", nil)
	require.NoError(t, err)
	assert.Equal(t, store.StringValue(""), v)

	_, err = valueFromInput("list", "not a list")
	assert.Error(t, err)
}

func TestRedisMetrics(t *testing.T) {
	_, a, cfg := newTestApp(t)
	require.True(t, a.RedisConnect(cfg).Success)
	res := a.RedisMetrics()
	require.True(t, res.Success)
	assert.Contains(t, res.Data.(string), "qredis_store_commands_total")
}

func TestRedisSetConfig_RejectedParameter(t *testing.T) {
	_, a, cfg := newTestApp(t)

	res := a.RedisSetConfig(cfg, "no-such-parameter", "1")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)

	cfg.Port = 1
	assert.False(t, a.RedisClientList(cfg).Success)
	assert.False(t, a.RedisGetConfig(cfg, "*").Success)
}

func TestRedisExportKeys_UnknownFormatWritesNothing(t *testing.T) {
	srv, a, cfg := newTestApp(t)
	require.NoError(t, srv.Set("a", "1"))

	name := filepath.Join(t.TempDir(), "keys.txt")
	res := a.RedisExportKeys(cfg, "*", name, "txt")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Unsupported format")
	_, err := os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}
