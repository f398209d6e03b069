package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, srv *miniredis.Miniredis, args ...string) (string, error) {
	t.Helper()
	root, st := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--host", srv.Host(), "--port", srv.Port(), "--key-split", ":"}, args...))
	err := root.Execute()
	if st.app != nil {
		st.app.CloseAll()
	}
	return out.String(), err
}

func TestVersion(t *testing.T) {
	root, _ := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "QRedis v"+Version+"\n", out.String())
}

func TestSetGetTree(t *testing.T) {
	srv := miniredis.RunT(t)

	_, err := run(t, srv, "set", "user:1", "alice")
	require.NoError(t, err)
	_, err = run(t, srv, "set", "--type", "hash", "user:2", "name", "bob")
	require.NoError(t, err)
	_, err = run(t, srv, "set", "--type", "list", "--ttl", "60", "queue", "a", "b")
	require.NoError(t, err)

	out, err := run(t, srv, "get", "user:2")
	require.NoError(t, err)
	assert.Equal(t, "name: user:2\ntype: hash\nPersistent\nname: bob\n", out)

	out, err = run(t, srv, "get", "queue")
	require.NoError(t, err)
	assert.Equal(t, "name: queue\ntype: list\nTTL: 0:01:00\na\nb\n", out)

	out, err = run(t, srv, "tree")
	require.NoError(t, err)
	assert.Contains(t, out, "\n  queue\n  user/\n    1\n    2\n")

	_, err = run(t, srv, "get", "missing")
	assert.Error(t, err)
}

func TestRenameIncrCopy(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("counter", "41"))

	out, err := run(t, srv, "incr", "counter")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	_, err = run(t, srv, "rename", "counter", "hits")
	require.NoError(t, err)
	_, err = run(t, srv, "copy", "hits", "hits:backup")
	require.NoError(t, err)
	got, err := srv.Get("hits:backup")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	_, err = run(t, srv, "rename", "missing", "x")
	assert.Error(t, err)

	require.NoError(t, srv.Set("name", "bob"))
	_, err = run(t, srv, "incr", "name")
	assert.Error(t, err)
}

func TestExpirePersistDel(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("k", "v"))

	_, err := run(t, srv, "expire", "k", "30")
	require.NoError(t, err)
	assert.EqualValues(t, 30, srv.TTL("k").Seconds())

	_, err = run(t, srv, "persist", "k")
	require.NoError(t, err)
	assert.Zero(t, srv.TTL("k"))

	out, err := run(t, srv, "touch", "k", "nope")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = run(t, srv, "del", "k")
	require.NoError(t, err)
	assert.False(t, srv.Exists("k"))
}

func TestFlushNeedsConfirmation(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("k", "v"))

	_, err := run(t, srv, "flush")
	assert.Error(t, err)
	assert.True(t, srv.Exists("k"))

	_, err = run(t, srv, "flush", "--yes")
	require.NoError(t, err)
	assert.False(t, srv.Exists("k"))
}

func TestExport(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("a", "1"))
	name := filepath.Join(t.TempDir(), "keys.csv")

	out, err := run(t, srv, "export", name)
	require.NoError(t, err)
	assert.Equal(t, "exported 1 keys\n", out)
}

func TestMetricsFlag(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("a", "1"))
	out, err := run(t, srv, "--metrics", "get", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "qredis_store_commands_total")
}

func TestConnectionConfig_EnvOverride(t *testing.T) {
	t.Setenv("QREDIS_KEY_SPLIT", "/")
	t.Setenv("QREDIS_DB", "3")

	root, _ := newRootCmd()
	v := viper.New()
	initConfig(v)
	require.NoError(t, v.BindPFlags(root.PersistentFlags()))

	cfg := connectionConfig(v)
	assert.Equal(t, "/", cfg.KeySplit)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "qredis", cfg.ClientName)
	assert.Equal(t, "*", cfg.KeyFilter)
}

func TestWrapString(t *testing.T) {
	s := wrapString("one two three four five six seven eight nine ten eleven twelve")
	for _, line := range bytes.Split([]byte(s), []byte("\n")) {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}

func TestExpireZeroDeletes(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("k", "v"))

	_, err := run(t, srv, "expire", "k", "0")
	require.NoError(t, err)
	assert.False(t, srv.Exists("k"))
}

func TestConfigCommands(t *testing.T) {
	srv := miniredis.RunT(t)

	_, err := run(t, srv, "config", "set", "no-such-parameter", "1")
	assert.Error(t, err)

	_, err = run(t, srv, "config", "set", "only-one-arg")
	assert.Error(t, err)

	_, err = run(t, srv, "clients", "extra")
	assert.Error(t, err)
}
