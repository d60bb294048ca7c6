package config_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/config"
)

const doc = `
log_level: debug
load_timeout: 5s
codec: yaml
metrics: true
storage:
  kind: file
  dir: %STORE%
helpers:
  dirs: [%MACROS%]
aliases:
  "<>": neq
schemas:
  counter:
    type: number
    minimum: 0
state:
  - name: count
    kind: signal
    value: 3.7
    transform: Integer
    persist: true
  - name: app
    value:
      user: {name: Ada}
      tags: [x, y]
  - name: guarded
    kind: signal
    value: 1
    schema: counter
`

func write(t *testing.T) string {
	t.Helper()
	store := t.TempDir()
	macros := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(macros, "double.json"),
		[]byte(`{"params": ["v"], "body": {"*": ["@v", 2]}}`), 0o644))
	b := bytes.ReplaceAll([]byte(doc), []byte("%STORE%"), []byte(store))
	b = bytes.ReplaceAll(b, []byte("%MACROS%"), []byte(macros))
	path := filepath.Join(t.TempDir(), "cdom.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func settle(t *testing.T, sys *cdom.System) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Settle(ctx))
}

func TestLoad(t *testing.T) {
	c, err := config.Load(write(t))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.LoadTimeout)
	assert.Equal(t, "file", c.Storage.Kind)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Len(t, c.State, 3)
	assert.Equal(t, "signal", c.State[0].Kind)
	assert.True(t, c.State[0].Persist)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = config.Parse([]byte("state: {"))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	path := write(t)
	c, err := config.Load(path)
	require.NoError(t, err)

	var logs bytes.Buffer
	b, err := c.Build(config.WithLogOutput(&logs))
	require.NoError(t, err)
	defer b.Close()
	sys := b.System

	t.Run("declared cells", func(t *testing.T) {
		assert.Equal(t, 3.0, sys.Eval("/count", nil, nil))
		assert.Equal(t, "Ada", sys.Eval("/app/user/name", nil, nil))
		assert.Equal(t, 2.0, sys.Eval("/app/tags.length", nil, nil))
		require.Contains(t, b.Cells, "guarded")
	})

	t.Run("helpers and aliases", func(t *testing.T) {
		assert.Equal(t, 5.0, sys.Eval("sum(2, 3)", nil, nil))
		assert.Equal(t, true, sys.EvaluateStructural(map[string]any{"<>": []any{1, 2}}, nil, nil))

		var got any
		sys.BindStructural(map[string]any{"=double": []any{21}}, nil, func(v any) { got = v })
		settle(t, sys)
		assert.Equal(t, 42.0, got)
	})

	t.Run("schemas guard writes", func(t *testing.T) {
		err := b.Cells["guarded"].Set(-1.0)
		var verr *cdom.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, 1.0, sys.Eval("/guarded", nil, nil))
	})

	t.Run("metrics observe the system", func(t *testing.T) {
		require.NotNil(t, b.Registry)
		families, err := b.Registry.Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})

	t.Run("persisted cells survive a rebuild", func(t *testing.T) {
		require.NoError(t, b.Cells["count"].Set(9.9))
		again, err := c.Build(config.WithLogOutput(&logs))
		require.NoError(t, err)
		defer again.Close()
		assert.Equal(t, 9.0, again.System.Eval("/count", nil, nil))
	})
}

func TestBuildStorageKinds(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		c, err := config.Parse([]byte(`
storage: {kind: sqlite}
state:
  - {name: n, kind: signal, value: 1, persist: true}
`))
		require.NoError(t, err)
		b, err := c.Build()
		require.NoError(t, err)
		defer b.Close()
		require.NoError(t, b.Cells["n"].Set(2.0))
		raw, ok, err := b.Storage.GetItem("n")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2", raw)
	})

	t.Run("s3 needs a bucket", func(t *testing.T) {
		c, err := config.Parse([]byte(`storage: {kind: s3}`))
		require.NoError(t, err)
		_, err = c.Build()
		assert.ErrorIs(t, err, config.ErrMissingBucket)
	})

	t.Run("unknown kinds", func(t *testing.T) {
		c, err := config.Parse([]byte(`storage: {kind: etcd}`))
		require.NoError(t, err)
		_, err = c.Build()
		assert.ErrorIs(t, err, config.ErrUnknownStorage)

		c, err = config.Parse([]byte(`state: [{name: x, kind: computed}]`))
		require.NoError(t, err)
		_, err = c.Build()
		assert.ErrorIs(t, err, config.ErrUnknownCell)

		c, err = config.Parse([]byte(`codec: toml`))
		require.NoError(t, err)
		_, err = c.Build()
		assert.Error(t, err)
	})
}

func TestLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", (&config.Config{LogLevel: "debug"}).Level().String())
	assert.Equal(t, "INFO", (&config.Config{}).Level().String())
	assert.Equal(t, "INFO", (&config.Config{LogLevel: "chatty"}).Level().String())
}
