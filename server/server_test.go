package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/helpers"
	"github.com/delaneyj/cdom/instrument"
	"github.com/delaneyj/cdom/server"
)

func setup(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sys := cdom.New(cdom.WithObserver(instrument.NewMetrics(instrument.WithRegistry(reg))))
	helpers.Register(sys)
	require.NoError(t, sys.DefineSchemaMap("age", map[string]any{"type": "number", "minimum": 0}))

	_, err := sys.State(map[string]any{
		"user": map[string]any{"name": "Ada"},
		"tags": []any{"x", "y"},
	}, cdom.WithName("app"))
	require.NoError(t, err)
	_, err = sys.Signal(5, cdom.WithName("count"))
	require.NoError(t, err)
	_, err = sys.Signal(30, cdom.WithName("age"), cdom.WithSchemaName("age"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go sys.Run(ctx)

	srv := server.New(sys, server.WithGatherer(reg), server.WithWriteTimeout(time.Second))
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		cancel()
	})
	return srv, ts
}

func call(t *testing.T, method, u, body string) (int, any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, u, rd)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func TestCells(t *testing.T) {
	_, ts := setup(t)

	t.Run("read", func(t *testing.T) {
		code, v := call(t, http.MethodGet, ts.URL+"/cells/app/user/name", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Ada", v)

		_, v = call(t, http.MethodGet, ts.URL+"/cells/app/tags/1", "")
		assert.Equal(t, "y", v)

		_, v = call(t, http.MethodGet, ts.URL+"/cells/count", "")
		assert.Equal(t, 5.0, v)

		code, _ = call(t, http.MethodGet, ts.URL+"/cells/nope", "")
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = call(t, http.MethodGet, ts.URL+"/cells/app/tags/9", "")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("write", func(t *testing.T) {
		code, v := call(t, http.MethodPut, ts.URL+"/cells/app/user/name", `"Grace"`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Grace", v.(map[string]any)["user"].(map[string]any)["name"])

		code, v = call(t, http.MethodPut, ts.URL+"/cells/count", `7`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, 7.0, v)

		code, _ = call(t, http.MethodPut, ts.URL+"/cells/count/x", `1`)
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = call(t, http.MethodPut, ts.URL+"/cells/nope", `1`)
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = call(t, http.MethodPut, ts.URL+"/cells/count", `{`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("validation failures are unprocessable", func(t *testing.T) {
		code, v := call(t, http.MethodPut, ts.URL+"/cells/age", `-1`)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, []any{"root: failed minimum"}, v.(map[string]any)["violations"])

		_, v = call(t, http.MethodGet, ts.URL+"/cells/age", "")
		assert.Equal(t, 30.0, v)
	})
}

func TestEval(t *testing.T) {
	_, ts := setup(t)

	code, v := call(t, http.MethodPost, ts.URL+"/eval", `{"expr": "/count * 2"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"value": 10.0}, v)

	_, v = call(t, http.MethodPost, ts.URL+"/eval", `{"descriptor": {"=sum": [1, 2, 3]}}`)
	assert.Equal(t, map[string]any{"value": 6.0}, v)

	_, v = call(t, http.MethodPost, ts.URL+"/eval", `{"expr": "/missing"}`)
	assert.Equal(t, map[string]any{"value": "[Unknown: missing]", "marker": true}, v)

	code, _ = call(t, http.MethodPost, ts.URL+"/eval", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := setup(t)
	call(t, http.MethodPost, ts.URL+"/eval", `{"expr": "1"}`)

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `cdom_evaluations_total{kind="expression"}`)
}

func TestWebsocket(t *testing.T) {
	srv, ts := setup(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?expr=" + url.QueryEscape("/count + 1")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() map[string]any {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f map[string]any
		require.NoError(t, ws.ReadJSON(&f))
		return f
	}

	first := read()
	assert.Equal(t, 6.0, first["value"])
	assert.Equal(t, 1.0, first["seq"])
	assert.NotEmpty(t, first["id"])
	assert.Eventually(t, func() bool { return srv.Conns() == 1 }, 5*time.Second, 10*time.Millisecond)

	code, _ := call(t, http.MethodPut, ts.URL+"/cells/count", `41`)
	require.Equal(t, http.StatusOK, code)
	second := read()
	assert.Equal(t, 42.0, second["value"])
	assert.Equal(t, first["id"], second["id"])

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return srv.Conns() == 0 }, 5*time.Second, 10*time.Millisecond)

	t.Run("descriptor subscriptions", func(t *testing.T) {
		desc := url.QueryEscape(`{"=sum": [1, 2]}`)
		ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?descriptor="+desc, nil)
		require.NoError(t, err)
		defer ws.Close()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f map[string]any
		require.NoError(t, ws.ReadJSON(&f))
		assert.Equal(t, 3.0, f["value"])
	})

	t.Run("missing expression", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/ws")
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}
