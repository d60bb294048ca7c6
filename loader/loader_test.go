package loader_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/helpers"
	"github.com/delaneyj/cdom/loader"
)

const clamp = `{"params": ["v", "lo", "hi"], "body": {"=max": [{"=min": ["@v", "@hi"]}, "@lo"]}}`

const bump = `{"params": ["target", "by"], "mutates": true,
	"body": {"=set": ["@target", {"+": ["@target", "@by"]}]}}`

func macros() fstest.MapFS {
	return fstest.MapFS{
		"math/clamp.json": {Data: []byte(clamp)},
		"bump.json":       {Data: []byte(bump)},
		"broken.json":     {Data: []byte(`{"params": [`)},
	}
}

func settle(t *testing.T, sys *cdom.System) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Settle(ctx))
}

func TestPath(t *testing.T) {
	assert.Equal(t, "math/clamp.json", loader.Path("Math.Clamp"))
	assert.Equal(t, "sum.json", loader.Path("SUM"))
}

func TestDir(t *testing.T) {
	l := loader.NewFS(macros())
	ctx := context.Background()

	h, err := l.Load(ctx, "Math.Clamp")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Math.Clamp", h.Name)

	h, err = l.Load(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, h)

	_, err = l.Load(ctx, "broken")
	assert.Error(t, err)
}

func TestMacrosThroughTheSystem(t *testing.T) {
	sys := cdom.New(cdom.WithLoader(loader.NewFS(macros())))
	helpers.Register(sys)

	t.Run("positional arguments", func(t *testing.T) {
		var got any
		sys.BindStructural(map[string]any{"=Math.Clamp": []any{15, 0, 10}}, nil, func(v any) { got = v })
		assert.Equal(t, cdom.Pending, got)
		settle(t, sys)
		assert.Equal(t, 10.0, got)
		assert.Equal(t, 3.0, sys.EvaluateStructural(map[string]any{"=Math.Clamp": []any{3, 0, 10}}, nil, nil))
	})

	t.Run("named arguments", func(t *testing.T) {
		out := sys.EvaluateStructural(map[string]any{"=Math.Clamp": map[string]any{"v": -4, "lo": 0, "hi": 10}}, nil, nil)
		assert.Equal(t, 0.0, out)
	})

	t.Run("mutating macro", func(t *testing.T) {
		count, err := sys.Signal(1, cdom.WithName("count"))
		require.NoError(t, err)
		sys.BindStructural(map[string]any{"=bump": []any{"/count", 2}}, nil, func(any) {})
		settle(t, sys)
		assert.Equal(t, 3.0, count.Get())
	})

	t.Run("unknown macros stay undefined", func(t *testing.T) {
		var got any
		sys.BindStructural(map[string]any{"=ghost": []any{}}, nil, func(v any) { got = v })
		settle(t, sys)
		assert.Equal(t, cdom.UndefinedMarker("ghost"), got)
	})
}

func TestHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/helpers/math/clamp.json":
			w.Write([]byte(clamp))
		case "/helpers/down.json":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := loader.NewHTTP(srv.URL+"/helpers/", loader.WithClient(srv.Client()))
	ctx := context.Background()

	h, err := l.Load(ctx, "Math.Clamp")
	require.NoError(t, err)
	require.NotNil(t, h)

	h, err = l.Load(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, h)

	_, err = l.Load(ctx, "down")
	assert.ErrorContains(t, err, "500")
	assert.EqualValues(t, 3, hits.Load())
}

type fakeS3 struct {
	objects map[string]string
	fail    error
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	v, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(v)))}, nil
}

func TestS3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"assets/macros/math/clamp.json": clamp}}
	l := loader.NewS3(fake, "assets", "macros/")

	h, err := l.Load(context.Background(), "Math.Clamp")
	require.NoError(t, err)
	require.NotNil(t, h)

	h, err = l.Load(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, h)

	fake.fail = errors.New("denied")
	_, err = l.Load(context.Background(), "Math.Clamp")
	assert.ErrorContains(t, err, "denied")
}

func TestChain(t *testing.T) {
	failing := cdom.LoaderFunc(func(ctx context.Context, name string) (*cdom.Helper, error) {
		return nil, errors.New("offline")
	})
	empty := loader.NewFS(fstest.MapFS{})
	chain := loader.Chain{failing, empty, loader.NewFS(macros())}

	h, err := chain.Load(context.Background(), "bump")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Mutates)

	h, err = chain.Load(context.Background(), "ghost")
	assert.Nil(t, h)
	assert.ErrorContains(t, err, "offline")

	h, err = loader.Chain{empty}.Load(context.Background(), "ghost")
	assert.Nil(t, h)
	assert.NoError(t, err)
}
