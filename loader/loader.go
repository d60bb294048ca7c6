package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/delaneyj/cdom/cdom"
)

var (
	_ cdom.Loader = (*Dir)(nil)
	_ cdom.Loader = (*HTTP)(nil)
	_ cdom.Loader = (*S3)(nil)
	_ cdom.Loader = Chain(nil)
)

// Dir loads macros from a filesystem tree.
type Dir struct {
	fsys fs.FS
}

func NewDir(dir string) *Dir { return &Dir{fsys: os.DirFS(dir)} }

func NewFS(fsys fs.FS) *Dir { return &Dir{fsys: fsys} }

func (d *Dir) Load(ctx context.Context, name string) (*cdom.Helper, error) {
	data, err := fs.ReadFile(d.fsys, Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return ParseMacro(name, data)
}

// HTTP fetches macros relative to a base URL.
type HTTP struct {
	base   string
	client *http.Client
}

type HTTPOption func(*HTTP)

func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

func NewHTTP(base string, opts ...HTTPOption) *HTTP {
	h := &HTTP{base: strings.TrimSuffix(base, "/") + "/", client: http.DefaultClient}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) Load(ctx context.Context, name string) (*cdom.Helper, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+Path(name), nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("load %s: %s", name, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return ParseMacro(name, data)
}

// S3GetAPI is the slice of *s3.Client the S3 loader uses.
type S3GetAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 loads macros from objects under a prefix.
type S3 struct {
	client S3GetAPI
	bucket string
	prefix string
}

func NewS3(client S3GetAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (l *S3) Load(ctx context.Context, name string) (*cdom.Helper, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.prefix + Path(name)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return ParseMacro(name, data)
}

// Chain tries each loader in order. The first helper found wins; failures
// are reported only when nothing was found.
type Chain []cdom.Loader

func (c Chain) Load(ctx context.Context, name string) (*cdom.Helper, error) {
	var errs []error
	for _, l := range c {
		h, err := l.Load(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if h != nil {
			return h, nil
		}
	}
	return nil, errors.Join(errs...)
}
