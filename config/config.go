// Package config builds a ready System from a YAML document.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/helpers"
	"github.com/delaneyj/cdom/instrument"
	"github.com/delaneyj/cdom/loader"
	"github.com/delaneyj/cdom/storage"
)

var (
	ErrUnknownStorage = errors.New("unknown storage kind")
	ErrUnknownCell    = errors.New("unknown cell kind")
	ErrMissingBucket  = errors.New("s3 bucket required")
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	LoadTimeout time.Duration     `yaml:"load_timeout"`
	Codec       string            `yaml:"codec"`
	Storage     Storage           `yaml:"storage"`
	Helpers     Helpers           `yaml:"helpers"`
	Aliases     map[string]string `yaml:"aliases"`
	Schemas     map[string]any    `yaml:"schemas"`
	State       []Cell            `yaml:"state"`
	Server      Server            `yaml:"server"`
	Metrics     bool              `yaml:"metrics"`
	Tracing     bool              `yaml:"tracing"`
}

type Storage struct {
	// Kind is one of memory (default), file, sqlite or s3.
	Kind string  `yaml:"kind"`
	Dir  string  `yaml:"dir"`
	Ext  string  `yaml:"ext"`
	DSN  string  `yaml:"dsn"`
	S3   *Bucket `yaml:"s3"`
}

type Helpers struct {
	Dirs []string `yaml:"dirs"`
	URLs []string `yaml:"urls"`
	S3   *Bucket  `yaml:"s3"`
}

type Bucket struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Cell declares a named cell. Persist cells read and write the configured
// storage.
type Cell struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Value     any    `yaml:"value"`
	Schema    string `yaml:"schema"`
	Transform string `yaml:"transform"`
	Persist   bool   `yaml:"persist"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return c, nil
}

func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Built is a configured System plus what it owns.
type Built struct {
	System   *cdom.System
	Storage  cdom.Storage
	Codec    cdom.Codec
	Cells    map[string]cdom.Cell
	Registry *prometheus.Registry
	Metrics  *instrument.Metrics
	Addr     string

	closers []io.Closer
}

func (b *Built) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type buildOptions struct {
	s3     storage.S3API
	logOut io.Writer
	extra  []cdom.Option
}

type BuildOption func(*buildOptions)

// WithS3Client replaces the client built from the bucket settings.
func WithS3Client(client storage.S3API) BuildOption {
	return func(o *buildOptions) { o.s3 = client }
}

// WithLogOutput sets where the configured logger writes, stderr by default.
func WithLogOutput(w io.Writer) BuildOption {
	return func(o *buildOptions) { o.logOut = w }
}

// WithSystemOptions appends options applied after the configured ones.
func WithSystemOptions(opts ...cdom.Option) BuildOption {
	return func(o *buildOptions) { o.extra = append(o.extra, opts...) }
}

func (c *Config) Build(opts ...BuildOption) (*Built, error) {
	bo := &buildOptions{logOut: os.Stderr}
	for _, opt := range opts {
		opt(bo)
	}
	b := &Built{Cells: map[string]cdom.Cell{}, Addr: c.Server.Addr}

	logger := slog.New(slog.NewTextHandler(bo.logOut, &slog.HandlerOptions{Level: c.Level()}))
	sysOpts := []cdom.Option{cdom.WithLogger(logger)}
	if c.LoadTimeout > 0 {
		sysOpts = append(sysOpts, cdom.WithLoadTimeout(c.LoadTimeout))
	}
	if len(c.Aliases) > 0 {
		sysOpts = append(sysOpts, cdom.WithAliases(c.Aliases))
	}
	if c.Metrics {
		b.Registry = prometheus.NewRegistry()
		b.Metrics = instrument.NewMetrics(instrument.WithRegistry(b.Registry))
		sysOpts = append(sysOpts, cdom.WithObserver(b.Metrics))
	}

	codec, err := storage.Codec(c.Codec)
	if err != nil {
		return nil, err
	}
	b.Codec = codec

	st, err := c.storage(b, bo)
	if err != nil {
		return nil, err
	}
	b.Storage = st

	l, err := c.loader(bo)
	if err != nil {
		b.Close()
		return nil, err
	}
	if l != nil {
		if c.Tracing {
			l = instrument.NewTracingLoader(l)
		}
		sysOpts = append(sysOpts, cdom.WithLoader(l))
	}

	sys := cdom.New(append(sysOpts, bo.extra...)...)
	helpers.Register(sys)
	b.System = sys

	names := make([]string, 0, len(c.Schemas))
	for name := range c.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def, ok := cdom.Normalize(c.Schemas[name]).(map[string]any)
		if !ok {
			b.Close()
			return nil, fmt.Errorf("schema %q: not an object", name)
		}
		if err := sys.DefineSchemaMap(name, def); err != nil {
			b.Close()
			return nil, fmt.Errorf("schema %q: %w", name, err)
		}
	}

	for _, decl := range c.State {
		cell, err := b.declare(decl)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("cell %q: %w", decl.Name, err)
		}
		b.Cells[decl.Name] = cell
	}
	return b, nil
}

func (b *Built) declare(decl Cell) (cdom.Cell, error) {
	opts := []cdom.CellOption{cdom.WithName(decl.Name)}
	if decl.Schema != "" {
		opts = append(opts, cdom.WithSchemaName(decl.Schema))
	}
	if decl.Transform != "" {
		opts = append(opts, cdom.WithTransformHelper(decl.Transform))
	}
	if decl.Persist {
		opts = append(opts, cdom.WithStorage(b.Storage), cdom.WithCodec(b.Codec))
	}
	initial := cdom.Normalize(decl.Value)
	switch decl.Kind {
	case "", "state":
		return b.System.State(initial, opts...)
	case "signal":
		return b.System.Signal(initial, opts...)
	}
	return nil, fmt.Errorf("%q: %w", decl.Kind, ErrUnknownCell)
}

func (c *Config) storage(b *Built, bo *buildOptions) (cdom.Storage, error) {
	s := c.Storage
	switch s.Kind {
	case "", "memory":
		return storage.NewMemory(), nil
	case "file":
		var opts []storage.FileOption
		if s.Ext != "" {
			opts = append(opts, storage.WithExtension(s.Ext))
		}
		return storage.NewFile(s.Dir, opts...)
	case "sqlite":
		dsn := s.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := storage.OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db)
		return db, nil
	case "s3":
		client, err := s3Client(s.S3, bo)
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, s.S3.Bucket, storage.WithPrefix(s.S3.Prefix)), nil
	}
	return nil, fmt.Errorf("%q: %w", s.Kind, ErrUnknownStorage)
}

func (c *Config) loader(bo *buildOptions) (cdom.Loader, error) {
	var chain loader.Chain
	for _, dir := range c.Helpers.Dirs {
		chain = append(chain, loader.NewDir(dir))
	}
	for _, u := range c.Helpers.URLs {
		chain = append(chain, loader.NewHTTP(u))
	}
	if c.Helpers.S3 != nil {
		client, err := s3Client(c.Helpers.S3, bo)
		if err != nil {
			return nil, err
		}
		chain = append(chain, loader.NewS3(client, c.Helpers.S3.Bucket, c.Helpers.S3.Prefix))
	}
	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

// s3Client builds a client from the bucket settings, taking credentials from
// the standard AWS environment variables.
func s3Client(bucket *Bucket, bo *buildOptions) (storage.S3API, error) {
	if bucket == nil || bucket.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if bo.s3 != nil {
		return bo.s3, nil
	}
	region := bucket.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	o := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	if bucket.Endpoint != "" {
		o.BaseEndpoint = aws.String(bucket.Endpoint)
		o.UsePathStyle = true
	}
	return s3.New(o), nil
}
