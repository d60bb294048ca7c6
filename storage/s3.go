package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the slice of *s3.Client the S3 store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores one object per item under a key prefix.
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
}

type S3Option func(*S3)

func WithPrefix(prefix string) S3Option {
	return func(s *S3) { s.prefix = prefix }
}

// WithTimeout bounds each request, 10s by default.
func WithTimeout(d time.Duration) S3Option {
	return func(s *S3) { s.timeout = d }
}

func NewS3(client S3API, bucket string, opts ...S3Option) *S3 {
	s := &S3{client: client, bucket: bucket, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *S3) key(name string) string {
	return s.prefix + name
}

func (s *S3) GetItem(name string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("s3 get %s: %w", s.key(name), err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, fmt.Errorf("s3 read %s: %w", s.key(name), err)
	}
	return string(b), true, nil
}

func (s *S3) SetItem(name, value string) error {
	if name == "" {
		return ErrEmptyName
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", s.key(name), err)
	}
	return nil
}
