package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultFileName is used when no output is given.
const DefaultFileName = "veeam_jobs.csv"

const s3Scheme = "s3://"

// Sink is the destination of an export.
type Sink interface {
	io.Writer
	// Close flushes the export. Errors from Close mean the export is lost.
	Close() error
	// Location describes where the data went, e.g. a path or s3:// URL.
	Location() string
	// Size returns the number of bytes written so far.
	Size() int64
}

// Resolve turns the --output value into a location. An empty output selects
// DefaultFileName; a bare file name is placed in dir; anything with a
// directory part, an absolute path or an s3:// URL is used as given.
func Resolve(output, dir string) string {
	if output == "" {
		return filepath.Join(dir, DefaultFileName)
	}
	if strings.HasPrefix(output, s3Scheme) || filepath.IsAbs(output) {
		return output
	}
	if filepath.Dir(output) != "." || strings.HasPrefix(output, "."+string(filepath.Separator)) {
		return output
	}
	return filepath.Join(dir, output)
}

type options struct {
	s3Endpoint string
	s3Client   *s3.Client
}

// Option configures Open.
type Option func(o *options)

// WithS3Endpoint points the S3 sink at an S3 compatible store. Path-style
// addressing is used when set.
func WithS3Endpoint(endpoint string) Option {
	return func(o *options) {
		o.s3Endpoint = endpoint
	}
}

// WithS3Client uses the given client instead of one built from the default
// AWS configuration chain.
func WithS3Client(c *s3.Client) Option {
	return func(o *options) {
		o.s3Client = c
	}
}

// Open returns a sink for location.
func Open(ctx context.Context, location string, opts ...Option) (Sink, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if strings.HasPrefix(location, s3Scheme) {
		bucket, key, err := parseS3URL(location)
		if err != nil {
			return nil, err
		}
		return newS3Sink(ctx, bucket, key, o)
	}
	return newFileSink(location)
}

func parseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 location %q: %w", location, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	return u.Host, key, nil
}

type fileSink struct {
	f    *os.File
	size int64
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *fileSink) Close() error {
	return s.f.Close()
}

func (s *fileSink) Location() string {
	return s.f.Name()
}

func (s *fileSink) Size() int64 {
	return s.size
}
