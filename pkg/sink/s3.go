package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const csvContentType = "text/csv; charset=utf-8"

// s3Sink buffers the export and uploads it in a single PutObject on Close.
type s3Sink struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

func newS3Sink(ctx context.Context, bucket, key string, o *options) (*s3Sink, error) {
	client := o.s3Client
	if client == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client = s3.NewFromConfig(cfg, func(so *s3.Options) {
			if o.s3Endpoint != "" {
				so.BaseEndpoint = aws.String(o.s3Endpoint)
				so.UsePathStyle = true
			}
		})
	}
	return &s3Sink{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}

func (s *s3Sink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *s3Sink) Close() error {
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(s.buf.Bytes()),
		ContentType: aws.String(csvContentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", s.Location(), err)
	}
	return nil
}

func (s *s3Sink) Location() string {
	return s3Scheme + s.bucket + "/" + s.key
}

func (s *s3Sink) Size() int64 {
	return int64(s.buf.Len())
}
