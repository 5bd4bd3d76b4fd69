// Package invoice turns stored invoice paths into short-lived download
// links.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultExpiry = 15 * time.Minute

var ErrNoInvoice = errors.New("order has no invoice yet")

type Presigner struct {
	client *s3.PresignClient
	bucket string
	expiry time.Duration
}

type Option func(*s3.Options)

// WithEndpoint points the client at an S3-compatible store such as MinIO.
func WithEndpoint(endpoint string) Option {
	return func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}
}

// New loads AWS credentials from the environment.
func New(ctx context.Context, region, bucket string, opts ...Option) (*Presigner, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewWithConfig(cfg, bucket, opts...), nil
}

func NewWithConfig(cfg aws.Config, bucket string, opts ...Option) *Presigner {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		for _, opt := range opts {
			opt(o)
		}
	})
	return &Presigner{
		client: s3.NewPresignClient(client),
		bucket: bucket,
		expiry: DefaultExpiry,
	}
}

// URL returns a GET link for the invoice stored at path. Paths that are
// already absolute URLs are returned unchanged.
func (p *Presigner) URL(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", ErrNoInvoice
	}
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path, nil
	}

	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(strings.TrimPrefix(path, "/")),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign invoice %s: %w", path, err)
	}
	return req.URL, nil
}
