// Package blob writes finished media to object storage. S3 and MinIO
// backends implement the same Store so the uploader is provider agnostic.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store is durable object storage addressed by key
type Store interface {
	// Put uploads body under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the public URL of the object
	URL(key string) string
}

// Config holds object storage configuration
type Config struct {
	Provider        string // s3, minio
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint; required for minio
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PublicBaseURL   string // overrides the provider URL, e.g. a CDN
}

// Validate checks the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("storage bucket is required")
	}

	switch c.Provider {
	case "s3", "aws", "":
		c.Provider = "s3"
		if c.Region == "" {
			c.Region = "us-east-1"
		}
	case "minio":
		if c.Endpoint == "" || c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return errors.New("endpoint, access_key_id and secret_access_key are required for minio")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}

	return nil
}

// New creates the Store selected by cfg.Provider
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	switch cfg.Provider {
	case "minio":
		return NewMinioStore(cfg)
	default:
		return NewS3Store(ctx, cfg)
	}
}

// joinURL appends an object key to a base URL
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
