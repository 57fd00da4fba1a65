package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/cuongbtq/clipjobs/internal/blob"
	"github.com/cuongbtq/clipjobs/internal/domain"
)

const (
	// DefaultCategory is the key prefix for uploaded media
	DefaultCategory = "videos"

	keyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	keyIDSize   = 12
)

// UploadResult describes a stored object
type UploadResult struct {
	URL string
	Key string
}

// Uploader writes media under user scoped keys
type Uploader struct {
	blobs    blob.Store
	category string
	logger   *slog.Logger
	now      func() time.Time
}

// UploaderOption configures an Uploader
type UploaderOption func(*Uploader)

// WithCategory sets the key category
func WithCategory(category string) UploaderOption {
	return func(u *Uploader) {
		if category != "" {
			u.category = category
		}
	}
}

// WithUploadClock replaces the clock used for key timestamps
func WithUploadClock(now func() time.Time) UploaderOption {
	return func(u *Uploader) {
		u.now = now
	}
}

// NewUploader creates a new Uploader over blobs
func NewUploader(blobs blob.Store, logger *slog.Logger, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		blobs:    blobs,
		category: DefaultCategory,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload stores body and returns its public URL and key. The userid is
// always added to the object metadata.
func (u *Uploader) Upload(ctx context.Context, body []byte, contentType, userID, username string, metadata map[string]string) (*UploadResult, error) {
	key, err := BuildKey(u.category, SafeUsername(username, userID), contentType, u.now())
	if err != nil {
		return nil, domain.NewStorageError(fmt.Sprintf("failed to build object key: %v", err), err)
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["userid"] = userID

	if err := u.blobs.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType, meta); err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewStorageError("upload timed out", err)
		}
		return nil, domain.NewStorageError(fmt.Sprintf("failed to upload %s: %v", key, err), err)
	}

	u.logger.Info("Object uploaded",
		slog.String("key", key),
		slog.Int("bytes", len(body)),
		slog.String("content_type", contentType),
	)

	return &UploadResult{
		URL: u.blobs.URL(key),
		Key: key,
	}, nil
}

// SafeUsername returns the key safe form of username, falling back to userID
func SafeUsername(username, userID string) string {
	if s := slug.Make(strings.TrimSpace(username)); s != "" {
		return s
	}
	if s := slug.Make(strings.TrimSpace(userID)); s != "" {
		return s
	}
	return "anonymous"
}

// BuildKey returns <category>/<owner>/<category>-<unixMillis>-<random>.<ext>
func BuildKey(category, owner, contentType string, now time.Time) (string, error) {
	if category == "" {
		category = DefaultCategory
	}

	id, err := gonanoid.Generate(keyAlphabet, keyIDSize)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%s-%d-%s.%s", category, owner, category, now.UnixMilli(), id, Extension(contentType)), nil
}

// Extension maps a content type to a file extension without the dot
func Extension(contentType string) string {
	if contentType == "" {
		return "bin"
	}
	m := mimetype.Lookup(contentType)
	if m == nil || m.Extension() == "" {
		return "bin"
	}
	return strings.TrimPrefix(m.Extension(), ".")
}
