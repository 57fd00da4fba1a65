package transfer

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/clipjobs/internal/domain"
)

type putCall struct {
	key         string
	body        []byte
	size        int64
	contentType string
	metadata    map[string]string
}

type fakeBlobs struct {
	mu   sync.Mutex
	puts []putCall
	err  error
}

func (f *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{key: key, body: data, size: size, contentType: contentType, metadata: metadata})
	return nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeBlobs) URL(key string) string { return "https://cdn.test/" + key }

func TestUploader_Upload(t *testing.T) {
	blobs := &fakeBlobs{}
	now := time.UnixMilli(1700000000123)
	u := NewUploader(blobs, discardLogger(), WithUploadClock(func() time.Time { return now }))

	meta := map[string]string{"edited": "true"}
	res, err := u.Upload(context.Background(), []byte("out"), "video/mp4", "u1", "  Bob Smith ", meta)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^videos/bob-smith/videos-1700000000123-[0-9a-z]{12}\.mp4$`), res.Key)
	assert.Equal(t, "https://cdn.test/"+res.Key, res.URL)

	require.Len(t, blobs.puts, 1)
	put := blobs.puts[0]
	assert.Equal(t, res.Key, put.key)
	assert.Equal(t, []byte("out"), put.body)
	assert.Equal(t, int64(3), put.size)
	assert.Equal(t, "video/mp4", put.contentType)
	assert.Equal(t, map[string]string{"edited": "true", "userid": "u1"}, put.metadata)

	// caller map untouched
	assert.Equal(t, map[string]string{"edited": "true"}, meta)
}

func TestUploader_UploadFailure(t *testing.T) {
	u := NewUploader(&fakeBlobs{err: errors.New("access denied")}, discardLogger())

	_, err := u.Upload(context.Background(), []byte("out"), "video/mp4", "u1", "bob", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Contains(t, err.Error(), "access denied")
}

func TestSafeUsername(t *testing.T) {
	assert.Equal(t, "alice", SafeUsername("alice", "u1"))
	assert.Equal(t, "jose-maria", SafeUsername(" José María ", "u1"))
	assert.Equal(t, "u1", SafeUsername("   ", "u1"))
	assert.Equal(t, "anonymous", SafeUsername("", ""))
}

func TestBuildKey(t *testing.T) {
	now := time.UnixMilli(42)

	key, err := BuildKey("", "bob", "video/mp4", now)
	require.NoError(t, err)
	assert.Regexp(t, `^videos/bob/videos-42-[0-9a-z]{12}\.mp4$`, key)

	key, err = BuildKey("clips", "bob", "", now)
	require.NoError(t, err)
	assert.Regexp(t, `^clips/bob/clips-42-[0-9a-z]{12}\.bin$`, key)

	other, err := BuildKey("clips", "bob", "", now)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "mp4", Extension("video/mp4"))
	assert.Equal(t, "bin", Extension(""))
	assert.Equal(t, "bin", Extension("application/x-not-a-real-type"))
}
