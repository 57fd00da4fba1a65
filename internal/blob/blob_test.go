package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
		check   func(t *testing.T, c Config)
	}{
		{
			name:    "missing bucket",
			cfg:     Config{Provider: "s3"},
			wantErr: "storage bucket is required",
		},
		{
			name: "s3 defaults region",
			cfg:  Config{Bucket: "media"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "s3", c.Provider)
				assert.Equal(t, "us-east-1", c.Region)
			},
		},
		{
			name:    "minio requires endpoint and credentials",
			cfg:     Config{Provider: "minio", Bucket: "media"},
			wantErr: "required for minio",
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "gcs", Bucket: "media"},
			wantErr: "unsupported storage provider: gcs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestS3Store_URL(t *testing.T) {
	ctx := context.Background()

	t.Run("virtual hosted aws url", func(t *testing.T) {
		store, err := NewS3Store(ctx, &Config{Bucket: "media", Region: "ap-southeast-1", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)
		assert.Equal(t, "https://media.s3.ap-southeast-1.amazonaws.com/video/bob/a.mp4", store.URL("video/bob/a.mp4"))
	})

	t.Run("custom endpoint uses path style", func(t *testing.T) {
		store, err := NewS3Store(ctx, &Config{Bucket: "media", Region: "us-east-1", Endpoint: "http://localhost:4566/", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:4566/media/video/bob/a.mp4", store.URL("video/bob/a.mp4"))
	})

	t.Run("public base url wins", func(t *testing.T) {
		store, err := NewS3Store(ctx, &Config{Bucket: "media", Region: "us-east-1", PublicBaseURL: "https://cdn.example.com/", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/video/bob/a.mp4", store.URL("/video/bob/a.mp4"))
	})
}

func TestMinioStore_URL(t *testing.T) {
	store, err := NewMinioStore(&Config{Bucket: "media", Endpoint: "localhost:9000", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/media/video/bob/a.mp4", store.URL("video/bob/a.mp4"))
}

func TestNew_SelectsProvider(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, &Config{Provider: "minio", Bucket: "media", Endpoint: "localhost:9000", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.IsType(t, &MinioStore{}, store)

	store, err = New(ctx, &Config{Provider: "s3", Bucket: "media", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)

	_, err = New(ctx, &Config{Provider: "s3"})
	assert.Error(t, err)
}
