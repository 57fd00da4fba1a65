package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/clipjobs/internal/api/dto"
	"github.com/cuongbtq/clipjobs/internal/api/handler"
	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/cuongbtq/clipjobs/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePublisher struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (f *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return f.err
}

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	return nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobs) URL(key string) string { return "https://blob/" + key }

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testAPI struct {
	router    *gin.Engine
	store     *storage.MemoryStore
	publisher *fakePublisher
	blobs     *fakeBlobs
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &testAPI{
		store:     storage.NewMemoryStore(logger),
		publisher: &fakePublisher{},
		blobs:     &fakeBlobs{},
	}
	api.router = SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Store:     api.store,
		Blobs:     api.blobs,
		Publisher: api.publisher,
	})
	return api
}

func (a *testAPI) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewBufferString(v)
		default:
			data, err := json.Marshal(v)
			require.NoError(t, err)
			reader = bytes.NewBuffer(data)
		}
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) create(t *testing.T, body map[string]interface{}) dto.JobDTO {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/api/v1/jobs", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job dto.JobDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func cropBody(userID string) map[string]interface{} {
	return map[string]interface{}{
		"type":      "crop",
		"video_url": "http://x/vid.mp4",
		"start":     2,
		"end":       5,
		"user_id":   userID,
		"username":  "alice",
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	})

	t.Run("failing dependency", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		r := SetupRouter(&handler.Dependencies{
			Logger: logger,
			Store:  storage.NewMemoryStore(logger),
			HealthChecks: map[string]handler.HealthChecker{
				"database": checkFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
			},
		})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestCreateJob(t *testing.T) {
	api := newTestAPI(t)

	job := api.create(t, cropBody("u1"))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, "crop", job.Type)
	assert.Equal(t, "pending", job.Status)
	assert.Equal(t, 2.0, job.Start)
	assert.Equal(t, 5.0, job.End)
	assert.Nil(t, job.Error)
	assert.Nil(t, job.DownloadURL)
	require.NotNil(t, job.VideoURL)
	assert.Equal(t, "http://x/vid.mp4", *job.VideoURL)

	stored, err := api.store.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.JobStatusPending, stored.Status)

	require.Len(t, api.publisher.bodies, 1)
	assert.JSONEq(t, `{"job_id":"`+job.JobID+`"}`, string(api.publisher.bodies[0]))
}

func TestCreateJob_PublishFailureIsNotFatal(t *testing.T) {
	api := newTestAPI(t)
	api.publisher.err = errors.New("channel closed")

	rec := api.do(t, http.MethodPost, "/api/v1/jobs", cropBody("u1"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateJob_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    interface{}
		wantMsg string
	}{
		{
			name:    "malformed json",
			body:    `{"type":`,
			wantMsg: "Invalid request body",
		},
		{
			name:    "missing type",
			body:    map[string]interface{}{"video_url": "http://x/vid.mp4", "start": 0, "end": 1},
			wantMsg: "Invalid request body",
		},
		{
			name:    "end before start",
			body:    map[string]interface{}{"type": "crop", "video_url": "http://x/vid.mp4", "start": 5, "end": 2},
			wantMsg: domain.MsgInvalidWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)

			rec := api.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Empty(t, api.publisher.bodies)
		})
	}
}

func TestGetJob(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, cropBody("u1"))

	t.Run("found", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var job dto.JobDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, created.JobID, job.JobID)
		assert.Equal(t, "u1", job.UserID)
	})

	t.Run("reflects worker updates", func(t *testing.T) {
		_, err := api.store.Update(context.Background(), created.JobID, domain.FailUpdate("No input source"))
		require.NoError(t, err)

		rec := api.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var job dto.JobDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, "failed", job.Status)
		require.NotNil(t, job.Error)
		assert.Equal(t, "No input source", *job.Error)
	})

	t.Run("not a uuid", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/jobs/0b5c0c9e-3f0e-4c55-9d7a-1f2d3c4b5a69", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListJobs(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		api.create(t, cropBody("u1"))
	}
	api.create(t, cropBody("u2"))

	list := func(t *testing.T, query url.Values) dto.ListJobsResponse {
		t.Helper()
		rec := api.do(t, http.MethodGet, "/api/v1/jobs?"+query.Encode(), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	t.Run("paginates with cursor", func(t *testing.T) {
		first := list(t, url.Values{"user_id": {"u1"}, "page_size": {"2"}})
		require.Len(t, first.Jobs, 2)
		require.NotEmpty(t, first.NextCursor)

		second := list(t, url.Values{"user_id": {"u1"}, "page_size": {"2"}, "cursor": {first.NextCursor}})
		require.Len(t, second.Jobs, 1)
		assert.Empty(t, second.NextCursor)

		seen := map[string]bool{}
		for _, job := range append(first.Jobs, second.Jobs...) {
			assert.Equal(t, "u1", job.UserID)
			seen[job.JobID] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("default page holds everything", func(t *testing.T) {
		resp := list(t, url.Values{})
		assert.Len(t, resp.Jobs, 4)
		assert.Empty(t, resp.NextCursor)
	})

	t.Run("status filter", func(t *testing.T) {
		resp := list(t, url.Values{"status": {"completed"}})
		assert.Empty(t, resp.Jobs)
	})

	t.Run("invalid status", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/jobs?status=done", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/jobs?cursor=not*base64", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteBlob(t *testing.T) {
	t.Run("deletes blob and referencing jobs", func(t *testing.T) {
		api := newTestAPI(t)
		body := cropBody("u1")
		body["s3_key"] = "videos/alice/out.mp4"
		job := api.create(t, body)
		other := api.create(t, cropBody("u1"))

		rec := api.do(t, http.MethodDelete, "/api/v1/blobs?key=videos/alice/out.mp4", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.DeleteBlobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Deleted)
		assert.Equal(t, []string{"videos/alice/out.mp4"}, api.blobs.deleted)

		gone, err := api.store.Get(context.Background(), job.JobID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		kept, err := api.store.Get(context.Background(), other.JobID)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})

	t.Run("missing key", func(t *testing.T) {
		api := newTestAPI(t)
		rec := api.do(t, http.MethodDelete, "/api/v1/blobs", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blob failure keeps jobs", func(t *testing.T) {
		api := newTestAPI(t)
		api.blobs.err = errors.New("access denied")
		body := cropBody("u1")
		body["s3_key"] = "videos/alice/out.mp4"
		job := api.create(t, body)

		rec := api.do(t, http.MethodDelete, "/api/v1/blobs?key=videos/alice/out.mp4", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		kept, err := api.store.Get(context.Background(), job.JobID)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodOptions, "/api/v1/jobs", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
