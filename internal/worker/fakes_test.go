package worker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/cuongbtq/clipjobs/internal/storage"
	"github.com/cuongbtq/clipjobs/internal/transfer"
)

// mp4Header is enough of an ISO BMFF ftyp box for content sniffing
var mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

type fakeDownloader struct {
	mu        sync.Mutex
	calls     []string
	err       error
	skipWrite bool
}

func (f *fakeDownloader) Download(ctx context.Context, url, destPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if f.skipWrite {
		return nil
	}
	return os.WriteFile(destPath, []byte("source"), 0o644)
}

func (f *fakeDownloader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type trimCall struct {
	input, output string
	start, end    float64
}

type fakeTranscoder struct {
	mu     sync.Mutex
	calls  []trimCall
	err    error
	output []byte
	panics bool
}

func (f *fakeTranscoder) Trim(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	f.mu.Lock()
	f.calls = append(f.calls, trimCall{input: inputPath, output: outputPath, start: start, end: end})
	f.mu.Unlock()

	if f.panics {
		panic("transcoder exploded")
	}
	if f.err != nil {
		return f.err
	}
	out := f.output
	if out == nil {
		out = mp4Header
	}
	return os.WriteFile(outputPath, out, 0o644)
}

func (f *fakeTranscoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type uploadCall struct {
	body        []byte
	contentType string
	userID      string
	username    string
	metadata    map[string]string
}

type fakeUploader struct {
	mu     sync.Mutex
	calls  []uploadCall
	result *transfer.UploadResult
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, body []byte, contentType, userID, username string, metadata map[string]string) (*transfer.UploadResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, uploadCall{body: body, contentType: contentType, userID: userID, username: username, metadata: metadata})
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &transfer.UploadResult{
		URL: "https://blob/videos/" + username + "/out.mp4",
		Key: "videos/" + username + "/out.mp4",
	}, nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// failingUpdater rejects every write
type failingUpdater struct {
	err error
}

func (f failingUpdater) Update(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.Job, error) {
	return nil, f.err
}

type harness struct {
	store      *storage.MemoryStore
	downloader *fakeDownloader
	transcoder *fakeTranscoder
	uploader   *fakeUploader
	processor  *Processor
	scratchDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:      storage.NewMemoryStore(discardLogger()),
		downloader: &fakeDownloader{},
		transcoder: &fakeTranscoder{},
		uploader:   &fakeUploader{},
		scratchDir: t.TempDir(),
	}
	h.processor = NewProcessor(&ProcessorConfig{
		Logger:           discardLogger(),
		Store:            h.store,
		Downloader:       h.downloader,
		Uploader:         h.uploader,
		Transcoder:       h.transcoder,
		ScratchDir:       h.scratchDir,
		DownloadTimeout:  time.Second,
		TranscodeTimeout: time.Second,
		UploadTimeout:    time.Second,
	})
	return h
}

// createClaimed creates a job and claims it the way the scheduler does
func (h *harness) createClaimed(t *testing.T, in domain.NewJob) *domain.Job {
	t.Helper()
	ctx := context.Background()

	created, err := h.store.Create(ctx, in)
	require.NoError(t, err)

	claimed, err := h.store.Claim(ctx, created.JobID)
	require.NoError(t, err)
	return claimed
}

func (h *harness) get(t *testing.T, jobID string) *domain.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func (h *harness) scratchEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(h.scratchDir)
	require.NoError(t, err)
	return entries
}

func aliceCrop() domain.NewJob {
	return domain.NewJob{
		Type:     domain.JobTypeCrop,
		VideoURL: strPtr("http://x/vid.mp4"),
		Start:    2,
		End:      5,
		UserID:   "u1",
		Username: "alice",
	}
}
