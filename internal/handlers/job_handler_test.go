package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/services/jobs"
)

type fakeJobs struct {
	mu          sync.Mutex
	submitted   []jobs.SubmitRequest
	bodies      []string
	submitErr   error
	statusFn    func(calls int) (*models.JobView, error)
	statusCalls int
	signals     int
	signalErr   error
	downloadFn  func() (string, string, error)
	views       []*models.JobView
}

func (f *fakeJobs) Submit(ctx context.Context, req jobs.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	body, _ := io.ReadAll(req.Body)
	f.submitted = append(f.submitted, req)
	f.bodies = append(f.bodies, string(body))
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

func (f *fakeJobs) Status(ctx context.Context, jobID string) (*models.JobView, error) {
	f.mu.Lock()
	f.statusCalls++
	calls := f.statusCalls
	f.mu.Unlock()
	if f.statusFn == nil {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return f.statusFn(calls)
}

func (f *fakeJobs) Download(ctx context.Context, jobID string) (string, string, error) {
	if f.downloadFn == nil {
		return "", "", fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return f.downloadFn()
}

func (f *fakeJobs) SignalStart(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signalErr != nil {
		return f.signalErr
	}
	f.signals++
	return nil
}

func (f *fakeJobs) List(ctx context.Context) []*models.JobView {
	return f.views
}

func uploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadHandler_QueuesJob(t *testing.T) {
	service := &fakeJobs{}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	req := uploadRequest(t, map[string]string{
		"manual_login": "true",
		"cookies":      "li_at=abc; JSESSIONID=xyz",
		"selectors":    `{"SEARCH_PAGE_URL":"https://example.com/search","FULL_NAME_COLUMN":"Name"}`,
	}, "contacts.csv", "Name,Company\nJane Doe,Acme\n")
	rec := httptest.NewRecorder()

	h.UploadHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-1", decodeBody(t, rec)["jobId"])

	require.Len(t, service.submitted, 1)
	got := service.submitted[0]
	assert.Equal(t, "contacts.csv", got.Filename)
	assert.True(t, got.Details.ManualLogin)
	assert.Equal(t, "li_at=abc; JSESSIONID=xyz", got.Details.Cookies)
	assert.Equal(t, "https://example.com/search", got.Details.Selectors.SearchPageURL)
	assert.Equal(t, "Name", got.Details.Selectors.NameColumn)
	assert.Equal(t, "Name,Company\nJane Doe,Acme\n", service.bodies[0])
}

func TestUploadHandler_ManualLoginDefaultsFalse(t *testing.T) {
	service := &fakeJobs{}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.UploadHandler(rec, uploadRequest(t, nil, "contacts.csv", "Name\n"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, service.submitted, 1)
	assert.False(t, service.submitted[0].Details.ManualLogin)
}

func TestUploadHandler_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		file   string
	}{
		{name: "missing file", fields: map[string]string{"cookies": "a=b"}},
		{name: "bad selectors json", fields: map[string]string{"selectors": "{not json"}, file: "contacts.csv"},
		{name: "bad manual login", fields: map[string]string{"manual_login": "maybe"}, file: "contacts.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeJobs{}
			h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

			rec := httptest.NewRecorder()
			h.UploadHandler(rec, uploadRequest(t, tt.fields, tt.file, "Name\n"))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", decodeBody(t, rec)["status"])
			assert.Empty(t, service.submitted)
		})
	}
}

func TestUploadHandler_InvalidInputIsBadRequest(t *testing.T) {
	service := &fakeJobs{submitErr: fmt.Errorf("%w: file has no header row", jobs.ErrInvalidInput)}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.UploadHandler(rec, uploadRequest(t, nil, "empty.csv", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "no header row")
}

func TestUploadHandler_StorageFailureIsServerError(t *testing.T) {
	service := &fakeJobs{submitErr: fmt.Errorf("failed to persist job: disk full")}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.UploadHandler(rec, uploadRequest(t, nil, "contacts.csv", "Name\n"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUploadHandler_RateLimited(t *testing.T) {
	service := &fakeJobs{}
	h := NewJobHandler(service, UploadLimits{PerMinute: 1, Burst: 1}, arbor.NewLogger())

	first := httptest.NewRecorder()
	h.UploadHandler(first, uploadRequest(t, nil, "a.csv", "Name\n"))
	second := httptest.NewRecorder()
	h.UploadHandler(second, uploadRequest(t, nil, "b.csv", "Name\n"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, service.submitted, 1)
}

func TestUploadHandler_RequiresPost(t *testing.T) {
	h := NewJobHandler(&fakeJobs{}, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.UploadHandler(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	service := &fakeJobs{
		statusFn: func(int) (*models.JobView, error) {
			return &models.JobView{ID: "abc", Status: models.JobStatusRunning, Progress: 2, Total: 5}, nil
		},
	}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/status/abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.JobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "abc", view.ID)
	assert.Equal(t, models.JobStatusRunning, view.Status)
	assert.Equal(t, 2, view.Progress)
	assert.Equal(t, 5, view.Total)
}

func TestStatusHandler_UnknownJob(t *testing.T) {
	h := NewJobHandler(&fakeJobs{}, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/status/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignalStartHandler_Idempotent(t *testing.T) {
	service := &fakeJobs{}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.SignalStartHandler(rec, httptest.NewRequest(http.MethodPost, "/signal-start/abc", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"status": "success"}, decodeBody(t, rec))
	}
	assert.Equal(t, 2, service.signals)
}

func TestSignalStartHandler_UnknownJob(t *testing.T) {
	service := &fakeJobs{signalErr: fmt.Errorf("%w: missing", jobs.ErrNotFound)}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.SignalStartHandler(rec, httptest.NewRequest(http.MethodPost, "/signal-start/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadHandler_ServesAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name,Notes\nJane,\n"), 0644))

	service := &fakeJobs{
		downloadFn: func() (string, string, error) { return path, "enriched-contacts.csv", nil },
	}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=enriched-contacts.csv", rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Equal(t, "Name,Notes\nJane,\n", rec.Body.String())
}

func TestDownloadHandler_EncodesNonASCIIFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name\n"), 0644))

	service := &fakeJobs{
		downloadFn: func() (string, string, error) { return path, "enriched-résumé.csv", nil },
	}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename*=utf-8''enriched-r%C3%A9sum%C3%A9.csv", rec.Header().Get("Content-Disposition"))
}

func TestDownloadHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "unknown job", err: fmt.Errorf("%w: x", jobs.ErrNotFound), code: http.StatusNotFound},
		{name: "not finished", err: fmt.Errorf("%w: status is running", jobs.ErrNotReady), code: http.StatusBadRequest},
		{name: "no checkpoint yet", err: fmt.Errorf("%w: x", jobs.ErrOutputMissing), code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeJobs{
				downloadFn: func() (string, string, error) { return "", "", tt.err },
			}
			h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

			rec := httptest.NewRecorder()
			h.DownloadHandler(rec, httptest.NewRequest(http.MethodGet, "/download/x", nil))

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestListHandler(t *testing.T) {
	service := &fakeJobs{views: []*models.JobView{
		{ID: "b", Status: models.JobStatusQueued},
		{ID: "a", Status: models.JobStatusFinished},
	}}
	h := NewJobHandler(service, UploadLimits{}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs  []models.JobView `json:"jobs"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Jobs, 2)
	assert.Equal(t, "b", body.Jobs[0].ID)
}

func TestStatusStream_PushesUntilTerminal(t *testing.T) {
	service := &fakeJobs{
		statusFn: func(calls int) (*models.JobView, error) {
			if calls < 3 {
				return &models.JobView{ID: "abc", Status: models.JobStatusRunning, Progress: 1, Total: 2}, nil
			}
			return &models.JobView{ID: "abc", Status: models.JobStatusFinished, Progress: 2, Total: 2}, nil
		},
	}
	h := NewStatusStreamHandler(service, arbor.NewLogger()).WithInterval(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/status/abc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first, second models.JobView
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, models.JobStatusRunning, first.Status)

	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, models.JobStatusFinished, second.Status)
	assert.Equal(t, 2, second.Progress)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStatusStream_UnknownJob(t *testing.T) {
	h := NewStatusStreamHandler(&fakeJobs{}, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/status/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthHandler(t *testing.T) {
	h := NewAPIHandler(stubQueue{pending: 2, running: "abc"}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["queued"])
	assert.Equal(t, "abc", body["running"])
}

type stubQueue struct {
	pending int
	running string
}

func (s stubQueue) Pending() int    { return s.pending }
func (s stubQueue) Running() string { return s.running }
