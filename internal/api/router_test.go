package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/service"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

const (
	userHeader = "X-User-ID"
	testSecret = "s3cret"
)

type stubBackend struct {
	mu     sync.Mutex
	tokens int
}

func (b *stubBackend) FetchRecord(_ context.Context, id string) (*domain.JobRecord, error) {
	return &domain.JobRecord{ID: id, Metadata: domain.Metadata{}}, nil
}

func (b *stubBackend) Balance(context.Context, string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, nil
}

func (b *stubBackend) Register(_ context.Context, reg tracker.Registration) (tracker.Receipt, error) {
	return tracker.Receipt{RecordID: "rec-" + reg.JobID, OriginalURL: "https://cdn.example.com/" + reg.JobID}, nil
}

type stubUpdater struct {
	calls []string
}

func (u *stubUpdater) History(_ context.Context, userID string, _ int) ([]domain.JobRecord, error) {
	return []domain.JobRecord{{ID: "rec-old", UserID: userID}}, nil
}

func (u *stubUpdater) OpenOriginal(_ context.Context, userID, recordID string) (io.ReadCloser, string, error) {
	if userID != "user-1" || recordID != "rec-old" {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrRecordNotFound, recordID)
	}
	return io.NopCloser(strings.NewReader("original bytes")), "image/png", nil
}

func (u *stubUpdater) ApplyWorkflowUpdate(_ context.Context, recordID string, patch map[string]interface{}) (*domain.JobRecord, error) {
	u.calls = append(u.calls, recordID)
	if len(patch) == 0 {
		return nil, service.ErrEmptyUpdate
	}
	if recordID == "missing" {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, recordID)
	}
	return &domain.JobRecord{ID: recordID, Metadata: patch}, nil
}

func newTestRouter(t *testing.T, tokens int) (*gin.Engine, *stubUpdater) {
	t.Helper()
	backend := &stubBackend{tokens: tokens}
	registry := tracker.NewRegistry(context.Background(), tracker.Dependencies{
		Records:   backend,
		Balances:  backend,
		Registrar: backend,
	}, tracker.Options{Logger: logger.Discard()})
	t.Cleanup(registry.CloseAll)

	updater := &stubUpdater{}
	r := SetupRouter(registry, updater, RouterConfig{
		Mode:           "test",
		CORS:           middleware.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
		UserHeader:     userHeader,
		MaxUploadBytes: 10 << 20,
		WorkflowSecret: testSecret,
	}, logger.Discard())
	return r, updater
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := w.CreateFormFile("images", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func do(r http.Handler, req *http.Request, user string) *httptest.ResponseRecorder {
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type jobsResponse struct {
	Jobs []struct {
		ID       string `json:"id"`
		FileName string `json:"file_name"`
		Status   string `json:"status"`
	} `json:"jobs"`
}

func submit(t *testing.T, r http.Handler, files map[string][]byte) (*httptest.ResponseRecorder, jobsResponse) {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
	req.Header.Set("Content-Type", contentType)
	w := do(r, req, "user-1")

	var resp jobsResponse
	if w.Code == http.StatusAccepted {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode submit response: %v", err)
		}
	}
	return w, resp
}

func TestSubmitAcceptsPhotos(t *testing.T) {
	r, _ := newTestRouter(t, 5)

	w, resp := submit(t, r, map[string][]byte{"pasta.png": pngBytes(t, 300)})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(resp.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(resp.Jobs))
	}
	if resp.Jobs[0].FileName != "pasta.png" {
		t.Errorf("file_name = %q", resp.Jobs[0].FileName)
	}

	get := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+resp.Jobs[0].ID, nil), "user-1")
	if get.Code != http.StatusOK {
		t.Errorf("get status = %d", get.Code)
	}

	list := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil), "user-1")
	var listed jobsResponse
	if err := json.Unmarshal(list.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Jobs) != 1 {
		t.Errorf("listed = %d, want 1", len(listed.Jobs))
	}

	other := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+resp.Jobs[0].ID, nil), "user-2")
	if other.Code != http.StatusNotFound {
		t.Errorf("other user status = %d, want 404", other.Code)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		tokens int
		files  map[string][]byte
		want   int
	}{
		{name: "no files", tokens: 5, files: map[string][]byte{}, want: http.StatusBadRequest},
		{name: "not an image", tokens: 5, files: map[string][]byte{"notes.txt": []byte("hello")}, want: http.StatusBadRequest},
		{name: "no tokens", tokens: 0, files: map[string][]byte{"soup.png": nil}, want: http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, tt.tokens)
			files := tt.files
			for name, data := range files {
				if data == nil {
					files[name] = pngBytes(t, 300)
				}
			}
			w, _ := submit(t, r, files)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUserHeaderRequired(t *testing.T) {
	r, _ := newTestRouter(t, 1)
	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJobEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, 3)
	_, resp := submit(t, r, map[string][]byte{"salad.png": pngBytes(t, 320)})
	if len(resp.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(resp.Jobs))
	}
	id := resp.Jobs[0].ID

	preview := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id+"/preview", nil), "user-1")
	if preview.Code != http.StatusOK {
		t.Fatalf("preview status = %d", preview.Code)
	}
	if ct := preview.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("preview content type = %q", ct)
	}

	retry := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil), "user-1")
	if retry.Code != http.StatusConflict {
		t.Errorf("retry status = %d, want 409", retry.Code)
	}

	del := do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+id, nil), "user-1")
	if del.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", del.Code)
	}
	gone := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil), "user-1")
	if gone.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", gone.Code)
	}
}

func TestBalanceAndSession(t *testing.T) {
	r, _ := newTestRouter(t, 7)

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil), "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
	var body struct {
		Tokens int `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if body.Tokens != 7 {
		t.Errorf("tokens = %d, want 7", body.Tokens)
	}

	health := do(r, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	if !bytes.Contains(health.Body.Bytes(), []byte(`"sessions":1`)) {
		t.Errorf("health = %s, want one session", health.Body.String())
	}

	end := do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil), "user-1")
	if end.Code != http.StatusNoContent {
		t.Errorf("end status = %d", end.Code)
	}
	health = do(r, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	if !bytes.Contains(health.Body.Bytes(), []byte(`"sessions":0`)) {
		t.Errorf("health = %s, want no sessions", health.Body.String())
	}
}

func TestWorkflowCallback(t *testing.T) {
	tests := []struct {
		name   string
		record string
		secret string
		body   string
		want   int
	}{
		{name: "wrong secret", record: "rec-1", secret: "nope", body: `{"metadata":{"processing_started":true}}`, want: http.StatusUnauthorized},
		{name: "missing metadata", record: "rec-1", secret: testSecret, body: `{}`, want: http.StatusBadRequest},
		{name: "empty metadata", record: "rec-1", secret: testSecret, body: `{"metadata":{}}`, want: http.StatusBadRequest},
		{name: "unknown record", record: "missing", secret: testSecret, body: `{"metadata":{"status":"processing"}}`, want: http.StatusNotFound},
		{name: "applied", record: "rec-1", secret: testSecret, body: `{"metadata":{"processing_completed":true}}`, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, 1)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/workflow/records/"+tt.record, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Webhook-Secret", tt.secret)
			w := do(r, req, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, 1)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := do(r, req, "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = do(r, req, "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow origin for foreign site = %q, want empty", got)
	}
}

// streamRecorder adds the CloseNotifier that gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEventStreamStartsWithSnapshot(t *testing.T) {
	r, _ := newTestRouter(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	req.Header.Set(userHeader, "user-1")
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.HasPrefix(body, "event:snapshot") {
		t.Fatalf("stream = %q, want snapshot first", body)
	}
	if !strings.Contains(body, "event:balance") {
		t.Errorf("stream = %q, want balance event", body)
	}
}

func TestHistoryRoutes(t *testing.T) {
	r, _ := newTestRouter(t, 1)

	list := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5", nil), "user-1")
	if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), `"rec-old"`) {
		t.Errorf("history = %d %s", list.Code, list.Body.String())
	}

	bad := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=lots", nil), "user-1")
	if bad.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", bad.Code)
	}

	orig := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/history/rec-old/original", nil), "user-1")
	if orig.Code != http.StatusOK || orig.Body.String() != "original bytes" {
		t.Errorf("original = %d %q", orig.Code, orig.Body.String())
	}
	if ct := orig.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("original content type = %q", ct)
	}

	foreign := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/history/rec-old/original", nil), "user-2")
	if foreign.Code != http.StatusNotFound {
		t.Errorf("foreign original status = %d, want 404", foreign.Code)
	}
}
