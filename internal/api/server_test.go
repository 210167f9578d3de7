package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"obd-backend/internal/database"
	"obd-backend/internal/ingest"
	"obd-backend/internal/models"
)

const userID = "0b6c3f0e-8d0e-4b55-9a51-0c8f8d3e2a11"

type fakeChat struct {
	answer string
	err    error
	calls  int
}

func (f *fakeChat) Chat(_ context.Context, uid, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if uid != userID {
		return "", database.ErrInvalidUserID
	}
	return f.answer, nil
}

type fakeUpload struct {
	body []byte
	err  error
}

func (f *fakeUpload) Upload(_ context.Context, r io.Reader) (*ingest.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.body, _ = io.ReadAll(r)
	return &ingest.Result{
		Rows:      make([]models.UploadRow, 4),
		Records:   5,
		Dropped:   1,
		Telemetry: make([]models.TelemetryRow, 3),
		Unparsed:  1,
	}, nil
}

func (f *fakeUpload) UserID() string { return "11111111-1111-1111-1111-111111111111" }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(chat Chatter, upload Uploader, store Pinger) http.Handler {
	return NewServer(chat, upload, Options{Store: store}, zap.NewNop()).Handler([]string{"*"})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChat(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		key    string
		want   string
	}{
		{"ok", `{"message":"any faults?","user_id":"` + userID + `"}`, nil, 200, "response", "All clear."},
		{"missing message", `{"user_id":"` + userID + `"}`, nil, 400, "detail", "Both 'message' and 'user_id' are required."},
		{"missing user", `{"message":"hi"}`, nil, 400, "detail", "Both 'message' and 'user_id' are required."},
		{"bad user", `{"message":"hi","user_id":"x' OR 1=1"}`, nil, 400, "detail", "'user_id' must be a UUID."},
		{"invalid json", `{`, nil, 400, "detail", "invalid JSON"},
		{"service failure", `{"message":"hi","user_id":"` + userID + `"}`, errors.New("boom"), 200, "response", "❌ Failed to generate response: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeChat{answer: "All clear.", err: tt.err}, &fakeUpload{}, nil)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)[tt.key])
		})
	}
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadCSV(t *testing.T) {
	upload := &fakeUpload{}
	h := newTestServer(&fakeChat{}, upload, nil)

	body, ct := multipartBody(t, "export.CSV", "a,b\n1,2\n")
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "✅ Uploaded 5 records with user_id 11111111-1111-1111-1111-111111111111", out["message"])
	assert.EqualValues(t, 4, out["inserted"])
	assert.EqualValues(t, 1, out["dropped"])
	assert.EqualValues(t, 3, out["diagnosable"])
	assert.NotContains(t, out, "unmapped_channels")
	assert.Equal(t, "a,b\n1,2\n", string(upload.body))
}

func TestUploadRejectsNonCSV(t *testing.T) {
	upload := &fakeUpload{}
	h := newTestServer(&fakeChat{}, upload, nil)

	body, ct := multipartBody(t, "export.xlsx", "data")
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only CSV files are allowed.", decode(t, rec)["detail"])
	assert.Nil(t, upload.body)
}

func TestUploadStoreFailure(t *testing.T) {
	h := newTestServer(&fakeChat{}, &fakeUpload{err: errors.New("clickhouse down")}, nil)

	body, ct := multipartBody(t, "export.csv", "a\n")
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Upload failed: clickhouse down", decode(t, rec)["detail"])
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeChat{}, &fakeUpload{}, fakePinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	newTestServer(&fakeChat{}, &fakeUpload{}, fakePinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeChat{}, &fakeUpload{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	newTestServer(&fakeChat{}, &fakeUpload{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSExplicitOrigins(t *testing.T) {
	h := NewServer(&fakeChat{}, &fakeUpload{}, Options{}, zap.NewNop()).Handler([]string{"https://dash.example.com"})

	for origin, want := range map[string]string{
		"https://dash.example.com": "https://dash.example.com",
		"https://evil.example.com": "",
	} {
		req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}
