package studio

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemkit/server/internal/shared/response"
)

func newTestRouter(t *testing.T, service *Service, manager *Manager) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(service, manager).RegisterRoutes(r.Group("/api"))
	return r
}

func multipartBody(t *testing.T, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, names := range files {
		for _, name := range names {
			fw, err := w.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = fw.Write([]byte("image-bytes"))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestUploadRejectsMissingFile(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "No file provided", env.Error)
}

func TestGenerateValidation(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing prompt", `{"urls":["https://cdn.test/a.jpg"]}`},
		{"blank prompt", `{"prompt":"  ","urls":["https://cdn.test/a.jpg"]}`},
		{"missing urls", `{"prompt":"gold ring"}`},
		{"empty urls", `{"prompt":"gold ring","urls":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, decodeEnvelope(t, rec).Success)
		})
	}
}

func TestGenerateAcceptsWireFormat(t *testing.T) {
	svc, _, model := newTestService(t)
	r := newTestRouter(t, svc, nil)

	body := `{"prompt":"gold ring","urls":["https://unreachable.invalid/a.jpg"],"references":["https://unreachable.invalid/b.jpg"],"type":"studio"}`
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	processed, _ := data["processedImage"].(string)
	assert.True(t, strings.HasPrefix(processed, testPublicBase+"/processed/studio/"), "got %s", processed)
	assert.Equal(t, "studio", data["type"])

	require.Len(t, model.bodies, 1, "the request body shape must reach the model")
	assert.Contains(t, model.bodies[0], "gold ring")
}

func TestCreateRunRequiresImages(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})
	r := newTestRouter(t, nil, m)

	body, contentType := multipartBody(t, map[string][]string{
		"references": {"ref.png"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunEndpointsRoundTrip(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})
	r := newTestRouter(t, nil, m)

	body, contentType := multipartBody(t, map[string][]string{
		"images":     {"ring.jpg", "necklace.jpg"},
		"references": {"mood.png"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	var created Run
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotNil(t, created.Progress)
	assert.Equal(t, TotalSteps(2), created.Progress.Total)

	// Poll until the run settles.
	var fetched Run
	require.Eventually(t, func() bool {
		getRec := httptest.NewRecorder()
		r.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID.String(), nil))
		if getRec.Code != http.StatusOK {
			return false
		}

		var env response.Envelope
		if err := json.Unmarshal(getRec.Body.Bytes(), &env); err != nil {
			return false
		}
		raw, err := json.Marshal(env.Data)
		if err != nil || json.Unmarshal(raw, &fetched) != nil {
			return false
		}
		return fetched.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, RunStatusCompleted, fetched.Status)
	assert.Len(t, fetched.Aggregate.BackgroundAssets, 5)
	assert.Len(t, fetched.Aggregate.ObjectResults, 2)

	// Export the finished kit.
	expRec := httptest.NewRecorder()
	r.ServeHTTP(expRec, httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID.String()+"/export", nil))
	require.Equal(t, http.StatusOK, expRec.Code)
	assert.Contains(t, expRec.Body.String(), "Jewelry asset kit")
}

func TestGetRunValidation(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})
	r := newTestRouter(t, nil, m)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/00000000-0000-0000-0000-000000000001", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}
