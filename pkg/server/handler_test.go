package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-loop/pkg/research"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, nil)
	r := gin.New()
	NewHandler(svc, nil, nil).RegisterRoutes(r)
	return r, svc
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestResearchRoutes(t *testing.T) {
	r, svc := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/research", `{"query":"capital of france","iterations":1,"questions_per_iteration":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "capital of france", job.Query)
	svc.Wait()

	w = doRequest(r, http.MethodGet, "/api/research/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, StatusCompleted, job.Status)

	w = doRequest(r, http.MethodGet, "/api/research", "")
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 1)

	w = doRequest(r, http.MethodGet, "/api/research/"+job.ID.String()+"/findings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var findings []research.Finding
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &findings))
	assert.Len(t, findings, 2)

	w = doRequest(r, http.MethodGet, "/api/research/"+job.ID.String()+"/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []LogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.NotEmpty(t, logs)
}

func TestResearchRouteErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "malformed body", method: http.MethodPost, path: "/api/research", body: `{`, want: http.StatusBadRequest},
		{name: "missing query", method: http.MethodPost, path: "/api/research", body: `{"query":""}`, want: http.StatusBadRequest},
		{name: "bad accumulation", method: http.MethodPost, path: "/api/research", body: `{"query":"q","knowledge_accumulation":"ALWAYS"}`, want: http.StatusBadRequest},
		{name: "invalid id", method: http.MethodGet, path: "/api/research/not-a-uuid", want: http.StatusBadRequest},
		{name: "unknown job", method: http.MethodGet, path: "/api/research/" + uuid.NewString(), want: http.StatusNotFound},
		{name: "unknown job logs", method: http.MethodGet, path: "/api/research/" + uuid.NewString() + "/logs", want: http.StatusNotFound},
		{name: "unknown job findings", method: http.MethodGet, path: "/api/research/" + uuid.NewString() + "/findings", want: http.StatusNotFound},
		{name: "chat disabled", method: http.MethodGet, path: "/api/chat/conversations", want: http.StatusNotFound},
		{name: "mcp disabled", method: http.MethodPost, path: "/mcp", body: `{}`, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestListJobsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/research", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
