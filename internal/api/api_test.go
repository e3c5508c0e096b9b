package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/domain"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/segregation"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/service"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, origins ...string) (*gin.Engine, *service.SegregationService) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.Put(storage.NewLocator("landing", "in/CDR_20240901.ber"), []byte("x"))

	svc := service.NewSegregationService(service.Options{
		Store: store,
		Engine: segregation.Config{
			SourcePrefix:       "s3://landing/in/",
			SegregatedTemplate: "s3://archive/%Y/%m/%d/",
			ErrorPrefix:        "s3://archive/error/",
			MatchPattern:       `CDR_(\d{8})`,
			TimeFormat:         "%Y%m%d",
			PageSize:           10,
			MaxPages:           2,
			Workers:            1,
		},
		Logger: zerolog.Nop(),
	})
	return NewRouter(context.Background(), svc, origins), svc
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","running":false}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRuns_EmptyHistory(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, http.MethodGet, "/api/v1/runs/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/api/v1/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[],"count":0}`, w.Body.String())
}

func TestRuns_TriggerThenList(t *testing.T) {
	router, svc := newTestRouter(t)

	w := serve(router, http.MethodPost, "/api/v1/runs")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Eventually(t, func() bool { return !svc.Running() }, time.Second, 5*time.Millisecond)

	w = serve(router, http.MethodGet, "/api/v1/runs/latest")
	require.Equal(t, http.StatusOK, w.Code)
	var latest domain.SegregationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &latest))
	assert.Equal(t, domain.RunStatusSucceeded, latest.Status)
	assert.Equal(t, 1, latest.Moved)

	w = serve(router, http.MethodGet, "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Runs  []domain.SegregationRun `json:"runs"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRuns_BadLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, limit := range []string{"abc", "0", "-3"} {
		w := serve(router, http.MethodGet, "/api/v1/runs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestCORS_AllowedOrigins(t *testing.T) {
	router, _ := newTestRouter(t, "https://ops.example.com, https://admin.example.com")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.com, https://b.com", " ", "*"})
	assert.True(t, all)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, origins)
}
