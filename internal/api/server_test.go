package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/seanankenbruck/viewpoint-search/internal/auth"
	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/schema"
	"github.com/seanankenbruck/viewpoint-search/internal/search"
	"github.com/seanankenbruck/viewpoint-search/internal/store"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubExecutor struct {
	mu      sync.Mutex
	err     error
	queries []string
}

func (e *stubExecutor) Execute(ctx context.Context, q *query.ValidatedQuery, maxRows int) (*store.ResultSet, error) {
	e.mu.Lock()
	e.queries = append(e.queries, q.Text())
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &store.ResultSet{Candidates: []catalog.Candidate{
		{ID: 1, Name: "Mount Fuji", Category: "mountain", Country: "Japan", Popularity: 0.9},
		{ID: 2, Name: "Lake Kawaguchi", Category: "lake", Country: "Japan", Popularity: 0.6},
	}}, nil
}

type testServer struct {
	router   *gin.Engine
	executor *stubExecutor
}

func newTestServer(t *testing.T, authenticator *auth.Authenticator) *testServer {
	t.Helper()

	gate := query.NewGate(schema.Default())
	fallback, err := query.NewFallbackBuilder(gate)
	require.NoError(t, err)

	logger := observability.NewLogger("api-test").WithOutput(io.Discard)
	executor := &stubExecutor{}

	svc, err := search.NewService(search.Dependencies{
		Vocabulary: vocabulary.NewRegistry(vocabulary.Default()),
		Schema:     schema.Default(),
		Gate:       gate,
		Fallback:   fallback,
		Executor:   executor,
		Logger:     logger,
	}, search.Config{Mode: search.ModeFallbackOnly, MaxAttempts: 1})
	require.NoError(t, err)

	health := observability.NewHealthChecker("viewpoint-search", "test")
	health.Register("vocabulary", observability.VocabularyHealthCheck(func() (string, int) {
		v := svc.Vocabulary()
		return v.Version(), len(v.Tags())
	}))

	server, err := NewServer(Options{
		Search:  svc,
		Auth:    authenticator,
		Limiter: auth.NewRateLimiter(0, 0),
		Health:  health,
		Logger:  logger,
		MaxTopK: 50,
	})
	require.NoError(t, err)

	return &testServer{router: server.Router(), executor: executor}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/search",
		`{"intent":{"query_tags":["lake"],"season_hint":"autumn"},"top_k":1}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp search.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, "fallback", string(resp.Path))
	assert.Equal(t, vocabulary.SeasonAutumn, resp.Intent.SeasonHint)
	assert.Equal(t, schema.Default().Version(), resp.SchemaVersion)
	assert.Len(t, ts.executor.queries, 1)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "attempts", "executed statements stay in the audit log")
	assert.NotContains(t, w.Body.String(), "viewpoint_entity")

	t.Run("request id header becomes the response request id", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/search", `{"intent":{}}`,
			map[string]string{observability.RequestIDHeader: "req-123"})
		require.Equal(t, http.StatusOK, w.Code)

		var resp search.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "req-123", resp.RequestID)
	})
}

func TestSearchEndpointRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"intent":`},
		{"missing intent", `{"top_k":5}`},
		{"negative top_k", `{"intent":{},"top_k":-1}`},
		{"top_k above server maximum", `{"intent":{},"top_k":51}`},
		{"wrong field type", `{"intent":{"query_tags":"lake"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/search", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(apperrors.ErrCodeInvalidInput), errorCode(t, w))
		})
	}

	assert.Empty(t, ts.executor.queries)
}

func TestSearchEndpointDatastoreDown(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.executor.err = apperrors.NewDatastoreUnreachableError(assert.AnError)

	w := ts.do(t, http.MethodPost, "/api/v1/search", `{"intent":{}}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeDatastoreUnreachable), errorCode(t, w))
}

func TestValidateEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantAccepted bool
		wantReason   string
	}{
		{
			name:         "accepted statement",
			body:         `{"sql":"SELECT viewpoint_id, name_primary FROM viewpoint_entity WHERE country = $1 AND popularity > $2","params":["Japan",0.5]}`,
			wantStatus:   http.StatusOK,
			wantAccepted: true,
		},
		{
			name:       "two statements",
			body:       `{"sql":"SELECT 1; SELECT 2","params":[]}`,
			wantStatus: http.StatusOK,
			wantReason: string(query.ReasonMultiStatement),
		},
		{
			name:       "write statement",
			body:       `{"sql":"DELETE FROM viewpoint_entity","params":[]}`,
			wantStatus: http.StatusOK,
			wantReason: string(query.ReasonForbiddenKeyword),
		},
		{
			name:       "missing sql",
			body:       `{"params":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported parameter",
			body:       `{"sql":"SELECT e.name_primary FROM viewpoint_entity AS e WHERE e.country = $1","params":[{"a":1}]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/validate", tt.body, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp ValidateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantAccepted, resp.Accepted)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.Equal(t, schema.Default().Version(), resp.SchemaVersion)
		})
	}

	assert.Empty(t, ts.executor.queries, "validation must never execute")
}

func TestVocabularyAndHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/v1/vocabulary", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var vocab struct {
		Version    string   `json:"version"`
		Categories []string `json:"categories"`
		Mode       string   `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vocab))
	assert.Equal(t, vocabulary.Default().Version(), vocab.Version)
	assert.Contains(t, vocab.Categories, "mountain")
	assert.Equal(t, string(search.ModeFallbackOnly), vocab.Mode)

	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vocabulary")

	w = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "viewpoint_search_http_requests_total")
}

func TestAuthenticatedRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("vps_test_key"), bcrypt.MinCost)
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Enabled:   true,
		JWTSecret: "api-test-secret-that-is-long-enough",
		APIKeys:   []string{"tester:" + string(hash)},
	})
	require.NoError(t, err)

	ts := newTestServer(t, authenticator)

	w := ts.do(t, http.MethodPost, "/api/v1/search", `{"intent":{}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/search", `{"intent":{}}`,
		map[string]string{"X-API-Key": "vps_test_key"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"X-API-Key": "vps_test_key"})
	require.Equal(t, http.StatusOK, w.Code)
	var token auth.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))

	w = ts.do(t, http.MethodGet, "/api/v1/vocabulary", "",
		map[string]string{"Authorization": "Bearer " + token.Token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")
}

func TestGetErrorStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewInvalidInputError("x", "bad"), http.StatusBadRequest},
		{apperrors.NewNotAuthenticatedError(), http.StatusUnauthorized},
		{apperrors.NewRateLimitedError(60), http.StatusTooManyRequests},
		{apperrors.NewDatastoreUnreachableError(assert.AnError), http.StatusServiceUnavailable},
		{apperrors.NewFallbackExhaustedError(assert.AnError), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, statusClientClosedRequest},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getErrorStatusCode(tt.err), "%v", tt.err)
	}
}
