package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedrank/application/commands/bus"
	commandhandlers "feedrank/application/commands/handlers"
	querybus "feedrank/application/queries/bus"
	queryhandlers "feedrank/application/queries/handlers"
	"feedrank/application/services"
	"feedrank/domain/config"
	"feedrank/domain/core/valueobjects"
	"feedrank/domain/ranking"
	"feedrank/infrastructure/persistence/memory"
	"feedrank/infrastructure/seed"
	"feedrank/pkg/auth"
)

const testSecret = "router-test-secret"

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	store := memory.NewStore()
	engine := services.NewFeedEngine(
		store.Algorithms(), store.Preferences(), store.Ratings(), store.Revisions(),
		nil, nil, config.DefaultRankingConfig(), logger,
	)
	official, err := seed.OfficialAlgorithms()
	require.NoError(t, err)
	require.NoError(t, engine.SeedOfficialAlgorithms(ctx, official))

	content := memory.NewContentStore()
	author := valueobjects.AuthorProfile{ID: "author-1", DisplayName: "Author"}
	content.SeedPost("post-1", "fresh post", author, time.Now(), time.Hour)
	content.SeedPost("post-2", "older post", author, time.Now(), 5*time.Hour)

	generator := services.NewFeedGenerator(
		engine, ranking.NewRegistry(true), content, seed.MustFallbackFeed(),
		nil, nil, nil, config.DefaultRankingConfig(), time.Second, logger,
	)

	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	require.NoError(t, commandhandlers.NewAlgorithmCommandHandler(engine, logger).Register(commandBus))

	queryBus := querybus.NewQueryBus()
	require.NoError(t, queryhandlers.NewAlgorithmQueryHandler(engine, generator, logger).Register(queryBus))

	validator, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: testSecret, Audience: "authenticated"})
	require.NoError(t, err)

	return &testServer{handler: NewRouter(commandBus, queryBus, validator, opts, logger).Setup()}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.SignToken(testSecret, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func customAlgorithm(slug string) map[string]interface{} {
	return map[string]interface{}{
		"name":          "Popular Go",
		"slug":          slug,
		"description":   "popular posts",
		"category_slug": "custom",
		"is_public":     true,
		"weight_config": map[string]float64{"popularity": 0.6, "time_recency": 0.4},
	}
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v2", rec.Header().Get("X-API-Version"))
}

func TestRouter_Readiness(t *testing.T) {
	srv := newTestServer(t, RouterOptions{
		ReadinessChecks: map[string]ReadinessCheck{
			"cache": func(context.Context) error { return errors.New("connection refused") },
			"store": func(context.Context) error { return nil },
		},
		ReadinessStats: map[string]StatsReporter{
			"audit": func() map[string]interface{} { return map[string]interface{}{"dropped": 3} },
		},
	})

	rec := srv.do(t, http.MethodGet, "/ready", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string                            `json:"status"`
		Checks map[string]string                 `json:"checks"`
		Stats  map[string]map[string]interface{} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "connection refused", body.Checks["cache"])
	assert.Equal(t, "ok", body.Checks["store"])
	assert.Equal(t, float64(3), body.Stats["audit"]["dropped"])
}

func TestRouter_V1Redirect(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/api/v1/feed?limit=5", "", nil)

	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/api/v2/feed?limit=5", rec.Header().Get("Location"))
}

func TestRouter_AnonymousFeed(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/api/v2/feed?limit=10&explain=true", "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var feed services.FeedResponse
	decodeData(t, rec, &feed)
	assert.Equal(t, ranking.SlugChronological, feed.Algorithm.Slug)
	assert.NotEmpty(t, feed.Posts)
}

func TestRouter_FeedRejectsMalformedPaging(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/api/v2/feed?limit=abc", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Authentication(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{name: "write without token", method: http.MethodPost, path: "/api/v2/algorithms", wantStatus: http.StatusUnauthorized},
		{name: "installed without token", method: http.MethodGet, path: "/api/v2/algorithms/installed", wantStatus: http.StatusUnauthorized},
		{name: "invalid token on anonymous route", method: http.MethodGet, path: "/api/v2/feed", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "catalog is public", method: http.MethodGet, path: "/api/v2/algorithms", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			srv.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRouter_AlgorithmLifecycle(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	// Create
	rec := srv.do(t, http.MethodPost, "/api/v2/algorithms", "author-7", customAlgorithm("popular-go"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID       string `json:"id"`
		Slug     string `json:"slug"`
		AuthorID string `json:"authorId"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, "popular-go", created.Slug)
	assert.Equal(t, "author-7", created.AuthorID)

	// Lookup by slug
	rec = srv.do(t, http.MethodGet, "/api/v2/algorithms/popular-go", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Duplicate slug
	rec = srv.do(t, http.MethodPost, "/api/v2/algorithms", "author-8", customAlgorithm("popular-go"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Install and activate as another user
	rec = srv.do(t, http.MethodPost, "/api/v2/algorithms/"+created.ID+"/install", "reader-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/v2/algorithms/"+created.ID+"/activate", "reader-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var active struct {
		Algorithm struct {
			Slug string `json:"slug"`
		} `json:"algorithm"`
	}
	decodeData(t, rec, &active)
	assert.Equal(t, "popular-go", active.Algorithm.Slug)

	rec = srv.do(t, http.MethodGet, "/api/v2/feed", "reader-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed services.FeedResponse
	decodeData(t, rec, &feed)
	assert.Equal(t, "popular-go", feed.Algorithm.Slug)

	// Rate
	rec = srv.do(t, http.MethodPost, "/api/v2/algorithms/"+created.ID+"/ratings", "reader-1", map[string]interface{}{"rating": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary services.RatingSummary
	decodeData(t, rec, &summary)
	assert.Equal(t, 4.0, summary.AverageRating)
	assert.Equal(t, 1, summary.RatingCount)

	rec = srv.do(t, http.MethodPost, "/api/v2/algorithms/"+created.ID+"/ratings", "reader-1", map[string]interface{}{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Only the author may update or delete
	update := customAlgorithm("popular-go")
	update["change_notes"] = "tweak"
	rec = srv.do(t, http.MethodPut, "/api/v2/algorithms/"+created.ID, "reader-1", update)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/v2/algorithms/"+created.ID, "author-7", update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v2/algorithms/"+created.ID+"/revisions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Revisions []struct {
			Version string `json:"version"`
			Changes struct {
				ToVersion string `json:"toVersion"`
			} `json:"changes"`
		} `json:"revisions"`
	}
	decodeData(t, rec, &history)
	require.Len(t, history.Revisions, 1)
	assert.Equal(t, "1.0.0", history.Revisions[0].Version)
	assert.Equal(t, "1.0.1", history.Revisions[0].Changes.ToVersion)

	rec = srv.do(t, http.MethodDelete, "/api/v2/algorithms/"+created.ID, "reader-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v2/algorithms/"+created.ID, "author-7", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// The reader falls back to the default algorithm
	rec = srv.do(t, http.MethodGet, "/api/v2/algorithms/active", "reader-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &active)
	assert.Equal(t, ranking.SlugChronological, active.Algorithm.Slug)
}

func TestRouter_OfficialAlgorithmCannotBeDeleted(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodDelete, "/api/v2/algorithms/official-social", "someone", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_ActivateRequiresInstall(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/api/v2/algorithms/official-quality/activate", "reader-2", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALGORITHM_NOT_INSTALLED", decodeError(t, rec).Code)
}

func TestRouter_RejectsUnknownBodyFields(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	body := customAlgorithm("extra-fields")
	body["install_count"] = 1000

	rec := srv.do(t, http.MethodPost, "/api/v2/algorithms", "author-1", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	srv := newTestServer(t, RouterOptions{
		RateLimiter:        auth.NewSlidingWindowLimiter(1, time.Minute),
		RateLimitPerMinute: 1,
	})

	first := srv.do(t, http.MethodGet, "/api/v2/algorithms", "reader-3", nil)
	second := srv.do(t, http.MethodGet, "/api/v2/algorithms", "reader-3", nil)
	other := srv.do(t, http.MethodGet, "/api/v2/algorithms", "reader-4", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, other.Code)
}
