package common

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOffsetParams(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    OffsetParams
		wantErr string
	}{
		{name: "absent", query: "", want: OffsetParams{}},
		{name: "both", query: "limit=20&offset=40", want: OffsetParams{Limit: 20, Offset: 40}},
		{name: "negative offset", query: "offset=-1", wantErr: "offset must be a non-negative integer"},
		{name: "not a number", query: "limit=ten", wantErr: "limit must be a non-negative integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/feed?"+tt.query, nil)

			got, err := ExtractOffsetParams(r)

			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPaginationInfo(t *testing.T) {
	full := BuildPaginationInfo(OffsetParams{Limit: 10, Offset: 20}, 10)
	partial := BuildPaginationInfo(OffsetParams{Limit: 10, Offset: 20}, 4)
	unbounded := BuildPaginationInfo(OffsetParams{}, 4)

	assert.True(t, full.HasMore)
	assert.False(t, partial.HasMore)
	assert.False(t, unbounded.HasMore)
	assert.Equal(t, 20, full.Offset)
}

func TestQueryBool(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/feed?explain=true&official=maybe", nil)

	assert.True(t, QueryBool(r, "explain"))
	assert.False(t, QueryBool(r, "official"))
	assert.False(t, QueryBool(r, "missing"))
}

func TestUserContext(t *testing.T) {
	ctx := WithUserEmail(WithUserID(context.Background(), "user-1"), "a@example.com")

	userID, ok := GetUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)

	email := GetUserEmail(ctx)
	assert.Equal(t, "a@example.com", email)

	_, ok = GetUserID(WithUserID(context.Background(), ""))
	assert.False(t, ok)
}

func TestRespondWithMeta(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/feed", nil)
	r = r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, "req-42"))
	w := httptest.NewRecorder()

	RespondWithMeta(w, r, http.StatusOK, []string{"a"}, &MetaInfo{
		Pagination: BuildPaginationInfo(OffsetParams{Limit: 1}, 1),
	})

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
		Meta    MetaInfo `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "req-42", body.Meta.RequestID)
	assert.True(t, body.Meta.Pagination.HasMore)
}

func TestParseJSONBody(t *testing.T) {
	type payload struct {
		Rating int `json:"rating"`
	}

	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, err error)
	}{
		{name: "valid", body: `{"rating": 4}`, check: func(t *testing.T, err error) { assert.NoError(t, err) }},
		{name: "empty", body: ``, check: func(t *testing.T, err error) { assert.ErrorIs(t, err, io.EOF) }},
		{name: "unknown field", body: `{"rating": 4, "admin": true}`, check: func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "unknown field")
		}},
		{name: "too large", body: `{"rating":` + strings.Repeat(" ", 64) + `4}`, check: func(t *testing.T, err error) {
			var maxErr *http.MaxBytesError
			assert.True(t, errors.As(err, &maxErr))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/ratings", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			var p payload

			err := ParseJSONBody(w, r, &p, 32)

			tt.check(t, err)
		})
	}
}
