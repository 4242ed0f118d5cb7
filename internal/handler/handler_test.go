package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversations-api/internal/middleware"
	"github.com/capitalize-ai/conversations-api/internal/model"
	"github.com/capitalize-ai/conversations-api/internal/service"
	"github.com/capitalize-ai/conversations-api/internal/store"
	"github.com/capitalize-ai/conversations-api/pkg/logger"
)

var defaultOwner = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type brokenStore struct {
	store.Store
}

func (brokenStore) List(context.Context, uuid.UUID, store.ListParams) ([]*model.Conversation, int, error) {
	return nil, 0, errors.New("connection reset by peer")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

type fakeBus struct {
	connected bool
}

func (b fakeBus) IsConnected() bool                 { return b.connected }
func (b fakeBus) RecordStats(context.Context) error { return nil }

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, st store.Store, events EventBus) *testServer {
	t.Helper()
	log := logger.NewNop()
	clock := &testClock{now: time.Date(2026, 1, 31, 13, 0, 0, 0, time.UTC)}
	if st == nil {
		st = store.NewMemoryStore(clock.Now)
	}

	svc := service.NewConversationService(st, log, service.WithClock(clock.Now))
	router := NewRouter(RouterConfig{
		APIPrefix:         "/api/v1",
		CORSOrigins:       []string{"*"},
		DefaultOwnerID:    defaultOwner,
		RateLimitRequests: 10000,
		RateLimitWindow:   time.Minute,
	}, NewConversationHandler(svc, log), NewHealthHandler(st, events, log), log)

	return &testServer{t: t, handler: router}
}

func (s *testServer) do(method, path, body string, owner uuid.UUID) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if owner != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, owner.String())
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[model.ErrorResponse](t, rec).Error.Code
}

func TestTripPlanScenario(t *testing.T) {
	s := newTestServer(t, nil, nil)
	owner := uuid.New()

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{"title":" Trip Plan "}`, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decode[model.Conversation](t, rec)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Trip Plan", *conv.Title)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Equal(t, owner, conv.OwnerID)
	path := "/api/v1/conversations/" + conv.ID.String()

	rec = s.do(http.MethodPatch, path, `{"status":"archived"}`, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conv = decode[model.Conversation](t, rec)
	assert.Equal(t, model.StatusArchived, conv.Status)
	assert.NotNil(t, conv.ArchivedAt)

	rec = s.do(http.MethodPatch, path, `{"status":"active"}`, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	conv = decode[model.Conversation](t, rec)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Nil(t, conv.ArchivedAt)

	rec = s.do(http.MethodDelete, path, "", owner)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.do(http.MethodGet, path, "", owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.CodeNotFound, errorCode(t, rec))

	rec = s.do(http.MethodPatch, path, `{"title":"again"}`, owner)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeConflict, errorCode(t, rec))

	rec = s.do(http.MethodDelete, path, "", owner)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDefaultOwner(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{}`, uuid.Nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[model.Conversation](t, rec)
	assert.Equal(t, defaultOwner, conv.OwnerID)
	assert.Nil(t, conv.Title)
}

func TestUpdate_PartialAndNull(t *testing.T) {
	s := newTestServer(t, nil, nil)
	owner := uuid.New()

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{"title":"Notes","metadata":{"pinned":true}}`, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[model.Conversation](t, rec)
	path := "/api/v1/conversations/" + conv.ID.String()

	rec = s.do(http.MethodPatch, path, `{"metadata":{"pinned":false}}`, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	conv = decode[model.Conversation](t, rec)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Notes", *conv.Title)
	assert.Equal(t, false, conv.Metadata["pinned"])

	rec = s.do(http.MethodPut, path, `{"title":null,"metadata":null}`, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	conv = decode[model.Conversation](t, rec)
	assert.Nil(t, conv.Title)
	assert.Nil(t, conv.Metadata)
	assert.Equal(t, model.StatusActive, conv.Status)
}

func TestUpdate_Validation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	owner := uuid.New()

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{}`, owner)
	conv := decode[model.Conversation](t, rec)
	path := "/api/v1/conversations/" + conv.ID.String()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown status", `{"status":"paused"}`, "status"},
		{"long title", fmt.Sprintf(`{"title":%q}`, strings.Repeat("a", 256)), "title"},
		{"wrong type", `{"metadata":"x"}`, "metadata"},
		{"malformed json", `{"title":`, "body"},
		{"missing body", "", "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPatch, path, tt.body, owner)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

			resp := decode[struct {
				Error struct {
					Code    string               `json:"code"`
					Details []service.FieldError `json:"details"`
				} `json:"error"`
			}](t, rec)
			assert.Equal(t, model.CodeValidation, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Details)
			assert.Equal(t, tt.field, resp.Error.Details[0].Field)
		})
	}
}

func TestInvalidConversationID(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/api/v1/conversations/not-a-uuid", "", uuid.New())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, model.CodeValidation, errorCode(t, rec))
}

func TestOwnershipIsolation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	alice, bob := uuid.New(), uuid.New()

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{"title":"secret"}`, alice)
	conv := decode[model.Conversation](t, rec)
	path := "/api/v1/conversations/" + conv.ID.String()

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPatch, `{"title":"mine"}`},
		{http.MethodDelete, ""},
	} {
		rec := s.do(tc.method, path, tc.body, bob)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method)
	}

	rec = s.do(http.MethodGet, "/api/v1/conversations", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListConversationsResponse](t, rec)
	assert.Empty(t, list.Data)
	assert.Equal(t, 1, list.Pagination.TotalPages)
}

func TestList_Pagination(t *testing.T) {
	s := newTestServer(t, nil, nil)
	owner := uuid.New()

	var first uuid.UUID
	for i := 0; i < 45; i++ {
		rec := s.do(http.MethodPost, "/api/v1/conversations", fmt.Sprintf(`{"title":"c%d"}`, i), owner)
		require.Equal(t, http.StatusCreated, rec.Code)
		if i == 0 {
			first = decode[model.Conversation](t, rec).ID
		}
	}

	rec := s.do(http.MethodGet, "/api/v1/conversations", "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListConversationsResponse](t, rec)
	assert.Len(t, list.Data, 20)
	assert.Equal(t, model.Pagination{
		Page: 1, Limit: 20, TotalItems: 45, TotalPages: 3, HasNext: true, HasPrevious: false,
	}, list.Pagination)
	require.NotNil(t, list.Data[0].Title)
	assert.Equal(t, "c44", *list.Data[0].Title)

	rec = s.do(http.MethodGet, "/api/v1/conversations?page=3&limit=20", "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[model.ListConversationsResponse](t, rec)
	assert.Len(t, list.Data, 5)
	assert.False(t, list.Pagination.HasNext)
	assert.True(t, list.Pagination.HasPrevious)
	assert.Equal(t, first, list.Data[4].ID)
}

func TestList_StatusFilter(t *testing.T) {
	s := newTestServer(t, nil, nil)
	owner := uuid.New()

	ids := make([]string, 3)
	for i := range ids {
		rec := s.do(http.MethodPost, "/api/v1/conversations", `{}`, owner)
		ids[i] = decode[model.Conversation](t, rec).ID.String()
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPatch, "/api/v1/conversations/"+ids[0], `{"status":"archived"}`, owner).Code)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/conversations/"+ids[1], "", owner).Code)

	count := func(query string) int {
		rec := s.do(http.MethodGet, "/api/v1/conversations"+query, "", owner)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[model.ListConversationsResponse](t, rec).Pagination.TotalItems
	}

	assert.Equal(t, 2, count(""))
	assert.Equal(t, 1, count("?status=active"))
	assert.Equal(t, 1, count("?status=archived"))
	assert.Equal(t, 1, count("?status=deleted"))
}

func TestList_HugePageIsEmpty(t *testing.T) {
	s := newTestServer(t, nil, nil)
	owner := uuid.New()
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/conversations", `{}`, owner).Code)

	rec := s.do(http.MethodGet, "/api/v1/conversations?page=200000000000000000&limit=50", "", owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[model.ListConversationsResponse](t, rec)
	assert.Empty(t, list.Data)
	assert.Equal(t, 1, list.Pagination.TotalItems)
}

func TestList_InvalidQuery(t *testing.T) {
	s := newTestServer(t, nil, nil)

	for _, query := range []string{"?page=0", "?page=abc", "?limit=0", "?limit=51", "?status=bogus"} {
		rec := s.do(http.MethodGet, "/api/v1/conversations"+query, "", uuid.New())
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, query)
		assert.Equal(t, model.CodeValidation, errorCode(t, rec), query)
	}
}

func TestInternalErrorIsOpaque(t *testing.T) {
	s := newTestServer(t, brokenStore{Store: store.NewMemoryStore(nil)}, nil)

	rec := s.do(http.MethodGet, "/api/v1/conversations", "", uuid.New())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[model.ErrorResponse](t, rec)
	assert.Equal(t, model.CodeInternal, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "connection reset")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/api/v1/nothing", "", uuid.Nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.CodeHTTP, errorCode(t, rec))

	rec = s.do(http.MethodPost, "/api/v1/conversations/"+uuid.NewString(), `{}`, uuid.Nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/health", "", uuid.Nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(http.MethodGet, "/ready", "", uuid.Nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"store":"ok","events":"disabled"}}`, rec.Body.String())
}

func TestReady_NotReady(t *testing.T) {
	t.Run("store down", func(t *testing.T) {
		s := newTestServer(t, brokenStore{Store: store.NewMemoryStore(nil)}, nil)
		rec := s.do(http.MethodGet, "/ready", "", uuid.Nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("events disconnected", func(t *testing.T) {
		s := newTestServer(t, nil, fakeBus{connected: false})
		rec := s.do(http.MethodGet, "/ready", "", uuid.Nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"events":"disconnected"`)
	})

	t.Run("events connected", func(t *testing.T) {
		s := newTestServer(t, nil, fakeBus{connected: true})
		rec := s.do(http.MethodGet, "/ready", "", uuid.Nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
