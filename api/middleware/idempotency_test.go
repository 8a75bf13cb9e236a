package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	pkgredis "github.com/lokrise/checkout/pkg/redis"
)

const codPattern = "/api/v1/checkout/sessions/{sessionId}/cod"

func newIdempotencyStore(t *testing.T) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return pkgredis.NewWithClient(rdb), mr
}

// codRequest builds a COD attempt carrying the chi pattern the router would have matched.
func codRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions/s-1/cod", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{codPattern}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func TestRouteTTL(t *testing.T) {
	sessions := "/api/v1/checkout/sessions/{sessionId}"
	tests := []struct {
		method  string
		pattern string
		want    time.Duration
	}{
		{http.MethodPost, sessions + "/orders", criticalIdempotencyTTL},
		{http.MethodPost, sessions + "/card", criticalIdempotencyTTL},
		{http.MethodPost, sessions + "/upi/verify", criticalIdempotencyTTL},
		{http.MethodPost, sessions + "/barter/submit", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/seller/orders/{orderId}/accept", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/checkout/sessions/", defaultIdempotencyTTL},
		{http.MethodPost, sessions + "/upi", defaultIdempotencyTTL},
		{http.MethodPut, sessions + "/barter/item", defaultIdempotencyTTL},
		{http.MethodGet, sessions, 0},
		{http.MethodPost, "/api/v1/cart/items", 0},
		{http.MethodPost, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.pattern, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.pattern)
			assert.Equal(t, tt.want != 0, ok)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresKey(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	next := &countingHandler{status: http.StatusCreated}

	rec := httptest.NewRecorder()
	Idempotency(store, nil)(next).ServeHTTP(rec, codRequest("", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
	assert.Zero(t, next.calls)
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	next := &countingHandler{status: http.StatusOK}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/sessions/s-1", nil)
	rec := httptest.NewRecorder()
	Idempotency(store, nil)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, next.calls)
	assert.Empty(t, mr.Keys())
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	next := &countingHandler{status: http.StatusAccepted}
	mw := Idempotency(store, nil)(next)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, codRequest("abc", `{}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.InDelta(t, criticalIdempotencyTTL.Seconds(), mr.TTL(keys[0]).Seconds(), 1)

	replayed := httptest.NewRecorder()
	mw.ServeHTTP(replayed, codRequest("abc", `{}`))
	assert.Equal(t, http.StatusAccepted, replayed.Code)
	assert.Equal(t, "application/json", replayed.Header().Get("Content-Type"))
	assert.Equal(t, "true", replayed.Header().Get(replayedHeader))
	assert.Equal(t, `{"ok":true}`, replayed.Body.String())
	assert.Equal(t, 1, next.calls)
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	mw := Idempotency(store, nil)(&countingHandler{status: http.StatusOK})

	mw.ServeHTTP(httptest.NewRecorder(), codRequest("xyz", `{"note":"a"}`))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, codRequest("xyz", `{"note":"b"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsDuplicateWhileInFlight(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	var (
		calls int
		inner = httptest.NewRecorder()
		mw    func(http.Handler) http.Handler
	)
	mw = Idempotency(store, nil)
	var next http.Handler
	next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			mw(next).ServeHTTP(inner, codRequest("dup", `{}`))
		}
		w.WriteHeader(http.StatusOK)
	})

	mw(next).ServeHTTP(httptest.NewRecorder(), codRequest("dup", `{}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	next := &countingHandler{status: http.StatusServiceUnavailable}
	mw := Idempotency(store, nil)(next)

	mw.ServeHTTP(httptest.NewRecorder(), codRequest("retry", `{}`))
	assert.Empty(t, mr.Keys(), "a 5xx must not pin the key")

	next.status = http.StatusOK
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, codRequest("retry", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, next.calls)
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	next := &countingHandler{status: http.StatusOK}
	mw := Idempotency(store, nil)(next)

	for _, user := range []string{"user-a", "user-b"} {
		req := codRequest("shared", `{}`)
		req = req.WithContext(WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, next.calls)
}
