package dataset

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, dir string, opts HandlerOptions) *Handler {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return NewHandler(NewStore(dir, false), opts)
}

func get(h http.Handler, set string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/data?set="+url.QueryEscape(set), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func requireNoCacheHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	require.Equal(t, "0", rec.Header().Get("Expires"))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHandlerServesFile(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "alpha", `{"x":1}`)
	metrics := NewMetrics()
	h := newTestHandler(t, dir, HandlerOptions{Metrics: metrics})

	rec := get(h, "alpha")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"x":1}`, rec.Body.String())
	requireNoCacheHeaders(t, rec)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(transportHTTP, resultHit)))
	require.Equal(t, 7.0, testutil.ToFloat64(metrics.responseBytes.WithLabelValues(transportHTTP)))
}

func TestHandlerServesBytesVerbatim(t *testing.T) {
	dir := t.TempDir()
	payload := "{\"eNow\": 412,\n \"note\": \"<b>\"}\n"
	writeSet(t, dir, "data_0_0", payload)

	rec := get(newTestHandler(t, dir, HandlerOptions{}), "data_0_0")
	require.Equal(t, payload, rec.Body.String())
}

func TestHandlerMissingFile(t *testing.T) {
	dir := t.TempDir()
	h := newTestHandler(t, dir, HandlerOptions{})

	rec := get(h, "missing")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "The file "+dir+"/missing.json does not exist", rec.Body.String())
	requireNoCacheHeaders(t, rec)
}

func TestHandlerMissingStatusNotFound(t *testing.T) {
	dir := t.TempDir()
	h := newTestHandler(t, dir, HandlerOptions{MissingStatus: http.StatusNotFound})

	rec := get(h, "missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "The file "+dir+"/missing.json does not exist", rec.Body.String())
	requireNoCacheHeaders(t, rec)
}

func TestHandlerEscapesMarkup(t *testing.T) {
	dir := t.TempDir()
	rec := get(newTestHandler(t, dir, HandlerOptions{}), "<script>alert(1)</script>")

	body := rec.Body.String()
	require.NotContains(t, body, "<script>")
	require.Contains(t, body, "&lt;script&gt;")
	requireNoCacheHeaders(t, rec)
}

func TestHandlerMissingParameter(t *testing.T) {
	dir := t.TempDir()
	h := newTestHandler(t, dir, HandlerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "The file "+dir+"/.json does not exist", rec.Body.String())
}

func TestHandlerStrictRejects(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(NewStore(dir, true), HandlerOptions{Logger: log.New(io.Discard)})

	rec := get(h, "../../etc/passwd")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), ErrInvalidSet.Error()))
	requireNoCacheHeaders(t, rec)
}

func failingStore(dir string) *Store {
	store := NewStore(dir, false)
	store.readFile = func(path string) ([]byte, error) {
		return nil, &os.PathError{Op: "read", Path: path, Err: syscall.EIO}
	}
	return store
}

func TestHandlerReadError(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "alpha", `{}`)

	metrics := NewMetrics()
	h := NewHandler(failingStore(dir), HandlerOptions{Metrics: metrics, Logger: log.New(io.Discard)})
	rec := get(h, "alpha")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, rec.Body.String())
	requireNoCacheHeaders(t, rec)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(transportHTTP, resultError)))
}

func TestHandlerStrictEscapesRejectedName(t *testing.T) {
	h := NewHandler(NewStore(t.TempDir(), true), HandlerOptions{Logger: log.New(io.Discard)})

	for _, set := range []string{"<script>/x", "<b>&..", `a\<i>`} {
		rec := get(h, set)
		require.Equal(t, http.StatusBadRequest, rec.Code, set)
		body := rec.Body.String()
		require.NotContains(t, body, "<", set)
		require.NotContains(t, body, ">", set)
		require.Contains(t, body, "&lt;", set)
	}
}

func TestHandlerRepeatedParameterUsesLast(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "beta", `{"b":2}`)
	h := newTestHandler(t, dir, HandlerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/data?set=alpha&set=beta", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"b":2}`, rec.Body.String())
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, t.TempDir(), HandlerOptions{})

	req := httptest.NewRequest(http.MethodPost, "/data?set=alpha", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
}

func TestHandlerConcurrent(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "alpha", `{"x":1}`)
	server := httptest.NewServer(newTestHandler(t, dir, HandlerOptions{Metrics: NewMetrics()}))
	defer server.Close()

	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			resp, err := http.Get(server.URL + "/data?set=alpha")
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err == nil && string(body) != `{"x":1}` {
				err = io.ErrUnexpectedEOF
			}
			errs <- err
		}()
	}
	for i := 0; i < 16; i++ {
		require.NoError(t, <-errs)
	}
}
