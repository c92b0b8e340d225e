package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"perspectives-watch/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInvoker struct {
	mutex   sync.Mutex
	events  []any
	ids     []string
	err     error
	running int
	overlap bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, event any) (pipeline.Result, error) {
	f.mutex.Lock()
	f.running++
	if f.running > 1 {
		f.overlap = true
	}
	f.events = append(f.events, event)
	f.ids = append(f.ids, pipeline.InvocationId(ctx))
	f.mutex.Unlock()

	time.Sleep(time.Millisecond * 10)

	f.mutex.Lock()
	f.running--
	f.mutex.Unlock()

	if f.err != nil {
		return pipeline.Result{StatusCode: http.StatusInternalServerError, Body: f.err.Error()}, f.err
	}
	return pipeline.Result{StatusCode: http.StatusOK, Body: "OK"}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.NoError(t, err)
	return body
}

func TestInvoke(t *testing.T) {
	invoker := &fakeInvoker{}
	router := NewServer(invoker).Router()

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"source": "timer"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, float64(200), body["statusCode"])
	require.Equal(t, "OK", body["body"])
	require.Equal(t, "req-1", body["invocation_id"])

	require.Equal(t, []any{map[string]any{"source": "timer"}}, invoker.events)
	require.Equal(t, []string{"req-1"}, invoker.ids)
}

func TestInvokeWithoutBody(t *testing.T) {
	invoker := &fakeInvoker{}
	router := NewServer(invoker).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.NotEmpty(t, body["invocation_id"])
	require.Equal(t, rec.Header().Get("X-Request-ID"), body["invocation_id"])
	require.Len(t, invoker.events, 1)
	require.Nil(t, invoker.events[0])
}

func TestInvokeFailure(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("fetch listing: connection refused")}
	router := NewServer(invoker).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "fetch listing: connection refused", body["body"])
}

func TestInvokeRejectsMalformedEvent(t *testing.T) {
	invoker := &fakeInvoker{}
	router := NewServer(invoker).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader("{")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, invoker.events)
}

func TestInvocationsDoNotOverlap(t *testing.T) {
	invoker := &fakeInvoker{}
	router := NewServer(invoker).Router()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", nil))
		}()
	}
	wg.Wait()

	require.Len(t, invoker.events, 5)
	require.False(t, invoker.overlap)
}

func TestHealthz(t *testing.T) {
	router := NewServer(&fakeInvoker{}).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
