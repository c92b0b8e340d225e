package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"perspectives-watch/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Invoker runs a single invocation, pipeline.Handler is the implementation.
type Invoker interface {
	Invoke(ctx context.Context, event any) (pipeline.Result, error)
}

type response struct {
	pipeline.Result
	InvocationId string `json:"invocation_id"`
}

// Server exposes the invoker over http. Invocations never overlap, a request
// that arrives during an invocation waits for it to finish.
type Server struct {
	invoker Invoker
	mutex   sync.Mutex
}

func NewServer(invoker Invoker) *Server {
	return &Server{invoker: invoker}
}

// Router returns the gin engine serving:
//
//	POST /invoke   runs one invocation, the optional json body is passed along as the event
//	GET  /healthz  always 200
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/invoke", s.invoke)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func (s *Server) invoke(c *gin.Context) {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.New().String()
	}
	c.Header("X-Request-ID", id)

	var event any
	err := c.ShouldBindJSON(&event)
	if err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response{
			Result:       pipeline.Result{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf("invalid event: %s", err)},
			InvocationId: id,
		})
		return
	}

	ctx := pipeline.WithInvocationId(c.Request.Context(), id)
	res, err := s.Invoke(ctx, event)
	if err != nil {
		slog.Warn("invocation over http failed", "invocation_id", id, "err", err)
	}
	c.JSON(res.StatusCode, response{Result: res, InvocationId: id})
}

// Invoke runs one invocation once no other invocation is running, it is
// how anything besides the http endpoint (ex. a schedule) should invoke.
func (s *Server) Invoke(ctx context.Context, event any) (pipeline.Result, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.invoker.Invoke(ctx, event)
}

// ListenAndServe serves the router on port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", port),
		Handler: s.Router(),
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("listening for invocations...", "port", port)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
