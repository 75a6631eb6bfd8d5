// Package server exposes the commit pipeline, snapshots and the live
// operation feed over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/notify"
	"github.com/roach88/otcore/internal/pipeline"
	"github.com/roach88/otcore/internal/store"
)

// Submitter commits submissions. *pipeline.Pipeline implements it.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error)
}

// Server holds the HTTP handlers.
type Server struct {
	submitter Submitter
	store     store.Adapter
	notifier  notify.Notifier
	logger    *zap.Logger

	loads    singleflight.Group
	upgrader websocket.Upgrader
	feed     feedConfig
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and feed logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheckOrigin overrides the websocket origin check. The default
// accepts same-origin requests only.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// WithPingInterval sets how often idle feed connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.feed.pingInterval = d
			s.feed.pongWait = 2 * d
		}
	}
}

// New creates a Server.
func New(sub Submitter, s store.Adapter, n notify.Notifier, opts ...Option) *Server {
	srv := &Server{
		submitter: sub,
		store:     s,
		notifier:  n,
		logger:    zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		feed: defaultFeedConfig(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the gin engine serving every route.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/feed", s.handleFeed)

	obj := r.Group("/:tenant/:type/:id")
	obj.GET("", s.handleSnapshot)
	obj.GET("/operations", s.handleLog)
	obj.POST("/operations", s.handleSubmit)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	s.logger.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func objectID(c *gin.Context) (model.ObjectID, bool) {
	id, err := model.NewObjectID(c.Param("tenant"), model.ObjectType(c.Param("type")), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_OBJECT_ID", err.Error(), nil)
		return model.ObjectID{}, false
	}
	return id, true
}

func revisionQuery(c *gin.Context, key string) (int64, bool, bool) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return 0, false, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REVISION", key+" must be a non-negative integer", nil)
		return 0, true, false
	}
	return n, true, true
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	PatchIndex *int   `json:"patchIndex,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string, patchIndex *int) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message, PatchIndex: patchIndex}})
}
