// Package server exposes the roll parser over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coolbeans/rollcall/pkg/config"
	"github.com/coolbeans/rollcall/pkg/logging"
	"github.com/coolbeans/rollcall/pkg/pdftext"
	"github.com/coolbeans/rollcall/pkg/roll"
)

const (
	// RequestIDHeader carries the request id in requests and responses.
	RequestIDHeader = "X-Request-ID"

	requestIDKey    = "request_id"
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP front end for a parsing engine.
type Server struct {
	engine *roll.Engine
	pages  *pdftext.PageMap
	cfg    config.ServerConfig
	logger *zap.Logger
	router *gin.Engine
}

// New creates a server and registers its routes.
func New(engine *roll.Engine, pages *pdftext.PageMap, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if pages == nil {
		pages = pdftext.NewPageMap(pdftext.DefaultChapters())
	}
	s := &Server{
		engine: engine,
		pages:  pages,
		cfg:    cfg,
		logger: logging.OrNop(logger),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	if limit := s.cfg.MaxUploadBytes(); limit > 0 {
		r.MaxMultipartMemory = limit
		r.Use(bodyLimit(limit))
	}

	r.GET("/healthz", s.healthz)
	r.POST("/process_text", s.processText)
	r.POST("/extract_pdf", s.extractPDF)
	r.POST("/parse", s.parse)
	return r
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("starting HTTP server", zap.String("address", "http://"+s.Addr()))

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	s.logger.Debug("received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server shutdown completed")
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
