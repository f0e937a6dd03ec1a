// Package server exposes a ChunkStore as the insert-or-update HTTP
// endpoint the importer submits chunks to.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crmimport/internal/config"
	"crmimport/internal/importer"
	"crmimport/internal/logging"
	"crmimport/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// ImportPath is where chunks are posted.
const ImportPath = "/api/v1/import"

// JobHeader carries the importer's job ID.
const JobHeader = "X-Import-Job"

// Error codes returned in APIError.Code.
const (
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeTooLarge   = "CHUNK_TOO_LARGE"
	ErrorCodeStore      = "STORE_ERROR"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Server struct {
	store   importer.ChunkStore
	engine  *gin.Engine
	handler http.Handler
	maxRows int
}

// New builds the router. origins lists CORS origins; "*" allows any.
func New(store importer.ChunkStore, origins []string) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{store: store, engine: engine, maxRows: config.MaxChunkSize}

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST(ImportPath, instrument("import"), s.importChunk)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", JobHeader},
	}).Handler(engine)
	return s
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is canceled, then drains in-flight chunks.
func (s *Server) Run(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("import endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Info().Msg("shutting down import endpoint")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) importChunk(c *gin.Context) {
	jobID := c.GetHeader(JobHeader)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	ctx := logging.WithJob(c.Request.Context(), jobID)
	log := logging.FromContext(ctx)

	var req models.ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}
	if req.Rows == nil {
		respondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Request must contain a rows array", nil)
		return
	}
	if len(req.Rows) > s.maxRows {
		respondWithError(c, http.StatusRequestEntityTooLarge, ErrorCodeTooLarge, "Too many rows in one chunk", gin.H{"rows": len(req.Rows), "max": s.maxRows})
		return
	}

	resp, err := s.store.ApplyChunk(ctx, req.Rows)
	if err != nil {
		log.Error().Err(err).Int("rows", len(req.Rows)).Msg("failed to apply chunk")
		respondWithError(c, http.StatusInternalServerError, ErrorCodeStore, "Failed to apply chunk", nil)
		return
	}
	resp.JobID = jobID
	observeRows(resp)

	log.Info().Int("rows", len(req.Rows)).Int("inserted", resp.Inserted).Int("updated", resp.Updated).Int("skipped", resp.Skipped).Msg("chunk applied")
	c.JSON(http.StatusOK, resp)
}

func respondWithError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message, Details: details})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.FromContext(c.Request.Context()).Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
