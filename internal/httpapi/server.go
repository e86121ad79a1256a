// Package httpapi is the thin REST transport of §6 over the document
// store, edge index, query engine, and job manager: an echo-based
// router that renders every result through the HATEOAS-style envelope
// and maps the apperr taxonomy onto status codes. Routing is grounded
// on the labstack/echo handler style used elsewhere in the example
// pack's REST backends.
package httpapi

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"rserv/internal/apperr"
	"rserv/internal/cache"
	"rserv/internal/envelope"
	"rserv/internal/graphidx"
	"rserv/internal/jobs"
	"rserv/internal/store"
)

// Server bundles the collaborators a request handler needs.
type Server struct {
	echo          *echo.Echo
	store         *store.Store
	index         *graphidx.Index
	jobs          *jobs.Manager
	searchIndexer cache.SearchIndexer
	logger        *zap.SugaredLogger
	defaultPage   int
}

// Config bundles Server construction options.
type Config struct {
	Store           *store.Store
	Index           *graphidx.Index
	Jobs            *jobs.Manager
	SearchIndexer   cache.SearchIndexer
	Logger          *zap.SugaredLogger
	DefaultPageSize int
}

// New builds a Server with routes registered.
func New(cfg Config) *Server {
	searchIndexer := cfg.SearchIndexer
	if searchIndexer == nil {
		searchIndexer = cache.NoopSearchIndexer{}
	}
	pageSize := cfg.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	s := &Server{
		echo:          echo.New(),
		store:         cfg.Store,
		index:         cfg.Index,
		jobs:          cfg.Jobs,
		searchIndexer: searchIndexer,
		logger:        cfg.Logger,
		defaultPage:   pageSize,
	}
	s.echo.HideBanner = true
	s.echo.HTTPErrorHandler = s.errorHandler
	s.registerRoutes()
	return s
}

// Start begins listening on addr (e.g. "0.0.0.0:8080").
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api/v1")

	api.POST("/graph/query", s.submitQuery)
	api.GET("/graph/query/:id", s.queryStatus)
	api.GET("/graph/query/:id/result", s.queryResult)
	api.POST("/graph/shortestPath", s.shortestPath)
	api.POST("/graph/pathExists", s.pathExists)
	api.POST("/graph/commonNeighbors", s.commonNeighbors)
	api.GET("/graph/nodes/:ref/degree", s.nodeDegree)
	api.POST("/graph/nodes/neighborhoodAggregate", s.neighborhoodAggregate)
	api.GET("/graph/statistics", s.statistics)
	api.GET("/graph/nodes/:ref", s.getNode)
	api.GET("/graph/:ref/in", s.nodeInbound)
	api.GET("/graph/:ref/out", s.nodeOutbound)

	api.POST("/:entity", s.createDocument)
	api.GET("/:entity/list", s.listDocuments)
	api.GET("/:entity/search", s.searchDocuments)
	api.POST("/:entity/save/:id", s.saveDocument)
	api.GET("/:entity/:id", s.getDocument)
	api.PUT("/:entity/:id", s.replaceDocument)
	api.PATCH("/:entity/:id", s.patchDocument)
	api.DELETE("/:entity/:id", s.deleteDocument)
}

// errorHandler renders any error escaping a handler through the error
// envelope, mapping apperr kinds to their status codes.
func (s *Server) errorHandler(err error, c echo.Context) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		if he, ok := err.(*echo.HTTPError); ok {
			appErr = apperr.New(apperr.KindValidation, "%v", he.Message).WithStatus(he.Code)
		} else {
			appErr = apperr.Wrap(apperr.KindStorage, err, "internal error")
		}
	}
	if s.logger != nil && appErr.StatusCode >= 500 {
		s.logger.Errorw("request failed", "path", c.Request().URL.Path, "err", appErr)
	}
	body := envelope.NewError(appErr, c.Request().URL.Path)
	if jerr := c.JSON(appErr.StatusCode, body); jerr != nil && s.logger != nil {
		s.logger.Errorw("failed to write error response", "err", jerr)
	}
}

func writeSuccess(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, envelope.NewSuccess(data, c.Request().URL.Path))
}

func badRequest(format string, args ...interface{}) *apperr.Error {
	return apperr.New(apperr.KindValidation, format, args...)
}
