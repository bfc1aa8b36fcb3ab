package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/coordinator"
	"horse.fit/chatsense/internal/service"
)

// Backend is the analysis API the server exposes.
type Backend interface {
	AnalyzeTranslation(ctx context.Context, text, sourceLanguage, targetLanguage string, opts service.RequestOptions) (analysis.Result, error)
	DraftTranslation(ctx context.Context, subjectID, text, sourceLanguage, targetLanguage string, opts service.RequestOptions) (analysis.Result, error)
	BatchTranslate(ctx context.Context, items []service.TranslationItem) []coordinator.Outcome
	AnalyzeEmotion(ctx context.Context, text, subjectID string, opts service.RequestOptions) (analysis.Result, error)
	ClearCache(ctx context.Context) (int64, error)
	UsageStats(ctx context.Context) service.UsageStats
	SetProviderEnabled(id string, enabled bool) error
	Online(ctx context.Context) bool
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	backend Backend
	logger  zerolog.Logger
	opts    Options
}

func NewServer(backend Backend, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		backend: backend,
		logger:  logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

// Handler builds the echo router with middleware and every route mounted.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(tracing())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/v1")
	api.POST("/translate", s.handleTranslate)
	api.POST("/translate/draft", s.handleTranslateDraft)
	api.POST("/translate/batch", s.handleTranslateBatch)
	api.POST("/emotion", s.handleEmotion)
	api.DELETE("/cache", s.handleClearCache)
	api.GET("/stats", s.handleStats)
	api.PUT("/providers/:id", s.handleSetProvider)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("chatsense server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("chatsense server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

// writeAnalysisError maps an analysis error onto a jsend response.
func (s *Server) writeAnalysisError(c echo.Context, err error) error {
	var invalid *analysis.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		return failValidation(c, map[string]string{invalid.Field: invalid.Reason})
	case errors.Is(err, coordinator.ErrSuperseded):
		return fail(c, http.StatusConflict, "Superseded by a newer request", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fail(c, http.StatusServiceUnavailable, "Request cancelled", nil)
	default:
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("analysis failed")
		return internalError(c, "Analysis failed")
	}
}
