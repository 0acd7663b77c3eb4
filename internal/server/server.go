// Package server exposes dispatch over HTTP with echo. Every route lives under /generations:
//
//	POST /generations/:provider/{generate,generateWithImage,generateWithTools,embedding,llm,textToSpeech}
//	GET  /generations/providers
//	GET  /generations/templates
//	POST /generations/templates/:name/integrate
//	POST /generations/templates/:name/generate
//
// Request bodies are the operation argument bags, with credential overrides under "env". Successful
// calls answer {"result": ...}; failures answer 400 {"error": message}. Requests with "stream": true
// are answered with server-sent events, one "data: <json>" event per chunk.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/config"
	"github.com/skosovsky/generations/dispatch"
	"github.com/skosovsky/generations/fileregistry"
)

const (
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server is the HTTP surface of a dispatch.Client.
type Server struct {
	client    *dispatch.Client
	templates *fileregistry.Registry
	logger    *slog.Logger
	app       *echo.Echo
	address   string
	maxBody   int64
}

// Option configures a Server.
type Option func(*Server)

// WithTemplates enables the template routes.
func WithTemplates(r *fileregistry.Registry) Option {
	return func(s *Server) { s.templates = r }
}

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.ServerConfig, client *dispatch.Client, opts ...Option) (*Server, error) {
	if client == nil {
		return nil, errors.New("server: client must not be nil")
	}
	s := &Server{
		client:  client,
		logger:  slog.Default(),
		address: cfg.Addr,
		maxBody: cfg.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBody <= 0 {
		s.maxBody = config.Default().Server.MaxBodyBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error.Error())
			}
			s.logger.InfoContext(c.Request().Context(), "request", attrs...)
			return nil
		},
	}))
	s.app = e
	s.registerRoutes()
	return s, nil
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.app }

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	g := s.app.Group("/generations")
	g.GET("/providers", s.handleProviders)
	g.GET("/templates", s.handleTemplates)
	g.POST("/templates/:name/integrate", s.handleIntegrate)
	g.POST("/templates/:name/generate", s.handleTemplateGenerate)
	g.POST("/:provider/generate", s.handleGenerate)
	g.POST("/:provider/generateWithTools", s.handleGenerateWithTools)
	g.POST("/:provider/generateWithImage", s.handleGenerateWithImage)
	g.POST("/:provider/embedding", s.handleEmbedding)
	g.POST("/:provider/llm", s.handleLLM)
	g.POST("/:provider/textToSpeech", s.handleTextToSpeech)
}

// result is the success envelope of every operation route.
type result struct {
	Result any `json:"result"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func providerParam(c echo.Context) (generations.Provider, error) {
	return dispatch.ValidateProvider(c.Param("provider"))
}

func (s *Server) handleGenerate(c echo.Context) error {
	p, err := providerParam(c)
	if err != nil {
		return err
	}
	var req generations.GenerateRequest
	if err := s.decode(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if req.Stream {
		stream, err := s.client.GenerateStream(ctx, p, &req)
		if err != nil {
			return err
		}
		return s.writeStream(c, stream)
	}
	resp, err := s.client.Generate(ctx, p, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: dispatch.Result(&req, resp)})
}

func (s *Server) handleGenerateWithTools(c echo.Context) error {
	p, err := providerParam(c)
	if err != nil {
		return err
	}
	var req generations.GenerateRequest
	if err := s.decode(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if req.Stream {
		if err := dispatch.RequireTools(&req); err != nil {
			return err
		}
		stream, err := s.client.GenerateStream(ctx, p, &req)
		if err != nil {
			return err
		}
		return s.writeStream(c, stream)
	}
	resp, err := s.client.GenerateWithTools(ctx, p, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: resp})
}

func (s *Server) handleGenerateWithImage(c echo.Context) error {
	p, err := providerParam(c)
	if err != nil {
		return err
	}
	var req generations.ImageRequest
	if err := s.decode(c, &req); err != nil {
		return err
	}
	resp, err := s.client.GenerateWithImage(c.Request().Context(), p, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: resp})
}

func (s *Server) handleEmbedding(c echo.Context) error {
	p, err := providerParam(c)
	if err != nil {
		return err
	}
	var req generations.EmbedRequest
	if err := s.decode(c, &req); err != nil {
		return err
	}
	emb, err := s.client.Embed(c.Request().Context(), p, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: emb})
}

func (s *Server) handleLLM(c echo.Context) error {
	p, err := providerParam(c)
	if err != nil {
		return err
	}
	var req generations.LLMRequest
	if err := s.decode(c, &req); err != nil {
		return err
	}
	resp, err := s.client.LLM(c.Request().Context(), p, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: resp})
}

func (s *Server) handleTextToSpeech(c echo.Context) error {
	p, err := providerParam(c)
	if err != nil {
		return err
	}
	var req generations.SpeechRequest
	if err := s.decode(c, &req); err != nil {
		return err
	}
	res, err := s.client.TextToSpeech(c.Request().Context(), p, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result{Result: res})
}

// builtinTools lists the builtin tool tags each provider understands.
var builtinTools = map[generations.Provider][]string{
	generations.ProviderBedrock: {generations.ToolWebSearch, generations.ToolTextEditor, generations.ToolBash},
	generations.ProviderOpenAI:  {},
	generations.ProviderGoogle:  {generations.ToolGoogleSearch, generations.ToolCodeExecution},
}

func (s *Server) handleProviders(c echo.Context) error {
	providers := generations.Providers()
	capabilities := make(map[generations.Provider][]generations.Operation, len(providers))
	for _, p := range providers {
		ops, err := s.client.Capabilities(p)
		if err != nil {
			return err
		}
		capabilities[p] = ops
	}
	endpoints := make([]string, 0, len(s.app.Routes()))
	for _, r := range s.app.Routes() {
		endpoints = append(endpoints, r.Method+" "+r.Path)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"providers":    providers,
		"capabilities": capabilities,
		"tools":        builtinTools,
		"endpoints":    endpoints,
	})
}

// decode reads a single JSON object into target. An empty body decodes as {}.
func (s *Server) decode(c echo.Context, target any) error {
	req := c.Request()
	defer func() { _ = req.Body.Close() }()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxBody)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// writeStream sends every chunk as one SSE event. Raw native chunks are not forwarded.
// A mid-stream failure is sent as a final {"error": message} event.
func (s *Server) writeStream(c echo.Context, stream *generations.Stream) error {
	res := c.Response()
	header := res.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderAccessControlAllowHeaders, "Cache-Control")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for chunk, err := range stream.Iter() {
		if err != nil {
			s.logger.ErrorContext(c.Request().Context(), "stream failed", "error", err.Error())
			return writeSSE(res, errorBody{Error: err.Error()})
		}
		chunk.Raw = nil
		if err := writeSSE(res, chunk); err != nil {
			return err
		}
	}
	return nil
}

func writeSSE(res *echo.Response, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("server: marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("server: write SSE data: %w", err)
	}
	res.Flush()
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

// errorHandler answers 400 {"error": message}. Routing errors keep their echo status.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, errorBody{Error: fmt.Sprint(he.Message)})
		return
	}
	_ = c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
}
