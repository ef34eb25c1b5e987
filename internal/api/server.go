// Package api is the HTTP surface of the search service.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/seanankenbruck/viewpoint-search/internal/auth"
	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
	"github.com/seanankenbruck/viewpoint-search/internal/search"
	"github.com/seanankenbruck/viewpoint-search/internal/synth"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options wires the server. Auth and Health are optional.
type Options struct {
	Search  *search.Service
	Auth    *auth.Authenticator
	Limiter *auth.RateLimiter
	Health  *observability.HealthChecker
	Logger  *observability.Logger
	MaxTopK int
}

// Server holds the HTTP handlers.
type Server struct {
	search   *search.Service
	auth     *auth.Authenticator
	limiter  *auth.RateLimiter
	health   *observability.HealthChecker
	logger   *observability.Logger
	validate *validator.Validate
	maxTopK  int
}

func NewServer(opts Options) (*Server, error) {
	if opts.Search == nil {
		return nil, fmt.Errorf("api: search service is required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger("api")
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 200
	}

	return &Server{
		search:   opts.Search,
		auth:     opts.Auth,
		limiter:  opts.Limiter,
		health:   opts.Health,
		logger:   opts.Logger,
		validate: newValidator(),
		maxTopK:  opts.MaxTopK,
	}, nil
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(observability.RecoveryMiddleware(s.logger))
	r.Use(observability.RequestLoggingMiddleware(s.logger))
	r.Use(observability.CORSWithLogging(s.logger))

	if s.health != nil {
		r.GET("/health", observability.HealthHandler(s.health))
	}
	r.GET("/metrics", observability.MetricsHandler())

	v1 := r.Group("/api/v1")
	if s.auth != nil {
		v1.Use(s.auth.Middleware(s.limiter, s.logger))
		auth.NewHandlers(s.auth, s.limiter).SetupRoutes(v1)
	}
	{
		v1.POST("/search", s.handleSearch)
		v1.POST("/validate", s.handleValidate)
		v1.GET("/vocabulary", s.handleVocabulary)
	}

	return r
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Intent *intent.RawIntent `json:"intent" validate:"required"`
	TopK   int               `json:"top_k" validate:"omitempty,min=1"`
}

// ValidateRequest is the body of POST /api/v1/validate.
type ValidateRequest struct {
	SQL    string        `json:"sql" validate:"required"`
	Params []interface{} `json:"params"`
}

// ValidateResponse reports the gate decision for a statement.
type ValidateResponse struct {
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
	Detail        string `json:"detail,omitempty"`
	SchemaVersion string `json:"schema_version"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := s.bind(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if req.TopK > s.maxTopK {
		respondError(c, apperrors.NewInvalidInputError("top_k", fmt.Sprintf("must be at most %d", s.maxTopK)))
		return
	}

	response, err := s.search.SearchWithRetry(c.Request.Context(), search.Request{
		Intent: *req.Intent,
		TopK:   req.TopK,
	})
	if err != nil {
		s.logger.Error(c.Request.Context(), "Search failed", err, map[string]interface{}{
			"code": string(apperrors.CodeOf(err)),
		})
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := s.bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	params, err := synth.ConvertParams(req.Params)
	if err != nil {
		respondError(c, apperrors.NewInvalidInputError("params", err.Error()))
		return
	}

	result := s.search.Validate(req.SQL, params)
	if !result.Accepted {
		observability.RecordGateRejection(string(result.Reason))
	}

	c.JSON(http.StatusOK, ValidateResponse{
		Accepted:      result.Accepted,
		Reason:        string(result.Reason),
		Detail:        result.Detail,
		SchemaVersion: s.search.SchemaVersion(),
	})
}

func (s *Server) handleVocabulary(c *gin.Context) {
	vocab := s.search.Vocabulary()
	c.JSON(http.StatusOK, gin.H{
		"version":    vocab.Version(),
		"categories": vocab.Categories(),
		"tags":       vocab.Tags(),
		"mode":       s.search.Mode(),
	})
}

// bind decodes a JSON body keeping numbers exact, then applies the struct's
// validate tags.
func (s *Server) bind(c *gin.Context, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return apperrors.NewInvalidInputError("request body", err.Error())
	}
	if len(body) > maxBodyBytes {
		return apperrors.NewInvalidInputError("request body", "body is too large")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewInvalidInputError("request body", err.Error())
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewInvalidInputError(fe.Field(), fmt.Sprintf("failed the '%s' rule", fe.Tag()))
		}
		return apperrors.NewInvalidInputError("request body", err.Error())
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
