// Package http exposes the universal signature facilitator over HTTP.
package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blip-x402/univsig/types"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// Facilitator is the service the router serves
type Facilitator interface {
	Verify(ctx context.Context, request types.VerifyRequest) (*types.VerifyResponse, error)
	Wrap(request types.WrapRequest) (*types.WrapResponse, error)
	Unwrap(request types.UnwrapRequest) (*types.UnwrapResponse, error)
	Supported() types.SupportedResponse
}

// RouterConfig holds optional router settings
type RouterConfig struct {
	Logger *zap.Logger

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero or negative disables rate limiting.
	RateLimit float64
	RateBurst int

	// RequestTimeout bounds every request (zero uses 60s)
	RequestTimeout time.Duration

	// MaxBodyBytes caps request bodies (zero uses 1 MiB)
	MaxBodyBytes int64
}

// NewRouter builds the gin engine serving facilitator
//
// Routes:
//
//	GET  /health
//	GET  /supported
//	POST /verify
//	POST /wrap
//	POST /unwrap
func NewRouter(facilitator Facilitator, config *RouterConfig) *gin.Engine {
	cfg := RouterConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	h := &handlers{
		facilitator:  facilitator,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(cfg.Logger))
	if cfg.RateLimit > 0 {
		r.Use(rateLimit(newClientLimiter(cfg.RateLimit, cfg.RateBurst)))
	}
	r.Use(requestTimeout(cfg.RequestTimeout))

	r.GET("/health", h.health)
	r.GET("/supported", h.supported)
	r.POST("/verify", h.verify)
	r.POST("/wrap", h.wrap)
	r.POST("/unwrap", h.unwrap)

	return r
}
