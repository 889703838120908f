// Package gateway provides the API gateway that routes requests to handlers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/config"
	"github.com/pinreview/backend/internal/models"
)

// Gateway forwards target and session routes to a handler instance.
type Gateway struct {
	cfg    *config.Config
	logger *zap.Logger
	proxy  *httputil.ReverseProxy

	// streams is cancelled by StopStreams to end proxied event streams
	streams    context.Context
	stopStream context.CancelFunc
}

// NewGateway creates a new API gateway for cfg.HandlerURL.
func NewGateway(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	target, err := url.Parse(cfg.HandlerURL)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("handler url needs a scheme and a host")
	}

	g := &Gateway{cfg: cfg, logger: logger}
	g.streams, g.stopStream = context.WithCancel(context.Background())
	g.proxy = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
		},
		// flush at once so server-sent events reach the client
		FlushInterval: -1,
		ErrorHandler:  g.proxyError,
	}
	return g, nil
}

// RegisterRoutes registers the gateway routes on the given router group.
func (g *Gateway) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Any("/targets", g.proxyToHandler)
	rg.Any("/targets/*path", g.proxyToHandler)
	rg.Any("/sessions", g.proxyToHandler)
	rg.Any("/sessions/*path", g.proxyToHandler)
}

// proxyToHandler forwards requests to the handler service.
func (g *Gateway) proxyToHandler(c *gin.Context) {
	g.logger.Debug("Proxying request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	req := c.Request
	if strings.HasSuffix(req.URL.Path, "/stream") {
		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		stop := context.AfterFunc(g.streams, cancel)
		defer stop()
		req = req.WithContext(ctx)
		// the proxy aborts a cancelled stream with a panic; the stream is
		// simply over
		defer func() {
			if r := recover(); r != nil && r != http.ErrAbortHandler {
				panic(r)
			}
		}()
	}
	g.proxy.ServeHTTP(c.Writer, req)
}

// StopStreams ends every proxied event stream. Other requests are left to
// finish.
func (g *Gateway) StopStreams() {
	g.stopStream()
}

func (g *Gateway) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.Error("Failed to proxy request", zap.String("path", r.URL.Path), zap.Error(err))

	status, resp := http.StatusBadGateway, models.ErrorResponse{
		Error:   "proxy_error",
		Message: "failed to reach handler service",
	}
	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || (errors.As(err, &opErr) && opErr.Op == "dial") {
		status, resp = http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "service_unavailable",
			Message: "handler service is not available",
		}
	}
	writeJSON(w, status, resp)
}

// HealthCheck returns a health check handler.
func (g *Gateway) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"role":    g.cfg.Role,
		"service": "pinreview",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
