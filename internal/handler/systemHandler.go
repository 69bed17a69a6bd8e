package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/proxy"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const version = "1.0.0"

// Handles system-related endpoints
type SystemHandler struct {
	db        *storage.Database
	redis     *storage.RedisClient
	users     *repository.UserRepository
	proxies   map[string]*proxy.Proxy
	startTime time.Time
	logger    zerolog.Logger
}

// NewSystemHandler builds the handler. redis may be nil.
func NewSystemHandler(db *storage.Database, redis *storage.RedisClient, users *repository.UserRepository, proxies map[string]*proxy.Proxy, logger zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		redis:     redis,
		users:     users,
		proxies:   proxies,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database health check failed")
		healthy = false
		checks["database"] = false
	} else {
		checks["database"] = true
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Error().Err(err).Msg("redis health check failed")
			healthy = false
			checks["redis"] = false
		} else {
			checks["redis"] = true
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  false,
			"code":    http.StatusServiceUnavailable,
			"message": "degraded",
			"checks":  checks,
		})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "api-marketplace",
		"version":   version,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// Handles GET /admin/status
func (h *SystemHandler) Status(c *gin.Context) {
	userCount, err := h.users.Count(c.Request.Context())
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	upstreams := gin.H{}
	for path, p := range h.proxies {
		upstreams[path] = p.OverallHealth().String()
	}

	response.Success(c, http.StatusOK, gin.H{
		"gateway":   "running",
		"version":   version,
		"users":     userCount,
		"upstreams": upstreams,
		"uptime":    time.Since(h.startTime).Seconds(),
		"timestamp": time.Now().Unix(),
	})
}

// Handles GET /admin/upstreams: per-target health of every adapter
func (h *SystemHandler) UpstreamHealth(c *gin.Context) {
	result := gin.H{}
	for path, p := range h.proxies {
		result[path] = gin.H{
			"overall": p.OverallHealth().String(),
			"targets": p.GetHealthStatus(),
		}
	}
	response.Success(c, http.StatusOK, result)
}

// Returns the status of all circuit breakers
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := gin.H{}
	for path, p := range h.proxies {
		statuses[path] = p.CircuitBreakerMetrics()
	}
	response.Success(c, http.StatusOK, statuses)
}

// Manually resets a circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	// Wildcard param already includes leading slash (e.g., "/v1/video")
	service := c.Param("service")

	p, exists := h.proxies[service]
	if !exists {
		response.Error(c, http.StatusNotFound, "Upstream not found")
		return
	}

	p.ResetCircuitBreaker()

	response.Success(c, http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"service": service,
	})
}
