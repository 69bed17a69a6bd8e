package proxy

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/circuitbreaker"
	"github.com/aman-churiwal/api-marketplace/internal/healthcheck"
	"github.com/aman-churiwal/api-marketplace/internal/loadbalancer"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var errUpstreamFailure = errors.New("upstream error")

// Proxy forwards metered requests to one adapter service and turns every
// failure into the standard error envelope.
type Proxy struct {
	name           string
	targets        []string
	proxies        map[string]*httputil.ReverseProxy
	circuitBreaker *circuitbreaker.CircuitBreaker
	loadBalancer   loadbalancer.Strategy
	healthChecker  *healthcheck.Checker
	logger         zerolog.Logger
}

type Config struct {
	Name                 string
	Targets              []string
	LoadBalancerStrategy string
	CircuitBreaker       circuitbreaker.Config
	HealthCheck          healthcheck.Config
	Logger               zerolog.Logger
}

func New(name string, targets []string, strategy string, logger zerolog.Logger) (*Proxy, error) {
	return NewWithConfig(Config{
		Name:                 name,
		Targets:              targets,
		LoadBalancerStrategy: strategy,
		CircuitBreaker: circuitbreaker.Config{
			MaxFailures:     5,
			Timeout:         30 * time.Second,
			HalfOpenSuccess: 1,
		},
		Logger: logger,
	})
}

// Creates a new Proxy with custom circuit breaker config
func NewWithConfig(cfg Config) (*Proxy, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("at least one target is required")
	}

	lb, err := loadbalancer.NewStrategy(cfg.LoadBalancerStrategy)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With().Str("upstream", cfg.Name).Logger()

	proxies := make(map[string]*httputil.ReverseProxy)
	for _, targetURL := range cfg.Targets {
		target, err := url.Parse(targetURL)
		if err != nil {
			return nil, err
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.ModifyResponse = injectRemaining
		rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn().Err(err).Str("target", targetURL).Msg("upstream request failed")
			writeEnvelope(w, r, http.StatusBadGateway, "Upstream service unavailable")
		}
		proxies[targetURL] = rp
	}

	if cfg.HealthCheck.Targets == nil {
		cfg.HealthCheck.Targets = cfg.Targets
	}
	cfg.HealthCheck.Logger = logger

	if cfg.CircuitBreaker.OnStateChange == nil {
		cfg.CircuitBreaker.OnStateChange = func(from, to circuitbreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		}
	}

	hc := healthcheck.NewChecker(&cfg.HealthCheck)
	hc.Start()

	p := &Proxy{
		name:           cfg.Name,
		targets:        cfg.Targets,
		proxies:        proxies,
		circuitBreaker: circuitbreaker.New(cfg.CircuitBreaker),
		loadBalancer:   lb,
		healthChecker:  hc,
		logger:         logger,
	}

	logger.Info().Int("targets", len(cfg.Targets)).Str("strategy", lb.Name()).Msg("proxy initialized")

	return p, nil
}

// Forwards the request to the adapter
func (p *Proxy) Handle(c *gin.Context) {
	healthyTargets := p.healthChecker.GetHealthyTargets()
	if len(healthyTargets) == 0 {
		p.logger.Warn().Msg("no healthy targets available")
		response.Error(c, http.StatusServiceUnavailable, "No healthy upstream servers available")
		return
	}

	selectedTarget := p.loadBalancer.Next(healthyTargets)
	targetProxy, exists := p.proxies[selectedTarget]
	if !exists {
		p.logger.Error().Str("target", selectedTarget).Msg("proxy not found for target")
		response.Error(c, http.StatusServiceUnavailable, "Failed to select upstream server")
		return
	}

	if tracker, ok := p.loadBalancer.(loadbalancer.ConnectionTracker); ok {
		tracker.Increment(selectedTarget)
		defer tracker.Decrement(selectedTarget)
	}

	c.Set("upstream", selectedTarget)

	err := p.circuitBreaker.Call(func() error {
		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
		}

		req := c.Request
		req.Header.Set("X-Forwarded-Host", req.Host)
		if clientIP := c.ClientIP(); clientIP != "" {
			req.Header.Set("X-Forwarded-For", clientIP)
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			req.Header.Set("X-Request-ID", requestID)
		}

		// Adapters never see the caller's secret.
		req.Header.Del("X-API-Key")
		if query := req.URL.Query(); query.Has("apikey") {
			query.Del("apikey")
			req.URL.RawQuery = query.Encode()
		}

		// Let the transport negotiate compression so JSON bodies stay rewritable.
		req.Header.Del("Accept-Encoding")

		c.Writer = recorder
		targetProxy.ServeHTTP(c.Writer, req)

		if recorder.statusCode >= 500 {
			return errUpstreamFailure
		}
		return nil
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		p.logger.Warn().Str("target", selectedTarget).Msg("circuit breaker open")
		if wait := p.circuitBreaker.RetryAfter(); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		response.Error(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	}
}

func (p *Proxy) Name() string {
	return p.name
}

// Returns the current circuit breaker state
func (p *Proxy) CircuitBreakerState() circuitbreaker.State {
	return p.circuitBreaker.State()
}

// Returns circuit breaker metrics
func (p *Proxy) CircuitBreakerMetrics() circuitbreaker.Metrics {
	return p.circuitBreaker.Metrics()
}

// Manually resets the circuit breaker
func (p *Proxy) ResetCircuitBreaker() {
	p.circuitBreaker.Reset()
}

// Returns health status of all targets
func (p *Proxy) GetHealthStatus() map[string]*healthcheck.Status {
	return p.healthChecker.GetAllStatus()
}

// Returns overall health status
func (p *Proxy) OverallHealth() healthcheck.HealthStatus {
	return p.healthChecker.OverallHealth()
}

// Stops the health checker
func (p *Proxy) Stop() {
	if p.healthChecker != nil {
		p.healthChecker.Stop()
	}
}

// Captures the response status code
type responseRecorder struct {
	gin.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]interface{}{
		"status":  false,
		"code":    status,
		"message": message,
	}
	if remaining, ok := response.RemainingFromContext(r.Context()); ok {
		body[response.RemainingField] = remaining
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
