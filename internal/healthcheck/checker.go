// Package healthcheck keeps track of which adapter instances can take
// metered traffic.
package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const probeUserAgent = "api-marketplace-healthcheck"

// Checker probes every adapter target on an interval and keeps the list of
// targets the proxy may route to.
type Checker struct {
	mu             sync.RWMutex
	targets        []string
	statuses       map[string]*Status
	healthyTargets []string

	endpoint    string
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	client      *http.Client
	now         func() time.Time
	logger      zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Config struct {
	Targets     []string
	Endpoint    string        // default "/health"
	Interval    time.Duration // default 10s
	Timeout     time.Duration // per probe, default 5s
	MaxFailures int           // consecutive failures before a target is dropped, default 3
	Now         func() time.Time
	Logger      zerolog.Logger
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/health"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Checker{
		targets:        append([]string(nil), cfg.Targets...),
		statuses:       make(map[string]*Status, len(cfg.Targets)),
		healthyTargets: append([]string(nil), cfg.Targets...),
		endpoint:       cfg.Endpoint,
		interval:       cfg.Interval,
		timeout:        cfg.Timeout,
		maxFailures:    cfg.MaxFailures,
		client:         &http.Client{},
		now:            cfg.Now,
		logger:         cfg.Logger,
		done:           make(chan struct{}),
	}

	// Targets start healthy until proven otherwise
	for _, target := range c.targets {
		c.statuses[target] = &Status{Target: target, IsHealthy: true, LastCheck: c.now()}
	}

	return c
}

// Start runs one round synchronously, then probes on every interval until
// Stop. Calling it twice has no effect.
func (c *Checker) Start() {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel

		c.logger.Info().Int("targets", len(c.targets)).Dur("interval", c.interval).Msg("starting health checks")
		c.checkAll(ctx)

		go c.loop(ctx)
	})
}

func (c *Checker) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels in-flight probes and waits for the loop to exit.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		<-c.done
		c.logger.Info().Msg("health checker stopped")
	})
}

func (c *Checker) checkAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, target := range c.targets {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			c.record(t, c.probe(ctx, t))
		}(target)
	}

	wg.Wait()
	c.updateHealthyTargets()
}

// probe treats any 2xx or 3xx answer as healthy.
func (c *Checker) probe(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+c.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Checker) record(target string, probeErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	status := c.statuses[target]
	status.LastCheck = now

	if probeErr == nil {
		status.LastSuccess = now
		status.FailureCount = 0
		status.LastError = ""
		if !status.IsHealthy {
			c.logger.Info().Str("target", target).Msg("target is healthy again")
			status.IsHealthy = true
		}
		return
	}

	status.LastFailure = now
	status.LastError = probeErr.Error()
	status.FailureCount++
	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.logger.Warn().Err(probeErr).Str("target", target).Int("failures", status.FailureCount).Msg("target marked unhealthy")
		status.IsHealthy = false
	}
}

func (c *Checker) updateHealthyTargets() {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := make([]string, 0, len(c.targets))
	for _, target := range c.targets {
		if c.statuses[target].IsHealthy {
			healthy = append(healthy, target)
		}
	}
	c.healthyTargets = healthy
}

// GetHealthyTargets returns a copy safe to hand to a load balancer.
func (c *Checker) GetHealthyTargets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.healthyTargets...)
}

func (c *Checker) GetAllStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*Status, len(c.statuses))
	for target, status := range c.statuses {
		snapshot := *status
		out[target] = &snapshot
	}
	return out
}

func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch healthy := len(c.healthyTargets); {
	case healthy == 0:
		return Unhealthy
	case healthy < len(c.targets):
		return Degraded
	default:
		return Healthy
	}
}
