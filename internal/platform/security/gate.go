// Package security is the boundary to the external security gate: keyed
// rate-limit checks and a request risk score. Both are consumed by the core,
// never used for authorization decisions inside it.
package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"beacon/internal/platform/config"
)

type Decision struct {
	Allowed   bool
	Remaining int
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Gate struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	limits   map[string]int // endpoint class -> requests per minute
	scorer   *Scorer
	stop     chan struct{}
	stopOnce sync.Once
}

func NewGate(cfg config.RateLimitConfig) *Gate {
	limits := map[string]int{
		"api_read":  cfg.APIReadPerMinute,
		"api_write": cfg.APIWritePerMinute,
		"receiver":  cfg.ReceiverPerMinute,
	}
	for k, v := range limits {
		if v <= 0 {
			limits[k] = 100
		} else {
			limits[k] = v
		}
	}

	g := &Gate{
		limiters: make(map[string]*keyedLimiter),
		limits:   limits,
		scorer:   NewScorer(),
		stop:     make(chan struct{}),
	}
	go g.cleanupLoop()
	return g
}

// Close stops the limiter janitor. Idempotent.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// CheckRateLimit applies the endpoint class limit to the given key (caller
// identity or remote address). Unknown classes fall back to 100/min.
func (g *Gate) CheckRateLimit(key, endpoint string) Decision {
	perMinute, ok := g.limits[endpoint]
	if !ok {
		perMinute = 100
	}

	g.mu.Lock()
	l, ok := g.limiters[key+":"+endpoint]
	if !ok {
		l = &keyedLimiter{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)}
		g.limiters[key+":"+endpoint] = l
	}
	l.lastSeen = time.Now()
	g.mu.Unlock()

	if !l.limiter.Allow() {
		return Decision{Allowed: false, Remaining: 0}
	}
	return Decision{Allowed: true, Remaining: int(l.limiter.Tokens())}
}

func (g *Gate) RiskScore(identity string, input map[string]string) int {
	return g.scorer.Score(identity, input)
}

// Stale limiter entries are swept every 5 minutes until Close.
func (g *Gate) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			for key, l := range g.limiters {
				if time.Since(l.lastSeen) > 10*time.Minute {
					delete(g.limiters, key)
				}
			}
			g.mu.Unlock()
		}
	}
}
