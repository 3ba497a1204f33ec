package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"nexus-catalog/internal/utils"
	"nexus-catalog/pkg/response"
)

// RateLimiterConfig configuration for rate limiting
type RateLimiterConfig struct {
	// Requests per minute
	RPM   int `json:"rpm"`
	Burst int `json:"burst"`
	// Clients idle for longer than this are forgotten
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPM:             60,
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter limits requests per client with a token bucket each.
type RateLimiter struct {
	config  RateLimiterConfig
	clients map[string]*clientLimiter
	mutex   sync.Mutex
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RPM <= 0 {
		config.RPM = def.RPM
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &RateLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Start evicts idle clients until stop is closed.
func (rl *RateLimiter) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.limiterFor(clientID(c))
		if !limiter.Allow() {
			response.Fail(c, utils.NewErrorBuilder(utils.ErrCodeRateLimitExceeded).
				WithMessage("Rate limit exceeded. Please try again later.").
				WithDetails(fmt.Sprintf("Maximum %d requests per minute allowed", rl.config.RPM)).
				Build())
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RPM))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}

func (rl *RateLimiter) limiterFor(id string) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	cl, ok := rl.clients[id]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.config.RPM)), rl.config.Burst),
		}
		rl.clients[id] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter
}

// clientID prefers the authenticated user, then the API key, then the IP.
func clientID(c *gin.Context) string {
	if userID, ok := c.Get("user_id"); ok {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return "apikey:" + key
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	now := rl.now()
	for id, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > rl.config.CleanupInterval {
			delete(rl.clients, id)
		}
	}
}

// ActiveClients reports how many clients are currently tracked.
func (rl *RateLimiter) ActiveClients() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.clients)
}
