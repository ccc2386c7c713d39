package httpserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"coffeehouse/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	deviceCookie    = "ch_device"
	deviceHeader    = "X-Device-Token"
	deviceIDCtxKey  = "device_id"
	requestIDHeader = "X-Request-ID"
)

// requestLogger emits one structured line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(deviceIDCtxKey); id != "" {
			fields = append(fields, zap.String("device_id", id))
		}
		if rid := c.GetHeader(requestIDHeader); rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// deviceMiddleware resolves the device token from the cookie or header. Missing, invalid
// and expired tokens are replaced by a freshly issued device.
func deviceMiddleware(devices Devices, secureCookie bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(deviceHeader)
		if token == "" {
			token, _ = c.Cookie(deviceCookie)
		}
		deviceID := ""
		if token != "" {
			id, err := devices.Lookup(token)
			if err == nil {
				deviceID = id
			} else {
				logger.Debug("replace device token", zap.Error(err))
			}
		}
		if deviceID == "" {
			fresh, id, err := devices.Issue()
			if err != nil {
				writeError(c, logger, err)
				c.Abort()
				return
			}
			token, deviceID = fresh, id
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(deviceCookie, token, devices.TTLSeconds(), "/", "", secureCookie, true)
		}
		c.Header(deviceHeader, token)
		c.Set(deviceIDCtxKey, deviceID)
		c.Next()
	}
}

// limiterIdle is how long an ip's limiter is kept after its last attempt.
const limiterIdle = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastPrune time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &rateLimiter{
		limiters:  make(map[string]*ipLimiter),
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		idle:      limiterIdle,
		now:       time.Now,
		lastPrune: time.Now(),
	}
}

func (rl *rateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if now.Sub(rl.lastPrune) >= rl.idle {
		rl.prune(now)
	}
	l, ok := rl.limiters[key]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = now
	return l.limiter
}

// prune drops limiters idle for longer than rl.idle. Callers hold rl.mu.
func (rl *rateLimiter) prune(now time.Time) {
	for key, l := range rl.limiters {
		if now.Sub(l.lastSeen) > rl.idle {
			delete(rl.limiters, key)
		}
	}
	rl.lastPrune = now
}

// middleware limits attempts per client ip.
func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Message: "Too many attempts. Please try again later."})
			return
		}
		c.Next()
	}
}

func deviceID(c *gin.Context) string {
	return c.GetString(deviceIDCtxKey)
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(strings.ToLower(baseURL), "https://")
}
