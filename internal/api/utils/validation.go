package utils

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// RateLimiter tracks one token-bucket limiter per client IP.
type RateLimiter struct {
	ips   map[string]*IPRateLimiter
	rate  rate.Limit
	burst int
}

// IPRateLimiter pairs a limiter with the last time its IP was seen, so idle
// entries can be reaped.
type IPRateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds an empty RateLimiter with the given rate and burst.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{ips: make(map[string]*IPRateLimiter), rate: r, burst: burst}
}

// AddIP creates and registers a limiter for ip.
func (rl *RateLimiter) AddIP(ip string) *IPRateLimiter {
	limiter := &IPRateLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: time.Now()}
	rl.ips[ip] = limiter
	return limiter
}

// GetIP returns ip's limiter, creating one on first sight.
func (rl *RateLimiter) GetIP(ip string) *IPRateLimiter {
	limiter, exists := rl.ips[ip]
	if !exists {
		return rl.AddIP(ip)
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// idleIPTTL is how long an IP can go unseen before its limiter is reaped.
const idleIPTTL = 30 * time.Minute

// killEndpointLimit is the tighter per-request allowance for the single
// privileged endpoint, to slow down token/secret brute forcing.
const killEndpointLimit = 5

// RateLimitMiddleware enforces defaultLimit tokens per request for most
// routes, and killEndpointLimit for the process-kill endpoint.
func RateLimitMiddleware(r rate.Limit, burst int, defaultLimit int) mux.MiddlewareFunc {
	limiter := NewRateLimiter(r, burst)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		for range ticker.C {
			for ip, l := range limiter.ips {
				if time.Since(l.lastSeen) > idleIPTTL {
					delete(limiter.ips, ip)
				}
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getIP(r)
			ipLimiter := limiter.GetIP(ip)

			limit := defaultLimit
			if strings.HasSuffix(r.URL.Path, "/kill") {
				limit = killEndpointLimit
			}

			if !ipLimiter.limiter.AllowN(time.Now(), limit) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getIP extracts the client address, preferring forwarding headers set by a
// reverse proxy over the raw connection address.
func getIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// SecurityHeadersMiddleware sets the fixed set of response headers every
// route carries, and rejects requests whose path attempts traversal.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "/.") {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ParsePID validates the :pid path parameter every per-process route takes,
// rejecting anything that isn't a positive integer.
func ParsePID(raw string) (int, bool) {
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
