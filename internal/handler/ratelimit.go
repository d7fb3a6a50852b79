package handler

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"otc-service/internal/repository"
	"otc-service/internal/util"
)

// RateLimit throttles by client IP. A limiter failure lets the request through; the
// per-identifier cooldown still applies behind it.
func RateLimit(limiter repository.RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), "send:"+ip)
			if err != nil {
				logger.Warn("Rate limiter unavailable, allowing request", util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"success":false,"error":"rate_limited","message":"Too many requests, please try again later"}`))
				logger.Warn("Request rate limited",
					util.String("path", r.URL.Path),
					util.String("remote_addr", ip))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects middleware.RealIP to have run; RemoteAddr may still carry a port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
