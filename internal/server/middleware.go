package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const HeaderRequestID = "X-Request-ID"

// RequestID propagates the caller's request id or mints a fresh ulid.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

const (
	contributeRatePerSecond = 2.0
	contributeBurst         = 5
)

// ContributeRateLimit throttles contribution submissions per identity.
// With no redis configured the limiter is nil and every request
// passes.
func (s *Server) ContributeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		identity := strings.TrimSpace(c.Query("identity"))
		if identity == "" {
			identity = c.ClientIP()
		}

		result, err := s.limiter.Allow(c.Request.Context(), "contribute:"+identity, contributeRatePerSecond, contributeBurst)
		if err != nil {
			// Redis being down should not take contributions with it.
			s.log.Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !result.Allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
