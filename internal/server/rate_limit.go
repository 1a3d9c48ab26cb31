package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obsmiddleware "github.com/smallbiznis/clinicdesk/internal/observability/logger"
	"go.uber.org/zap"
)

// billWriteLimit throttles bill writes per operator, or per client IP when
// no operator header is sent. Redis failures let the request through.
func (s *Server) billWriteLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(obsmiddleware.OperatorHeader))
		if key == "" {
			key = c.ClientIP()
		}

		res, err := s.limiter.AllowClient(c.Request.Context(), key)
		if err != nil {
			s.log.Warn("bill write rate limit check failed", zap.String("client", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
