package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/groundswell-app/groundswell/internal/observability/context"
	"github.com/groundswell-app/groundswell/internal/ratelimit"
)

const (
	HeaderMemberID     = "X-Member-ID"
	contextMemberIDKey = "member_id"
)

// MemberContext resolves the acting member from the X-Member-ID header set by
// the upstream gateway after authentication, and makes it available to
// logging and audit capture.
func (s *Server) MemberContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		memberID := strings.TrimSpace(c.GetHeader(HeaderMemberID))
		if memberID != "" {
			c.Set(contextMemberIDKey, memberID)
			ctx := obscontext.WithMemberID(c.Request.Context(), memberID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// allowEarn takes one token from the member's earn bucket and writes the 429
// when the bucket is empty. Returns false when the caller should stop.
func (s *Server) allowEarn(c *gin.Context, memberID string) bool {
	if s.earnLimiter == nil || !s.earnLimiter.Enabled() {
		return true
	}

	endpoint := c.FullPath()
	result, allowed := s.earnLimiter.AllowMember(c.Request.Context(), memberID)
	if allowed {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), endpoint)
		}
		return true
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), endpoint, "earn_bucket_empty")
	}
	c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(result.RetryAfter)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
		Type:    "rate_limited",
		Message: "too many earn attempts, slow down",
	}})
	return false
}
