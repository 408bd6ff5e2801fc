package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	referraldomain "github.com/groundswell-app/groundswell/internal/referral/domain"
)

func (s *Server) GetReferralCode(c *gin.Context) {
	resp, err := s.referralSvc.GetOrCreateCode(c.Request.Context(), referraldomain.GetOrCreateCodeRequest{
		MemberID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReferrals(c *gin.Context) {
	resp, err := s.referralSvc.ListByReferrer(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"referrals": resp}})
}
