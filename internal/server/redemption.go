package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/groundswell-app/groundswell/internal/providers/topup"
	redemptiondomain "github.com/groundswell-app/groundswell/internal/redemption/domain"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
)

type initiateRedemptionRequest struct {
	MemberID string `json:"member_id"`
	Product  string `json:"product"`
	Points   int64  `json:"points"`
	MSISDN   string `json:"msisdn"`
}

func (s *Server) InitiateRedemption(c *gin.Context) {
	var req initiateRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil || memberID == 0 {
		AbortWithError(c, redemptiondomain.ErrInvalidMember)
		return
	}

	resp, err := s.redemptionSvc.Initiate(c.Request.Context(), redemptiondomain.InitiateRequest{
		MemberID: memberID,
		Product:  redemptiondomain.Product(strings.ToLower(strings.TrimSpace(req.Product))),
		Points:   req.Points,
		MSISDN:   strings.TrimSpace(req.MSISDN),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetRedemptionByID(c *gin.Context) {
	resp, err := s.redemptionSvc.Get(c.Request.Context(), redemptiondomain.GetRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRedemptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.redemptionSvc.List(c.Request.Context(), redemptiondomain.ListRequest{
		MemberID:  strings.TrimSpace(c.Param("id")),
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// HandleTopupCallback verifies the provider's HMAC signature over the raw
// body before touching any state. Replayed callbacks resolve to the same
// terminal status without a second refund.
func (s *Server) HandleTopupCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	signature := strings.TrimSpace(c.GetHeader("X-Signature"))
	if err := topup.VerifySignature(s.cfg.Topup.CallbackSecret, body, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	var event topup.CallbackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.redemptionSvc.HandleCallback(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"reference": resp.Reference,
		"status":    resp.Status,
	}})
}
