package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	memberdomain "github.com/groundswell-app/groundswell/internal/member/domain"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
)

func (s *Server) GetBalance(c *gin.Context) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || memberID == 0 {
		AbortWithError(c, memberdomain.ErrInvalidID)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"member_id": memberID.String(),
		"balance":   balance,
	}})
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.History(c.Request.Context(), ledgerdomain.HistoryRequest{
		MemberID:  strings.TrimSpace(c.Param("id")),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VerifyBalance(c *gin.Context) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || memberID == 0 {
		AbortWithError(c, memberdomain.ErrInvalidID)
		return
	}

	result, err := s.ledgerSvc.VerifyBalance(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
