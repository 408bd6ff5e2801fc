package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	actiondomain "github.com/groundswell-app/groundswell/internal/action/domain"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
)

type recordActionRequest struct {
	MemberID     string         `json:"member_id"`
	ActionType   string         `json:"action_type"`
	TargetID     string         `json:"target_id"`
	Subtype      string         `json:"subtype"`
	Correct      *bool          `json:"correct"`
	Points       int64          `json:"points"`
	CompletionMs *int64         `json:"completion_ms"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) RecordAction(c *gin.Context) {
	var req recordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil || memberID == 0 {
		AbortWithError(c, actiondomain.ErrInvalidMember)
		return
	}
	targetID, err := snowflake.ParseString(strings.TrimSpace(req.TargetID))
	if err != nil || targetID == 0 {
		AbortWithError(c, actiondomain.ErrInvalidTarget)
		return
	}

	if !s.allowEarn(c, memberID.String()) {
		return
	}

	resp, err := s.actionSvc.Record(c.Request.Context(), actiondomain.RecordActionRequest{
		MemberID:     memberID,
		ActionType:   actiondomain.ActionType(strings.TrimSpace(req.ActionType)),
		TargetID:     targetID,
		Subtype:      strings.TrimSpace(req.Subtype),
		Correct:      req.Correct,
		Points:       req.Points,
		CompletionMs: req.CompletionMs,
		Metadata:     req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListActions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ActionType string `form:"action_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.actionSvc.List(c.Request.Context(), actiondomain.ListActionRequest{
		MemberID:   strings.TrimSpace(c.Param("id")),
		ActionType: strings.TrimSpace(query.ActionType),
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
