package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	actiondomain "github.com/groundswell-app/groundswell/internal/action/domain"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	memberdomain "github.com/groundswell-app/groundswell/internal/member/domain"
	"github.com/groundswell-app/groundswell/internal/providers/topup"
	redemptiondomain "github.com/groundswell-app/groundswell/internal/redemption/domain"
	referraldomain "github.com/groundswell-app/groundswell/internal/referral/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := ""
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, topup.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isConflictError(err):
		code := err.Error()
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Errors: []ValidationError{
				{Code: code, Message: conflictErrorMessage(code)},
			},
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, topup.ErrProviderFailure):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isMemberValidationError(err),
		isActionValidationError(err),
		isLedgerValidationError(err),
		isRedemptionValidationError(err),
		isReferralValidationError(err):
		return true
	default:
		return false
	}
}

func isMemberValidationError(err error) bool {
	return errors.Is(err, memberdomain.ErrInvalidName) ||
		errors.Is(err, memberdomain.ErrInvalidEmail) ||
		errors.Is(err, memberdomain.ErrInvalidID)
}

func isActionValidationError(err error) bool {
	return errors.Is(err, actiondomain.ErrInvalidMember) ||
		errors.Is(err, actiondomain.ErrInvalidTarget) ||
		errors.Is(err, actiondomain.ErrInvalidType) ||
		errors.Is(err, actiondomain.ErrInvalidSubtype)
}

func isLedgerValidationError(err error) bool {
	return errors.Is(err, ledgerdomain.ErrInvalidMember) ||
		errors.Is(err, ledgerdomain.ErrInvalidAmount) ||
		errors.Is(err, ledgerdomain.ErrInvalidSource) ||
		errors.Is(err, ledgerdomain.ErrInsufficientBalance)
}

func isRedemptionValidationError(err error) bool {
	return errors.Is(err, redemptiondomain.ErrInvalidMember) ||
		errors.Is(err, redemptiondomain.ErrInvalidProduct) ||
		errors.Is(err, redemptiondomain.ErrInvalidAmount) ||
		errors.Is(err, redemptiondomain.ErrInvalidMSISDN)
}

func isReferralValidationError(err error) bool {
	return errors.Is(err, referraldomain.ErrInvalidID) ||
		errors.Is(err, referraldomain.ErrInvalidReferral) ||
		errors.Is(err, referraldomain.ErrSelfReferral)
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, memberdomain.ErrEmailExists),
		errors.Is(err, memberdomain.ErrInvalidTransition),
		errors.Is(err, actiondomain.ErrDuplicateAction),
		errors.Is(err, referraldomain.ErrAlreadyReferred):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, memberdomain.ErrNotFound),
		errors.Is(err, redemptiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "insufficient_balance":
		return "insufficient points balance"
	case "self_referral":
		return "members cannot refer themselves"
	case "invalid_referral":
		return "unknown referral code"
	default:
		return "invalid value"
	}
}

func conflictErrorMessage(code string) string {
	switch code {
	case "duplicate_action":
		return "action already rewarded for this member and target"
	case "email_exists":
		return "email already registered"
	case "already_referred":
		return "member was already referred"
	case "invalid_status_transition":
		return "status transition not allowed"
	default:
		return "conflict"
	}
}
