package server

import (
	"errors"
	"net/http"
	"strings"

	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrRateLimited    = errors.New("rate_limited")
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

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, payload("validation_error", err)

	case errors.Is(err, tokendomain.ErrInsufficientFunds),
		errors.Is(err, tokendomain.ErrInsufficientAllowance):
		return http.StatusPaymentRequired, payload("insufficient_balance", err)

	case isNotFoundError(err):
		return http.StatusNotFound, payload("not_found", err)

	case isConflictError(err):
		return http.StatusConflict, payload("conflict", err)

	case errors.Is(err, pooldomain.ErrInviteOnly):
		return http.StatusForbidden, payload("forbidden", err)

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, payload("rate_limited", err)

	case isStateError(err):
		return http.StatusUnprocessableEntity, payload("invalid_state", err)

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pooldomain.ErrInvalidCreator),
		errors.Is(err, pooldomain.ErrInvalidName),
		errors.Is(err, pooldomain.ErrInvalidToken),
		errors.Is(err, pooldomain.ErrInvalidMemberCount),
		errors.Is(err, pooldomain.ErrInvalidContribution),
		errors.Is(err, pooldomain.ErrInvalidCycleLength),
		errors.Is(err, pooldomain.ErrInvalidGracePeriod),
		errors.Is(err, pooldomain.ErrStartTimeInPast),
		errors.Is(err, pooldomain.ErrInvalidFeeBps),
		errors.Is(err, pooldomain.ErrInvalidIdentity),
		errors.Is(err, pooldomain.ErrMissingReason),
		errors.Is(err, contributiondomain.ErrInvalidCycle),
		errors.Is(err, tokendomain.ErrInvalidAmount),
		errors.Is(err, tokendomain.ErrInvalidIdentity),
		errors.Is(err, tokendomain.ErrInvalidToken),
		errors.Is(err, tokendomain.ErrSameAccount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, pooldomain.ErrPoolNotFound),
		errors.Is(err, membershipdomain.ErrNotAMember),
		errors.Is(err, payoutdomain.ErrNoRecipient),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, membershipdomain.ErrAlreadyMember),
		errors.Is(err, membershipdomain.ErrPoolFull),
		errors.Is(err, contributiondomain.ErrAlreadyContributed),
		errors.Is(err, payoutdomain.ErrAlreadyProcessed):
		return true
	default:
		return false
	}
}

func isStateError(err error) bool {
	switch {
	case errors.Is(err, pooldomain.ErrPoolNotPending),
		errors.Is(err, pooldomain.ErrPoolNotActive),
		errors.Is(err, pooldomain.ErrPoolTerminal),
		errors.Is(err, pooldomain.ErrStartTimeNotReached),
		errors.Is(err, pooldomain.ErrPoolNotFull),
		errors.Is(err, pooldomain.ErrWindowClosed),
		errors.Is(err, membershipdomain.ErrMemberExited):
		return true
	default:
		return false
	}
}

func payload(errType string, err error) errorPayload {
	code := err.Error()
	return errorPayload{
		Type:    errType,
		Code:    code,
		Message: strings.ReplaceAll(code, "_", " "),
	}
}
