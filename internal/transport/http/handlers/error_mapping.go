package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

const internalErrorMessage = "Something went wrong. Please try again later."

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Lockout and failed-attempt errors carry their own counters and are rendered before the table is consulted.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var (
		locked     *usecase.AccountLockedError
		creds      *usecase.InvalidCredentialsError
		validation *usecase.ValidationError
		dependency *usecase.DependencyError
	)

	switch {
	case errors.As(err, &locked):
		c.JSON(http.StatusForbidden, NewErrorResponse(c,
			fmt.Sprintf("Too many failed attempts. Your account is temporarily locked for %d min.", locked.MinutesRemaining())))
		return
	case errors.As(err, &creds):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c,
			fmt.Sprintf("Invalid credentials! (%d/%d attempts)", creds.Attempt, creds.Limit)))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Message))
	case errors.As(err, &dependency):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, internalErrorMessage))
	default:
		if fallbackStatus >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
	}
}

func asValidation(err error) (*usecase.ValidationError, bool) {
	var validation *usecase.ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}
