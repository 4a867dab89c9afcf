package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/pkg/issuance"
	"github.com/agentattest/attest-core/pkg/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// apiError is a service failure with the operation it interrupted.
type apiError struct {
	op  string
	err error
}

func newAPIError(op string, err error) *apiError {
	return &apiError{op: op, err: err}
}

func (e *apiError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *apiError) Unwrap() error {
	return e.err
}

func (s *Server) handleError(err error, c echo.Context) {
	code, resp := processError(err)

	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", log.WithURL(c.Request().RequestURI), log.WithError(err))
	} else {
		s.logger.Debug("request refused", log.WithURL(c.Request().RequestURI), log.WithError(err))
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		s.logger.Error("failed to write error response", log.WithError(err))
	}
}

func processError(err error) (int, errorResponse) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, errorResponse{Error: fmt.Sprint(httpErr.Message)}
	}

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}

	code := statusFor(apiErr.err)
	if code < http.StatusInternalServerError {
		return code, errorResponse{Error: clientMessage(apiErr.err)}
	}

	resp := errorResponse{Error: apiErr.Error(), Code: ledger.ErrorCode(apiErr.err)}
	switch resp.Code {
	case ledger.ErrCodeUnknown, ledger.ErrCodeHashMismatch:
		resp.Error = fmt.Sprintf("%s: ledger outcome unknown, the transaction may still be confirmed (%v)", apiErr.op, apiErr.err)
	}
	return code, resp
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, issuance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, issuance.ErrAlreadyIssued),
		errors.Is(err, issuance.ErrNotActive),
		errors.Is(err, issuance.ErrMissingIdentifier),
		errors.Is(err, issuance.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, issuance.ErrAlreadyIssued):
		return "Already issued"
	case errors.Is(err, issuance.ErrMissingIdentifier):
		return "Either agent_did or credential_id is required"
	default:
		return err.Error()
	}
}
