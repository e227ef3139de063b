// Package gcperr maps Google API failures onto the error codes the
// publisher reports.
package gcperr

import (
	"context"
	stderrors "errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"postcraft/internal/pkg/errors"
)

// Classify wraps err with a code describing its cause class. Non-API
// errors (dial, TLS, ctx deadline) are treated as transient network
// failures.
func Classify(err error, op, message string) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.WrapWithCode(err, errors.CodeTimeout, op, message)
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, message)
	}

	e := errors.WrapWithCode(err, codeFor(apiErr.Code), op, message)
	return e.WithField("status", apiErr.Code)
}

func codeFor(status int) errors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return errors.CodeUnauthorized
	case status == http.StatusForbidden:
		return errors.CodeForbidden
	case status == http.StatusNotFound:
		return errors.CodeNotFound
	case status == http.StatusTooManyRequests:
		return errors.CodeResourceExhaust
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return errors.CodeTimeout
	case status >= 500:
		return errors.CodeUnavailable
	default:
		return errors.CodePublish
	}
}
