package proxy

import (
	"errors"
	"fmt"

	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/dispatch"
	"mercator-hq/broker/pkg/limits"
	"mercator-hq/broker/pkg/proxy/types"
	"mercator-hq/broker/pkg/requestlog"
	"mercator-hq/broker/pkg/telemetry/logging"
)

var (
	// ErrUnauthorized is returned for missing, unknown, inactive or expired
	// tokens.
	ErrUnauthorized = errors.New("invalid or expired API key")

	// ErrServiceNotFound is returned for unknown or inactive services.
	ErrServiceNotFound = errors.New("service not found")

	// ErrEndpointNotFound is returned for unknown endpoints.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

var redactor = logging.NewRedactor()

// HandleError maps an error from the admission or dispatch path to an
// error response.
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var handlerErr *dispatch.HandlerError
	if errors.As(err, &handlerErr) {
		return types.NewServerError(
			SanitizeMessage(fmt.Sprintf("service %s failed: %v", handlerErr.Service, handlerErr.Err)),
			types.CodeHandlerError,
		)
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return types.NewAuthenticationError(ErrUnauthorized.Error())
	case errors.Is(err, ErrServiceNotFound):
		return types.NewNotFoundError(err.Error(), "service", types.CodeServiceNotFound)
	case errors.Is(err, ErrEndpointNotFound):
		return types.NewNotFoundError(err.Error(), "endpoint", types.CodeEndpointNotFound)
	case errors.Is(err, requestlog.ErrNotFound):
		return types.NewNotFoundError("request not found", "requestId", types.CodeRequestNotFound)
	case errors.Is(err, dispatch.ErrTimeout):
		return types.NewTimeoutError("request timed out")
	case errors.Is(err, dispatch.ErrShuttingDown):
		return types.NewServiceUnavailableError("broker is shutting down", types.CodeShuttingDown)
	case errors.Is(err, directory.ErrUnavailable):
		return types.NewServiceUnavailableError("directory unavailable", types.CodeDirectoryDown)
	case errors.Is(err, limits.ErrStoreUnavailable):
		return types.NewServiceUnavailableError("usage counters unavailable", types.CodeCountersDown)
	}

	return types.NewServerError("An internal error occurred. Please try again later.", types.CodeInternalError)
}

// SanitizeMessage masks credentials that a handler may have echoed into
// its error message.
func SanitizeMessage(msg string) string {
	return redactor.RedactString(msg)
}
