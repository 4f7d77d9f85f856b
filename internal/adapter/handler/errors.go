package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/port"
)

var errInvalidRequest = errors.New("invalid request")

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, domain.ErrUnknownPhase),
		errors.Is(err, service.ErrSessionRequired):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, port.ErrVersionConflict),
		errors.Is(err, service.ErrCheckoutInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, domain.ErrUnknownPhase),
		errors.Is(err, service.ErrSessionRequired):
		return codes.InvalidArgument
	case errors.Is(err, service.ErrNotAuthenticated):
		return codes.Unauthenticated
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, service.ErrPaymentDeclined):
		return codes.FailedPrecondition
	case errors.Is(err, port.ErrVersionConflict),
		errors.Is(err, service.ErrCheckoutInProgress):
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// publicMessage hides internal failure details from clients.
func publicMessage(err error) string {
	if httpStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
