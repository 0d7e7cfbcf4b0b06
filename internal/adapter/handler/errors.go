package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type errorKind struct {
	target error
	status int
	code   codes.Code
	name   string
}

var errorKinds = []errorKind{
	{ErrUnauthenticated, http.StatusUnauthorized, codes.Unauthenticated, "unauthenticated"},
	{domain.ErrInvalidInput, http.StatusBadRequest, codes.InvalidArgument, "invalid_input"},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "not_found"},
	{domain.ErrForbidden, http.StatusForbidden, codes.PermissionDenied, "forbidden"},
	{domain.ErrInsufficientStock, http.StatusConflict, codes.FailedPrecondition, "insufficient_stock"},
	{domain.ErrEmptyCart, http.StatusBadRequest, codes.FailedPrecondition, "empty_cart"},
	{domain.ErrProductGone, http.StatusGone, codes.NotFound, "product_gone"},
	{domain.ErrBusy, http.StatusServiceUnavailable, codes.Unavailable, "busy"},
	{domain.ErrDuplicateRequest, http.StatusConflict, codes.Aborted, "duplicate_request"},
}

func classify(err error) (errorKind, bool) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k, true
		}
	}
	return errorKind{status: http.StatusInternalServerError, code: codes.Internal, name: "internal"}, false
}
