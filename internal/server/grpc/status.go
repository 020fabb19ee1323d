package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/ifcoins/internal/errs"
)

var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{errs.ErrInvalidArgument, codes.InvalidArgument},
	{errs.ErrInvalidProposal, codes.InvalidArgument},
	{errs.ErrSelfTrade, codes.InvalidArgument},
	{errs.ErrInsufficientFunds, codes.FailedPrecondition},
	{errs.ErrInsufficientHoldings, codes.FailedPrecondition},
	{errs.ErrStaleProposal, codes.FailedPrecondition},
	{errs.ErrAlreadySettled, codes.FailedPrecondition},
	{errs.ErrCatalogEmpty, codes.FailedPrecondition},
	{errs.ErrConflict, codes.Aborted},
	{errs.ErrOutOfStock, codes.ResourceExhausted},
	{errs.ErrRateLimited, codes.ResourceExhausted},
	{errs.ErrForbidden, codes.PermissionDenied},
	{errs.ErrUnauthorized, codes.Unauthenticated},
	{errs.ErrNotFound, codes.NotFound},
	{errs.ErrNoMatchingStudents, codes.NotFound},
	{errs.ErrAlreadyExists, codes.AlreadyExists},
}

// toStatus maps a service error to a gRPC status whose message starts with the stable error code,
// e.g. "insufficient_funds: buyer u1: insufficient funds". Unknown errors become a bare Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	for _, c := range statusCodes {
		if errors.Is(err, c.err) {
			return status.Error(c.code, errs.Code(err)+": "+err.Error())
		}
	}
	return status.Error(codes.Internal, "internal")
}

// FromStatus turns a status produced by toStatus back into an error wrapping the matching
// sentinel, so callers can use errors.Is on the client side.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return err
	}
	code, msg, found := strings.Cut(st.Message(), ": ")
	if !found {
		code = st.Message()
	}
	if sentinel := errs.FromCode(code); sentinel != nil {
		return &remoteError{msg: msg, sentinel: sentinel, st: st}
	}
	return err
}

type remoteError struct {
	msg      string
	sentinel error
	st       *status.Status
}

func (e *remoteError) Error() string {
	if e.msg == "" {
		return e.sentinel.Error()
	}
	return e.msg
}

func (e *remoteError) Unwrap() error { return e.sentinel }

// GRPCStatus keeps status.Code working on converted errors.
func (e *remoteError) GRPCStatus() *status.Status { return e.st }
