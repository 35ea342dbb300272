package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/smartprice/api/internal/repositories"
)

// WrapError classifies Firestore failures as repository store errors. Context cancellations are
// passed through unchanged so callers can tell a client abort from a backend fault.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		if op != "" && storeErr.Op == "" {
			storeErr.Op = op
		}
		return storeErr
	}

	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, err)
	case codes.NotFound:
		return repositories.NewStoreError(op, repositories.StoreErrorNotFound, err)
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return repositories.NewStoreError(op, repositories.StoreErrorConflict, err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Unauthenticated, codes.PermissionDenied:
		return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, err)
	}
	return repositories.NewStoreError(op, repositories.StoreErrorUnknown, err)
}
