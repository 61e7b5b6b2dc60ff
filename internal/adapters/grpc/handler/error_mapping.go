package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ogurasousui/checkin-ledger/internal/core/fault"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	switch fault.ClassOf(err) {
	case fault.ErrValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case fault.ErrPrecondition:
		return status.Error(codes.FailedPrecondition, err.Error())
	case fault.ErrAuthorization:
		return status.Error(codes.PermissionDenied, err.Error())
	case fault.ErrConsistency:
		return status.Error(codes.Aborted, err.Error())
	case fault.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
