package grpccapsule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Several sentinels share a code; the client tells them apart by the
// sentinel text carried in the status message.
var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{cs.ErrStaleLinkage, codes.FailedPrecondition},
	{cs.ErrRecordNotFound, codes.OutOfRange},
	{cs.ErrCapsuleNotFound, codes.NotFound},
	{cs.ErrNameNotFound, codes.NotFound},
	{cs.ErrNameTaken, codes.AlreadyExists},
	{cs.ErrCorruptRecord, codes.DataLoss},
	{cs.ErrInvalidName, codes.InvalidArgument},
	{cs.ErrUnavailable, codes.Unavailable},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return status.Error(sc.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, sc := range statusCodes {
		if st.Code() == sc.code && strings.Contains(st.Message(), sc.err.Error()) {
			return fmt.Errorf("%w: remote: %s", sc.err, st.Message())
		}
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", cs.ErrUnavailable, st.Message())
	}
	return err
}
