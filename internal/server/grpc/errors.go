package grpc

import (
	"context"
	"errors"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a service error onto a gRPC status. Authentication failures
// share one message per sentinel so callers cannot tell which check failed;
// infrastructure failures are logged and reported as a bare internal error.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isService(err) {
		return err
	}

	var locked *common.LockedError
	if errors.As(err, &locked) {
		return status.Error(codes.PermissionDenied, locked.Error())
	}

	switch common.KindOf(err) {
	case common.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case common.KindAuthentication:
		return status.Error(codes.Unauthenticated, sentinelMessage(err))
	case common.KindAuthorization:
		return status.Error(codes.PermissionDenied, sentinelMessage(err))
	case common.KindNotFound:
		return status.Error(codes.NotFound, sentinelMessage(err))
	case common.KindConflict:
		if errors.Is(err, common.ErrorAlreadyExists) {
			return status.Error(codes.AlreadyExists, sentinelMessage(err))
		}
		return status.Error(codes.FailedPrecondition, sentinelMessage(err))
	case common.KindThrottled:
		return status.Error(codes.ResourceExhausted, sentinelMessage(err))
	case common.KindCryptographic:
		s.logger.Error(ctx, "cryptographic failure", "method", method, "error", err)
		return status.Error(codes.Internal, common.ErrDecryptionFailed.Error())
	}

	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}

// isService reports whether err carries a service kind rather than being a
// status produced by grpc itself.
func isService(err error) bool {
	var e *common.Error
	return errors.As(err, &e)
}

// sentinelMessage strips wrapped detail down to the innermost sentinel text.
func sentinelMessage(err error) string {
	var e *common.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
