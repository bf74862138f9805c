package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorCodeTrailer: trailer с доменным кодом ошибки (OUT_OF_STOCK, VOUCHER_EXPIRED, ...).
const ErrorCodeTrailer = "x-error-code"

const (
	errorCodeStale    = "STALE"
	errorCodeNotFound = "NOT_FOUND"
	errorCodeInvalid  = "BAD_REQUEST"
)

// cachedFailure: ошибка, восстановленная из записи идемпотентности.
type cachedFailure struct {
	code      codes.Code
	message   string
	errorCode string
}

func (e *cachedFailure) Error() string { return e.message }

// classify сопоставляет ошибку коду gRPC и доменному коду для trailer.
func classify(err error) (codes.Code, string) {
	errCode := domain.CodeOf(err)
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return codes.InvalidArgument, errCode
	case domain.KindIneligibility:
		if errors.Is(err, domain.ErrNotFound) {
			return codes.NotFound, errCode
		}
		return codes.FailedPrecondition, errCode
	case domain.KindTransport:
		return codes.Unavailable, errCode
	case domain.KindAuth:
		return codes.Unauthenticated, errCode
	}

	switch {
	case errors.Is(err, domain.ErrStalePreview), domain.IsVersionConflict(err):
		return codes.Aborted, errorCodeStale
	case errors.Is(err, domain.ErrOrderNotFound):
		return codes.NotFound, errorCodeNotFound
	case errors.Is(err, domain.ErrOrderIDRequired), errors.Is(err, domain.ErrUserRequired):
		return codes.InvalidArgument, errorCodeInvalid
	case errors.Is(err, context.Canceled):
		return codes.Canceled, ""
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, ""
	default:
		return codes.Internal, ""
	}
}

// rpcError превращает ошибку сервиса в статус gRPC и выставляет trailer с доменным кодом.
func (s *StorefrontService) rpcError(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}

	var cached *cachedFailure
	if errors.As(err, &cached) {
		setErrorCodeTrailer(ctx, cached.errorCode)
		return status.Error(cached.code, cached.message)
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code, errCode := classify(err)
	setErrorCodeTrailer(ctx, errCode)

	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation":  operation,
		"grpc_code":  code.String(),
		"error_code": errCode,
	})
	if code == codes.Internal {
		entry.Error("request failed")
		return status.Error(codes.Internal, "internal error")
	}
	if code == codes.Unavailable {
		entry.Warn("request failed")
	} else {
		entry.Debug("request rejected")
	}
	return status.Error(code, err.Error())
}

func setErrorCodeTrailer(ctx context.Context, errCode string) {
	if errCode == "" {
		return
	}
	// вне gRPC-вызова (юнит-тесты) trailer выставить некуда
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorCodeTrailer, errCode))
}
