package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	idempotencyTTL       = 24 * time.Hour
)

type idempotencyErrorPayload struct {
	Code      int32  `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

// withIdempotency выполняет изменяющий вызов не больше одного раза на ключ.
// Без ключа в метаданных вызов выполняется как обычно. Повтор с тем же ключом
// получает сохранённый ответ; повтор после временного сбоя (Unavailable, Aborted)
// выполняется заново.
func withIdempotency[T any](
	s *StorefrontService,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	operation := method[strings.LastIndexByte(method, '/')+1:]

	idemKey, ok := readIdempotencyKey(ctx)
	if s.idemRepo == nil || !ok {
		resp, err := handler(ctx)
		if err != nil {
			return nil, s.rpcError(ctx, operation, err)
		}
		return resp, nil
	}

	reqHash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		return nil, s.rpcError(ctx, operation, fmt.Errorf("idempotency request hash: %w", err))
	}

	record, err := s.idemRepo.CreateProcessing(idemKey, method, reqHash, s.now().Add(idempotencyTTL))
	if err != nil && !retryableFailure(err, record) {
		resp, replayErr := replayIdempotency[T](s, err, record)
		if replayErr != nil {
			return nil, s.rpcError(ctx, operation, replayErr)
		}
		return resp, nil
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.cacheIdempotencyFailure(idemKey, runErr)
		return nil, s.rpcError(ctx, operation, runErr)
	}

	if cacheErr := s.cacheIdempotencySuccess(idemKey, resp); cacheErr != nil {
		s.logger.WithError(cacheErr).WithField("idempotency_key", idemKey).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

func retryableFailure(createErr error, record domain.IdempotencyRecord) bool {
	if !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) || record.Status != domain.IdempotencyStatusFailed {
		return false
	}
	code, ok := grpcCodeFromInt(record.StatusCode)
	return ok && (code == codes.Unavailable || code == codes.Aborted)
}

func replayIdempotency[T any](s *StorefrontService, createErr error, record domain.IdempotencyRecord) (*T, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, &cachedFailure{code: codes.AlreadyExists, message: "idempotency key is already used with different request payload"}
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.Response) == 0 {
				return nil, &cachedFailure{code: codes.Internal, message: "idempotency cache is empty"}
			}
			resp := new(T)
			if err := json.Unmarshal(record.Response, resp); err != nil {
				s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
				return nil, &cachedFailure{code: codes.Internal, message: "failed to decode cached idempotency response"}
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, &cachedFailure{code: codes.Aborted, message: "request with the same idempotency key is already processing", errorCode: domain.ErrOperationInProgress.Code}
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, &cachedFailure{code: codes.Internal, message: "unknown idempotency record status"}
		}
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, &cachedFailure{code: codes.Internal, message: "failed to initialize idempotency request"}
	}
}

func (s *StorefrontService) cacheIdempotencySuccess(key string, resp any) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.idemRepo.MarkDone(key, data, int(codes.OK))
}

func (s *StorefrontService) cacheIdempotencyFailure(key string, runErr error) {
	code, errCode := classify(runErr)
	message := runErr.Error()
	if code == codes.Internal {
		message = "internal error"
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:      int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message:   message,
		ErrorCode: errCode,
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := s.idemRepo.MarkFailed(key, payload, int(code)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	if len(record.Response) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.Response, &payload); err == nil {
			if code, ok := grpcCodeFromInt(int(payload.Code)); ok {
				if code == codes.OK {
					code = codes.Internal
				}
				if payload.Message == "" {
					payload.Message = fallback
				}
				return &cachedFailure{code: code, message: payload.Message, errorCode: payload.ErrorCode}
			}
		}
	}

	if code, ok := grpcCodeFromInt(record.StatusCode); ok && code != codes.OK {
		return &cachedFailure{code: code, message: fallback}
	}
	return &cachedFailure{code: codes.Internal, message: fallback}
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // проверено выше
}

func readIdempotencyKey(ctx context.Context) (string, bool) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), true
		}
	}
	return "", false
}

func buildIdempotencyRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
