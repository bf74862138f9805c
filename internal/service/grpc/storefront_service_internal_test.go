package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/client/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		errCode string
	}{
		{name: "validation", err: domain.ErrInvalidQuantity, code: codes.InvalidArgument, errCode: "INVALID_QUANTITY"},
		{name: "wrapped ineligibility", err: fmt.Errorf("add: %w", domain.ErrOutOfStock.WithMessage("none left")), code: codes.FailedPrecondition, errCode: "OUT_OF_STOCK"},
		{name: "backend not found", err: domain.ErrNotFound, code: codes.NotFound, errCode: "NOT_FOUND"},
		{name: "transport", err: domain.ErrTransport.Wrap(context.DeadlineExceeded), code: codes.Unavailable, errCode: "TRANSPORT"},
		{name: "upload failed", err: domain.ErrUploadFailed, code: codes.Unavailable, errCode: "UPLOAD_FAILED"},
		{name: "auth", err: domain.ErrSessionExpired, code: codes.Unauthenticated, errCode: "SESSION_EXPIRED"},
		{name: "stale preview", err: domain.ErrStalePreview, code: codes.Aborted, errCode: errorCodeStale},
		{name: "version conflict", err: domain.ErrCartVersionConflict, code: codes.Aborted, errCode: errorCodeStale},
		{name: "mirror not found", err: domain.ErrOrderNotFound, code: codes.NotFound, errCode: errorCodeNotFound},
		{name: "user required", err: domain.ErrUserRequired, code: codes.InvalidArgument, errCode: errorCodeInvalid},
		{name: "canceled", err: context.Canceled, code: codes.Canceled},
		{name: "unknown", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, errCode := classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.errCode, errCode)
		})
	}
}

func TestRPCError_HidesInternalDetails(t *testing.T) {
	s := NewStorefrontService(nil, nil, nil, nil, nil)

	err := s.rpcError(context.Background(), "GetCart", errors.New("dial tcp 10.0.0.1:5432: refused"))
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal error", status.Convert(err).Message())

	passthrough := status.Error(codes.InvalidArgument, "user_id is required")
	assert.Equal(t, passthrough, s.rpcError(context.Background(), "GetCart", passthrough))
	assert.NoError(t, s.rpcError(context.Background(), "GetCart", nil))
}

func TestAccessTokenInterceptor(t *testing.T) {
	interceptor := AccessTokenInterceptor()

	cases := map[string]string{
		"Bearer abc.def": "abc.def",
		"bearer  xyz":    "xyz",
		"raw-token":      "raw-token",
	}
	for header, want := range cases {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", header))
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
			token, ok := backend.AccessToken(ctx)
			assert.True(t, ok)
			assert.Equal(t, want, token)
			return nil, nil
		})
		require.NoError(t, err)
	}

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		_, ok := backend.AccessToken(ctx)
		assert.False(t, ok)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestDecodeIdempotencyFailure(t *testing.T) {
	record := domain.IdempotencyRecord{
		Status:     domain.IdempotencyStatusFailed,
		Response:   []byte(`{"code":9,"message":"OUT_OF_STOCK: none left","error_code":"OUT_OF_STOCK"}`),
		StatusCode: int(codes.FailedPrecondition),
	}
	var cached *cachedFailure
	require.ErrorAs(t, decodeIdempotencyFailure(record), &cached)
	assert.Equal(t, codes.FailedPrecondition, cached.code)
	assert.Equal(t, "OUT_OF_STOCK", cached.errorCode)

	record.Response = []byte("not json")
	require.ErrorAs(t, decodeIdempotencyFailure(record), &cached)
	assert.Equal(t, codes.FailedPrecondition, cached.code)
	assert.Empty(t, cached.errorCode)

	record.StatusCode = 99
	require.ErrorAs(t, decodeIdempotencyFailure(record), &cached)
	assert.Equal(t, codes.Internal, cached.code)
}

type flakyCarts struct {
	CartService
	errs  []error
	calls int
}

func (f *flakyCarts) Clear(_ context.Context, userID string) (cart.Result, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return cart.Result{}, err
	}
	return cart.Result{Cart: domain.Cart{UserID: userID}}, nil
}

func TestWithIdempotency_RetriesAfterTransientFailure(t *testing.T) {
	carts := &flakyCarts{errs: []error{domain.ErrTransport}}
	s := NewStorefrontService(carts, nil, nil, memory.NewIdempotencyRepository(), nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(idempotencyKeyHeader, "k-1"))
	req := &storefrontv1.ClearCartRequest{UserId: "u1"}

	_, err := s.ClearCart(ctx, req)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	resp, err := s.ClearCart(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.Cart.UserId)

	// успешный ответ теперь закеширован
	_, err = s.ClearCart(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, carts.calls)
}

func TestWithIdempotency_ProcessingKeyIsAborted(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	hash, err := buildIdempotencyRequestHash(storefrontv1.StorefrontService_ClearCart_FullMethodName, &storefrontv1.ClearCartRequest{UserId: "u1"})
	require.NoError(t, err)
	_, err = repo.CreateProcessing("k-busy", storefrontv1.StorefrontService_ClearCart_FullMethodName, hash, nowPlusHour())
	require.NoError(t, err)

	carts := &flakyCarts{}
	s := NewStorefrontService(carts, nil, nil, repo, nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(idempotencyKeyHeader, "k-busy"))

	_, err = s.ClearCart(ctx, &storefrontv1.ClearCartRequest{UserId: "u1"})
	assert.Equal(t, codes.Aborted, status.Code(err))
	assert.Zero(t, carts.calls)
}

func nowPlusHour() time.Time { return time.Now().UTC().Add(time.Hour) }
