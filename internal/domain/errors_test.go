package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "version conflict error",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "idempotency already exists",
			err:  ErrIdempotencyKeyAlreadyExists,
			want: true,
		},
		{
			name: "idempotency hash mismatch",
			err:  ErrIdempotencyHashMismatch,
			want: true,
		},
		{
			name: "wrapped idempotency conflict",
			err:  errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")),
			want: true,
		},
		{
			name: "fmt wrapped hash mismatch",
			err:  fmt.Errorf("place order: %w", ErrIdempotencyHashMismatch),
			want: true,
		},
		{
			name: "missing key is not a conflict",
			err:  ErrIdempotencyKeyNotFound,
			want: false,
		},
		{
			name: "non idempotency error",
			err:  ErrOrderVersionConflict,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsIdempotencyConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypedErrorsMatchByCode(t *testing.T) {
	detailed := ErrOutOfStock.WithMessage("product %s: requested %d", "p-1", 3)
	if !errors.Is(detailed, ErrOutOfStock) {
		t.Fatal("detailed copy must match its sentinel")
	}
	if errors.Is(detailed, ErrVoucherExpired) {
		t.Fatal("different codes must not match")
	}

	wrapped := fmt.Errorf("add to cart: %w", detailed)
	if !errors.Is(wrapped, ErrOutOfStock) {
		t.Fatal("wrapped error must match its sentinel")
	}
	if got := KindOf(wrapped); got != KindIneligibility {
		t.Fatalf("KindOf() = %q, want %q", got, KindIneligibility)
	}
	if got := CodeOf(wrapped); got != "OUT_OF_STOCK" {
		t.Fatalf("CodeOf() = %q", got)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err       *Error
		kind      ErrorKind
		retryable bool
	}{
		{err: ErrInvalidQuantity, kind: KindValidation},
		{err: ErrInvalidProof, kind: KindValidation},
		{err: ErrNoAddressSelected, kind: KindValidation},
		{err: ErrVoucherIneligible, kind: KindIneligibility},
		{err: ErrIllegalTransition, kind: KindIneligibility},
		{err: ErrNoShippingAvailable, kind: KindIneligibility},
		{err: ErrTransport, kind: KindTransport, retryable: true},
		{err: ErrUploadFailed, kind: KindTransport, retryable: true},
		{err: ErrSessionExpired, kind: KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if IsRetryable(tt.err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(tt.err), tt.retryable)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrTransport.Wrap(cause)

	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Fatalf("wrapped transport error must match both sentinel and cause: %v", err)
	}
	if ErrTransport.Err != nil {
		t.Fatal("Wrap must not mutate the sentinel")
	}
}

func TestLookupError(t *testing.T) {
	got, ok := LookupError("VOUCHER_ALREADY_USED")
	if !ok || got != ErrVoucherAlreadyUsed {
		t.Fatalf("LookupError() = %v, %v", got, ok)
	}
	if _, ok := LookupError("SOMETHING_ELSE"); ok {
		t.Fatal("unknown code must not resolve")
	}
}
