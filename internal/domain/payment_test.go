package domain

import (
	"bytes"
	"errors"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestProofPolicyValidate(t *testing.T) {
	policy := ProofPolicy{MaxBytes: 64, AllowedTypes: []string{"image/jpeg", "image/png"}}

	tests := []struct {
		name    string
		proof   PaymentProof
		wantErr bool
	}{
		{name: "png", proof: PaymentProof{Filename: "p.png", ContentType: "image/png", Data: pngHeader}},
		{name: "undeclared png", proof: PaymentProof{Filename: "p.png", Data: pngHeader}},
		{name: "empty", proof: PaymentProof{Filename: "p.png", ContentType: "image/png"}, wantErr: true},
		{name: "too large", proof: PaymentProof{ContentType: "image/png", Data: append(pngHeader, bytes.Repeat([]byte{0}, 64)...)}, wantErr: true},
		{name: "declared pdf", proof: PaymentProof{ContentType: "application/pdf", Data: pngHeader}, wantErr: true},
		{name: "text disguised as png", proof: PaymentProof{ContentType: "image/png", Data: []byte("hello world")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.proof)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProof) {
					t.Fatalf("expected ErrInvalidProof, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestNormalizeContentType(t *testing.T) {
	if got := normalizeContentType(" Image/JPG; charset=binary"); got != "image/jpeg" {
		t.Fatalf("normalizeContentType() = %q", got)
	}
}
