package domain

import (
	"net/http"
	"strings"
)

// DefaultProofMaxBytes: ограничение размера файла подтверждения оплаты.
const DefaultProofMaxBytes int64 = 2 << 20

// PaymentProof: файл подтверждения перевода, загружаемый покупателем.
type PaymentProof struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProofPolicy задаёт допустимые типы и размер файла.
type ProofPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultProofPolicy разрешает jpeg и png до DefaultProofMaxBytes.
func DefaultProofPolicy() ProofPolicy {
	return ProofPolicy{
		MaxBytes:     DefaultProofMaxBytes,
		AllowedTypes: []string{"image/jpeg", "image/png"},
	}
}

// Validate проверяет файл до сетевого вызова: размер, заявленный и фактический тип.
func (p ProofPolicy) Validate(proof PaymentProof) error {
	size := int64(len(proof.Data))
	if size == 0 {
		return ErrInvalidProof.WithMessage("payment proof is empty")
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return ErrInvalidProof.WithMessage("payment proof is %d bytes, limit %d", size, p.MaxBytes)
	}

	declared := normalizeContentType(proof.ContentType)
	if declared != "" && !p.allowed(declared) {
		return ErrInvalidProof.WithMessage("content type %q is not accepted", proof.ContentType)
	}
	sniffed := normalizeContentType(http.DetectContentType(proof.Data))
	if !p.allowed(sniffed) {
		return ErrInvalidProof.WithMessage("file content is %q, not an accepted image", sniffed)
	}
	return nil
}

func (p ProofPolicy) allowed(contentType string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
