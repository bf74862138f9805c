package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const placeOrderMethod = "/storefront.v1.StorefrontService/PlaceOrder"

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing("idem-key-1", placeOrderMethod, "hash-1", ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected status %s, got %s", domain.IdempotencyStatusProcessing, created.Status)
	}

	got, err := repo.Get("idem-key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != "hash-1" || got.Method != placeOrderMethod {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.TTLAt.Equal(ttl) {
		t.Fatalf("expected ttl %s, got %s", ttl, got.TTLAt)
	}
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("idem-key-2", placeOrderMethod, "hash-a", ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if _, err := repo.CreateProcessing("idem-key-2", placeOrderMethod, "hash-a", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if _, err := repo.CreateProcessing("idem-key-2", placeOrderMethod, "hash-b", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
	if _, err := repo.CreateProcessing("idem-key-2", "/other", "hash-a", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("same key on other method must mismatch, got %v", err)
	}
}

func TestIdempotencyRepository_ExpiredKeyCanBeReused(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.CreateProcessing("idem-old", placeOrderMethod, "hash-a", time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if _, err := repo.CreateProcessing("idem-old", placeOrderMethod, "hash-b", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("expired key must be reusable, got %v", err)
	}
}

func TestIdempotencyRepository_MarkDoneAndDeleteExpired(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.CreateProcessing("idem-expired", placeOrderMethod, "hash-expired", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateProcessing expired failed: %v", err)
	}
	if _, err := repo.CreateProcessing("idem-active", placeOrderMethod, "hash-active", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing active failed: %v", err)
	}

	if err := repo.MarkDone("idem-active", []byte(`{"order":{"id":"o-1"}}`), 0); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	active, err := repo.Get("idem-active")
	if err != nil {
		t.Fatalf("Get active failed: %v", err)
	}
	if active.Status != domain.IdempotencyStatusDone || string(active.Response) != `{"order":{"id":"o-1"}}` {
		t.Fatalf("unexpected record %+v", active)
	}

	deleted, err := repo.DeleteExpired(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := repo.Get("idem-expired"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
	if err := repo.MarkFailed("idem-expired", nil, 9); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound on missing key, got %v", err)
	}
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.CreateProcessing(" ", placeOrderMethod, "hash", time.Time{}); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.CreateProcessing("key", placeOrderMethod, "", time.Time{}); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRepository_ClockAndOldestFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := memory.NewIdempotencyRepository(memory.WithIdempotencyClock(func() time.Time { return now }))

	for key, ttl := range map[string]time.Duration{
		"cancel-1": -time.Minute,
		"place-1":  -time.Hour,
		"upload-1": -30 * time.Minute,
	} {
		if _, err := repo.CreateProcessing(key, placeOrderMethod, "h", now.Add(ttl)); err != nil {
			t.Fatalf("CreateProcessing %s failed: %v", key, err)
		}
	}
	fresh, err := repo.CreateProcessing("place-2", placeOrderMethod, "h", time.Time{})
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if !fresh.CreatedAt.Equal(now) || !fresh.TTLAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("unexpected timestamps %+v", fresh)
	}

	// нулевая отсечка берёт время из часов репозитория
	deleted, err := repo.DeleteExpired(time.Time{}, 2)
	if err != nil || deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d (%v)", deleted, err)
	}
	if _, err := repo.Get("cancel-1"); err != nil {
		t.Fatalf("newest expired key must be left for next batch: %v", err)
	}
	for _, key := range []string{"place-1", "upload-1"} {
		if _, err := repo.Get(key); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			t.Fatalf("expected %s deleted, got %v", key, err)
		}
	}
}
