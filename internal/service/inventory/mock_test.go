package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestMockService(t *testing.T) {
	ctx := context.Background()
	mock := NewMockService(domain.ProductOffer{ProductID: "p-1", StoreID: "s-1", Name: "Milk", Price: 1500, Stock: 3})

	offer, err := mock.Product(ctx, "p-1", "s-1")
	if err != nil {
		t.Fatalf("unexpected product error: %v", err)
	}
	if offer.Stock != 3 || offer.Price != 1500 {
		t.Fatalf("unexpected offer: %+v", offer)
	}

	if _, err := mock.Product(ctx, "p-1", "s-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other store, got %v", err)
	}

	if !mock.SetStock("s-1", "p-1", 0) || !mock.SetPrice("s-1", "p-1", 1800) {
		t.Fatal("expected existing product to be updated")
	}
	if mock.SetStock("s-1", "missing", 1) {
		t.Fatal("expected update of missing product to fail")
	}
	offer, _ = mock.Product(ctx, "p-1", "s-1")
	if offer.Stock != 0 || offer.Price != 1800 {
		t.Fatalf("unexpected offer after update: %+v", offer)
	}

	mock.Remove("s-1", "p-1")
	if _, err := mock.Product(ctx, "p-1", "s-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected removed product to be missing, got %v", err)
	}

	mock.ProductErr = domain.ErrTransport
	if _, err := mock.Product(ctx, "p-1", "s-1"); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected configured error, got %v", err)
	}
	if mock.ProductCalls != 5 {
		t.Fatalf("unexpected call counter: %d", mock.ProductCalls)
	}
}
