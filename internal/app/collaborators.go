package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/client/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/promo"
	"github.com/vladislavdragonenkov/storefront/internal/service/shipping"
)

const devExpirySweepInterval = time.Minute

// collaborators: внешние сервисы, к которым обращается витрина.
type collaborators struct {
	catalog   domain.CatalogService
	discounts domain.DiscountService
	vouchers  domain.VoucherService
	locator   domain.StoreLocator
	options   domain.ShippingOptionSource
	gateway   domain.OrderGateway
	admin     domain.OrderAdminGateway

	checker healthcheck.Checker
	// background: фоновые задачи заглушек; nil для настоящего бэкенда.
	background func(ctx context.Context)
}

// initCollaborators подключает бэкенд по BackendURL, а без него поднимает заглушки в памяти.
func initCollaborators(cfg Config, m *metrics.StorefrontMetrics, logger *log.Entry) (*collaborators, error) {
	if cfg.BackendURL == "" {
		logger.Warn("backend url is not set, using in-process mock collaborators")
		return newDevCollaborators(cfg), nil
	}

	client, err := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithMetrics(m),
		backend.WithLogger(logger.WithField("component", "backend-client")),
	)
	if err != nil {
		return nil, err
	}
	logger.WithField("backend_url", cfg.BackendURL).Info("backend client initialized")
	return &collaborators{
		catalog:   client,
		discounts: client,
		vouchers:  client,
		locator:   client,
		options:   client,
		gateway:   client,
		admin:     client,
		checker:   healthcheck.NewOptionalChecker("backend", client.Ping),
	}, nil
}

func newDevCollaborators(cfg Config) *collaborators {
	catalog := inventory.NewMockService(devOffers()...)
	promos := promo.NewMockService()
	for _, seed := range devRules() {
		promos.AddRule(seed.storeID, seed.rule)
	}
	for _, v := range devVouchers() {
		promos.AddVoucher(v)
	}
	locator := shipping.NewStaticLocator(devStores()...)
	gateway := payment.NewMockGateway(catalog, payment.WithPaymentWindow(cfg.PaymentWindow))

	return &collaborators{
		catalog:   catalog,
		discounts: promos,
		vouchers:  promos,
		locator:   locator,
		options:   locator,
		gateway:   gateway,
		admin:     gateway,
		background: func(ctx context.Context) {
			ticker := time.NewTicker(devExpirySweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					gateway.ExpireUnpaid()
				}
			}
		},
	}
}

func shippingRates(cfg Config) domain.ShippingRates {
	return domain.ShippingRates{
		PerKm: decimal.NewFromInt(cfg.ShippingPerKm),
		PerKg: decimal.NewFromInt(cfg.ShippingPerKg),
	}
}

func devStores() []shipping.Store {
	options := []domain.ShippingOption{
		{ServiceCode: "REG", Name: "Regular", BaseCost: 5000, ETD: "1-2 days"},
		{ServiceCode: "EXP", Name: "Express", BaseCost: 15000, ETD: "same day"},
	}
	return []shipping.Store{
		{ID: "store-bdg", Name: "Bandung Dago", Location: domain.Coordinates{Lat: -6.8845, Lng: 107.6131}, Options: options},
		{ID: "store-jkt", Name: "Jakarta Menteng", Location: domain.Coordinates{Lat: -6.1963, Lng: 106.8329}, Options: options},
	}
}

func devOffers() []domain.ProductOffer {
	var offers []domain.ProductOffer
	for _, storeID := range []string{"store-bdg", "store-jkt"} {
		offers = append(offers,
			domain.ProductOffer{ProductID: "milk-1l", StoreID: storeID, Name: "Fresh milk 1L", Price: 21500, Stock: 40, WeightGrams: 1050},
			domain.ProductOffer{ProductID: "bread-wheat", StoreID: storeID, Name: "Wheat bread", Price: 18000, Stock: 25, WeightGrams: 400},
			domain.ProductOffer{ProductID: "eggs-10", StoreID: storeID, Name: "Eggs x10", Price: 27000, Stock: 30, WeightGrams: 650},
			domain.ProductOffer{ProductID: "rice-5kg", StoreID: storeID, Name: "Rice 5kg", Price: 72000, Stock: 12, WeightGrams: 5000},
		)
	}
	return offers
}

type devRule struct {
	storeID string
	rule    domain.DiscountRule
}

func devRules() []devRule {
	return []devRule{
		{storeID: "store-bdg", rule: domain.DiscountRule{
			ID: 1, Name: "Milk 10% off", Scope: domain.DiscountScopeProduct, ProductID: "milk-1l",
			Kind: domain.DiscountKindPercentage, Value: decimal.NewFromInt(10),
		}},
		{storeID: "store-bdg", rule: domain.DiscountRule{
			ID: 2, Name: "Bread buy one get one", Scope: domain.DiscountScopeProduct, ProductID: "bread-wheat",
			Kind: domain.DiscountKindBOGO,
		}},
		{storeID: "store-jkt", rule: domain.DiscountRule{
			ID: 3, Name: "Big basket", Scope: domain.DiscountScopeCart,
			Kind: domain.DiscountKindNominal, Value: decimal.NewFromInt(10000), MinPurchase: 150000,
		}},
	}
}

func devVouchers() []domain.Voucher {
	return []domain.Voucher{
		{Code: "HEMAT10", Kind: domain.VoucherKindPercentage, Value: decimal.NewFromInt(10), MaxDiscount: 25000, Target: domain.VoucherTargetTransaction},
		{Code: "ONGKIR", Kind: domain.VoucherKindNominal, Value: decimal.NewFromInt(10000), MinPurchase: 50000, Target: domain.VoucherTargetShipping},
	}
}
