// Package checkout собирает предпросмотр оформления: корзина, остатки, доставка, скидки.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/pricing"
)

const defaultFetchConcurrency = 8

// Quoter оценивает доставку до адреса.
type Quoter interface {
	Quote(ctx context.Context, dest *domain.Address, weightGrams int64) (domain.ShippingQuote, error)
}

// Builder считает CheckoutPreview. Ничего не кеширует: каждый вызов заново
// перечитывает остатки, тарифы, правила и ваучеры.
type Builder struct {
	catalog     domain.CatalogService
	discounts   domain.DiscountService
	vouchers    domain.VoucherService
	quoter      Quoter
	resolver    *pricing.Resolver
	metrics     *metrics.StorefrontMetrics
	logger      *log.Entry
	now         func() time.Time
	concurrency int
}

// BuilderOption настраивает Builder.
type BuilderOption func(*Builder)

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.StorefrontMetrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithFetchConcurrency ограничивает число параллельных запросов к каталогу.
func WithFetchConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBuilder создаёт Builder.
func NewBuilder(
	catalog domain.CatalogService,
	discounts domain.DiscountService,
	vouchers domain.VoucherService,
	quoter Quoter,
	resolver *pricing.Resolver,
	opts ...BuilderOption,
) *Builder {
	b := &Builder{
		catalog:     catalog,
		discounts:   discounts,
		vouchers:    vouchers,
		quoter:      quoter,
		resolver:    resolver,
		logger:      log.New().WithField("component", "checkout"),
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = pricing.NewResolver(b.logger)
	}
	return b
}

// Build считает предпросмотр для корзины. Бизнес-причины, мешающие оформлению,
// попадают в Issues; ошибка возвращается только при сбое внешних сервисов.
func (b *Builder) Build(ctx context.Context, cart domain.Cart, in domain.CheckoutInput) (domain.CheckoutPreview, error) {
	started := time.Now()
	preview, err := b.build(ctx, cart, in)
	switch {
	case errors.Is(err, context.Canceled):
		b.metrics.RecordPreview("cancelled", time.Since(started))
	case err != nil:
		b.metrics.RecordPreview("error", time.Since(started))
	case preview.CanCheckout:
		b.metrics.RecordPreview("ready", time.Since(started))
	default:
		b.metrics.RecordPreview("blocked", time.Since(started))
	}
	return preview, err
}

func (b *Builder) build(ctx context.Context, cart domain.Cart, in domain.CheckoutInput) (domain.CheckoutPreview, error) {
	now := b.now()
	preview := domain.CheckoutPreview{
		UserID:          cart.UserID,
		CartID:          cart.ID,
		StoreID:         cart.StoreID,
		RequiresAddress: !in.HasAddresses && in.Address == nil,
		ComputedAt:      now,
	}
	if cart.IsEmpty() {
		preview.Issues = append(preview.Issues, domain.IssueFromError(domain.ErrCartEmpty, ""))
		return preview, nil
	}

	working := cart.Clone()
	var (
		offers  []domain.ProductOffer
		quote   domain.ShippingQuote
		quoteEr error
		rules   []domain.DiscountRule
		voucher *domain.Voucher
		vouchEr error
	)

	storeID, productIDs := working.StoreID, working.ProductIDs()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if offers, err = b.refetchOffers(gctx, working); err != nil || in.Address == nil {
			return err
		}
		// вес считается по свежим данным каталога
		weighed := working.Clone()
		for _, offer := range offers {
			weighed.ApplyOffer(offer)
		}
		quote, quoteEr = b.quoter.Quote(gctx, in.Address, weighed.TotalWeightGrams())
		if quoteEr != nil && domain.KindOf(quoteEr) != domain.KindIneligibility {
			return fmt.Errorf("shipping quote: %w", quoteEr)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rules, err = b.discounts.ApplicableRules(gctx, storeID, productIDs)
		if err != nil {
			return fmt.Errorf("load discount rules: %w", err)
		}
		return nil
	})
	if in.VoucherCode != "" {
		g.Go(func() error {
			var err error
			voucher, err = b.findVoucher(gctx, in.VoucherCode)
			if errors.Is(err, domain.ErrVoucherNotFound) {
				vouchEr, err = err, nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CheckoutPreview{}, err
	}

	// остатки и цены только что перечитаны
	stockOK := true
	for _, offer := range offers {
		working.ApplyOffer(offer)
	}
	for _, line := range working.Lines {
		orig, _ := cart.Line(line.ID)
		check := domain.LineCheck{
			LineID:         line.ID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Qty:            line.Qty,
			AvailableStock: line.AvailableStock,
			UnitPrice:      line.UnitPrice,
			PriceChanged:   orig.UnitPrice != line.UnitPrice,
		}
		if !check.OK() {
			stockOK = false
			preview.Issues = append(preview.Issues, domain.IssueFromError(
				domain.ErrOutOfStock.WithMessage("%d requested, %d available", line.Qty, line.AvailableStock), line.ProductID))
		}
		preview.Lines = append(preview.Lines, check)
	}
	preview.Subtotal = working.Subtotal()
	preview.TotalWeightGrams = working.TotalWeightGrams()

	shippingOK := false
	switch {
	case in.Address == nil && preview.RequiresAddress:
		preview.Issues = append(preview.Issues, domain.Issue{
			Code: domain.IssueAddressRequired, Kind: domain.KindValidation, Message: "add a delivery address to continue",
		})
	case in.Address == nil:
		preview.Issues = append(preview.Issues, domain.IssueFromError(domain.ErrNoAddressSelected, ""))
	case quoteEr != nil:
		preview.Issues = append(preview.Issues, domain.IssueFromError(quoteEr, ""))
	default:
		store := quote.Store
		preview.Store = &store
		preview.ShippingOptions = quote.Options
		selected, ok := quote.Option(in.ServiceCode)
		if !ok {
			b.logger.WithFields(log.Fields{"user_id": cart.UserID, "service": in.ServiceCode}).
				Debug("selected shipping service unavailable, using cheapest")
			selected, _ = quote.Option("")
		}
		preview.SelectedService = selected.ServiceCode
		preview.ShippingCost = selected.Cost
		shippingOK = true
		if store.StoreID != cart.StoreID {
			shippingOK = false
			preview.Issues = append(preview.Issues, domain.IssueFromError(
				domain.ErrStoreMismatch.WithMessage("address is served by store %s, cart belongs to %s", store.StoreID, cart.StoreID), ""))
		}
	}

	if vouchEr != nil {
		preview.Issues = append(preview.Issues, domain.IssueFromError(vouchEr, ""))
	}
	breakdown := b.resolver.Resolve(pricing.Input{
		Lines:        working.Lines,
		Rules:        rules,
		Voucher:      voucher,
		ShippingCost: preview.ShippingCost,
		Now:          now,
	})
	if breakdown.VoucherErr != nil {
		preview.Issues = append(preview.Issues, domain.IssueFromError(breakdown.VoucherErr, ""))
	} else if voucher != nil {
		preview.VoucherCode = voucher.Code
	}

	preview.DiscountAmount = breakdown.DiscountAmount
	preview.VoucherDeduction = breakdown.VoucherDeduction
	preview.ShippingDeduction = breakdown.ShippingDeduction
	preview.TotalDiscount = breakdown.TotalDiscount
	preview.Applied = breakdown.Applied
	preview.Total = (preview.Subtotal + preview.ShippingCost - preview.TotalDiscount).NonNegative()
	preview.CanCheckout = stockOK && shippingOK
	return preview, nil
}

func (b *Builder) refetchOffers(ctx context.Context, cart domain.Cart) ([]domain.ProductOffer, error) {
	results := make([]domain.ProductOffer, len(cart.Lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, line := range cart.Lines {
		g.Go(func() error {
			offer, err := b.catalog.Product(gctx, line.ProductID, cart.StoreID)
			if errors.Is(err, domain.ErrNotFound) {
				// товар сняли с продажи
				offer, err = domain.ProductOffer{ProductID: line.ProductID, StoreID: cart.StoreID, Price: line.UnitPrice}, nil
			}
			if err != nil {
				return fmt.Errorf("refetch product %s: %w", line.ProductID, err)
			}
			results[i] = offer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// findVoucher ищет ваучер среди доступных пользователю.
func (b *Builder) findVoucher(ctx context.Context, code string) (*domain.Voucher, error) {
	vouchers, err := b.vouchers.MyVouchers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vouchers: %w", err)
	}
	for _, v := range vouchers {
		if strings.EqualFold(v.Code, code) {
			return &v, nil
		}
	}
	return nil, domain.ErrVoucherNotFound.WithMessage("voucher %s is not available", code)
}
