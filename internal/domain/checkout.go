package domain

import "time"

// CheckoutInput: всё, от чего зависит предпросмотр, кроме самой корзины.
type CheckoutInput struct {
	UserID string
	// Address: выбранный адрес; nil, если не выбран.
	Address *Address
	// HasAddresses: у пользователя есть хотя бы один сохранённый адрес.
	HasAddresses bool
	VoucherCode  string
	ServiceCode  string
}

// Issue: причина, по которой оформление сейчас невозможно.
type Issue struct {
	Code      string
	Kind      ErrorKind
	Message   string
	ProductID string
}

// IssueFromError превращает типизированную ошибку в Issue.
func IssueFromError(err error, productID string) Issue {
	issue := Issue{Code: CodeOf(err), Kind: KindOf(err), Message: err.Error(), ProductID: productID}
	if issue.Code == "" {
		issue.Code = "UNKNOWN"
	}
	return issue
}

// IssueAddressRequired: у пользователя нет ни одного адреса.
const IssueAddressRequired = "ADDRESS_REQUIRED"

// LineCheck: результат перепроверки строки по свежему остатку.
type LineCheck struct {
	LineID         string
	ProductID      string
	Name           string
	Qty            int32
	AvailableStock int32
	UnitPrice      Money
	PriceChanged   bool
}

// OK: количество строки не превышает остаток.
func (l LineCheck) OK() bool {
	return l.AvailableStock > 0 && l.Qty <= l.AvailableStock
}

// CheckoutPreview: эфемерный расчёт стоимости перед созданием заказа. Не сохраняется.
type CheckoutPreview struct {
	UserID           string
	CartID           string
	StoreID          string
	CanCheckout      bool
	RequiresAddress  bool
	Subtotal         Money
	TotalWeightGrams int64
	Lines            []LineCheck
	Store            *NearestStore
	ShippingOptions  []PricedShippingOption
	SelectedService  string
	ShippingCost     Money

	DiscountAmount    Money
	VoucherCode       string
	VoucherDeduction  Money
	ShippingDeduction Money
	TotalDiscount     Money
	Total             Money
	Applied           []AppliedDiscount

	Issues     []Issue
	Generation uint64
	ComputedAt time.Time
}

// HasIssue проверяет наличие проблемы с кодом.
func (p CheckoutPreview) HasIssue(code string) bool {
	for _, issue := range p.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
