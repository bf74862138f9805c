package domain

import (
	"errors"
	"fmt"
)

// ErrorKind задаёт класс ошибки, по которому вызывающая сторона выбирает реакцию.
type ErrorKind string

const (
	// KindValidation: некорректный локальный ввод, обнаруживается до сетевого вызова.
	KindValidation ErrorKind = "VALIDATION"
	// KindIneligibility: бизнес-отказ: нет стока, ваучер недоступен, запрещённый переход.
	KindIneligibility ErrorKind = "INELIGIBILITY"
	// KindTransport: таймаут или сетевой сбой.
	KindTransport ErrorKind = "TRANSPORT"
	// KindAuth: истёкшая или недействительная сессия.
	KindAuth ErrorKind = "AUTH"
)

// Error: типизированная ошибка домена. Сравнение через errors.Is идёт по Code,
// поэтому копия с уточнённым сообщением совпадает с исходным sentinel.
type Error struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по коду.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMessage возвращает копию ошибки с уточнённым сообщением.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap возвращает копию ошибки с причиной.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Retryable: kind == KindTransport}
}

var (
	// Ошибка количества меньше единицы.
	ErrInvalidQuantity = newError(KindValidation, "INVALID_QUANTITY", "quantity must be at least 1")
	// Ошибка обращения к отсутствующей строке корзины.
	ErrCartLineNotFound = newError(KindValidation, "CART_LINE_NOT_FOUND", "cart line not found")
	// Ошибка оформления пустой корзины.
	ErrCartEmpty = newError(KindValidation, "CART_EMPTY", "cart is empty")
	// Ошибка отсутствующего магазина в контексте корзины.
	ErrStoreRequired = newError(KindValidation, "STORE_REQUIRED", "store_id is required")
	// Файл подтверждения оплаты неверного типа или размера.
	ErrInvalidProof = newError(KindValidation, "INVALID_PROOF", "payment proof must be a jpeg or png image within size limit")
	// Отмена без причины.
	ErrCancelReasonRequired = newError(KindValidation, "CANCEL_REASON_REQUIRED", "cancel reason is required")
	// Не выбран адрес доставки.
	ErrNoAddressSelected = newError(KindValidation, "NO_ADDRESS_SELECTED", "no delivery address selected")
	// По агрегату уже выполняется изменяющая операция.
	ErrOperationInProgress = newError(KindValidation, "OPERATION_IN_PROGRESS", "another operation is in progress")
	// Бэкенд отклонил запрос как некорректный.
	ErrBadRequest = newError(KindValidation, "BAD_REQUEST", "request rejected by backend")

	// Товара нет на складе или запрошено больше остатка.
	ErrOutOfStock = newError(KindIneligibility, "OUT_OF_STOCK", "product is out of stock")
	// Сумма покупки меньше минимальной для ваучера.
	ErrVoucherIneligible = newError(KindIneligibility, "VOUCHER_INELIGIBLE", "voucher minimum purchase not reached")
	// Срок действия ваучера истёк.
	ErrVoucherExpired = newError(KindIneligibility, "VOUCHER_EXPIRED", "voucher expired")
	// Ваучер уже использован.
	ErrVoucherAlreadyUsed = newError(KindIneligibility, "VOUCHER_ALREADY_USED", "voucher already used")
	// Ваучер с таким кодом не найден у пользователя.
	ErrVoucherNotFound = newError(KindIneligibility, "VOUCHER_NOT_FOUND", "voucher not found")
	// Ни один вариант доставки не подходит.
	ErrNoShippingAvailable = newError(KindIneligibility, "NO_SHIPPING_AVAILABLE", "no shipping option available")
	// Переход не разрешён из текущего статуса.
	ErrIllegalTransition = newError(KindIneligibility, "ILLEGAL_TRANSITION", "transition is not allowed from current status")
	// Срок оплаты истёк, загрузка подтверждения больше не предлагается.
	ErrPaymentDeadlinePassed = newError(KindIneligibility, "PAYMENT_DEADLINE_PASSED", "payment deadline has passed")
	// Ближайший к адресу магазин не совпадает с магазином корзины.
	ErrStoreMismatch = newError(KindIneligibility, "STORE_MISMATCH", "nearest store differs from cart store")
	// Предпросмотр не допускает оформление.
	ErrCheckoutBlocked = newError(KindIneligibility, "CHECKOUT_BLOCKED", "checkout is not allowed")
	// Ресурс не найден на стороне бэкенда.
	ErrNotFound = newError(KindIneligibility, "NOT_FOUND", "resource not found")
	// Бэкенд отказал в действии (403/409 без известного кода).
	ErrRejected = newError(KindIneligibility, "REJECTED", "action rejected by backend")

	// Таймаут или сетевой сбой при обращении к бэкенду.
	ErrTransport = newError(KindTransport, "TRANSPORT", "backend unavailable")
	// Загрузка подтверждения оплаты не удалась; можно повторить вручную.
	ErrUploadFailed = newError(KindTransport, "UPLOAD_FAILED", "payment proof upload failed")

	// Сессия истекла или недействительна.
	ErrSessionExpired = newError(KindAuth, "SESSION_EXPIRED", "session expired")
)

var (
	// ErrOrderIDRequired: пустой идентификатор заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrUserRequired: пустой идентификатор пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// ErrItemsRequired: заказ без позиций.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrItemQtyInvalid: позиция с количеством <= 0.
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// ErrItemPriceInvalid: позиция с отрицательной ценой.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrAmountNegative: отрицательная итоговая сумма.
	ErrAmountNegative = errors.New("total amount must be non-negative")
	// ErrSubtotalMismatch: subtotal не совпадает с суммой позиций.
	ErrSubtotalMismatch = errors.New("order subtotal does not match items sum")
	// ErrTotalMismatch: total != subtotal + shipping - discount.
	ErrTotalMismatch = errors.New("order total does not match subtotal + shipping - discount")
	// ErrDeadlineOutsidePendingPayment: срок оплаты у заказа не в PENDING_PAYMENT.
	ErrDeadlineOutsidePendingPayment = errors.New("payment deadline is only valid while pending payment")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrCartNotFound: у пользователя нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartVersionConflict: корзину изменили параллельно.
	ErrCartVersionConflict = errors.New("cart version conflict")
	// ErrOutboxMessageNotFound: отметка доставки для неизвестной записи outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrStalePreview: результат предпросмотра вытеснен более поздним расчётом.
	ErrStalePreview = errors.New("checkout preview superseded by newer input")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCartVersionConflict)
}

// KindOf возвращает класс ошибки или пустую строку для нетипизированных ошибок.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf возвращает код типизированной ошибки.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable сообщает, имеет ли смысл повторить операцию.
func IsRetryable(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Retryable
}

var knownErrors = []*Error{
	ErrInvalidQuantity, ErrCartLineNotFound, ErrCartEmpty, ErrStoreRequired, ErrInvalidProof,
	ErrCancelReasonRequired, ErrNoAddressSelected, ErrOperationInProgress, ErrBadRequest,
	ErrOutOfStock, ErrVoucherIneligible, ErrVoucherExpired, ErrVoucherAlreadyUsed, ErrVoucherNotFound,
	ErrNoShippingAvailable, ErrIllegalTransition, ErrPaymentDeadlinePassed, ErrStoreMismatch,
	ErrCheckoutBlocked, ErrNotFound, ErrRejected, ErrTransport, ErrUploadFailed, ErrSessionExpired,
}

// LookupError находит sentinel по коду, который прислал бэкенд.
func LookupError(code string) (*Error, bool) {
	for _, e := range knownErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}
