package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CreateOrder создаёт заказ. Ключ идемпотентности делает повтор запроса безопасным.
func (c *Client) CreateOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Order, error) {
	return c.orderCall(ctx, request{
		op:             "orders.create",
		method:         http.MethodPost,
		path:           "/orders",
		body:           newPlaceOrderDTO(req),
		idempotencyKey: req.IdempotencyKey,
	})
}

// UploadPaymentProof отправляет файл подтверждения оплаты (multipart, поле file).
// Сбой транспорта возвращается как ErrUploadFailed и не повторяется.
func (c *Client) UploadPaymentProof(ctx context.Context, orderID string, proof domain.PaymentProof) (domain.Order, error) {
	order, err := c.orderCall(ctx, request{
		op:      "orders.payment_proof",
		method:  http.MethodPost,
		path:    "/orders/" + url.PathEscape(orderID) + "/payment-proof",
		form:    proofForm(proof),
		noRetry: true,
	})
	if err != nil && domain.KindOf(err) == domain.KindTransport {
		return domain.Order{}, domain.ErrUploadFailed.Wrap(err)
	}
	return order, err
}

// CancelOrder отменяет заказ с причиной.
func (c *Client) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	body := struct {
		Reason string `json:"reason"`
	}{Reason: reason}
	return c.orderCall(ctx, request{
		op:     "orders.cancel",
		method: http.MethodPost,
		path:   "/orders/" + url.PathEscape(orderID) + "/cancel",
		body:   body,
	})
}

// ConfirmOrder подтверждает получение заказа.
func (c *Client) ConfirmOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return c.orderCall(ctx, request{
		op:     "orders.confirm",
		method: http.MethodPost,
		path:   "/orders/" + url.PathEscape(orderID) + "/confirm",
	})
}

// GetOrder возвращает заказ.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return c.orderCall(ctx, request{
		op:     "orders.get",
		method: http.MethodGet,
		path:   "/orders/" + url.PathEscape(orderID),
	})
}

// AcceptPayment подтверждает оплату (администратор магазина).
func (c *Client) AcceptPayment(ctx context.Context, orderID string) (domain.Order, error) {
	return c.orderCall(ctx, request{
		op:     "admin.accept_payment",
		method: http.MethodPost,
		path:   "/admin/orders/" + url.PathEscape(orderID) + "/accept-payment",
	})
}

// ShipOrder отмечает заказ отправленным (администратор магазина).
func (c *Client) ShipOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return c.orderCall(ctx, request{
		op:     "admin.ship",
		method: http.MethodPost,
		path:   "/admin/orders/" + url.PathEscape(orderID) + "/ship",
	})
}

func (c *Client) orderCall(ctx context.Context, r request) (domain.Order, error) {
	var dto orderDTO
	if err := c.call(ctx, r, &dto); err != nil {
		return domain.Order{}, err
	}
	if dto.ID == "" {
		return domain.Order{}, domain.ErrTransport.WithMessage("%s: empty order in response", r.op)
	}
	return dto.toDomain(), nil
}

func proofForm(proof domain.PaymentProof) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		if len(proof.Data) == 0 {
			return nil, "", errors.New("empty payment proof")
		}
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		filename := proof.Filename
		if filename == "" {
			filename = "payment-proof"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		if proof.ContentType != "" {
			header.Set("Content-Type", proof.ContentType)
		}
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(proof.Data); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	}
}

var (
	_ domain.OrderGateway      = (*Client)(nil)
	_ domain.OrderAdminGateway = (*Client)(nil)
)
