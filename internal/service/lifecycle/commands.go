package lifecycle

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// remoteCall выполняет действие на бэкенде и возвращает его версию заказа.
type remoteCall func(ctx context.Context, orderID string) (domain.Order, error)

// command: одно действие над заказом: локальный переход, удалённый вызов и откат.
type command struct {
	orderID string
	action  domain.OrderAction
	reason  string
	event   kafka.EventType
	remote  remoteCall
}

// UploadPaymentProof загружает подтверждение оплаты. Файл проверяется до сетевого вызова.
func (s *Service) UploadPaymentProof(ctx context.Context, orderID string, proof domain.PaymentProof) (domain.Order, error) {
	if err := s.policy.Validate(proof); err != nil {
		s.metrics.RecordTransition(string(domain.ActionUploadPaymentProof), "rejected", 0)
		return domain.Order{}, err
	}
	return s.execute(ctx, command{
		orderID: orderID,
		action:  domain.ActionUploadPaymentProof,
		event:   kafka.EventTypePaymentProofUploaded,
		remote: func(ctx context.Context, id string) (domain.Order, error) {
			order, err := s.gateway.UploadPaymentProof(ctx, id, proof)
			if err != nil && domain.KindOf(err) == domain.KindTransport && !errors.Is(err, domain.ErrUploadFailed) {
				return domain.Order{}, domain.ErrUploadFailed.Wrap(err)
			}
			return order, err
		},
	})
}

// Cancel отменяет заказ с обязательной причиной.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return s.execute(ctx, command{
		orderID: orderID,
		action:  domain.ActionCancel,
		reason:  reason,
		event:   kafka.EventTypeOrderCancelled,
		remote: func(ctx context.Context, id string) (domain.Order, error) {
			return s.gateway.CancelOrder(ctx, id, reason)
		},
	})
}

// ConfirmReceipt подтверждает получение отправленного заказа.
func (s *Service) ConfirmReceipt(ctx context.Context, orderID string) (domain.Order, error) {
	return s.execute(ctx, command{
		orderID: orderID,
		action:  domain.ActionConfirmReceipt,
		event:   kafka.EventTypeOrderReceiptConfirmed,
		remote:  s.gateway.ConfirmOrder,
	})
}

// AcceptPayment: магазин принял оплату.
func (s *Service) AcceptPayment(ctx context.Context, orderID string) (domain.Order, error) {
	if s.admin == nil {
		return domain.Order{}, domain.ErrIllegalTransition.WithMessage("store actions are not available")
	}
	return s.execute(ctx, command{
		orderID: orderID,
		action:  domain.ActionAcceptPayment,
		event:   kafka.EventTypeOrderPaymentAccepted,
		remote:  s.admin.AcceptPayment,
	})
}

// Ship: магазин передал заказ в доставку.
func (s *Service) Ship(ctx context.Context, orderID string) (domain.Order, error) {
	if s.admin == nil {
		return domain.Order{}, domain.ErrIllegalTransition.WithMessage("store actions are not available")
	}
	return s.execute(ctx, command{
		orderID: orderID,
		action:  domain.ActionShip,
		event:   kafka.EventTypeOrderShipped,
		remote:  s.admin.ShipOrder,
	})
}

// execute проводит команду: проверка перехода, оптимистичное сохранение,
// удалённый вызов, затем либо фиксация ответа бэкенда, либо откат к снимку.
func (s *Service) execute(ctx context.Context, cmd command) (domain.Order, error) {
	if cmd.orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	release, err := s.acquire(cmd.orderID)
	if err != nil {
		s.metrics.RecordTransition(string(cmd.action), "busy", 0)
		return domain.Order{}, err
	}
	defer release()

	s.metrics.CommandStarted()
	defer s.metrics.CommandFinished()
	started := time.Now()
	logger := s.logger.WithFields(log.Fields{"order_id": cmd.orderID, "action": cmd.action})

	if _, err := s.Get(ctx, cmd.orderID); err != nil {
		s.metrics.RecordTransition(string(cmd.action), "error", time.Since(started))
		return domain.Order{}, err
	}

	var snapshot domain.Order
	now := s.now()
	applied, err := s.update(cmd.orderID, func(o *domain.Order) error {
		snapshot = o.Clone()
		next, err := o.Transition(cmd.action, cmd.reason, now)
		if err != nil {
			return err
		}
		*o = next
		return nil
	})
	if err != nil {
		s.metrics.RecordTransition(string(cmd.action), "rejected", time.Since(started))
		return domain.Order{}, err
	}

	remote, err := cmd.remote(ctx, cmd.orderID)
	if err != nil {
		logger.WithError(err).Warn("remote action failed, rolling back")
		s.rollback(applied, snapshot)
		if domain.KindOf(err) == domain.KindIneligibility {
			// локальное зеркало могло отстать от бэкенда
			if _, syncErr := s.Refresh(ctx, cmd.orderID); syncErr != nil {
				logger.WithError(syncErr).Debug("refresh after rejected action failed")
			}
		}
		s.metrics.RecordTransition(string(cmd.action), "failed", time.Since(started))
		return domain.Order{}, err
	}

	final, err := s.update(cmd.orderID, func(o *domain.Order) error {
		adoptRemote(o, remote)
		return nil
	})
	if err != nil {
		// бэкенд уже применил действие; зеркало догонит через Refresh или событие статуса
		logger.WithError(err).Error("failed to store backend order state")
		final = applied
	}

	s.emit(final, cmd.event, snapshot.Status, cmd.reason)
	s.metrics.RecordTransition(string(cmd.action), "ok", time.Since(started))
	logger.WithField("status", final.Status).Info("order action completed")
	return final, nil
}

// rollback возвращает заказ к снимку, если с момента оптимистичного
// сохранения его никто не изменил.
func (s *Service) rollback(applied, snapshot domain.Order) {
	_, err := s.update(applied.ID, func(o *domain.Order) error {
		if o.Status != applied.Status {
			return errNoChange
		}
		o.Status = snapshot.Status
		o.PaymentDeadline = snapshot.Clone().PaymentDeadline
		o.CancelReason = snapshot.CancelReason
		o.PaymentProofURL = snapshot.PaymentProofURL
		o.UpdatedAt = snapshot.UpdatedAt
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		s.logger.WithError(err).WithField("order_id", applied.ID).Error("rollback failed")
	}
}
