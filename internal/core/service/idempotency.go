package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/port"
)

// IdempotentOrderService replays the stored order when a request id is
// repeated instead of placing a second one.
type IdempotentOrderService struct {
	orders *OrderService
	store  port.IdempotencyStore
	log    *zap.Logger
}

func NewIdempotentOrderService(orders *OrderService, store port.IdempotencyStore, log *zap.Logger) *IdempotentOrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdempotentOrderService{orders: orders, store: store, log: log}
}

// Execute places the order once per requestID. An empty requestID or a nil
// store skips deduplication.
func (s *IdempotentOrderService) Execute(ctx context.Context, requestID, customerID string, items []domain.RequestedProduct) (domain.Order, error) {
	if requestID == "" || s.store == nil {
		return s.orders.Execute(ctx, customerID, items)
	}

	state, stored, err := s.store.Claim(ctx, requestID)
	if err != nil {
		return domain.Order{}, domain.Internal("claim request", err)
	}
	switch state {
	case port.ClaimCompleted:
		s.log.Info("order replayed",
			zap.String("request_id", requestID),
			zap.String("order_id", stored.ID),
		)
		return *stored, nil
	case port.ClaimInFlight:
		return domain.Order{}, domain.ErrBusy
	}

	order, err := s.orders.Execute(ctx, customerID, items)
	if err != nil {
		// the claim must go even if ctx is already done
		if relErr := s.store.Release(context.WithoutCancel(ctx), requestID); relErr != nil {
			s.log.Warn("release request claim failed",
				zap.String("request_id", requestID),
				zap.Error(relErr),
			)
		}
		return domain.Order{}, err
	}

	if err := s.store.Complete(context.WithoutCancel(ctx), requestID, order); err != nil {
		s.log.Error("store placed order failed",
			zap.String("request_id", requestID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	return order, nil
}
