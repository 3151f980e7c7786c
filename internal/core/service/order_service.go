package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/port"
)

// OrderService places an order for a customer, reserving every requested
// product atomically.
type OrderService struct {
	customers port.CustomerDirectory
	tx        port.Transactor
	log       *zap.Logger
}

func NewOrderService(customers port.CustomerDirectory, tx port.Transactor, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{customers: customers, tx: tx, log: log}
}

// Execute either commits the order together with every stock decrement or
// leaves no trace. Errors classify with domain.KindOf.
func (s *OrderService) Execute(ctx context.Context, customerID string, items []domain.RequestedProduct) (domain.Order, error) {
	order, err := s.execute(ctx, customerID, items)
	if err != nil {
		s.logFailure(customerID, items, err)
		return domain.Order{}, err
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("customer_id", customerID),
		zap.Int("line_items", len(order.LineItems)),
	)
	return order, nil
}

func (s *OrderService) execute(ctx context.Context, customerID string, items []domain.RequestedProduct) (domain.Order, error) {
	if err := domain.ValidateQuantities(items); err != nil {
		return domain.Order{}, err
	}

	customer, err := s.customers.Lookup(ctx, customerID)
	if err != nil {
		return domain.Order{}, domain.Internal("lookup customer", err)
	}

	if err := domain.CheckDuplicates(items); err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		reservations, err := repos.Ledger().ReserveBatch(ctx, items)
		if err != nil {
			return err
		}
		order, err = repos.Orders().Create(ctx, customer, domain.LineItemsFrom(reservations))
		return err
	})
	if err != nil {
		return domain.Order{}, domain.Internal("place order", err)
	}
	return order, nil
}

func (s *OrderService) logFailure(customerID string, items []domain.RequestedProduct, err error) {
	fields := []zap.Field{
		zap.String("customer_id", customerID),
		zap.Int("products", len(items)),
		zap.String("kind", string(domain.KindOf(err))),
		zap.Error(err),
	}

	switch domain.KindOf(err) {
	case domain.KindInternal:
		s.log.Error("order failed", fields...)
	case domain.KindBusy:
		s.log.Warn("order rejected, inventory busy", fields...)
	default:
		s.log.Debug("order rejected", fields...)
	}
}
