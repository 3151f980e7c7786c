package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/port"
)

// productRow guards one product. Holding the single token in lock grants
// exclusive access to product.
type productRow struct {
	lock    chan struct{}
	product domain.Product
}

func newProductRow(p domain.Product) *productRow {
	return &productRow{lock: make(chan struct{}, 1), product: p}
}

func (r *productRow) acquire(ctx context.Context, expired <-chan time.Time) error {
	select {
	case r.lock <- struct{}{}:
		return nil
	default:
	}
	select {
	case r.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return domain.ErrBusy
	}
}

func (r *productRow) release() { <-r.lock }

// MemoryStore keeps customers, products and orders in process. Reservations
// lock products in ascending id order and hold the locks until the enclosing
// transaction ends.
type MemoryStore struct {
	lockWait time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	customers map[string]domain.Customer
	products  map[string]*productRow
	orders    map[string]domain.Order
}

func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		lockWait:  lockWait,
		now:       time.Now,
		customers: make(map[string]domain.Customer),
		products:  make(map[string]*productRow),
		orders:    make(map[string]domain.Order),
	}
}

func (s *MemoryStore) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// PutProduct adds a product. Replacing an existing product is not supported
// because a reservation may hold its row.
func (s *MemoryStore) PutProduct(p domain.Product) error {
	if p.Quantity < 0 {
		return errors.New("product quantity cannot be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return errors.New("product already exists: " + p.ID)
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = newProductRow(p)
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, customerID string) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerID]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return c, nil
}

// Product returns a committed snapshot. It waits for any transaction holding
// the product.
func (s *MemoryStore) Product(ctx context.Context, productID string) (domain.Product, error) {
	s.mu.RLock()
	row, ok := s.products[productID]
	s.mu.RUnlock()
	if !ok {
		return domain.Product{}, &domain.ProductNotFoundError{IDs: []string{productID}}
	}

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	if err := row.acquire(ctx, timer.C); err != nil {
		return domain.Product{}, err
	}
	defer row.release()
	return row.product, nil
}

func (s *MemoryStore) Order(ctx context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) (err error) {
	tx := &memoryTx{store: s, held: make(map[string]*productRow)}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err = ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

type undoEntry struct {
	row  *productRow
	prev domain.Product
}

type memoryTx struct {
	store   *MemoryStore
	held    map[string]*productRow
	order   []*productRow // acquisition order
	undo    []undoEntry
	pending []domain.Order
}

func (tx *memoryTx) Ledger() port.InventoryLedger { return memoryLedger{tx} }
func (tx *memoryTx) Orders() port.OrderStore      { return memoryOrders{tx} }

func (tx *memoryTx) commit() {
	if len(tx.pending) > 0 {
		tx.store.mu.Lock()
		for _, o := range tx.pending {
			tx.store.orders[o.ID] = o
		}
		tx.store.mu.Unlock()
	}
	tx.releaseAll()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		u.row.product = u.prev
	}
	tx.undo = nil
	tx.pending = nil
	tx.releaseAll()
}

func (tx *memoryTx) releaseAll() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.order[i].release()
	}
	tx.order = nil
	tx.held = map[string]*productRow{}
}

// lock acquires rows not already held by tx, in the given order, under one
// bounded wait. On failure it releases only what this call acquired.
func (tx *memoryTx) lock(ctx context.Context, ids []string, rows map[string]*productRow) error {
	timer := time.NewTimer(tx.store.lockWait)
	defer timer.Stop()

	start := len(tx.order)
	for _, id := range ids {
		if _, ok := tx.held[id]; ok {
			continue
		}
		row := rows[id]
		if err := row.acquire(ctx, timer.C); err != nil {
			// row.product may only be read while the token is held
			for i := len(tx.order) - 1; i >= start; i-- {
				delete(tx.held, tx.order[i].product.ID)
				tx.order[i].release()
			}
			tx.order = tx.order[:start]
			return err
		}
		tx.held[id] = row
		tx.order = append(tx.order, row)
	}
	return nil
}

type memoryLedger struct{ tx *memoryTx }

func (l memoryLedger) ReserveBatch(ctx context.Context, items []domain.RequestedProduct) ([]domain.Reservation, error) {
	if err := domain.ValidateBatch(items); err != nil {
		return nil, err
	}

	rows := make(map[string]*productRow, len(items))
	var missing []string
	l.tx.store.mu.RLock()
	for _, item := range items {
		row, ok := l.tx.store.products[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		rows[item.ProductID] = row
	}
	l.tx.store.mu.RUnlock()
	if len(missing) > 0 {
		return nil, &domain.ProductNotFoundError{IDs: missing}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	if err := l.tx.lock(ctx, ids, rows); err != nil {
		return nil, err
	}

	var shortages []domain.StockShortage
	for _, item := range items {
		available := rows[item.ProductID].product.Quantity
		if item.Quantity > available {
			shortages = append(shortages, domain.StockShortage{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	now := l.tx.store.now().UTC()
	reservations := make([]domain.Reservation, len(items))
	for i, item := range items {
		row := rows[item.ProductID]
		l.tx.undo = append(l.tx.undo, undoEntry{row: row, prev: row.product})
		row.product.Quantity -= item.Quantity
		row.product.UpdatedAt = now
		reservations[i] = domain.Reservation{
			ProductID: item.ProductID,
			Price:     row.product.Price,
			Quantity:  item.Quantity,
		}
	}
	return reservations, nil
}

type memoryOrders struct{ tx *memoryTx }

func (o memoryOrders) Create(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		LineItems:  append([]domain.OrderLineItem(nil), items...),
		CreatedAt:  o.tx.store.now().UTC(),
	}
	o.tx.pending = append(o.tx.pending, order)
	return order, nil
}
