package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/port"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// errStockChanged means a locked row no longer satisfied the decrement
	errStockChanged = errors.New("stock changed under lock")
)

// InnoDB error numbers that mean the transaction lost a lock race and can be
// retried unchanged.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

func (m *MySQLStore) Lookup(ctx context.Context, customerID string) (domain.Customer, error) {
	var c domain.Customer
	err := m.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = ?`, customerID).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if err != nil {
		return domain.Customer{}, classify("query customer", err)
	}
	return c, nil
}

// Product reads a committed snapshot without locking.
func (m *MySQLStore) Product(ctx context.Context, productID string) (domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, quantity, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, &domain.ProductNotFoundError{IDs: []string{productID}}
	}
	if err != nil {
		return domain.Product{}, classify("query product", err)
	}
	return p, nil
}

func (m *MySQLStore) Order(ctx context.Context, orderID string) (domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, customer_id, created_at FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.CustomerID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return domain.Order{}, classify("query order", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, price, quantity FROM order_items
		WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return domain.Order{}, classify("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ProductID, &item.Price, &item.Quantity); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.LineItems = append(o.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, classify("query order items", err)
	}
	return o, nil
}

func (m *MySQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx, now: m.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

type mysqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *mysqlTx) Ledger() port.InventoryLedger { return mysqlLedger{t} }
func (t *mysqlTx) Orders() port.OrderStore      { return mysqlOrders{t} }

type mysqlLedger struct{ t *mysqlTx }

// ReserveBatch locks the requested product rows in ascending id order with
// SELECT ... FOR UPDATE, so overlapping batches always queue on their lowest
// shared id and cannot wait on each other in a cycle.
func (l mysqlLedger) ReserveBatch(ctx context.Context, items []domain.RequestedProduct) ([]domain.Reservation, error) {
	if err := domain.ValidateBatch(items); err != nil {
		return nil, err
	}

	requested := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		requested[item.ProductID] = item.Quantity
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := l.t.tx.QueryContext(ctx, `
		SELECT id, name, price, quantity FROM products
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id FOR UPDATE`, args...)
	if err != nil {
		return nil, classify("lock products", err)
	}

	found := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		found[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, classify("lock products", err)
	}
	rows.Close()

	var missing []string
	for _, item := range items {
		if _, ok := found[item.ProductID]; !ok {
			missing = append(missing, item.ProductID)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ProductNotFoundError{IDs: missing}
	}

	var shortages []domain.StockShortage
	for _, item := range items {
		if available := found[item.ProductID].Quantity; item.Quantity > available {
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

	now := l.t.now().UTC()
	for _, id := range ids {
		qty := requested[id]
		result, err := l.t.tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - ?, updated_at = ?
			WHERE id = ? AND quantity >= ?`,
			qty, now, id, qty,
		)
		if err != nil {
			return nil, classify("decrement stock", err)
		}
		if n, err := result.RowsAffected(); err != nil || n != 1 {
			return nil, fmt.Errorf("decrement stock %s: %w", id, errStockChanged)
		}
	}

	reservations := make([]domain.Reservation, len(items))
	for i, item := range items {
		reservations[i] = domain.Reservation{
			ProductID: item.ProductID,
			Price:     found[item.ProductID].Price,
			Quantity:  item.Quantity,
		}
	}
	return reservations, nil
}

type mysqlOrders struct{ t *mysqlTx }

func (o mysqlOrders) Create(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}

	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		LineItems:  append([]domain.OrderLineItem(nil), items...),
		CreatedAt:  o.t.now().UTC().Truncate(time.Microsecond),
	}

	_, err := o.t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, created_at)
		VALUES (?, ?, ?)`,
		order.ID, order.CustomerID, order.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, classify("insert order", err)
	}

	args := make([]any, 0, len(items)*5)
	for i, item := range items {
		args = append(args, order.ID, i, item.ProductID, item.Price, item.Quantity)
	}
	_, err = o.t.tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, price, quantity)
		VALUES `+valueGroups(len(items), 5), args...)
	if err != nil {
		return domain.Order{}, classify("insert order items", err)
	}

	return order, nil
}

// classify turns lock wait timeouts and deadlocks into domain.ErrBusy and
// wraps everything else with op.
func classify(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errLockWaitTimeout || myErr.Number == errDeadlock) {
		return fmt.Errorf("%s: %w", op, domain.ErrBusy)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func valueGroups(rows, cols int) string {
	group := "(" + placeholders(cols) + ")"
	return strings.TrimSuffix(strings.Repeat(group+", ", rows), ", ")
}
