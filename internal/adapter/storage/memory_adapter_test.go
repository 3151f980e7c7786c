package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/port"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMemoryStore(t *testing.T, stock map[string]int) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(200 * time.Millisecond)
	store.PutCustomer(domain.Customer{ID: "customer-1"})
	for id, qty := range stock {
		require.NoError(t, store.PutProduct(domain.Product{
			ID:       id,
			Name:     "Product " + id,
			Price:    decimal.RequireFromString("9.99"),
			Quantity: qty,
		}))
	}
	return store
}

func stockOf(t *testing.T, store *MemoryStore, id string) int {
	t.Helper()
	p, err := store.Product(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func reserve(ctx context.Context, store *MemoryStore, items ...domain.RequestedProduct) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := store.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		res, err := repos.Ledger().ReserveBatch(ctx, items)
		out = res
		return err
	})
	return out, err
}

func TestMemoryStore_Lookup(t *testing.T) {
	store := newMemoryStore(t, nil)

	c, err := store.Lookup(context.Background(), "customer-1")
	require.NoError(t, err)
	assert.Equal(t, "customer-1", c.ID)

	_, err = store.Lookup(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestMemoryStore_PutProduct(t *testing.T) {
	store := newMemoryStore(t, map[string]int{"a": 1})

	assert.Error(t, store.PutProduct(domain.Product{ID: "a"}))
	assert.Error(t, store.PutProduct(domain.Product{ID: "b", Quantity: -1}))
}

func TestMemoryLedger_ReserveBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements every product and snapshots price", func(t *testing.T) {
		store := newMemoryStore(t, map[string]int{"a": 5, "b": 3})

		res, err := reserve(ctx, store,
			domain.RequestedProduct{ProductID: "b", Quantity: 3},
			domain.RequestedProduct{ProductID: "a", Quantity: 2},
		)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "b", res[0].ProductID)
		assert.Equal(t, 3, res[0].Quantity)
		assert.Equal(t, "a", res[1].ProductID)
		assert.True(t, res[1].Price.Equal(decimal.RequireFromString("9.99")))

		assert.Equal(t, 3, stockOf(t, store, "a"))
		assert.Equal(t, 0, stockOf(t, store, "b"))
	})

	t.Run("rejects empty and duplicate batches", func(t *testing.T) {
		store := newMemoryStore(t, map[string]int{"a": 5})

		_, err := reserve(ctx, store)
		assert.ErrorIs(t, err, domain.ErrEmptyOrder)

		_, err = reserve(ctx, store,
			domain.RequestedProduct{ProductID: "a", Quantity: 1},
			domain.RequestedProduct{ProductID: "a", Quantity: 1},
		)
		var de *domain.DuplicateProductError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "a", de.ProductID)
		assert.Equal(t, 5, stockOf(t, store, "a"))
	})

	t.Run("missing products fail the whole batch", func(t *testing.T) {
		store := newMemoryStore(t, map[string]int{"a": 5})

		_, err := reserve(ctx, store,
			domain.RequestedProduct{ProductID: "x", Quantity: 1},
			domain.RequestedProduct{ProductID: "a", Quantity: 1},
			domain.RequestedProduct{ProductID: "y", Quantity: 1},
		)
		var nf *domain.ProductNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []string{"x", "y"}, nf.IDs)
		assert.Equal(t, 5, stockOf(t, store, "a"))
	})

	t.Run("lists every shortage and decrements nothing", func(t *testing.T) {
		store := newMemoryStore(t, map[string]int{"a": 5, "b": 1, "c": 0})

		_, err := reserve(ctx, store,
			domain.RequestedProduct{ProductID: "c", Quantity: 1},
			domain.RequestedProduct{ProductID: "a", Quantity: 5},
			domain.RequestedProduct{ProductID: "b", Quantity: 2},
		)
		var se *domain.InsufficientStockError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, []domain.StockShortage{
			{ProductID: "c", Requested: 1, Available: 0},
			{ProductID: "b", Requested: 2, Available: 1},
		}, se.Shortages)

		assert.Equal(t, 5, stockOf(t, store, "a"))
		assert.Equal(t, 1, stockOf(t, store, "b"))
	})
}

func TestMemoryStore_RollbackRestoresStock(t *testing.T) {
	store := newMemoryStore(t, map[string]int{"a": 5})
	boom := errors.New("write failed")

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
		res, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "a", Quantity: 4}})
		require.NoError(t, err)
		_, err = repos.Orders().Create(ctx, domain.Customer{ID: "customer-1"}, domain.LineItemsFrom(res))
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, stockOf(t, store, "a"))
	assert.Equal(t, 0, store.OrderCount())
}

func TestMemoryStore_CommitPublishesOrder(t *testing.T) {
	store := newMemoryStore(t, map[string]int{"a": 5})

	var created domain.Order
	err := store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
		res, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "a", Quantity: 2}})
		if err != nil {
			return err
		}
		created, err = repos.Orders().Create(ctx, domain.Customer{ID: "customer-1"}, domain.LineItemsFrom(res))
		return err
	})
	require.NoError(t, err)

	stored, err := store.Order(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, stored)
	assert.Equal(t, "customer-1", stored.CustomerID)
	assert.False(t, stored.CreatedAt.IsZero())

	_, err = store.Order(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemoryOrders_RejectsEmptyLineItems(t *testing.T) {
	store := newMemoryStore(t, nil)

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
		_, err := repos.Orders().Create(ctx, domain.Customer{ID: "customer-1"}, nil)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)
}

func TestMemoryStore_CancelBeforeCommit(t *testing.T) {
	store := newMemoryStore(t, map[string]int{"a": 5})
	ctx, cancel := context.WithCancel(context.Background())

	err := store.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		_, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "a", Quantity: 3}})
		require.NoError(t, err)
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, stockOf(t, store, "a"))
}

func TestMemoryStore_PanicRollsBack(t *testing.T) {
	store := newMemoryStore(t, map[string]int{"a": 5})

	assert.Panics(t, func() {
		_ = store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
			_, _ = repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "a", Quantity: 3}})
			panic("boom")
		})
	})
	assert.Equal(t, 5, stockOf(t, store, "a"))
}

func TestMemoryLedger_BusyWhenLockHeld(t *testing.T) {
	store := newMemoryStore(t, map[string]int{"a": 5, "b": 5})
	holding := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
			_, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "b", Quantity: 1}})
			close(holding)
			<-done
			return err
		})
	}()
	<-holding

	_, err := reserve(context.Background(), store,
		domain.RequestedProduct{ProductID: "a", Quantity: 1},
		domain.RequestedProduct{ProductID: "b", Quantity: 1},
	)
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(done)
	assert.Equal(t, 5, stockOf(t, store, "a"), "partial lock acquisition must not leak a decrement")
	assert.Equal(t, 4, stockOf(t, store, "b"))

	// the lock on "a" taken by the failed batch was released
	_, err = reserve(context.Background(), store, domain.RequestedProduct{ProductID: "a", Quantity: 1})
	assert.NoError(t, err)
}

func TestMemoryLedger_CancelWhileWaiting(t *testing.T) {
	store := NewMemoryStore(5 * time.Second)
	require.NoError(t, store.PutProduct(domain.Product{ID: "a", Quantity: 5}))
	holding := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		_ = store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
			_, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "a", Quantity: 1}})
			close(holding)
			<-done
			return err
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := reserve(ctx, store, domain.RequestedProduct{ProductID: "a", Quantity: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(done)
	<-finished
}

func TestMemoryLedger_PartialLockFailureWithConcurrentRollbacks(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	require.NoError(t, store.PutProduct(domain.Product{ID: "a", Quantity: 1000}))
	require.NoError(t, store.PutProduct(domain.Product{ID: "b", Quantity: 1000}))
	errAbort := errors.New("abort")

	var wg sync.WaitGroup
	var busy, committed atomic.Int32
	const rounds = 200

	// keeps "b" locked so batches fail after taking "a"
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds/4; i++ {
			_ = store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
				_, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "b", Quantity: 1}})
				time.Sleep(5 * time.Millisecond)
				if err != nil {
					return err
				}
				return errAbort
			})
		}
	}()

	// rolls back writes to "a" while other batches unwind their locks on it
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = store.WithinTx(context.Background(), func(ctx context.Context, repos port.TxRepositories) error {
				_, err := repos.Ledger().ReserveBatch(ctx, []domain.RequestedProduct{{ProductID: "a", Quantity: 1}})
				if err != nil {
					return err
				}
				return errAbort
			})
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := reserve(context.Background(), store,
					domain.RequestedProduct{ProductID: "a", Quantity: 1},
					domain.RequestedProduct{ProductID: "b", Quantity: 1},
				)
				if errors.Is(err, domain.ErrBusy) {
					busy.Add(1)
					continue
				}
				if !assert.NoError(t, err) {
					return
				}
				committed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Positive(t, busy.Load())
	assert.Equal(t, 1000-int(committed.Load()), stockOf(t, store, "a"))
	assert.Equal(t, 1000-int(committed.Load()), stockOf(t, store, "b"))
}

func TestMemoryLedger_ConcurrentNoOversell(t *testing.T) {
	const (
		stock    = 25
		quantity = 3
		requests = 40
	)
	store := NewMemoryStore(5 * time.Second)
	require.NoError(t, store.PutProduct(domain.Product{ID: "a", Price: decimal.NewFromInt(1), Quantity: stock}))

	var successes, shortages atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reserve(context.Background(), store, domain.RequestedProduct{ProductID: "a", Quantity: quantity})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				shortages.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(stock/quantity), successes.Load())
	assert.Equal(t, int32(requests-stock/quantity), shortages.Load())
	assert.Equal(t, stock-int(successes.Load())*quantity, stockOf(t, store, "a"))
}

func TestMemoryLedger_OverlappingBatchesDoNotDeadlock(t *testing.T) {
	store := NewMemoryStore(5 * time.Second)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutProduct(domain.Product{ID: id, Quantity: 1000}))
	}
	batches := [][]domain.RequestedProduct{
		{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 1}, {ProductID: "c", Quantity: 1}},
		{{ProductID: "c", Quantity: 1}, {ProductID: "b", Quantity: 1}, {ProductID: "a", Quantity: 1}},
		{{ProductID: "b", Quantity: 1}, {ProductID: "a", Quantity: 1}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func(batch []domain.RequestedProduct) {
			defer wg.Done()
			_, err := reserve(context.Background(), store, batch...)
			assert.NoError(t, err)
		}(batches[i%len(batches)])
	}
	wg.Wait()

	assert.Equal(t, 1000-150, stockOf(t, store, "a"))
	assert.Equal(t, 1000-150, stockOf(t, store, "b"))
	assert.Equal(t, 1000-100, stockOf(t, store, "c"))
}
