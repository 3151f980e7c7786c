package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rl1809/checkout/internal/adapter/storage"
	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/core/service"
)

const (
	customerID = "stress-customer"
	productID  = "stress-product"
)

func main() {
	stock := flag.IntP("stock", "k", 20, "initial stock of the product")
	quantity := flag.IntP("quantity", "q", 1, "quantity per order")
	requests := flag.IntP("requests", "m", 50, "number of concurrent orders")
	lockWait := flag.Duration("lock-wait", 50*time.Millisecond, "bounded wait for a product lock")
	retryFor := flag.Duration("retry-for", 5*time.Second, "how long a busy order keeps retrying")
	flag.Parse()

	if *quantity <= 0 || *stock < 0 || *requests <= 0 {
		log.Fatal("stock must be >= 0, quantity and requests must be > 0")
	}

	store := storage.NewMemoryStore(*lockWait)
	store.PutCustomer(domain.Customer{ID: customerID})
	if err := store.PutProduct(domain.Product{
		ID:       productID,
		Name:     "Stress product",
		Price:    decimal.RequireFromString("1.00"),
		Quantity: *stock,
	}); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}

	orders := service.NewIdempotentOrderService(
		service.NewOrderService(store, store, zap.NewNop()),
		nil,
		zap.NewNop(),
	)
	ctx := context.Background()
	items := []domain.RequestedProduct{{ProductID: productID, Quantity: *quantity}}

	var successCount, soldOutCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			requestID := uuid.NewString()
			err := service.RetryOnBusy(ctx, *retryFor, func() error {
				_, err := orders.Execute(ctx, requestID, customerID, items)
				return err
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	product, err := store.Product(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *stock)
	fmt.Printf("Quantity/Order:   %d\n", *quantity)
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Final Stock:      %d\n", product.Quantity)
	fmt.Printf("Orders Stored:    %d\n", store.OrderCount())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	want := min(*stock / *quantity, *requests)
	failed := false
	if success != want {
		fmt.Printf("FAIL: expected %d successful orders, got %d\n", want, success)
		failed = true
	}
	if product.Quantity != *stock-success**quantity {
		fmt.Printf("FAIL: expected final stock %d, got %d\n", *stock-success**quantity, product.Quantity)
		failed = true
	}
	if store.OrderCount() != success || otherCount.Load() != 0 {
		fmt.Println("FAIL: stored orders or errors do not match successes")
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Printf("PASS: %d orders placed, stock %d -> %d, never oversold\n", success, *stock, product.Quantity)
}
