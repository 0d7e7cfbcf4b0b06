package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-checkout/internal/adapter/handler"
)

// Races buyers for the remaining stock of one product through the gRPC API
// and checks that exactly the available units were sold.
func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	productID := flag.Int64("product", 1, "product to buy")
	buyers := flag.Int("buyers", 50, "concurrent buyers")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Error("dial", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	client := handler.NewGRPCClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	product, err := client.GetProduct(ctx, *productID)
	if err != nil {
		logger.Error("get product", "product_id", *productID, "error", err)
		os.Exit(1)
	}
	initialStock := product.Stock

	var (
		successCount atomic.Int32
		soldOutCount atomic.Int32
		errorCount   atomic.Int32
		wg           sync.WaitGroup
	)
	run := uuid.NewString()[:8]
	start := time.Now()

	for i := 0; i < *buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userCtx := handler.AsUser(ctx, fmt.Sprintf("load-%s-%d", run, n))
			err := buy(userCtx, client, *productID)
			switch status.Code(err) {
			case codes.OK:
				successCount.Add(1)
			case codes.FailedPrecondition, codes.NotFound:
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				logger.Warn("buyer failed", "buyer", n, "error", err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	soldOut := int(soldOutCount.Load())
	failed := int(errorCount.Load())

	fmt.Println("========== CHECKOUT LOAD TEST ==========")
	fmt.Printf("Product:          %d (%s)\n", product.ID, product.Name)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Buyers:           %d\n", *buyers)
	fmt.Printf("Orders Placed:    %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", failed)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=========================================")

	expected := min(initialStock, *buyers)
	ok := true
	if success == expected && failed == 0 {
		fmt.Printf("PASS: exactly %d orders placed\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d orders with no errors, got %d orders and %d errors\n", expected, success, failed)
		ok = false
	}

	after, err := client.GetProduct(ctx, *productID)
	if err != nil {
		logger.Error("get product", "product_id", *productID, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Final Stock:      %d\n", after.Stock)
	if after.Stock == initialStock-success {
		fmt.Println("PASS: stock matches orders placed")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", initialStock-success, after.Stock)
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
}

// buy puts one unit in a fresh cart and checks out, retrying while the store is busy.
func buy(ctx context.Context, client *handler.GRPCClient, productID int64) error {
	if _, err := client.ClearCart(ctx); err != nil {
		return err
	}
	if _, err := retryBusy(ctx, func() (*handler.CartResponse, error) {
		return client.AddItem(ctx, productID, 1)
	}); err != nil {
		return err
	}
	key := uuid.NewString()
	_, err := retryBusy(ctx, func() (*handler.CheckoutResponse, error) {
		return client.Checkout(ctx, &handler.CheckoutGRPCRequest{
			Address:        "Calle Mayor 12, Madrid",
			PaymentToken:   "4111111111111111",
			IdempotencyKey: key,
		})
	})
	return err
}

func retryBusy[T any](ctx context.Context, call func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		out, err := call()
		if err != nil && status.Code(err) != codes.Unavailable {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(8),
	)
}
