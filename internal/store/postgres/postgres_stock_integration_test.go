package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
)

func TestAdjustBatchQuantityAndCounter(t *testing.T) {
	databaseURL := os.Getenv("JASSPERFUMES_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set JASSPERFUMES_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-stock-it-%d", stamp)
	batchNumber := fmt.Sprintf("B-IT-%d", stamp)
	counterName := fmt.Sprintf("it-counter-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_records WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM counters WHERE name = $1`, counterName)
	})

	now := time.Now().UTC()
	if _, err := s.CreateProduct(ctx, domain.Product{
		ProductID:   productID,
		ProductName: fmt.Sprintf("Stock IT %d", stamp),
		Category:    "attar",
		Price:       500,
		TaxSlab:     18,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	mfg := now.AddDate(0, -1, 0)
	if _, err := s.SaveInventory(ctx, domain.InventoryRecord{
		ProductID:   productID,
		ProductName: fmt.Sprintf("Stock IT %d", stamp),
		Category:    "attar",
		Batches: []domain.Batch{
			{BatchNumber: batchNumber, Quantity: 10, ManufactureDate: mfg, ExpiryDate: mfg.AddDate(3, 0, 0), AddedAt: now},
		},
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	before, after, err := s.AdjustBatchQuantity(ctx, productID, batchNumber, -4)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if before != 10 || after != 6 {
		t.Fatalf("expected 10 -> 6, got %d -> %d", before, after)
	}

	// A deduction below zero must fail and leave the row untouched.
	if _, _, err := s.AdjustBatchQuantity(ctx, productID, batchNumber, -7); !errors.Is(err, store.ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
	record, err := s.GetInventoryByProduct(ctx, productID)
	if err != nil {
		t.Fatalf("reload inventory: %v", err)
	}
	if record.TotalQuantity != 6 {
		t.Fatalf("expected total quantity 6 after refused overdraw, got %d", record.TotalQuantity)
	}

	first, err := s.NextCounter(ctx, counterName)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	second, err := s.NextCounter(ctx, counterName)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected counter 1 then 2, got %d then %d", first, second)
	}
}
