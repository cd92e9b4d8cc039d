package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
)

func TestCreateCustomerRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	first, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		CustomerName:  "Asha Verma",
		Email:         "asha@example.com",
		ContactNumber: "9876501234",
	})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}
	if first.CustomerNumber != "CUST0001" {
		t.Fatalf("unexpected customer number %s", first.CustomerNumber)
	}

	_, err = svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		CustomerName:  "Another Asha",
		Email:         "asha@example.com",
		ContactNumber: "9876509999",
	})
	if err == nil {
		t.Fatalf("expected duplicate email to be rejected")
	}
}

func TestCustomerUpdateAndDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		CustomerName:  "Ravi Nair",
		ContactNumber: "9000011111",
	})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	newName := "Ravi K Nair"
	updated, err := svc.UpdateCustomer(ctx, customer.CustomerID, domain.CustomerUpdateRequest{
		CustomerName: &newName,
	})
	if err != nil {
		t.Fatalf("update customer failed: %v", err)
	}
	if updated.CustomerName != newName {
		t.Fatalf("name not updated: %s", updated.CustomerName)
	}

	if err := svc.DeleteCustomer(ctx, customer.CustomerID); err != nil {
		t.Fatalf("delete customer failed: %v", err)
	}
	if _, err := svc.GetCustomer(ctx, customer.CustomerID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCreateProductRequiresAdminRole(t *testing.T) {
	svc, _ := newTestService()
	staffCtx := WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})

	_, err := svc.CreateProduct(staffCtx, domain.ProductCreateRequest{
		ProductName: "Saffron Oud 20ml",
		Category:    "attar",
		Price:       1200,
		TaxSlab:     18,
	})
	if err == nil {
		t.Fatalf("expected staff create to be refused")
	}

	product, err := svc.CreateProduct(testActorContext(), domain.ProductCreateRequest{
		ProductName: "Saffron Oud 20ml",
		Category:    "attar",
		Price:       1200,
		TaxSlab:     18,
	})
	if err != nil {
		t.Fatalf("admin create failed: %v", err)
	}
	if product.ProductID == "" {
		t.Fatalf("expected minted product id")
	}
}

func TestAddBatchesDefaultsExpiry(t *testing.T) {
	svc, repo := newTestService()
	ctx := testActorContext()

	record, err := svc.AddBatches(ctx, domain.AddBatchesRequest{
		ProductID: "prod-oud-01",
		Batches: []domain.BatchInput{
			{BatchNumber: "B-OUD-01-03", Quantity: 15, ManufactureDate: "2026-01-10"},
		},
	})
	if err != nil {
		t.Fatalf("add batches failed: %v", err)
	}

	var added *domain.Batch
	for i := range record.Batches {
		if record.Batches[i].BatchNumber == "B-OUD-01-03" {
			added = &record.Batches[i]
		}
	}
	if added == nil {
		t.Fatalf("new batch missing from record")
	}
	wantExpiry := time.Date(2029, 1, 10, 0, 0, 0, 0, time.UTC)
	if !added.ExpiryDate.Equal(wantExpiry) {
		t.Fatalf("expected default expiry %v, got %v", wantExpiry, added.ExpiryDate)
	}
	if record.TotalQuantity != 40+25+15 {
		t.Fatalf("unexpected total quantity %d", record.TotalQuantity)
	}

	// The same batch number again must be refused.
	_, err = svc.AddBatches(ctx, domain.AddBatchesRequest{
		ProductID: "prod-oud-01",
		Batches: []domain.BatchInput{
			{BatchNumber: "B-OUD-01-03", Quantity: 5, ManufactureDate: "2026-02-01"},
		},
	})
	if err == nil {
		t.Fatalf("expected duplicate batch number to be rejected")
	}

	stored, err := repo.GetInventoryByProduct(ctx, "prod-oud-01")
	if err != nil {
		t.Fatalf("inventory lookup failed: %v", err)
	}
	if len(stored.Batches) != 3 {
		t.Fatalf("expected 3 batches after failed duplicate, got %d", len(stored.Batches))
	}
}

func TestBulkAddBatchesCollectsRowErrors(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	resp, err := svc.BulkAddBatches(ctx, domain.BulkBatchRequest{
		Rows: []domain.BulkBatchRow{
			{ProductName: "Royal Oud 50ml", BatchNumber: "B-OUD-01-04", Quantity: 12, ManufactureDate: "2026-03-01"},
			{ProductName: "No Such Perfume", BatchNumber: "B-X-01", Quantity: 5, ManufactureDate: "2026-03-01"},
			{ProductName: "White Musk 30ml", BatchNumber: "", Quantity: 5, ManufactureDate: "2026-03-01"},
			{ProductName: "White Musk 30ml", BatchNumber: "B-MUSK-01-03", Quantity: 8, ManufactureDate: "not-a-date"},
		},
	})
	if err != nil {
		t.Fatalf("bulk add failed: %v", err)
	}

	if resp.AddedBatches != 1 {
		t.Fatalf("expected 1 added batch, got %d", resp.AddedBatches)
	}
	if resp.TotalErrors != 3 || len(resp.Errors) != 3 {
		t.Fatalf("expected 3 row errors, got %d", resp.TotalErrors)
	}
	for _, rowErr := range resp.Errors {
		if rowErr.RowNumber < 2 || rowErr.RowNumber > 4 {
			t.Fatalf("unexpected row number in error: %+v", rowErr)
		}
	}
}

func TestDisposeProductDeductsAndRecords(t *testing.T) {
	svc, repo := newTestService()
	ctx := testActorContext()

	before := batchQuantity(t, repo, "prod-musk-01", "B-MUSK-01-02")

	disposal, err := svc.DisposeProduct(ctx, domain.DisposeProductRequest{
		ProductID:   "prod-musk-01",
		Type:        "defective",
		BatchNumber: "B-MUSK-01-02",
		Quantity:    4,
		Reason:      "leaking caps",
	})
	if err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
	if disposal.TotalQuantityDisposed != 4 {
		t.Fatalf("expected 4 disposed, got %d", disposal.TotalQuantityDisposed)
	}

	if got := batchQuantity(t, repo, "prod-musk-01", "B-MUSK-01-02"); got != before-4 {
		t.Fatalf("stock not deducted: got %d want %d", got, before-4)
	}

	history, err := svc.DisposalHistory(ctx, domain.DisposalHistoryFilter{ProductID: "prod-musk-01"})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if history.Total != 1 || len(history.Disposals) != 1 {
		t.Fatalf("expected one disposal in history, got %d", history.Total)
	}
	if history.Disposals[0].Reason != "leaking caps" {
		t.Fatalf("reason not recorded: %q", history.Disposals[0].Reason)
	}
}

func TestDisposeProductRefusesOverdraw(t *testing.T) {
	svc, repo := newTestService()
	ctx := testActorContext()

	before := batchQuantity(t, repo, "prod-amber-01", "B-AMBER-01-02")

	_, err := svc.DisposeProduct(ctx, domain.DisposeProductRequest{
		ProductID:   "prod-amber-01",
		Type:        "expired",
		BatchNumber: "B-AMBER-01-02",
		Quantity:    before + 1,
	})
	if err == nil {
		t.Fatalf("expected overdraw to be refused")
	}

	var lerr *LifecycleError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected a lifecycle error, got %T", err)
	}
	if lerr.Kind != KindInsufficientStock {
		t.Fatalf("expected kind %s, got %s", KindInsufficientStock, lerr.Kind)
	}

	if got := batchQuantity(t, repo, "prod-amber-01", "B-AMBER-01-02"); got != before {
		t.Fatalf("stock changed on refused disposal: %d != %d", got, before)
	}
}

func TestInventoryOverviewAggregatesDisposals(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	_, err := svc.DisposeProduct(ctx, domain.DisposeProductRequest{
		ProductID:   "prod-rose-01",
		Type:        "defective",
		BatchNumber: "B-ROSE-01-01",
		Quantity:    5,
		Reason:      "broken sprayers",
	})
	if err != nil {
		t.Fatalf("dispose failed: %v", err)
	}

	overview, err := svc.InventoryOverview(ctx)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}

	var rose *domain.InventoryOverviewItem
	for i := range overview.Items {
		if overview.Items[i].ProductID == "prod-rose-01" {
			rose = &overview.Items[i]
		}
	}
	if rose == nil {
		t.Fatalf("rose product missing from overview")
	}
	if rose.TotalDisposed != 5 {
		t.Fatalf("expected 5 disposed in overview, got %d", rose.TotalDisposed)
	}
	if rose.Price != 950 || rose.TaxSlab != 18 {
		t.Fatalf("product enrichment missing: price=%v taxSlab=%v", rose.Price, rose.TaxSlab)
	}

	var batch *domain.BatchView
	for i := range rose.Batches {
		if rose.Batches[i].BatchNumber == "B-ROSE-01-01" {
			batch = &rose.Batches[i]
		}
	}
	if batch == nil {
		t.Fatalf("batch missing from overview")
	}
	if batch.Quantity != 35 || batch.TotalDisposed != 5 || batch.OriginalQuantity != 40 {
		t.Fatalf("batch disposal aggregation wrong: qty=%d disposed=%d original=%d", batch.Quantity, batch.TotalDisposed, batch.OriginalQuantity)
	}
}

func TestPromoCodeLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	promo, err := svc.CreatePromoCode(ctx, domain.PromoCodeCreateRequest{
		Code:            "diwali20",
		DiscountPercent: 20,
	})
	if err != nil {
		t.Fatalf("create promo failed: %v", err)
	}
	if promo.Code != "DIWALI20" || !promo.Active {
		t.Fatalf("unexpected promo: %+v", promo)
	}

	toggled, err := svc.SetPromoCodeActive(ctx, "DIWALI20", false)
	if err != nil {
		t.Fatalf("toggle promo failed: %v", err)
	}
	if toggled.Active {
		t.Fatalf("promo should be inactive")
	}

	// An inactive promo must be refused on invoice creation.
	draft := testDraft(domain.InvoiceItemInput{
		ProductID: "prod-oud-01", Quantity: 1, BatchNumber: "B-OUD-01-01",
	})
	draft.PromoCode = "DIWALI20"
	if _, err := svc.CreateInvoice(ctx, draft); err == nil {
		t.Fatalf("expected inactive promo to be rejected")
	}
}
