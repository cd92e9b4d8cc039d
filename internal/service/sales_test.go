package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
)

func testSalesDraft(items ...domain.SalesItem) domain.SalesInvoiceDraft {
	return domain.SalesInvoiceDraft{
		Customer: domain.CustomerSnapshot{
			Name:   "Mehra Trading Co",
			Mobile: "9812345678",
		},
		WorkOrderNumber: "WO-1042",
		Items:           items,
	}
}

func TestCreateSalesInvoiceMintsOwnSequence(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	// A retail invoice consumes the retail counter, not the sales one.
	if _, err := svc.CreateInvoice(ctx, testDraft(domain.InvoiceItemInput{
		ProductID: "prod-oud-01", Quantity: 1, BatchNumber: "B-OUD-01-01",
	})); err != nil {
		t.Fatalf("create retail invoice failed: %v", err)
	}

	sale, err := svc.CreateSalesInvoice(ctx, testSalesDraft(domain.SalesItem{
		Description: "Royal Oud 50ml x 24 carton",
		Quantity:    24,
		Price:       1200,
	}))
	if err != nil {
		t.Fatalf("create sales invoice failed: %v", err)
	}

	want := fmt.Sprintf("INV%d0001", time.Now().UTC().Year())
	if sale.InvoiceNumber != want {
		t.Fatalf("expected first sales number %s, got %s", want, sale.InvoiceNumber)
	}
	if sale.Total != 24*1200 {
		t.Fatalf("expected total %d, got %v", 24*1200, sale.Total)
	}
}

func TestCreateSalesInvoiceStampsEwayBillDocNo(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	draft := testSalesDraft(domain.SalesItem{Description: "White Musk 30ml bulk", Quantity: 50, Price: 600})
	draft.EwayBill = &domain.EwayBill{BillNumber: "EWB-9912", VehicleNumber: "DL01AB1234", DocNo: "stale"}

	sale, err := svc.CreateSalesInvoice(ctx, draft)
	if err != nil {
		t.Fatalf("create sales invoice failed: %v", err)
	}
	if sale.EwayBill == nil || sale.EwayBill.DocNo != sale.InvoiceNumber {
		t.Fatalf("expected eway bill doc number to mirror the invoice number: %+v", sale.EwayBill)
	}
	if sale.EwayBill.BillNumber != "EWB-9912" {
		t.Fatalf("expected bill number to survive: %+v", sale.EwayBill)
	}
}

func TestCreateSalesInvoiceValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	for _, tc := range []struct {
		name  string
		draft domain.SalesInvoiceDraft
	}{
		{"no items", domain.SalesInvoiceDraft{Customer: domain.CustomerSnapshot{Name: "Mehra Trading Co"}}},
		{"no customer", domain.SalesInvoiceDraft{Items: []domain.SalesItem{{Description: "carton", Quantity: 1, Price: 100}}}},
		{"zero quantity", testSalesDraft(domain.SalesItem{Description: "carton", Quantity: 0, Price: 100})},
		{"blank description", testSalesDraft(domain.SalesItem{Description: "  ", Quantity: 1, Price: 100})},
	} {
		_, err := svc.CreateSalesInvoice(ctx, tc.draft)
		if err == nil {
			t.Fatalf("%s: expected validation to fail", tc.name)
		}
		var lerr *LifecycleError
		if !errors.As(err, &lerr) || lerr.Kind != KindValidationFailed {
			t.Fatalf("%s: expected a ValidationFailed error, got %v", tc.name, err)
		}
	}
}

func TestSalesInvoiceListFilterUpdateDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := testActorContext()

	first, err := svc.CreateSalesInvoice(ctx, testSalesDraft(domain.SalesItem{Description: "carton A", Quantity: 10, Price: 500}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	other := testSalesDraft(domain.SalesItem{Description: "carton B", Quantity: 5, Price: 700})
	other.WorkOrderNumber = "WO-2001"
	if _, err := svc.CreateSalesInvoice(ctx, other); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	filtered, err := svc.ListSalesInvoices(ctx, "WO-2001")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].WorkOrderNumber != "WO-2001" {
		t.Fatalf("expected exactly the WO-2001 invoice, got %+v", filtered)
	}

	all, err := svc.ListSalesInvoices(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sales invoices, got %d", len(all))
	}

	update := testSalesDraft(domain.SalesItem{Description: "carton A revised", Quantity: 12, Price: 500})
	update.PONumber = "PO-88"
	updated, err := svc.UpdateSalesInvoice(ctx, first.InvoiceNumber, update)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.InvoiceNumber != first.InvoiceNumber {
		t.Fatalf("invoice number must survive an update: %s", updated.InvoiceNumber)
	}
	if updated.Total != 12*500 {
		t.Fatalf("expected recomputed total %d, got %v", 12*500, updated.Total)
	}
	if updated.PONumber != "PO-88" {
		t.Fatalf("expected PO number to be applied: %+v", updated)
	}

	if err := svc.DeleteSalesInvoice(ctx, first.InvoiceNumber); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.GetSalesInvoice(ctx, first.InvoiceNumber); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
