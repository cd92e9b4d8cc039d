package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"jassperfumes/backend/internal/domain"
)

// Sales invoices cover wholesale orders billed against a work order. They
// share the global counter mechanism with retail invoices but keep their
// own sequence, and their line items never touch inventory batches.

func (s *Service) CreateSalesInvoice(ctx context.Context, draft domain.SalesInvoiceDraft) (*domain.SalesInvoice, error) {
	now := time.Now().UTC()

	items, err := normalizeSalesItems(draft.Items)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.Customer.Name) == "" {
		return nil, newLifecycleError(KindValidationFailed, "customer name is required")
	}

	seq, err := s.repo.NextCounter(ctx, domain.CounterSales)
	if err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	invoiceNumber := fmt.Sprintf("INV%d%04d", now.Year(), seq)

	date := strings.TrimSpace(draft.Date)
	if date == "" {
		date = now.Format("2006-01-02")
	}

	invoice := domain.SalesInvoice{
		InvoiceNumber:   invoiceNumber,
		Date:            date,
		Customer:        draft.Customer,
		WorkOrderNumber: strings.TrimSpace(draft.WorkOrderNumber),
		PONumber:        strings.TrimSpace(draft.PONumber),
		PODate:          strings.TrimSpace(draft.PODate),
		Items:           items,
		Total:           salesTotal(items),
		Remarks:         strings.TrimSpace(draft.Remarks),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if draft.EwayBill != nil {
		bill := *draft.EwayBill
		bill.DocNo = invoiceNumber
		invoice.EwayBill = &bill
	}

	created, err := s.repo.CreateSalesInvoice(ctx, invoice)
	if err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}

	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] sales invoice %s created by %s: items=%d total=%.2f", created.InvoiceNumber, actor.Username, len(created.Items), created.Total)
	return created, nil
}

func (s *Service) GetSalesInvoice(ctx context.Context, invoiceNumber string) (*domain.SalesInvoice, error) {
	return s.repo.GetSalesInvoice(ctx, invoiceNumber)
}

func (s *Service) ListSalesInvoices(ctx context.Context, workOrderNumber string) ([]domain.SalesInvoice, error) {
	return s.repo.ListSalesInvoices(ctx, strings.TrimSpace(workOrderNumber))
}

// UpdateSalesInvoice replaces the mutable fields of a sales invoice. The
// invoice number, creation time and eway bill document number are
// protected and survive the update.
func (s *Service) UpdateSalesInvoice(ctx context.Context, invoiceNumber string, draft domain.SalesInvoiceDraft) (*domain.SalesInvoice, error) {
	existing, err := s.repo.GetSalesInvoice(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}

	items, err := normalizeSalesItems(draft.Items)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Customer = draft.Customer
	updated.WorkOrderNumber = strings.TrimSpace(draft.WorkOrderNumber)
	updated.PONumber = strings.TrimSpace(draft.PONumber)
	updated.PODate = strings.TrimSpace(draft.PODate)
	updated.Items = items
	updated.Total = salesTotal(items)
	updated.Remarks = strings.TrimSpace(draft.Remarks)
	if date := strings.TrimSpace(draft.Date); date != "" {
		updated.Date = date
	}
	if draft.EwayBill != nil {
		bill := *draft.EwayBill
		bill.DocNo = existing.InvoiceNumber
		updated.EwayBill = &bill
	}

	return s.repo.UpdateSalesInvoice(ctx, updated)
}

func (s *Service) DeleteSalesInvoice(ctx context.Context, invoiceNumber string) error {
	if err := s.repo.DeleteSalesInvoice(ctx, invoiceNumber); err != nil {
		return err
	}
	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] sales invoice %s deleted by %s", invoiceNumber, actor.Username)
	return nil
}

func normalizeSalesItems(items []domain.SalesItem) ([]domain.SalesItem, error) {
	if len(items) == 0 {
		return nil, newLifecycleError(KindValidationFailed, "sales invoice requires at least one item")
	}
	normalized := make([]domain.SalesItem, 0, len(items))
	for i, item := range items {
		item.Description = strings.TrimSpace(item.Description)
		if item.Description == "" || item.Quantity < 1 || item.Price < 0 {
			return nil, newLifecycleError(KindValidationFailed, fmt.Sprintf("item %d: description, a positive quantity and a non-negative price are required", i))
		}
		if item.Amount == 0 {
			item.Amount = item.Price * float64(item.Quantity)
		}
		normalized = append(normalized, item)
	}
	return normalized, nil
}

func salesTotal(items []domain.SalesItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Amount
	}
	return total
}
