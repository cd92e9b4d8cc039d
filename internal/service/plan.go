package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
)

// inventoryOp is one planned batch adjustment. Delta is negative for a
// deduction and positive for a restock.
type inventoryOp struct {
	ProductID   string
	ProductName string
	BatchNumber string
	Delta       int
}

// inventoryPlan is the full set of adjustments an invoice operation will
// make, computed against a consistent read of inventory before anything
// is written. Validation findings and the plan are mutually exclusive.
type inventoryPlan struct {
	ops []inventoryOp
}

// requirement is the net quantity an operation needs from one
// product+batch pair, aggregated across invoice items.
type requirement struct {
	productID   string
	batchNumber string
	quantity    int
	firstIndex  int
}

// planDeductions validates every item against current inventory and, only
// if all pass, returns the deduction plan. Findings are collected for all
// items rather than stopping at the first.
func (s *Service) planDeductions(ctx context.Context, items []domain.InvoiceItemInput, now time.Time) (*inventoryPlan, []ItemError, error) {
	findings := make([]ItemError, 0, 4)

	// Aggregate per product+batch so two lines against the same batch are
	// checked against their combined quantity.
	required := make(map[string]*requirement, len(items))
	order := make([]string, 0, len(items))
	for i, item := range items {
		if item.Quantity < 1 || item.ProductID == "" || item.BatchNumber == "" {
			findings = append(findings, ItemError{
				Index:       i,
				ProductID:   item.ProductID,
				ProductName: item.Name,
				BatchNumber: item.BatchNumber,
				Kind:        KindValidationFailed,
				Message:     fmt.Sprintf("item %d: productId, batchNumber and a positive quantity are required", i),
			})
			continue
		}
		key := item.ProductID + "|" + item.BatchNumber
		req, exists := required[key]
		if !exists {
			req = &requirement{productID: item.ProductID, batchNumber: item.BatchNumber, firstIndex: i}
			required[key] = req
			order = append(order, key)
		}
		req.quantity += item.Quantity
	}

	inventoryByProduct := make(map[string]*domain.InventoryRecord, len(required))
	productNames := make(map[string]string, len(required))

	for _, key := range order {
		req := required[key]

		product, err := s.repo.GetProductByID(ctx, req.productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				findings = append(findings, ItemError{
					Index:     req.firstIndex,
					ProductID: req.productID,
					Kind:      KindProductNotFound,
					Message:   fmt.Sprintf("product %s not found", req.productID),
				})
				continue
			}
			return nil, nil, err
		}
		productNames[req.productID] = product.ProductName

		record, exists := inventoryByProduct[req.productID]
		if !exists {
			record, err = s.repo.GetInventoryByProduct(ctx, req.productID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					findings = append(findings, ItemError{
						Index:       req.firstIndex,
						ProductID:   req.productID,
						ProductName: product.ProductName,
						BatchNumber: req.batchNumber,
						Kind:        KindProductNotFound,
						Message:     fmt.Sprintf("product %s not found in inventory", product.ProductName),
					})
					continue
				}
				return nil, nil, err
			}
			inventoryByProduct[req.productID] = record
		}

		var batch *domain.Batch
		for i := range record.Batches {
			if record.Batches[i].BatchNumber == req.batchNumber {
				batch = &record.Batches[i]
				break
			}
		}
		if batch == nil {
			findings = append(findings, ItemError{
				Index:       req.firstIndex,
				ProductID:   req.productID,
				ProductName: product.ProductName,
				BatchNumber: req.batchNumber,
				Kind:        KindBatchNotFound,
				Message:     fmt.Sprintf("batch %s not found for product %s", req.batchNumber, product.ProductName),
			})
			continue
		}
		if !batch.ExpiryDate.IsZero() && batch.ExpiryDate.Before(now) {
			findings = append(findings, ItemError{
				Index:       req.firstIndex,
				ProductID:   req.productID,
				ProductName: product.ProductName,
				BatchNumber: req.batchNumber,
				Kind:        KindBatchExpired,
				Message:     fmt.Sprintf("batch %s of %s expired on %s", req.batchNumber, product.ProductName, batch.ExpiryDate.Format("2006-01-02")),
			})
			continue
		}
		if batch.Quantity < req.quantity {
			findings = append(findings, ItemError{
				Index:       req.firstIndex,
				ProductID:   req.productID,
				ProductName: product.ProductName,
				BatchNumber: req.batchNumber,
				Kind:        KindInsufficientStock,
				Message:     fmt.Sprintf("batch %s of %s has %d units, %d requested", req.batchNumber, product.ProductName, batch.Quantity, req.quantity),
				Available:   batch.Quantity,
				Requested:   req.quantity,
			})
			continue
		}
	}

	if len(findings) > 0 {
		return nil, findings, nil
	}

	plan := &inventoryPlan{ops: make([]inventoryOp, 0, len(order))}
	for _, key := range order {
		req := required[key]
		plan.ops = append(plan.ops, inventoryOp{
			ProductID:   req.productID,
			ProductName: productNames[req.productID],
			BatchNumber: req.batchNumber,
			Delta:       -req.quantity,
		})
	}
	return plan, nil, nil
}

// apply executes the plan one adjustment at a time. If an adjustment
// fails, every already-applied one is reversed in the opposite order. A
// failed reversal is a fatal inconsistency and is logged with enough
// detail to repair stock by hand.
func (p *inventoryPlan) apply(ctx context.Context, repo store.Repository) ([]domain.InventoryOpRecord, *LifecycleError) {
	applied := make([]domain.InventoryOpRecord, 0, len(p.ops))

	for _, op := range p.ops {
		before, after, err := repo.AdjustBatchQuantity(ctx, op.ProductID, op.BatchNumber, op.Delta)
		if err != nil {
			lerr := p.compensate(ctx, repo, applied)
			if lerr != nil {
				return nil, lerr
			}
			if errors.Is(err, store.ErrNegative) || errors.Is(err, store.ErrNotFound) {
				return nil, &LifecycleError{
					Kind:    KindInsufficientStock,
					Message: fmt.Sprintf("stock for %s batch %s changed during commit", op.ProductName, op.BatchNumber),
					Items: []ItemError{{
						ProductID:   op.ProductID,
						ProductName: op.ProductName,
						BatchNumber: op.BatchNumber,
						Kind:        KindInsufficientStock,
						Message:     fmt.Sprintf("stock for %s batch %s changed during commit", op.ProductName, op.BatchNumber),
						Available:   before,
						Requested:   -op.Delta,
					}},
				}
			}
			return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
		}
		applied = append(applied, domain.InventoryOpRecord{
			ProductID:   op.ProductID,
			BatchNumber: op.BatchNumber,
			Delta:       op.Delta,
			StockBefore: before,
			StockAfter:  after,
		})
	}

	return applied, nil
}

// compensate reverses applied adjustments, newest first. Returns a fatal
// error if any reversal fails, since stock is then provably wrong.
func (p *inventoryPlan) compensate(ctx context.Context, repo store.Repository, applied []domain.InventoryOpRecord) *LifecycleError {
	for i := len(applied) - 1; i >= 0; i-- {
		op := applied[i]
		if _, _, err := repo.AdjustBatchQuantity(ctx, op.ProductID, op.BatchNumber, -op.Delta); err != nil {
			log.Printf("[service] FATAL: compensation failed product=%s batch=%s delta=%d: %v", op.ProductID, op.BatchNumber, -op.Delta, err)
			return &LifecycleError{
				Kind:    KindStoreFailure,
				Message: fmt.Sprintf("inventory compensation failed for product %s batch %s; stock requires manual repair", op.ProductID, op.BatchNumber),
				Fatal:   true,
			}
		}
	}
	return nil
}
