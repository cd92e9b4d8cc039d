package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/pricing"
	"jassperfumes/backend/internal/store"
	"jassperfumes/backend/internal/xid"
)

// CreateInvoice runs the full sale lifecycle: validate every item against
// live inventory, compute amounts, mint the invoice number, persist the
// invoice and only then deduct stock. A deduction failure rolls the
// already-applied deductions back and removes the persisted invoice, so a
// failed create leaves no trace except a consumed sequence number.
func (s *Service) CreateInvoice(ctx context.Context, draft domain.InvoiceDraft) (*domain.Invoice, error) {
	now := time.Now().UTC()

	if len(draft.Items) == 0 {
		return nil, newLifecycleError(KindValidationFailed, "invoice requires at least one item")
	}
	draft.PaymentType = strings.ToLower(strings.TrimSpace(draft.PaymentType))
	if !domain.IsSupportedPaymentType(draft.PaymentType) {
		return nil, newLifecycleError(KindValidationFailed, fmt.Sprintf("unsupported payment type %q", draft.PaymentType))
	}
	if strings.TrimSpace(draft.Customer.Name) == "" || strings.TrimSpace(draft.Customer.Mobile) == "" {
		return nil, newLifecycleError(KindValidationFailed, "customer name and mobile are required")
	}
	if draft.LoyaltyCoinsUsed < 0 {
		return nil, newLifecycleError(KindValidationFailed, "loyaltyCoinsUsed cannot be negative")
	}

	promo, err := s.resolvePromo(ctx, draft.PromoCode)
	if err != nil {
		return nil, err
	}

	inputs, lerr := s.normalizeItems(ctx, draft.Items)
	if lerr != nil {
		return nil, lerr
	}

	plan, findings, err := s.planDeductions(ctx, inputs, now)
	if err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	if len(findings) > 0 {
		return nil, newItemsError(findings, "invoice validation failed")
	}

	result := pricing.Calculate(pricing.Input{
		Items:            inputs,
		Promo:            promo,
		LoyaltyCoinsUsed: draft.LoyaltyCoinsUsed,
	})

	// The number is minted only after validation has passed. Sequence
	// numbers consumed by a later commit failure are never reused.
	seq, err := s.repo.NextCounter(ctx, domain.CounterInvoices)
	if err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	invoiceNumber := fmt.Sprintf("INV%d%04d", now.Year(), seq)

	date := strings.TrimSpace(draft.Date)
	if date == "" {
		date = now.Format("2006-01-02")
	}

	invoice := domain.Invoice{
		InvoiceNumber:    invoiceNumber,
		Date:             date,
		Customer:         draft.Customer,
		Items:            s.decorateItems(ctx, result.Items),
		PaymentType:      draft.PaymentType,
		Subtotal:         result.Subtotal,
		BaseValue:        result.BaseValue,
		Discount:         result.Discount,
		Tax:              result.Tax,
		Cgst:             result.Cgst,
		Sgst:             result.Sgst,
		HasMixedTaxRates: result.HasMixedTaxRates,
		TaxPercentages:   result.TaxPercentages,
		Total:            result.Total,
		Remarks:          strings.TrimSpace(draft.Remarks),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if promo != nil {
		invoice.Promo = &domain.PromoApplication{Code: promo.Code, Percent: promo.Percent, Discount: result.PromoDiscount}
	}
	if result.LoyaltyCoinsConsumed > 0 || result.LoyaltyCoinsEarned > 0 {
		invoice.Loyalty = &domain.LoyaltyApplication{
			CoinsUsed:   result.LoyaltyCoinsConsumed,
			Discount:    result.LoyaltyDiscount,
			CoinsEarned: result.LoyaltyCoinsEarned,
		}
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}

	if _, lerr := plan.apply(ctx, s.repo); lerr != nil {
		// Stock was already rolled back (or the rollback itself failed,
		// in which case lerr is fatal). Remove the orphan invoice.
		if delErr := s.repo.DeleteInvoiceByNumber(ctx, created.InvoiceNumber); delErr != nil {
			log.Printf("[service] FATAL: orphan invoice %s could not be removed after failed stock commit: %v", created.InvoiceNumber, delErr)
			lerr.Fatal = true
		}
		return nil, lerr
	}

	s.invalidateOverview(ctx)
	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] invoice %s created by %s: items=%d total=%.2f", created.InvoiceNumber, actor.Username, len(created.Items), created.Total)
	return created, nil
}

// DeleteInvoice archives the invoice, restores every deducted batch and
// records the restoration ledger on the archive entry before the invoice
// row is removed. If any referenced batch no longer exists, nothing is
// touched and every unrestorable item is reported.
func (s *Service) DeleteInvoice(ctx context.Context, invoiceNumber string) (*domain.RestorationSummary, error) {
	invoice, err := s.repo.GetInvoiceByNumber(ctx, invoiceNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newLifecycleError(KindInvoiceNotFound, fmt.Sprintf("invoice %s not found", invoiceNumber))
		}
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}

	// Restorability check: every item's batch must still exist and carry
	// complete metadata. Findings are collected for all items before
	// refusing.
	findings := make([]ItemError, 0, 2)
	for i, item := range invoice.Items {
		record, err := s.repo.GetInventoryByProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				findings = append(findings, ItemError{
					Index:       i,
					ProductID:   item.ProductID,
					ProductName: item.Name,
					BatchNumber: item.BatchNumber,
					Kind:        KindCannotDelete,
					Message:     fmt.Sprintf("inventory for %s no longer exists, cannot restore batch %s", item.Name, item.BatchNumber),
				})
				continue
			}
			return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
		}
		var batch *domain.Batch
		for b := range record.Batches {
			if record.Batches[b].BatchNumber == item.BatchNumber {
				batch = &record.Batches[b]
				break
			}
		}
		switch {
		case batch == nil:
			findings = append(findings, ItemError{
				Index:       i,
				ProductID:   item.ProductID,
				ProductName: item.Name,
				BatchNumber: item.BatchNumber,
				Kind:        KindCannotDelete,
				Message:     fmt.Sprintf("batch %s of %s no longer exists, stock cannot be restored", item.BatchNumber, item.Name),
			})
		case batch.ExpiryDate.IsZero() || batch.ManufactureDate.IsZero():
			findings = append(findings, ItemError{
				Index:       i,
				ProductID:   item.ProductID,
				ProductName: item.Name,
				BatchNumber: item.BatchNumber,
				Kind:        KindCannotDelete,
				Message:     fmt.Sprintf("batch %s of %s has incomplete metadata, stock cannot be restored", item.BatchNumber, item.Name),
			})
		}
	}
	if len(findings) > 0 {
		return nil, &LifecycleError{Kind: KindCannotDelete, Message: fmt.Sprintf("invoice %s cannot be deleted", invoiceNumber), Items: findings}
	}

	actor, _ := ActorFromContext(ctx)
	entry := domain.ArchiveEntry{
		ArchiveID: xid.New("arch"),
		Invoice:   *invoice,
		DeletedBy: actor.Username,
		DeletedAt: time.Now().UTC(),
	}
	if _, err := s.repo.AppendArchiveEntry(ctx, entry); err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}

	restorePlan := &inventoryPlan{ops: make([]inventoryOp, 0, len(invoice.Items))}
	for _, item := range invoice.Items {
		restorePlan.ops = append(restorePlan.ops, inventoryOp{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			BatchNumber: item.BatchNumber,
			Delta:       item.Quantity,
		})
	}
	applied, lerr := restorePlan.apply(ctx, s.repo)
	if lerr != nil {
		return nil, lerr
	}

	ledger := make([]domain.RestorationItem, 0, len(applied))
	for i, op := range applied {
		ledger = append(ledger, domain.RestorationItem{
			ProductID:   op.ProductID,
			ProductName: restorePlan.ops[i].ProductName,
			BatchNumber: op.BatchNumber,
			Quantity:    op.Delta,
			StockBefore: op.StockBefore,
			StockAfter:  op.StockAfter,
		})
	}
	if err := s.repo.AttachRestorationLedger(ctx, entry.ArchiveID, ledger); err != nil {
		log.Printf("[service] WARN: restoration ledger not attached to archive %s: %v", entry.ArchiveID, err)
	}

	if err := s.repo.DeleteInvoiceByNumber(ctx, invoiceNumber); err != nil {
		log.Printf("[service] FATAL: invoice %s restocked and archived but not removed: %v", invoiceNumber, err)
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error(), Fatal: true}
	}

	s.invalidateOverview(ctx)
	log.Printf("[service] invoice %s deleted by %s: restored %d batches", invoiceNumber, actor.Username, len(ledger))
	return &domain.RestorationSummary{InvoiceNumber: invoiceNumber, Items: ledger}, nil
}

// UpdateInvoiceProducts replaces the invoice's line items. The inventory
// delta is computed per product+batch pair against the stored items, the
// whole delta is validated up front, and all amounts are recomputed from
// scratch. Every attempt, successful or not, lands in the update history.
func (s *Service) UpdateInvoiceProducts(ctx context.Context, invoiceNumber string, items []domain.InvoiceItemInput) (*domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByNumber(ctx, invoiceNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newLifecycleError(KindInvoiceNotFound, fmt.Sprintf("invoice %s not found", invoiceNumber))
		}
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	if len(items) == 0 {
		return nil, newLifecycleError(KindValidationFailed, "invoice requires at least one item")
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()

	recordFailure := func(lerr *LifecycleError) {
		if err := s.repo.CreateUpdateRecord(ctx, domain.InvoiceUpdateRecord{
			RecordID:      xid.New("upd"),
			InvoiceNumber: invoiceNumber,
			EditedBy:      actor.Username,
			TotalBefore:   invoice.Total,
			TotalAfter:    invoice.Total,
			Error:         lerr.Error(),
			CreatedAt:     now,
		}); err != nil {
			log.Printf("[service] WARN: failed update attempt on %s not recorded: %v", invoiceNumber, err)
		}
	}

	inputs, lerr := s.normalizeItems(ctx, items)
	if lerr != nil {
		recordFailure(lerr)
		return nil, lerr
	}

	diff, deltaPlan, findings, err := s.planItemDiff(ctx, invoice, inputs, now)
	if err != nil {
		lerr := &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
		recordFailure(lerr)
		return nil, lerr
	}
	if len(findings) > 0 {
		lerr := newItemsError(findings, "invoice update validation failed")
		recordFailure(lerr)
		return nil, lerr
	}

	var promo *pricing.Promo
	if invoice.Promo != nil {
		promo = &pricing.Promo{Code: invoice.Promo.Code, Percent: invoice.Promo.Percent}
	}
	coinsUsed := 0
	if invoice.Loyalty != nil {
		coinsUsed = invoice.Loyalty.CoinsUsed
	}
	result := pricing.Calculate(pricing.Input{Items: inputs, Promo: promo, LoyaltyCoinsUsed: coinsUsed})

	applied, alerr := deltaPlan.apply(ctx, s.repo)
	if alerr != nil {
		recordFailure(alerr)
		return nil, alerr
	}

	updated := *invoice
	updated.Items = s.decorateItems(ctx, result.Items)
	updated.Subtotal = result.Subtotal
	updated.BaseValue = result.BaseValue
	updated.Discount = result.Discount
	updated.Tax = result.Tax
	updated.Cgst = result.Cgst
	updated.Sgst = result.Sgst
	updated.HasMixedTaxRates = result.HasMixedTaxRates
	updated.TaxPercentages = result.TaxPercentages
	updated.Total = result.Total
	if updated.Promo != nil {
		updated.Promo = &domain.PromoApplication{Code: updated.Promo.Code, Percent: updated.Promo.Percent, Discount: result.PromoDiscount}
	}
	if updated.Loyalty != nil {
		updated.Loyalty = &domain.LoyaltyApplication{
			CoinsUsed:   result.LoyaltyCoinsConsumed,
			Discount:    result.LoyaltyDiscount,
			CoinsEarned: result.LoyaltyCoinsEarned,
		}
	}
	updated.UpdatedAt = now

	saved, err := s.repo.UpdateInvoice(ctx, updated)
	if err != nil {
		// Put the stock back the way it was before failing.
		if cerr := deltaPlan.compensate(ctx, s.repo, applied); cerr != nil {
			recordFailure(cerr)
			return nil, cerr
		}
		lerr := &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
		recordFailure(lerr)
		return nil, lerr
	}

	if err := s.repo.CreateUpdateRecord(ctx, domain.InvoiceUpdateRecord{
		RecordID:      xid.New("upd"),
		InvoiceNumber: invoiceNumber,
		EditedBy:      actor.Username,
		Diff:          diff,
		InventoryOps:  applied,
		TotalBefore:   invoice.Total,
		TotalAfter:    saved.Total,
		CreatedAt:     now,
	}); err != nil {
		log.Printf("[service] WARN: update history for %s not recorded: %v", invoiceNumber, err)
	}

	s.invalidateOverview(ctx)
	return saved, nil
}

// UpdateInvoiceMetadata patches payment type, customer snapshot or
// remarks. Amounts and stock are untouched; a patch that changes nothing
// is a no-op and does not bump updatedAt.
func (s *Service) UpdateInvoiceMetadata(ctx context.Context, invoiceNumber string, patch domain.InvoiceMetadataPatch) (*domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByNumber(ctx, invoiceNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newLifecycleError(KindInvoiceNotFound, fmt.Sprintf("invoice %s not found", invoiceNumber))
		}
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}

	changed := false
	updated := *invoice

	if patch.PaymentType != nil {
		paymentType := strings.ToLower(strings.TrimSpace(*patch.PaymentType))
		if !domain.IsSupportedPaymentType(paymentType) {
			return nil, newLifecycleError(KindValidationFailed, fmt.Sprintf("unsupported payment type %q", paymentType))
		}
		if paymentType != updated.PaymentType {
			updated.PaymentType = paymentType
			changed = true
		}
	}
	if patch.Customer != nil {
		if strings.TrimSpace(patch.Customer.Name) == "" || strings.TrimSpace(patch.Customer.Mobile) == "" {
			return nil, newLifecycleError(KindValidationFailed, "customer name and mobile are required")
		}
		if *patch.Customer != updated.Customer {
			updated.Customer = *patch.Customer
			changed = true
		}
	}
	if patch.Remarks != nil {
		remarks := strings.TrimSpace(*patch.Remarks)
		if remarks != updated.Remarks {
			updated.Remarks = remarks
			changed = true
		}
	}

	if !changed {
		return invoice, nil
	}

	saved, err := s.repo.UpdateInvoice(ctx, updated)
	if err != nil {
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	return saved, nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByNumber(ctx, invoiceNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newLifecycleError(KindInvoiceNotFound, fmt.Sprintf("invoice %s not found", invoiceNumber))
		}
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	return invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx)
}

func (s *Service) ListInvoiceUpdateHistory(ctx context.Context, invoiceNumber string) ([]domain.InvoiceUpdateRecord, error) {
	return s.repo.ListUpdateRecords(ctx, invoiceNumber)
}

func (s *Service) ListArchivedInvoices(ctx context.Context, limit int) ([]domain.ArchiveEntry, error) {
	return s.repo.ListArchiveEntries(ctx, limit)
}

// resolvePromo looks up and validates an optional promo code.
func (s *Service) resolvePromo(ctx context.Context, code string) (*pricing.Promo, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	promo, err := s.repo.GetPromoCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newLifecycleError(KindValidationFailed, fmt.Sprintf("promo code %s not found", code))
		}
		return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
	}
	if !promo.Active {
		return nil, newLifecycleError(KindValidationFailed, fmt.Sprintf("promo code %s is inactive", code))
	}
	return &pricing.Promo{Code: promo.Code, Percent: promo.DiscountPercent}, nil
}

// normalizeItems makes the catalogue authoritative for price, tax slab and
// descriptive fields, keeping only quantity, batch and per-item discount
// from the request.
func (s *Service) normalizeItems(ctx context.Context, items []domain.InvoiceItemInput) ([]domain.InvoiceItemInput, *LifecycleError) {
	findings := make([]ItemError, 0, 2)
	normalized := make([]domain.InvoiceItemInput, 0, len(items))
	for i, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.BatchNumber = strings.TrimSpace(item.BatchNumber)
		if item.ProductID == "" || item.BatchNumber == "" || item.Quantity < 1 {
			findings = append(findings, ItemError{
				Index:       i,
				ProductID:   item.ProductID,
				BatchNumber: item.BatchNumber,
				Kind:        KindValidationFailed,
				Message:     fmt.Sprintf("item %d: productId, batchNumber and a positive quantity are required", i),
			})
			continue
		}
		if item.Discount < 0 || item.Discount > 100 {
			findings = append(findings, ItemError{
				Index:     i,
				ProductID: item.ProductID,
				Kind:      KindValidationFailed,
				Message:   fmt.Sprintf("item %d: discount must be between 0 and 100", i),
			})
			continue
		}

		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Left for the planning step, which reports missing
				// products together with every other item finding.
				normalized = append(normalized, item)
				continue
			}
			return nil, &LifecycleError{Kind: KindStoreFailure, Message: err.Error()}
		}

		item.Name = product.ProductName
		item.Barcode = product.Barcode
		item.HSN = product.HSNCode
		item.Category = product.Category
		item.Price = product.Price
		item.TaxSlab = product.TaxSlab
		normalized = append(normalized, item)
	}
	if len(findings) > 0 {
		return nil, newItemsError(findings, "invoice validation failed")
	}
	return normalized, nil
}

// decorateItems fills the expiry date on computed items from the batch
// they were sold from. Best effort: a missing batch leaves the field zero.
func (s *Service) decorateItems(ctx context.Context, items []domain.InvoiceItem) []domain.InvoiceItem {
	records := make(map[string]*domain.InventoryRecord, len(items))
	for i := range items {
		record, exists := records[items[i].ProductID]
		if !exists {
			var err error
			record, err = s.repo.GetInventoryByProduct(ctx, items[i].ProductID)
			if err != nil {
				continue
			}
			records[items[i].ProductID] = record
		}
		for _, batch := range record.Batches {
			if batch.BatchNumber == items[i].BatchNumber {
				items[i].ExpiryDate = batch.ExpiryDate
				break
			}
		}
	}
	return items
}

// planItemDiff computes the per-batch quantity deltas between the stored
// items and the replacement set, validates deductions against live stock
// and returns the combined adjustment plan plus the structural diff.
func (s *Service) planItemDiff(ctx context.Context, invoice *domain.Invoice, inputs []domain.InvoiceItemInput, now time.Time) (*domain.ItemDiff, *inventoryPlan, []ItemError, error) {
	type lineKey struct {
		productID   string
		batchNumber string
	}

	oldQty := make(map[lineKey]int, len(invoice.Items))
	oldItems := make(map[lineKey]domain.InvoiceItem, len(invoice.Items))
	for _, item := range invoice.Items {
		key := lineKey{item.ProductID, item.BatchNumber}
		oldQty[key] += item.Quantity
		oldItems[key] = item
	}
	newQty := make(map[lineKey]int, len(inputs))
	newByKey := make(map[lineKey]domain.InvoiceItemInput, len(inputs))
	keyOrder := make([]lineKey, 0, len(inputs))
	for _, item := range inputs {
		key := lineKey{item.ProductID, item.BatchNumber}
		if _, seen := newQty[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		newQty[key] += item.Quantity
		newByKey[key] = item
	}
	for key := range oldQty {
		if _, seen := newQty[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
	}

	diff := &domain.ItemDiff{}
	extraNeeds := make([]domain.InvoiceItemInput, 0, len(keyOrder))
	restores := make([]inventoryOp, 0, len(keyOrder))

	for _, key := range keyOrder {
		before := oldQty[key]
		after := newQty[key]
		switch {
		case before == 0 && after > 0:
			input := newByKey[key]
			diff.Added = append(diff.Added, domain.InvoiceItem{
				ProductID:   key.productID,
				Name:        input.Name,
				BatchNumber: key.batchNumber,
				Quantity:    after,
				Price:       input.Price,
				TaxSlab:     input.TaxSlab,
				Discount:    input.Discount,
			})
			need := input
			need.Quantity = after
			extraNeeds = append(extraNeeds, need)
		case before > 0 && after == 0:
			removed := oldItems[key]
			diff.Removed = append(diff.Removed, removed)
			restores = append(restores, inventoryOp{
				ProductID:   key.productID,
				ProductName: removed.Name,
				BatchNumber: key.batchNumber,
				Delta:       before,
			})
		case before != after:
			diff.Changed = append(diff.Changed, domain.ItemChange{
				ProductID:   key.productID,
				BatchNumber: key.batchNumber,
				OldQuantity: before,
				NewQuantity: after,
			})
			if after > before {
				need := newByKey[key]
				need.Quantity = after - before
				extraNeeds = append(extraNeeds, need)
			} else {
				restores = append(restores, inventoryOp{
					ProductID:   key.productID,
					ProductName: oldItems[key].Name,
					BatchNumber: key.batchNumber,
					Delta:       before - after,
				})
			}
		}
	}

	plan := &inventoryPlan{}
	if len(extraNeeds) > 0 {
		deductPlan, findings, err := s.planDeductions(ctx, extraNeeds, now)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(findings) > 0 {
			return nil, nil, findings, nil
		}
		plan.ops = append(plan.ops, deductPlan.ops...)
	}
	plan.ops = append(plan.ops, restores...)
	return diff, plan, nil, nil
}
