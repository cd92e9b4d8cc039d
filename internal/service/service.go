package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"jassperfumes/backend/internal/cache"
	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
	"jassperfumes/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const overviewCacheKey = "inventory:overview"

// defaultShelfLifeMonths applies when a batch arrives without an expiry
// date.
const defaultShelfLifeMonths = 36

type Service struct {
	repo        store.Repository
	overview    cache.OverviewCache
	overviewTTL time.Duration
}

func New(repo store.Repository, overview cache.OverviewCache, overviewTTL time.Duration) *Service {
	if overview == nil {
		overview = cache.NoopOverviewCache{}
	}
	if overviewTTL <= 0 {
		overviewTTL = 30 * time.Second
	}

	return &Service{
		repo:        repo,
		overview:    overview,
		overviewTTL: overviewTTL,
	}
}

func (s *Service) invalidateOverview(ctx context.Context) {
	if err := s.overview.Invalidate(ctx, overviewCacheKey); err != nil {
		log.Printf("[service] WARN: overview cache invalidation failed: %v", err)
	}
}

// Customers

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Email = strings.TrimSpace(req.Email)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	if req.CustomerName == "" || req.ContactNumber == "" {
		return domain.Customer{}, newLifecycleError(KindValidationFailed, "customerName and contactNumber are required")
	}

	if req.Email != "" {
		if _, err := s.repo.FindCustomerByEmail(ctx, req.Email); err == nil {
			return domain.Customer{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("a customer with email %s already exists", req.Email))
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.Customer{}, err
		}
	}

	seq, err := s.repo.NextCounter(ctx, "customers")
	if err != nil {
		return domain.Customer{}, err
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		CustomerID:     xid.New("cust"),
		CustomerNumber: fmt.Sprintf("CUST%04d", seq),
		CustomerName:   req.CustomerName,
		Email:          req.Email,
		ContactNumber:  req.ContactNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		if name == "" {
			return domain.Customer{}, newLifecycleError(KindValidationFailed, "customerName cannot be empty")
		}
		updated.CustomerName = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.EqualFold(email, existing.Email) {
			if _, err := s.repo.FindCustomerByEmail(ctx, email); err == nil {
				return domain.Customer{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("a customer with email %s already exists", email))
			} else if !errors.Is(err, store.ErrNotFound) {
				return domain.Customer{}, err
			}
		}
		updated.Email = email
	}
	if req.ContactNumber != nil {
		contact := strings.TrimSpace(*req.ContactNumber)
		if contact == "" {
			return domain.Customer{}, newLifecycleError(KindValidationFailed, "contactNumber cannot be empty")
		}
		updated.ContactNumber = contact
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, customerID string) error {
	return s.repo.DeleteCustomer(ctx, customerID)
}

// Products

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.ProductName = strings.TrimSpace(req.ProductName)
	req.Category = strings.TrimSpace(req.Category)
	if req.ProductName == "" || req.Category == "" {
		return domain.Product{}, newLifecycleError(KindValidationFailed, "productName and category are required")
	}
	if req.Price < 0 || req.TaxSlab < 0 || req.TaxSlab > 100 || req.Discount < 0 || req.Discount > 100 {
		return domain.Product{}, newLifecycleError(KindValidationFailed, "price, taxSlab and discount must be within range")
	}

	if _, err := s.repo.FindProductByName(ctx, req.ProductName); err == nil {
		return domain.Product{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("product %s already exists", req.ProductName))
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ProductID:   xid.New("prod"),
		ProductName: req.ProductName,
		Barcode:     strings.TrimSpace(req.Barcode),
		HSNCode:     strings.TrimSpace(req.HSNCode),
		Category:    req.Category,
		Price:       req.Price,
		TaxSlab:     req.TaxSlab,
		Discount:    req.Discount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// Inventory

// InventoryOverview assembles the per-product stock view with batch-level
// disposal history folded in. The result is cached briefly since it joins
// three collections, and every stock-touching write invalidates it.
func (s *Service) InventoryOverview(ctx context.Context) (domain.InventoryOverview, error) {
	if cached, hit, err := s.overview.Get(ctx, overviewCacheKey); err != nil {
		log.Printf("[service] WARN: overview cache read failed: %v", err)
	} else if hit {
		return *cached, nil
	}

	records, err := s.repo.ListInventory(ctx)
	if err != nil {
		return domain.InventoryOverview{}, err
	}

	overview := domain.InventoryOverview{Items: make([]domain.InventoryOverviewItem, 0, len(records))}
	for _, record := range records {
		item := domain.InventoryOverviewItem{
			InventoryID:   record.InventoryID,
			ProductID:     record.ProductID,
			ProductName:   record.ProductName,
			Category:      record.Category,
			TotalQuantity: record.TotalQuantity,
			Status:        record.Status,
			CreatedAt:     record.CreatedAt,
			UpdatedAt:     record.UpdatedAt,
		}

		if product, err := s.repo.GetProductByID(ctx, record.ProductID); err == nil {
			item.HSNCode = product.HSNCode
			item.Price = product.Price
			item.TaxSlab = product.TaxSlab
			item.Discount = product.Discount
		}

		disposals, err := s.repo.ListDisposalsByProduct(ctx, record.ProductID)
		if err != nil {
			return domain.InventoryOverview{}, err
		}
		disposalsByBatch := make(map[string][]domain.BatchDisposalView)
		for _, disposal := range disposals {
			for _, batch := range disposal.Batches {
				disposalsByBatch[batch.BatchNumber] = append(disposalsByBatch[batch.BatchNumber], domain.BatchDisposalView{
					Type:         disposal.Type,
					Quantity:     batch.Quantity,
					Reason:       disposal.Reason,
					DisposalDate: disposal.DisposalDate,
					DisposalID:   disposal.DisposalID,
				})
			}
		}

		item.Batches = make([]domain.BatchView, 0, len(record.Batches))
		for _, batch := range record.Batches {
			view := domain.BatchView{Batch: batch, Disposals: disposalsByBatch[batch.BatchNumber]}
			for _, d := range view.Disposals {
				view.TotalDisposed += d.Quantity
			}
			view.OriginalQuantity = batch.Quantity + view.TotalDisposed
			item.TotalDisposed += view.TotalDisposed
			item.Batches = append(item.Batches, view)
		}

		overview.Items = append(overview.Items, item)
	}

	if err := s.overview.Set(ctx, overviewCacheKey, &overview, s.overviewTTL); err != nil {
		log.Printf("[service] WARN: overview cache write failed: %v", err)
	}
	return overview, nil
}

// AddBatches appends batches to a product's inventory record, creating
// the record on first stock. A batch without an expiry date gets the
// default shelf life from its manufacture date.
func (s *Service) AddBatches(ctx context.Context, req domain.AddBatchesRequest) (domain.InventoryRecord, error) {
	if req.ProductID == "" || len(req.Batches) == 0 {
		return domain.InventoryRecord{}, newLifecycleError(KindValidationFailed, "productId and at least one batch are required")
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.InventoryRecord{}, newLifecycleError(KindProductNotFound, fmt.Sprintf("product %s not found", req.ProductID))
		}
		return domain.InventoryRecord{}, err
	}

	now := time.Now().UTC()
	record, err := s.repo.GetInventoryByProduct(ctx, req.ProductID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.InventoryRecord{}, err
		}
		record = &domain.InventoryRecord{
			ProductID:   product.ProductID,
			ProductName: product.ProductName,
			Category:    product.Category,
			CreatedAt:   now,
		}
	}

	existing := make(map[string]bool, len(record.Batches))
	for _, batch := range record.Batches {
		existing[batch.BatchNumber] = true
	}

	for i, input := range req.Batches {
		batch, err := buildBatch(input, now)
		if err != nil {
			return domain.InventoryRecord{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("batch %d: %v", i, err))
		}
		if existing[batch.BatchNumber] {
			return domain.InventoryRecord{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("batch %s already exists for product %s", batch.BatchNumber, product.ProductName))
		}
		existing[batch.BatchNumber] = true
		record.Batches = append(record.Batches, batch)
	}

	saved, err := s.repo.SaveInventory(ctx, *record)
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.invalidateOverview(ctx)
	return *saved, nil
}

// BulkAddBatches processes many rows keyed by product name, collecting a
// structured error per bad row instead of aborting the run.
func (s *Service) BulkAddBatches(ctx context.Context, req domain.BulkBatchRequest) (domain.BulkBatchResponse, error) {
	if len(req.Rows) == 0 {
		return domain.BulkBatchResponse{}, newLifecycleError(KindValidationFailed, "no rows to process")
	}

	resp := domain.BulkBatchResponse{Errors: make([]domain.BulkBatchError, 0, 4)}
	for i, row := range req.Rows {
		rowNumber := i + 1
		row.ProductName = strings.TrimSpace(row.ProductName)
		row.BatchNumber = strings.TrimSpace(row.BatchNumber)
		if row.ProductName == "" || row.BatchNumber == "" || row.Quantity < 1 {
			resp.Errors = append(resp.Errors, domain.BulkBatchError{
				RowNumber:   rowNumber,
				ProductName: row.ProductName,
				BatchNumber: row.BatchNumber,
				Message:     "productName, batchNumber and a positive quantity are required",
			})
			continue
		}

		product, err := s.repo.FindProductByName(ctx, row.ProductName)
		if err != nil {
			message := "product not found"
			if !errors.Is(err, store.ErrNotFound) {
				message = "product lookup failed"
			}
			resp.Errors = append(resp.Errors, domain.BulkBatchError{
				RowNumber:   rowNumber,
				ProductName: row.ProductName,
				BatchNumber: row.BatchNumber,
				Message:     message,
				Details:     err.Error(),
			})
			continue
		}

		_, err = s.AddBatches(ctx, domain.AddBatchesRequest{
			ProductID: product.ProductID,
			Batches: []domain.BatchInput{{
				BatchNumber:     row.BatchNumber,
				Quantity:        row.Quantity,
				ManufactureDate: row.ManufactureDate,
			}},
		})
		if err != nil {
			resp.Errors = append(resp.Errors, domain.BulkBatchError{
				RowNumber:   rowNumber,
				ProductName: row.ProductName,
				BatchNumber: row.BatchNumber,
				Message:     "batch rejected",
				Details:     err.Error(),
			})
			continue
		}
		resp.AddedBatches++
	}
	resp.TotalErrors = len(resp.Errors)
	return resp, nil
}

// DisposeProduct removes quantities from one or more batches and records
// a disposal document. Either a single batchNumber+quantity or an
// explicit batches list is accepted.
func (s *Service) DisposeProduct(ctx context.Context, req domain.DisposeProductRequest) (domain.DisposalRecord, error) {
	if req.ProductID == "" {
		return domain.DisposalRecord{}, newLifecycleError(KindValidationFailed, "productId is required")
	}
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if req.Type != domain.DisposalTypeDefective && req.Type != domain.DisposalTypeExpired {
		return domain.DisposalRecord{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("unsupported disposal type %q", req.Type))
	}

	targets := req.Batches
	if len(targets) == 0 {
		if req.BatchNumber == "" || req.Quantity < 1 {
			return domain.DisposalRecord{}, newLifecycleError(KindValidationFailed, "batchNumber and a positive quantity are required")
		}
		targets = []domain.DisposeBatchInput{{BatchNumber: req.BatchNumber, Quantity: req.Quantity}}
	}

	record, err := s.repo.GetInventoryByProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DisposalRecord{}, newLifecycleError(KindProductNotFound, fmt.Sprintf("no inventory for product %s", req.ProductID))
		}
		return domain.DisposalRecord{}, err
	}

	batchesByNumber := make(map[string]domain.Batch, len(record.Batches))
	for _, batch := range record.Batches {
		batchesByNumber[batch.BatchNumber] = batch
	}

	findings := make([]ItemError, 0, 2)
	for i, target := range targets {
		batch, exists := batchesByNumber[target.BatchNumber]
		if !exists {
			findings = append(findings, ItemError{
				Index:       i,
				ProductID:   req.ProductID,
				ProductName: record.ProductName,
				BatchNumber: target.BatchNumber,
				Kind:        KindBatchNotFound,
				Message:     fmt.Sprintf("batch %s not found for product %s", target.BatchNumber, record.ProductName),
			})
			continue
		}
		if target.Quantity < 1 || target.Quantity > batch.Quantity {
			findings = append(findings, ItemError{
				Index:       i,
				ProductID:   req.ProductID,
				ProductName: record.ProductName,
				BatchNumber: target.BatchNumber,
				Kind:        KindInsufficientStock,
				Message:     fmt.Sprintf("batch %s has %d units, %d requested for disposal", target.BatchNumber, batch.Quantity, target.Quantity),
				Available:   batch.Quantity,
				Requested:   target.Quantity,
			})
		}
	}
	if len(findings) > 0 {
		return domain.DisposalRecord{}, newItemsError(findings, "disposal validation failed")
	}

	plan := &inventoryPlan{ops: make([]inventoryOp, 0, len(targets))}
	for _, target := range targets {
		plan.ops = append(plan.ops, inventoryOp{
			ProductID:   req.ProductID,
			ProductName: record.ProductName,
			BatchNumber: target.BatchNumber,
			Delta:       -target.Quantity,
		})
	}
	if _, lerr := plan.apply(ctx, s.repo); lerr != nil {
		return domain.DisposalRecord{}, lerr
	}

	now := time.Now().UTC()
	disposalDate := now
	if strings.TrimSpace(req.DisposalDate) != "" {
		parsed, err := time.Parse("2006-01-02", req.DisposalDate)
		if err != nil {
			return domain.DisposalRecord{}, newLifecycleError(KindValidationFailed, "disposalDate must be YYYY-MM-DD")
		}
		disposalDate = parsed.UTC()
	}

	disposal := domain.DisposalRecord{
		DisposalID:   xid.New("disp"),
		ProductID:    req.ProductID,
		ProductName:  record.ProductName,
		Category:     record.Category,
		Type:         req.Type,
		Reason:       strings.TrimSpace(req.Reason),
		DisposalDate: disposalDate,
		CreatedAt:    now,
	}
	for _, target := range targets {
		batch := batchesByNumber[target.BatchNumber]
		disposal.Batches = append(disposal.Batches, domain.DisposedBatch{
			BatchNumber:     target.BatchNumber,
			Quantity:        target.Quantity,
			ManufactureDate: batch.ManufactureDate,
			ExpiryDate:      batch.ExpiryDate,
		})
		disposal.TotalQuantityDisposed += target.Quantity
	}

	created, err := s.repo.CreateDisposal(ctx, disposal)
	if err != nil {
		return domain.DisposalRecord{}, err
	}

	s.invalidateOverview(ctx)
	return *created, nil
}

func (s *Service) DisposalHistory(ctx context.Context, filter domain.DisposalHistoryFilter) (domain.DisposalHistory, error) {
	filter.Type = strings.ToLower(strings.TrimSpace(filter.Type))
	if filter.Type != "" && filter.Type != domain.DisposalTypeDefective && filter.Type != domain.DisposalTypeExpired {
		return domain.DisposalHistory{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("unsupported disposal type %q", filter.Type))
	}
	return s.repo.ListDisposals(ctx, filter)
}

// Promo codes

func (s *Service) CreatePromoCode(ctx context.Context, req domain.PromoCodeCreateRequest) (domain.PromoCode, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PromoCode{}, fmt.Errorf("admin role required")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" || req.DiscountPercent <= 0 || req.DiscountPercent > 100 {
		return domain.PromoCode{}, newLifecycleError(KindValidationFailed, "code and a discountPercent between 0 and 100 are required")
	}

	promo := domain.PromoCode{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	created, err := s.repo.CreatePromoCode(ctx, promo)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.PromoCode{}, newLifecycleError(KindValidationFailed, fmt.Sprintf("promo code %s already exists", req.Code))
		}
		return domain.PromoCode{}, err
	}
	return *created, nil
}

func (s *Service) ListPromoCodes(ctx context.Context) ([]domain.PromoCode, error) {
	return s.repo.ListPromoCodes(ctx)
}

func (s *Service) SetPromoCodeActive(ctx context.Context, code string, active bool) (domain.PromoCode, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PromoCode{}, fmt.Errorf("admin role required")
	}

	promo, err := s.repo.SetPromoCodeActive(ctx, strings.ToUpper(strings.TrimSpace(code)), active)
	if err != nil {
		return domain.PromoCode{}, err
	}
	return *promo, nil
}

// buildBatch validates and converts one batch input. Dates arrive as
// YYYY-MM-DD strings.
func buildBatch(input domain.BatchInput, now time.Time) (domain.Batch, error) {
	input.BatchNumber = strings.TrimSpace(input.BatchNumber)
	if input.BatchNumber == "" {
		return domain.Batch{}, fmt.Errorf("batchNumber is required")
	}
	if input.Quantity < 1 {
		return domain.Batch{}, fmt.Errorf("quantity must be positive")
	}

	manufacture, err := time.Parse("2006-01-02", strings.TrimSpace(input.ManufactureDate))
	if err != nil {
		return domain.Batch{}, fmt.Errorf("manufactureDate must be YYYY-MM-DD")
	}
	manufacture = manufacture.UTC()
	if manufacture.After(now) {
		return domain.Batch{}, fmt.Errorf("manufactureDate cannot be in the future")
	}

	expiry := manufacture.AddDate(0, defaultShelfLifeMonths, 0)
	if strings.TrimSpace(input.ExpiryDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(input.ExpiryDate))
		if err != nil {
			return domain.Batch{}, fmt.Errorf("expiryDate must be YYYY-MM-DD")
		}
		expiry = parsed.UTC()
		if !expiry.After(manufacture) {
			return domain.Batch{}, fmt.Errorf("expiryDate must be after manufactureDate")
		}
	}

	return domain.Batch{
		BatchNumber:     input.BatchNumber,
		Quantity:        input.Quantity,
		ManufactureDate: manufacture,
		ExpiryDate:      expiry,
		AddedAt:         now,
	}, nil
}
