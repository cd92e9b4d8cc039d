package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
	"jassperfumes/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	customersByID    map[string]domain.Customer
	productsByID     map[string]domain.Product
	inventoryByProd  map[string]domain.InventoryRecord
	invoicesByNumber map[string]domain.Invoice
	salesByNumber    map[string]domain.SalesInvoice
	archive          []domain.ArchiveEntry
	updateRecords    []domain.InvoiceUpdateRecord
	disposalsByID    map[string]domain.DisposalRecord
	promosByCode     map[string]domain.PromoCode
	counters         map[string]int64
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		customersByID:    make(map[string]domain.Customer),
		productsByID:     make(map[string]domain.Product),
		inventoryByProd:  make(map[string]domain.InventoryRecord),
		invoicesByNumber: make(map[string]domain.Invoice),
		salesByNumber:    make(map[string]domain.SalesInvoice),
		archive:          make([]domain.ArchiveEntry, 0, 32),
		updateRecords:    make([]domain.InvoiceUpdateRecord, 0, 32),
		disposalsByID:    make(map[string]domain.DisposalRecord),
		promosByCode:     make(map[string]domain.PromoCode),
		counters:         make(map[string]int64),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded builds a store preloaded with a small perfume catalogue,
// batches, promo codes and dev user accounts for demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ProductID: "prod-oud-01", ProductName: "Royal Oud 50ml", Category: "attar", HSNCode: "3303", Price: 1450, TaxSlab: 18},
		{ProductID: "prod-musk-01", ProductName: "White Musk 30ml", Category: "attar", HSNCode: "3303", Price: 780, TaxSlab: 18},
		{ProductID: "prod-rose-01", ProductName: "Damask Rose 30ml", Category: "floral", HSNCode: "3303", Price: 950, TaxSlab: 18},
		{ProductID: "prod-amber-01", ProductName: "Amber Essence 20ml", Category: "resin", HSNCode: "3303", Price: 620, TaxSlab: 12},
	}
	for _, p := range products {
		p.CreatedAt, p.UpdatedAt = now, now
		s.productsByID[p.ProductID] = p

		mfg := now.AddDate(0, -6, 0)
		record := domain.InventoryRecord{
			InventoryID: xid.New("inv"),
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Category:    p.Category,
			Batches: []domain.Batch{
				{BatchNumber: "B-" + strings.ToUpper(p.ProductID[5:]) + "-01", Quantity: 40, ManufactureDate: mfg, ExpiryDate: mfg.AddDate(3, 0, 0), AddedAt: now},
				{BatchNumber: "B-" + strings.ToUpper(p.ProductID[5:]) + "-02", Quantity: 25, ManufactureDate: mfg.AddDate(0, 3, 0), ExpiryDate: mfg.AddDate(3, 3, 0), AddedAt: now},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		record.TotalQuantity = batchTotal(record.Batches)
		record.Status = domain.StockStatusFor(record.TotalQuantity)
		s.inventoryByProd[p.ProductID] = record
	}

	s.promosByCode["FESTIVE10"] = domain.PromoCode{Code: "FESTIVE10", DiscountPercent: 10, Active: true, CreatedAt: now}
	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. Production
// deployments run against PostgreSQL with their own user rows.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Customers

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.CustomerID == "" || customer.CustomerName == "" || customer.ContactNumber == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.customersByID[customer.CustomerID]; exists {
		return nil, store.ErrConflict
	}
	s.customersByID[customer.CustomerID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) FindCustomerByEmail(_ context.Context, email string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customersByID {
		if c.Email != "" && strings.EqualFold(c.Email, email) {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[customer.CustomerID]; !exists {
		return nil, store.ErrNotFound
	}
	s.customersByID[customer.CustomerID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[customerID]; !exists {
		return store.ErrNotFound
	}
	delete(s.customersByID, customerID)
	return nil
}

// Products

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ProductID == "" || product.ProductName == "" || product.Price < 0 {
		return nil, store.ErrInvalid
	}
	if _, exists := s.productsByID[product.ProductID]; exists {
		return nil, store.ErrConflict
	}
	s.productsByID[product.ProductID] = product
	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trimmed := strings.TrimSpace(name)
	for _, p := range s.productsByID {
		if strings.EqualFold(strings.TrimSpace(p.ProductName), trimmed) {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// Inventory

func (s *Store) GetInventoryByProduct(_ context.Context, productID string) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.inventoryByProd[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := copyInventory(record)
	return &found, nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.InventoryRecord, 0, len(s.inventoryByProd))
	for _, r := range s.inventoryByProd {
		records = append(records, copyInventory(r))
	}
	slices.SortFunc(records, func(a, b domain.InventoryRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}

func (s *Store) SaveInventory(_ context.Context, record domain.InventoryRecord) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ProductID == "" {
		return nil, store.ErrInvalid
	}
	for _, batch := range record.Batches {
		if batch.Quantity < 0 {
			return nil, store.ErrNegative
		}
	}
	record.TotalQuantity = batchTotal(record.Batches)
	record.Status = domain.StockStatusFor(record.TotalQuantity)
	record.UpdatedAt = time.Now().UTC()
	if record.InventoryID == "" {
		record.InventoryID = xid.New("inv")
		record.CreatedAt = record.UpdatedAt
	}
	s.inventoryByProd[record.ProductID] = copyInventory(record)
	saved := copyInventory(record)
	return &saved, nil
}

func (s *Store) AdjustBatchQuantity(_ context.Context, productID string, batchNumber string, delta int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.inventoryByProd[productID]
	if !exists {
		return 0, 0, store.ErrNotFound
	}
	for i := range record.Batches {
		if record.Batches[i].BatchNumber != batchNumber {
			continue
		}
		before := record.Batches[i].Quantity
		after := before + delta
		if after < 0 {
			return before, before, store.ErrNegative
		}
		record.Batches[i].Quantity = after
		record.TotalQuantity = batchTotal(record.Batches)
		record.Status = domain.StockStatusFor(record.TotalQuantity)
		record.UpdatedAt = time.Now().UTC()
		s.inventoryByProd[productID] = record
		return before, after, nil
	}
	return 0, 0, store.ErrNotFound
}

// Ledger

func (s *Store) NextCounter(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[name]++
	return s.counters[name], nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.InvoiceNumber == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalid
	}
	if _, exists := s.invoicesByNumber[invoice.InvoiceNumber]; exists {
		return nil, store.ErrConflict
	}
	s.invoicesByNumber[invoice.InvoiceNumber] = copyInvoice(invoice)
	created := copyInvoice(invoice)
	return &created, nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, invoiceNumber string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoicesByNumber[invoiceNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := copyInvoice(invoice)
	return &found, nil
}

func (s *Store) ListInvoices(_ context.Context) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoicesByNumber))
	for _, inv := range s.invoicesByNumber {
		invoices = append(invoices, copyInvoice(inv))
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return invoices, nil
}

func (s *Store) UpdateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.invoicesByNumber[invoice.InvoiceNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	invoice.CreatedAt = existing.CreatedAt
	invoice.UpdatedAt = time.Now().UTC()
	s.invoicesByNumber[invoice.InvoiceNumber] = copyInvoice(invoice)
	updated := copyInvoice(invoice)
	return &updated, nil
}

func (s *Store) DeleteInvoiceByNumber(_ context.Context, invoiceNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoicesByNumber[invoiceNumber]; !exists {
		return store.ErrNotFound
	}
	delete(s.invoicesByNumber, invoiceNumber)
	return nil
}

// Archive

func (s *Store) AppendArchiveEntry(_ context.Context, entry domain.ArchiveEntry) (*domain.ArchiveEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ArchiveID == "" || entry.Invoice.InvoiceNumber == "" {
		return nil, store.ErrInvalid
	}
	s.archive = append(s.archive, copyArchiveEntry(entry))
	created := copyArchiveEntry(entry)
	return &created, nil
}

func (s *Store) AttachRestorationLedger(_ context.Context, archiveID string, ledger []domain.RestorationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.archive {
		if s.archive[i].ArchiveID != archiveID {
			continue
		}
		if len(s.archive[i].RestorationLedger) > 0 {
			return store.ErrImmutable
		}
		s.archive[i].RestorationLedger = slices.Clone(ledger)
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) ListArchiveEntries(_ context.Context, limit int) ([]domain.ArchiveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.ArchiveEntry, 0, len(s.archive))
	for i := len(s.archive) - 1; i >= 0; i-- {
		entries = append(entries, copyArchiveEntry(s.archive[i]))
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// Update history

func (s *Store) CreateUpdateRecord(_ context.Context, record domain.InvoiceUpdateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.RecordID == "" || record.InvoiceNumber == "" {
		return store.ErrInvalid
	}
	s.updateRecords = append(s.updateRecords, record)
	return nil
}

func (s *Store) ListUpdateRecords(_ context.Context, invoiceNumber string) ([]domain.InvoiceUpdateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.InvoiceUpdateRecord, 0, 8)
	for i := len(s.updateRecords) - 1; i >= 0; i-- {
		if s.updateRecords[i].InvoiceNumber == invoiceNumber {
			records = append(records, s.updateRecords[i])
		}
	}
	return records, nil
}

// Disposals

func (s *Store) CreateDisposal(_ context.Context, record domain.DisposalRecord) (*domain.DisposalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.DisposalID == "" || record.ProductID == "" {
		return nil, store.ErrInvalid
	}
	s.disposalsByID[record.DisposalID] = copyDisposal(record)
	created := copyDisposal(record)
	return &created, nil
}

func (s *Store) ListDisposals(_ context.Context, filter domain.DisposalHistoryFilter) (domain.DisposalHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.DisposalRecord, 0, len(s.disposalsByID))
	for _, d := range s.disposalsByID {
		if filter.ProductID != "" && d.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && d.Type != filter.Type {
			continue
		}
		if filter.StartDate != nil && d.DisposalDate.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && d.DisposalDate.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, copyDisposal(d))
	}
	slices.SortFunc(matched, func(a, b domain.DisposalRecord) int {
		return b.DisposalDate.Compare(a.DisposalDate)
	})

	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return domain.DisposalHistory{
		Disposals:   matched[start:end],
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

func (s *Store) ListDisposalsByProduct(_ context.Context, productID string) ([]domain.DisposalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.DisposalRecord, 0, 8)
	for _, d := range s.disposalsByID {
		if d.ProductID == productID {
			records = append(records, copyDisposal(d))
		}
	}
	slices.SortFunc(records, func(a, b domain.DisposalRecord) int {
		return b.DisposalDate.Compare(a.DisposalDate)
	})
	return records, nil
}

// Sales

func (s *Store) CreateSalesInvoice(_ context.Context, invoice domain.SalesInvoice) (*domain.SalesInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.InvoiceNumber == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalid
	}
	if _, exists := s.salesByNumber[invoice.InvoiceNumber]; exists {
		return nil, store.ErrConflict
	}
	s.salesByNumber[invoice.InvoiceNumber] = copySalesInvoice(invoice)
	created := copySalesInvoice(invoice)
	return &created, nil
}

func (s *Store) GetSalesInvoice(_ context.Context, invoiceNumber string) (*domain.SalesInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.salesByNumber[invoiceNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := copySalesInvoice(invoice)
	return &found, nil
}

func (s *Store) ListSalesInvoices(_ context.Context, workOrderNumber string) ([]domain.SalesInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.SalesInvoice, 0, len(s.salesByNumber))
	for _, inv := range s.salesByNumber {
		if workOrderNumber != "" && inv.WorkOrderNumber != workOrderNumber {
			continue
		}
		invoices = append(invoices, copySalesInvoice(inv))
	}
	slices.SortFunc(invoices, func(a, b domain.SalesInvoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return invoices, nil
}

func (s *Store) UpdateSalesInvoice(_ context.Context, invoice domain.SalesInvoice) (*domain.SalesInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.salesByNumber[invoice.InvoiceNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	invoice.CreatedAt = existing.CreatedAt
	invoice.UpdatedAt = time.Now().UTC()
	s.salesByNumber[invoice.InvoiceNumber] = copySalesInvoice(invoice)
	updated := copySalesInvoice(invoice)
	return &updated, nil
}

func (s *Store) DeleteSalesInvoice(_ context.Context, invoiceNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByNumber[invoiceNumber]; !exists {
		return store.ErrNotFound
	}
	delete(s.salesByNumber, invoiceNumber)
	return nil
}

// Promo codes

func (s *Store) CreatePromoCode(_ context.Context, promo domain.PromoCode) (*domain.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if promo.Code == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.promosByCode[promo.Code]; exists {
		return nil, store.ErrConflict
	}
	s.promosByCode[promo.Code] = promo
	created := promo
	return &created, nil
}

func (s *Store) GetPromoCode(_ context.Context, code string) (*domain.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, exists := s.promosByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := promo
	return &found, nil
}

func (s *Store) ListPromoCodes(_ context.Context) ([]domain.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.PromoCode, 0, len(s.promosByCode))
	for _, p := range s.promosByCode {
		promos = append(promos, p)
	}
	slices.SortFunc(promos, func(a, b domain.PromoCode) int {
		return strings.Compare(a.Code, b.Code)
	})
	return promos, nil
}

func (s *Store) SetPromoCodeActive(_ context.Context, code string, active bool) (*domain.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, exists := s.promosByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	promo.Active = active
	s.promosByCode[code] = promo
	updated := promo
	return &updated, nil
}

// Users

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalid
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalid
	}
	if _, exists := s.usersByUsername[user.Username]; !exists {
		return store.ErrNotFound
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; !exists {
		return store.ErrNotFound
	}
	delete(s.usersByUsername, username)
	return nil
}

// helpers

func batchTotal(batches []domain.Batch) int {
	total := 0
	for _, b := range batches {
		total += b.Quantity
	}
	return total
}

func copyInventory(record domain.InventoryRecord) domain.InventoryRecord {
	record.Batches = slices.Clone(record.Batches)
	return record
}

func copyInvoice(invoice domain.Invoice) domain.Invoice {
	invoice.Items = slices.Clone(invoice.Items)
	invoice.TaxPercentages = slices.Clone(invoice.TaxPercentages)
	if invoice.Promo != nil {
		promo := *invoice.Promo
		invoice.Promo = &promo
	}
	if invoice.Loyalty != nil {
		loyalty := *invoice.Loyalty
		invoice.Loyalty = &loyalty
	}
	return invoice
}

func copySalesInvoice(invoice domain.SalesInvoice) domain.SalesInvoice {
	invoice.Items = slices.Clone(invoice.Items)
	if invoice.EwayBill != nil {
		bill := *invoice.EwayBill
		invoice.EwayBill = &bill
	}
	return invoice
}

func copyDisposal(record domain.DisposalRecord) domain.DisposalRecord {
	record.Batches = slices.Clone(record.Batches)
	return record
}

func copyArchiveEntry(entry domain.ArchiveEntry) domain.ArchiveEntry {
	entry.Invoice = copyInvoice(entry.Invoice)
	entry.RestorationLedger = slices.Clone(entry.RestorationLedger)
	return entry
}
