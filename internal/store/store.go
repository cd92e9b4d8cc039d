package store

import (
	"context"
	"errors"

	"jassperfumes/backend/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("already exists")
	ErrInvalid   = errors.New("invalid input")
	ErrNegative  = errors.New("quantity would go negative")
	ErrImmutable = errors.New("record is immutable")
)

// Repository is the persistence boundary for the back-office documents.
// Implementations own raw mutation primitives only; all invariant-preserving
// orchestration lives in the service layer.
type Repository interface {
	// Customers
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error

	// Products
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)

	// Inventory
	GetInventoryByProduct(ctx context.Context, productID string) (*domain.InventoryRecord, error)
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
	SaveInventory(ctx context.Context, record domain.InventoryRecord) (*domain.InventoryRecord, error)
	// AdjustBatchQuantity applies a signed delta to one batch and reports the
	// before/after quantities. It fails with ErrNegative rather than letting a
	// batch quantity drop below zero.
	AdjustBatchQuantity(ctx context.Context, productID string, batchNumber string, delta int) (before int, after int, err error)

	// Ledger (invoices)
	NextCounter(ctx context.Context, name string) (int64, error)
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context) ([]domain.Invoice, error)
	UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	DeleteInvoiceByNumber(ctx context.Context, invoiceNumber string) error

	// Archive (append-only)
	AppendArchiveEntry(ctx context.Context, entry domain.ArchiveEntry) (*domain.ArchiveEntry, error)
	AttachRestorationLedger(ctx context.Context, archiveID string, ledger []domain.RestorationItem) error
	ListArchiveEntries(ctx context.Context, limit int) ([]domain.ArchiveEntry, error)

	// Update history
	CreateUpdateRecord(ctx context.Context, record domain.InvoiceUpdateRecord) error
	ListUpdateRecords(ctx context.Context, invoiceNumber string) ([]domain.InvoiceUpdateRecord, error)

	// Disposals
	CreateDisposal(ctx context.Context, record domain.DisposalRecord) (*domain.DisposalRecord, error)
	ListDisposals(ctx context.Context, filter domain.DisposalHistoryFilter) (domain.DisposalHistory, error)
	ListDisposalsByProduct(ctx context.Context, productID string) ([]domain.DisposalRecord, error)

	// Promo codes
	CreatePromoCode(ctx context.Context, promo domain.PromoCode) (*domain.PromoCode, error)
	GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error)
	ListPromoCodes(ctx context.Context) ([]domain.PromoCode, error)
	SetPromoCodeActive(ctx context.Context, code string, active bool) (*domain.PromoCode, error)

	// Sales (wholesale invoices, not inventory-backed)
	CreateSalesInvoice(ctx context.Context, invoice domain.SalesInvoice) (*domain.SalesInvoice, error)
	GetSalesInvoice(ctx context.Context, invoiceNumber string) (*domain.SalesInvoice, error)
	// ListSalesInvoices returns all sales invoices, optionally narrowed to
	// one work order number.
	ListSalesInvoices(ctx context.Context, workOrderNumber string) ([]domain.SalesInvoice, error)
	UpdateSalesInvoice(ctx context.Context, invoice domain.SalesInvoice) (*domain.SalesInvoice, error)
	DeleteSalesInvoice(ctx context.Context, invoiceNumber string) error

	// Users
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserPassword(ctx context.Context, username string, password string) error
	DeleteUser(ctx context.Context, username string) error
}
