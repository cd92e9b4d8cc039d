package domain

import "time"

type Customer struct {
	CustomerID     string    `json:"customerId"`
	CustomerNumber string    `json:"customerNumber,omitempty"`
	CustomerName   string    `json:"customerName"`
	Email          string    `json:"email,omitempty"`
	ContactNumber  string    `json:"contactNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type CustomerCreateRequest struct {
	CustomerName  string `json:"customerName"`
	Email         string `json:"email,omitempty"`
	ContactNumber string `json:"contactNumber"`
}

type CustomerUpdateRequest struct {
	CustomerName  *string `json:"customerName,omitempty"`
	Email         *string `json:"email,omitempty"`
	ContactNumber *string `json:"contactNumber,omitempty"`
}

type Product struct {
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Barcode     string    `json:"barcode,omitempty"`
	HSNCode     string    `json:"hsnCode,omitempty"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	TaxSlab     float64   `json:"taxSlab"`
	Discount    float64   `json:"discount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ProductCreateRequest struct {
	ProductName string  `json:"productName"`
	Barcode     string  `json:"barcode,omitempty"`
	HSNCode     string  `json:"hsnCode,omitempty"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	TaxSlab     float64 `json:"taxSlab"`
	Discount    float64 `json:"discount"`
}

// Batch is a dated sub-quantity of a product's stock, tracked for expiry
// and traceability. Batch numbers are unique within a product.
type Batch struct {
	BatchNumber     string    `json:"batchNumber"`
	Quantity        int       `json:"quantity"`
	ManufactureDate time.Time `json:"manufactureDate"`
	ExpiryDate      time.Time `json:"expiryDate"`
	AddedAt         time.Time `json:"addedAt"`
}

type InventoryRecord struct {
	InventoryID   string    `json:"inventoryId"`
	ProductID     string    `json:"productId"`
	ProductName   string    `json:"productName"`
	Category      string    `json:"category"`
	Batches       []Batch   `json:"batches"`
	TotalQuantity int       `json:"totalQuantity"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type BatchInput struct {
	BatchNumber     string `json:"batchNumber"`
	Quantity        int    `json:"quantity"`
	ManufactureDate string `json:"manufactureDate"`
	ExpiryDate      string `json:"expiryDate,omitempty"`
}

type AddBatchesRequest struct {
	ProductID string       `json:"productId"`
	Batches   []BatchInput `json:"batches"`
}

type BulkBatchRow struct {
	ProductName     string `json:"productName"`
	BatchNumber     string `json:"batchNumber"`
	Quantity        int    `json:"quantity"`
	ManufactureDate string `json:"manufactureDate"`
}

type BulkBatchRequest struct {
	Rows []BulkBatchRow `json:"rows"`
}

type BulkBatchError struct {
	RowNumber   int    `json:"rowNumber"`
	ProductName string `json:"productName"`
	BatchNumber string `json:"batchNumber"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
}

type BulkBatchResponse struct {
	AddedBatches int              `json:"addedBatches"`
	Errors       []BulkBatchError `json:"errors"`
	TotalErrors  int              `json:"totalErrors"`
}

// BatchDisposalView is one disposal event affecting a batch, as shown in
// the inventory overview.
type BatchDisposalView struct {
	Type         string    `json:"type"`
	Quantity     int       `json:"quantity"`
	Reason       string    `json:"reason"`
	DisposalDate time.Time `json:"disposalDate"`
	DisposalID   string    `json:"disposalId"`
}

type BatchView struct {
	Batch
	Disposals        []BatchDisposalView `json:"disposals"`
	TotalDisposed    int                 `json:"totalDisposed"`
	OriginalQuantity int                 `json:"originalQuantity"`
}

type InventoryOverviewItem struct {
	InventoryID   string      `json:"inventoryId"`
	ProductID     string      `json:"productId"`
	ProductName   string      `json:"productName"`
	Category      string      `json:"category"`
	HSNCode       string      `json:"hsnCode"`
	Price         float64     `json:"price"`
	TaxSlab       float64     `json:"taxSlab"`
	Discount      float64     `json:"discount"`
	TotalQuantity int         `json:"totalQuantity"`
	Batches       []BatchView `json:"batches"`
	TotalDisposed int         `json:"totalDisposed"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

type InventoryOverview struct {
	Items []InventoryOverviewItem `json:"items"`
}

type DisposedBatch struct {
	BatchNumber     string    `json:"batchNumber"`
	Quantity        int       `json:"quantity"`
	ManufactureDate time.Time `json:"manufactureDate"`
	ExpiryDate      time.Time `json:"expiryDate"`
}

type DisposalRecord struct {
	DisposalID            string          `json:"disposalId"`
	ProductID             string          `json:"productId"`
	ProductName           string          `json:"productName"`
	Category              string          `json:"category"`
	Type                  string          `json:"type"`
	Batches               []DisposedBatch `json:"batches"`
	Reason                string          `json:"reason"`
	TotalQuantityDisposed int             `json:"totalQuantityDisposed"`
	DisposalDate          time.Time       `json:"disposalDate"`
	CreatedAt             time.Time       `json:"createdAt"`
}

type DisposeBatchInput struct {
	BatchNumber string `json:"batchNumber"`
	Quantity    int    `json:"quantity"`
}

type DisposeProductRequest struct {
	ProductID    string              `json:"productId"`
	Type         string              `json:"type"`
	BatchNumber  string              `json:"batchNumber,omitempty"`
	Quantity     int                 `json:"quantity,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Batches      []DisposeBatchInput `json:"batches,omitempty"`
	DisposalDate string              `json:"disposalDate,omitempty"`
}

type DisposalHistoryFilter struct {
	ProductID string
	Type      string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

type DisposalHistory struct {
	Disposals   []DisposalRecord `json:"data"`
	Total       int              `json:"total"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
}

// CustomerSnapshot is the customer copy frozen onto an invoice at creation.
type CustomerSnapshot struct {
	CustomerID     string `json:"customerId"`
	CustomerNumber string `json:"customerNumber,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Mobile         string `json:"mobile"`
}

// InvoiceItem is one product+batch+quantity entry within an invoice. The
// derived amounts are computed at write time and persisted, never re-derived
// on read.
type InvoiceItem struct {
	ProductID   string    `json:"productId"`
	Name        string    `json:"name"`
	Barcode     string    `json:"barcode,omitempty"`
	HSN         string    `json:"hsn,omitempty"`
	Category    string    `json:"category,omitempty"`
	Price       float64   `json:"price"`
	TaxSlab     float64   `json:"taxSlab"`
	Quantity    int       `json:"quantity"`
	Discount    float64   `json:"discount"`
	BatchNumber string    `json:"batchNumber"`
	ExpiryDate  time.Time `json:"expiryDate,omitempty"`

	BaseValue      float64 `json:"baseValue"`
	DiscountAmount float64 `json:"discountAmount"`
	TaxAmount      float64 `json:"taxAmount"`
	CgstAmount     float64 `json:"cgstAmount"`
	SgstAmount     float64 `json:"sgstAmount"`
	TotalAmount    float64 `json:"totalAmount"`
}

type PromoApplication struct {
	Code     string  `json:"code"`
	Percent  float64 `json:"percent"`
	Discount float64 `json:"discount"`
}

type LoyaltyApplication struct {
	CoinsUsed   int     `json:"coinsUsed"`
	Discount    float64 `json:"discount"`
	CoinsEarned int     `json:"coinsEarned"`
}

type Invoice struct {
	InvoiceNumber    string              `json:"invoiceNumber"`
	Date             string              `json:"date"`
	Customer         CustomerSnapshot    `json:"customer"`
	Items            []InvoiceItem       `json:"items"`
	PaymentType      string              `json:"paymentType"`
	Subtotal         float64             `json:"subtotal"`
	BaseValue        float64             `json:"baseValue"`
	Discount         float64             `json:"discount"`
	Tax              float64             `json:"tax"`
	Cgst             float64             `json:"cgst"`
	Sgst             float64             `json:"sgst"`
	HasMixedTaxRates bool                `json:"hasMixedTaxRates"`
	TaxPercentages   []float64           `json:"taxPercentages"`
	Total            float64             `json:"total"`
	Promo            *PromoApplication   `json:"promo,omitempty"`
	Loyalty          *LoyaltyApplication `json:"loyalty,omitempty"`
	Remarks          string              `json:"remarks"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

type InvoiceItemInput struct {
	ProductID   string  `json:"productId"`
	Name        string  `json:"name"`
	Barcode     string  `json:"barcode,omitempty"`
	HSN         string  `json:"hsn,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	TaxSlab     float64 `json:"taxSlab"`
	Quantity    int     `json:"quantity"`
	Discount    float64 `json:"discount"`
	BatchNumber string  `json:"batchNumber"`
}

type InvoiceDraft struct {
	Date             string             `json:"date"`
	Customer         CustomerSnapshot   `json:"customer"`
	Items            []InvoiceItemInput `json:"items"`
	PaymentType      string             `json:"paymentType"`
	PromoCode        string             `json:"promoCode,omitempty"`
	LoyaltyCoinsUsed int                `json:"loyaltyCoinsUsed,omitempty"`
	Remarks          string             `json:"remarks"`
}

type InvoiceMetadataPatch struct {
	PaymentType *string           `json:"paymentType,omitempty"`
	Customer    *CustomerSnapshot `json:"customer,omitempty"`
	Remarks     *string           `json:"remarks,omitempty"`
}

// RestorationItem records one batch put back by an invoice deletion.
type RestorationItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	BatchNumber string `json:"batchNumber"`
	Quantity    int    `json:"quantity"`
	StockBefore int    `json:"stockBefore"`
	StockAfter  int    `json:"stockAfter"`
}

type RestorationSummary struct {
	InvoiceNumber string            `json:"invoiceNumber"`
	Items         []RestorationItem `json:"items"`
}

// ArchiveEntry is the immutable copy of a deleted invoice kept for audit.
// The restoration ledger is appended exactly once, right after restock.
type ArchiveEntry struct {
	ArchiveID         string            `json:"archiveId"`
	Invoice           Invoice           `json:"invoice"`
	DeletedBy         string            `json:"deletedBy"`
	DeletedAt         time.Time         `json:"deletedAt"`
	RestorationLedger []RestorationItem `json:"restorationLedger,omitempty"`
}

type InventoryOpRecord struct {
	ProductID   string `json:"productId"`
	BatchNumber string `json:"batchNumber"`
	Delta       int    `json:"delta"`
	StockBefore int    `json:"stockBefore"`
	StockAfter  int    `json:"stockAfter"`
}

type ItemChange struct {
	ProductID   string `json:"productId"`
	BatchNumber string `json:"batchNumber"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
}

type ItemDiff struct {
	Added   []InvoiceItem `json:"added,omitempty"`
	Removed []InvoiceItem `json:"removed,omitempty"`
	Changed []ItemChange  `json:"changed,omitempty"`
}

// InvoiceUpdateRecord captures one line-item update attempt. Failed attempts
// are recorded too, with Error set instead of a diff.
type InvoiceUpdateRecord struct {
	RecordID      string              `json:"recordId"`
	InvoiceNumber string              `json:"invoiceNumber"`
	EditedBy      string              `json:"editedBy"`
	Diff          *ItemDiff           `json:"diff,omitempty"`
	InventoryOps  []InventoryOpRecord `json:"inventoryOps,omitempty"`
	TotalBefore   float64             `json:"totalBefore"`
	TotalAfter    float64             `json:"totalAfter"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// SalesItem is a free-form line on a wholesale sales invoice. Sales lines
// describe goods against a work order and are not tied to inventory batches.
type SalesItem struct {
	Description string  `json:"description"`
	HSN         string  `json:"hsn,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
}

// EwayBill carries the transport document details of a sales invoice. The
// document number always mirrors the invoice number.
type EwayBill struct {
	DocNo         string `json:"docNo"`
	BillNumber    string `json:"billNumber,omitempty"`
	VehicleNumber string `json:"vehicleNumber,omitempty"`
}

type SalesInvoice struct {
	InvoiceNumber   string           `json:"invoiceNumber"`
	Date            string           `json:"date"`
	Customer        CustomerSnapshot `json:"customer"`
	WorkOrderNumber string           `json:"workOrderNumber,omitempty"`
	PONumber        string           `json:"poNumber,omitempty"`
	PODate          string           `json:"poDate,omitempty"`
	Items           []SalesItem      `json:"items"`
	Total           float64          `json:"total"`
	EwayBill        *EwayBill        `json:"ewayBill,omitempty"`
	Remarks         string           `json:"remarks,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

type SalesInvoiceDraft struct {
	Date            string           `json:"date"`
	Customer        CustomerSnapshot `json:"customer"`
	WorkOrderNumber string           `json:"workOrderNumber,omitempty"`
	PONumber        string           `json:"poNumber,omitempty"`
	PODate          string           `json:"poDate,omitempty"`
	Items           []SalesItem      `json:"items"`
	EwayBill        *EwayBill        `json:"ewayBill,omitempty"`
	Remarks         string           `json:"remarks,omitempty"`
}

type PromoCode struct {
	Code            string    `json:"code"`
	DiscountPercent float64   `json:"discountPercent"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
}

type PromoCodeCreateRequest struct {
	Code            string  `json:"code"`
	DiscountPercent float64 `json:"discountPercent"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type RegisterUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type UserUpdateRequest struct {
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Password *string `json:"password,omitempty"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentTypeCash = "cash"
	PaymentTypeCard = "card"
	PaymentTypeUPI  = "upi"
)

const (
	DisposalTypeDefective = "defective"
	DisposalTypeExpired   = "expired"
)

const (
	StockStatusIn  = "In Stock"
	StockStatusLow = "Low Stock"
	StockStatusOut = "Out of Stock"
)

const (
	CounterInvoices = "invoices"
	CounterSales    = "sales"
)

// LowStockThreshold is the total quantity at or below which an inventory
// record is reported as Low Stock.
const LowStockThreshold = 10

func IsSupportedPaymentType(paymentType string) bool {
	switch paymentType {
	case PaymentTypeCash, PaymentTypeCard, PaymentTypeUPI:
		return true
	}
	return false
}

// StockStatusFor derives the overview status label from a total quantity.
func StockStatusFor(totalQuantity int) string {
	switch {
	case totalQuantity == 0:
		return StockStatusOut
	case totalQuantity <= LowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}
