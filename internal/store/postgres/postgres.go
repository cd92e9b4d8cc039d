package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"jassperfumes/backend/internal/domain"
	"jassperfumes/backend/internal/store"
	"jassperfumes/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Customers

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.CustomerID == "" || customer.CustomerName == "" || customer.ContactNumber == "" {
		return nil, store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (customer_id, customer_number, customer_name, email, contact_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.CustomerID, nullIfEmpty(customer.CustomerNumber), customer.CustomerName, nullIfEmpty(customer.Email), customer.ContactNumber, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, COALESCE(customer_number,''), customer_name, COALESCE(email,''), contact_number, created_at, updated_at
		FROM customers
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.CustomerID, &c.CustomerNumber, &c.CustomerName, &c.Email, &c.ContactNumber, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_id, COALESCE(customer_number,''), customer_name, COALESCE(email,''), contact_number, created_at, updated_at
		FROM customers
		WHERE customer_id = $1
	`, customerID).Scan(&c.CustomerID, &c.CustomerNumber, &c.CustomerName, &c.Email, &c.ContactNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_id, COALESCE(customer_number,''), customer_name, COALESCE(email,''), contact_number, created_at, updated_at
		FROM customers
		WHERE lower(email) = lower($1)
	`, email).Scan(&c.CustomerID, &c.CustomerNumber, &c.CustomerName, &c.Email, &c.ContactNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET customer_name = $2, email = $3, contact_number = $4, updated_at = $5
		WHERE customer_id = $1
	`, customer.CustomerID, customer.CustomerName, nullIfEmpty(customer.Email), customer.ContactNumber, customer.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, customerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE customer_id = $1`, customerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Products

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ProductID == "" || product.ProductName == "" || product.Price < 0 {
		return nil, store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, product_name, barcode, hsn_code, category, price, tax_slab, discount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ProductID, product.ProductName, nullIfEmpty(product.Barcode), nullIfEmpty(product.HSNCode), product.Category, product.Price, product.TaxSlab, product.Discount, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, COALESCE(barcode,''), COALESCE(hsn_code,''), category, price, tax_slab, discount, created_at, updated_at
		FROM products
		ORDER BY product_name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Barcode, &p.HSNCode, &p.Category, &p.Price, &p.TaxSlab, &p.Discount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, product_name, COALESCE(barcode,''), COALESCE(hsn_code,''), category, price, tax_slab, discount, created_at, updated_at
		FROM products
		WHERE product_id = $1
	`, productID).Scan(&p.ProductID, &p.ProductName, &p.Barcode, &p.HSNCode, &p.Category, &p.Price, &p.TaxSlab, &p.Discount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, product_name, COALESCE(barcode,''), COALESCE(hsn_code,''), category, price, tax_slab, discount, created_at, updated_at
		FROM products
		WHERE lower(trim(product_name)) = lower(trim($1))
	`, name).Scan(&p.ProductID, &p.ProductName, &p.Barcode, &p.HSNCode, &p.Category, &p.Price, &p.TaxSlab, &p.Discount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Inventory. Batches live as a jsonb document on the per-product row, the
// same shape the API serves them in.

func (s *Store) GetInventoryByProduct(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	var batchesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT inventory_id, product_id, product_name, category, batches, total_quantity, status, created_at, updated_at
		FROM inventory_records
		WHERE product_id = $1
	`, productID).Scan(&record.InventoryID, &record.ProductID, &record.ProductName, &record.Category, &batchesRaw, &record.TotalQuantity, &record.Status, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(batchesRaw) > 0 {
		if err := json.Unmarshal(batchesRaw, &record.Batches); err != nil {
			return nil, err
		}
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inventory_id, product_id, product_name, category, batches, total_quantity, status, created_at, updated_at
		FROM inventory_records
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0, 128)
	for rows.Next() {
		var record domain.InventoryRecord
		var batchesRaw []byte
		if err := rows.Scan(&record.InventoryID, &record.ProductID, &record.ProductName, &record.Category, &batchesRaw, &record.TotalQuantity, &record.Status, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		if len(batchesRaw) > 0 {
			if err := json.Unmarshal(batchesRaw, &record.Batches); err != nil {
				return nil, err
			}
		}
		record.CreatedAt = record.CreatedAt.UTC()
		record.UpdatedAt = record.UpdatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) SaveInventory(ctx context.Context, record domain.InventoryRecord) (*domain.InventoryRecord, error) {
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

	batchesJSON, err := json.Marshal(record.Batches)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inventory_records (inventory_id, product_id, product_name, category, batches, total_quantity, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (product_id)
		DO UPDATE SET product_name = EXCLUDED.product_name, category = EXCLUDED.category,
			batches = EXCLUDED.batches, total_quantity = EXCLUDED.total_quantity,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, record.InventoryID, record.ProductID, record.ProductName, record.Category, batchesJSON, record.TotalQuantity, record.Status, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	saved := record
	return &saved, nil
}

func (s *Store) AdjustBatchQuantity(ctx context.Context, productID string, batchNumber string, delta int) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var batchesRaw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT batches
		FROM inventory_records
		WHERE product_id = $1
		FOR UPDATE
	`, productID).Scan(&batchesRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, store.ErrNotFound
		}
		return 0, 0, err
	}

	var batches []domain.Batch
	if len(batchesRaw) > 0 {
		if err := json.Unmarshal(batchesRaw, &batches); err != nil {
			return 0, 0, err
		}
	}

	before := -1
	after := -1
	for i := range batches {
		if batches[i].BatchNumber != batchNumber {
			continue
		}
		before = batches[i].Quantity
		after = before + delta
		if after < 0 {
			return before, before, store.ErrNegative
		}
		batches[i].Quantity = after
		break
	}
	if before < 0 {
		return 0, 0, store.ErrNotFound
	}

	total := batchTotal(batches)
	batchesJSON, err := json.Marshal(batches)
	if err != nil {
		return 0, 0, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET batches = $2, total_quantity = $3, status = $4, updated_at = now()
		WHERE product_id = $1
	`, productID, batchesJSON, total, domain.StockStatusFor(total))
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// Ledger

func (s *Store) NextCounter(ctx context.Context, name string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, count)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET count = counters.count + 1
		RETURNING count
	`, name).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.InvoiceNumber == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalid
	}

	itemsJSON, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}
	customerJSON, err := json.Marshal(invoice.Customer)
	if err != nil {
		return nil, err
	}
	slabsJSON, err := json.Marshal(invoice.TaxPercentages)
	if err != nil {
		return nil, err
	}
	promoJSON, err := marshalOrNil(invoice.Promo)
	if err != nil {
		return nil, err
	}
	loyaltyJSON, err := marshalOrNil(invoice.Loyalty)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			invoice_number, invoice_date, customer, items, payment_type,
			subtotal, base_value, discount, tax, cgst, sgst,
			has_mixed_tax_rates, tax_percentages, total, promo, loyalty,
			remarks, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, invoice.InvoiceNumber, invoice.Date, customerJSON, itemsJSON, invoice.PaymentType,
		invoice.Subtotal, invoice.BaseValue, invoice.Discount, invoice.Tax, invoice.Cgst, invoice.Sgst,
		invoice.HasMixedTaxRates, slabsJSON, invoice.Total, promoJSON, loyaltyJSON,
		invoice.Remarks, invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := invoice
	return &created, nil
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT invoice_number, invoice_date, customer, items, payment_type,
			subtotal, base_value, discount, tax, cgst, sgst,
			has_mixed_tax_rates, tax_percentages, total, promo, loyalty,
			remarks, created_at, updated_at
		FROM invoices
		WHERE invoice_number = $1
	`, invoiceNumber)

	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_number, invoice_date, customer, items, payment_type,
			subtotal, base_value, discount, tax, cgst, sgst,
			has_mixed_tax_rates, tax_percentages, total, promo, loyalty,
			remarks, created_at, updated_at
		FROM invoices
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 128)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	itemsJSON, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}
	customerJSON, err := json.Marshal(invoice.Customer)
	if err != nil {
		return nil, err
	}
	slabsJSON, err := json.Marshal(invoice.TaxPercentages)
	if err != nil {
		return nil, err
	}
	promoJSON, err := marshalOrNil(invoice.Promo)
	if err != nil {
		return nil, err
	}
	loyaltyJSON, err := marshalOrNil(invoice.Loyalty)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET customer = $2, items = $3, payment_type = $4,
			subtotal = $5, base_value = $6, discount = $7, tax = $8, cgst = $9, sgst = $10,
			has_mixed_tax_rates = $11, tax_percentages = $12, total = $13,
			promo = $14, loyalty = $15, remarks = $16, updated_at = now()
		WHERE invoice_number = $1
	`, invoice.InvoiceNumber, customerJSON, itemsJSON, invoice.PaymentType,
		invoice.Subtotal, invoice.BaseValue, invoice.Discount, invoice.Tax, invoice.Cgst, invoice.Sgst,
		invoice.HasMixedTaxRates, slabsJSON, invoice.Total,
		promoJSON, loyaltyJSON, invoice.Remarks)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := invoice
	updated.UpdatedAt = time.Now().UTC()
	return &updated, nil
}

func (s *Store) DeleteInvoiceByNumber(ctx context.Context, invoiceNumber string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE invoice_number = $1`, invoiceNumber)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Archive

func (s *Store) AppendArchiveEntry(ctx context.Context, entry domain.ArchiveEntry) (*domain.ArchiveEntry, error) {
	if entry.ArchiveID == "" || entry.Invoice.InvoiceNumber == "" {
		return nil, store.ErrInvalid
	}

	invoiceJSON, err := json.Marshal(entry.Invoice)
	if err != nil {
		return nil, err
	}
	ledgerJSON, err := json.Marshal(entry.RestorationLedger)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoice_archive (archive_id, invoice_number, invoice, deleted_by, deleted_at, restoration_ledger)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ArchiveID, entry.Invoice.InvoiceNumber, invoiceJSON, entry.DeletedBy, entry.DeletedAt, ledgerJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := entry
	return &created, nil
}

func (s *Store) AttachRestorationLedger(ctx context.Context, archiveID string, ledger []domain.RestorationItem) error {
	ledgerJSON, err := json.Marshal(ledger)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoice_archive
		SET restoration_ledger = $2
		WHERE archive_id = $1 AND jsonb_array_length(restoration_ledger) = 0
	`, archiveID, ledgerJSON)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invoice_archive WHERE archive_id = $1)`, archiveID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return store.ErrImmutable
		}
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListArchiveEntries(ctx context.Context, limit int) ([]domain.ArchiveEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT archive_id, invoice, deleted_by, deleted_at, restoration_ledger
		FROM invoice_archive
		ORDER BY deleted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ArchiveEntry, 0, limit)
	for rows.Next() {
		var entry domain.ArchiveEntry
		var invoiceRaw []byte
		var ledgerRaw []byte
		if err := rows.Scan(&entry.ArchiveID, &invoiceRaw, &entry.DeletedBy, &entry.DeletedAt, &ledgerRaw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(invoiceRaw, &entry.Invoice); err != nil {
			return nil, err
		}
		if len(ledgerRaw) > 0 {
			if err := json.Unmarshal(ledgerRaw, &entry.RestorationLedger); err != nil {
				return nil, err
			}
		}
		entry.DeletedAt = entry.DeletedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Update history

func (s *Store) CreateUpdateRecord(ctx context.Context, record domain.InvoiceUpdateRecord) error {
	if record.RecordID == "" || record.InvoiceNumber == "" {
		return store.ErrInvalid
	}

	diffJSON, err := marshalOrNil(record.Diff)
	if err != nil {
		return err
	}
	opsJSON, err := json.Marshal(record.InventoryOps)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoice_update_records (
			record_id, invoice_number, edited_by, diff, inventory_ops,
			total_before, total_after, error, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, record.RecordID, record.InvoiceNumber, record.EditedBy, diffJSON, opsJSON,
		record.TotalBefore, record.TotalAfter, nullIfEmpty(record.Error), record.CreatedAt)
	return err
}

func (s *Store) ListUpdateRecords(ctx context.Context, invoiceNumber string) ([]domain.InvoiceUpdateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, invoice_number, edited_by, diff, inventory_ops,
			total_before, total_after, COALESCE(error,''), created_at
		FROM invoice_update_records
		WHERE invoice_number = $1
		ORDER BY created_at DESC
	`, invoiceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.InvoiceUpdateRecord, 0, 8)
	for rows.Next() {
		var record domain.InvoiceUpdateRecord
		var diffRaw []byte
		var opsRaw []byte
		if err := rows.Scan(&record.RecordID, &record.InvoiceNumber, &record.EditedBy, &diffRaw, &opsRaw, &record.TotalBefore, &record.TotalAfter, &record.Error, &record.CreatedAt); err != nil {
			return nil, err
		}
		if len(diffRaw) > 0 {
			if err := json.Unmarshal(diffRaw, &record.Diff); err != nil {
				return nil, err
			}
		}
		if len(opsRaw) > 0 {
			if err := json.Unmarshal(opsRaw, &record.InventoryOps); err != nil {
				return nil, err
			}
		}
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Disposals

func (s *Store) CreateDisposal(ctx context.Context, record domain.DisposalRecord) (*domain.DisposalRecord, error) {
	if record.DisposalID == "" || record.ProductID == "" {
		return nil, store.ErrInvalid
	}

	batchesJSON, err := json.Marshal(record.Batches)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disposals (
			disposal_id, product_id, product_name, category, disposal_type,
			batches, reason, total_quantity_disposed, disposal_date, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, record.DisposalID, record.ProductID, record.ProductName, record.Category, record.Type,
		batchesJSON, record.Reason, record.TotalQuantityDisposed, record.DisposalDate, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) ListDisposals(ctx context.Context, filter domain.DisposalHistoryFilter) (domain.DisposalHistory, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := `
		WHERE ($1 = '' OR product_id = $1)
			AND ($2 = '' OR disposal_type = $2)
			AND ($3::timestamptz IS NULL OR disposal_date >= $3)
			AND ($4::timestamptz IS NULL OR disposal_date <= $4)
	`
	args := []any{filter.ProductID, filter.Type, nullTime(filter.StartDate), nullTime(filter.EndDate)}

	history := domain.DisposalHistory{CurrentPage: page}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::int FROM disposals`+where, args...).Scan(&history.Total)
	if err != nil {
		return history, err
	}
	history.TotalPages = (history.Total + limit - 1) / limit

	rows, err := s.db.QueryContext(ctx, `
		SELECT disposal_id, product_id, product_name, category, disposal_type,
			batches, reason, total_quantity_disposed, disposal_date, created_at
		FROM disposals
	`+where+`
		ORDER BY disposal_date DESC
		LIMIT $5 OFFSET $6
	`, append(args, limit, offset)...)
	if err != nil {
		return history, err
	}
	defer rows.Close()

	history.Disposals = make([]domain.DisposalRecord, 0, limit)
	for rows.Next() {
		record, err := scanDisposal(rows)
		if err != nil {
			return history, err
		}
		history.Disposals = append(history.Disposals, *record)
	}
	if err := rows.Err(); err != nil {
		return history, err
	}
	return history, nil
}

func (s *Store) ListDisposalsByProduct(ctx context.Context, productID string) ([]domain.DisposalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT disposal_id, product_id, product_name, category, disposal_type,
			batches, reason, total_quantity_disposed, disposal_date, created_at
		FROM disposals
		WHERE product_id = $1
		ORDER BY disposal_date DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DisposalRecord, 0, 8)
	for rows.Next() {
		record, err := scanDisposal(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Sales. Line items, customer snapshot and the eway bill live as jsonb
// documents on the invoice row.

func (s *Store) CreateSalesInvoice(ctx context.Context, invoice domain.SalesInvoice) (*domain.SalesInvoice, error) {
	if invoice.InvoiceNumber == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalid
	}

	itemsJSON, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}
	customerJSON, err := json.Marshal(invoice.Customer)
	if err != nil {
		return nil, err
	}
	billJSON, err := marshalOrNil(invoice.EwayBill)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales_invoices (
			invoice_number, invoice_date, customer, work_order_number, po_number, po_date,
			items, total, eway_bill, remarks, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, invoice.InvoiceNumber, invoice.Date, customerJSON, nullIfEmpty(invoice.WorkOrderNumber), nullIfEmpty(invoice.PONumber), nullIfEmpty(invoice.PODate),
		itemsJSON, invoice.Total, billJSON, invoice.Remarks, invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := invoice
	return &created, nil
}

func (s *Store) GetSalesInvoice(ctx context.Context, invoiceNumber string) (*domain.SalesInvoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT invoice_number, invoice_date, customer, COALESCE(work_order_number,''), COALESCE(po_number,''), COALESCE(po_date,''),
			items, total, eway_bill, remarks, created_at, updated_at
		FROM sales_invoices
		WHERE invoice_number = $1
	`, invoiceNumber)

	invoice, err := scanSalesInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Store) ListSalesInvoices(ctx context.Context, workOrderNumber string) ([]domain.SalesInvoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_number, invoice_date, customer, COALESCE(work_order_number,''), COALESCE(po_number,''), COALESCE(po_date,''),
			items, total, eway_bill, remarks, created_at, updated_at
		FROM sales_invoices
		WHERE ($1 = '' OR work_order_number = $1)
		ORDER BY created_at DESC
	`, workOrderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.SalesInvoice, 0, 64)
	for rows.Next() {
		invoice, err := scanSalesInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) UpdateSalesInvoice(ctx context.Context, invoice domain.SalesInvoice) (*domain.SalesInvoice, error) {
	itemsJSON, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}
	customerJSON, err := json.Marshal(invoice.Customer)
	if err != nil {
		return nil, err
	}
	billJSON, err := marshalOrNil(invoice.EwayBill)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_invoices
		SET invoice_date = $2, customer = $3, work_order_number = $4, po_number = $5, po_date = $6,
			items = $7, total = $8, eway_bill = $9, remarks = $10, updated_at = now()
		WHERE invoice_number = $1
	`, invoice.InvoiceNumber, invoice.Date, customerJSON, nullIfEmpty(invoice.WorkOrderNumber), nullIfEmpty(invoice.PONumber), nullIfEmpty(invoice.PODate),
		itemsJSON, invoice.Total, billJSON, invoice.Remarks)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := invoice
	updated.UpdatedAt = time.Now().UTC()
	return &updated, nil
}

func (s *Store) DeleteSalesInvoice(ctx context.Context, invoiceNumber string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales_invoices WHERE invoice_number = $1`, invoiceNumber)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Promo codes

func (s *Store) CreatePromoCode(ctx context.Context, promo domain.PromoCode) (*domain.PromoCode, error) {
	if promo.Code == "" {
		return nil, store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promo_codes (code, discount_percent, active, created_at)
		VALUES ($1,$2,$3,$4)
	`, promo.Code, promo.DiscountPercent, promo.Active, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := promo
	return &created, nil
}

func (s *Store) GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var promo domain.PromoCode
	err := s.db.QueryRowContext(ctx, `
		SELECT code, discount_percent, active, created_at
		FROM promo_codes
		WHERE code = $1
	`, code).Scan(&promo.Code, &promo.DiscountPercent, &promo.Active, &promo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	promo.CreatedAt = promo.CreatedAt.UTC()
	return &promo, nil
}

func (s *Store) ListPromoCodes(ctx context.Context) ([]domain.PromoCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, discount_percent, active, created_at
		FROM promo_codes
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.PromoCode, 0, 16)
	for rows.Next() {
		var promo domain.PromoCode
		if err := rows.Scan(&promo.Code, &promo.DiscountPercent, &promo.Active, &promo.CreatedAt); err != nil {
			return nil, err
		}
		promo.CreatedAt = promo.CreatedAt.UTC()
		promos = append(promos, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promos, nil
}

func (s *Store) SetPromoCodeActive(ctx context.Context, code string, active bool) (*domain.PromoCode, error) {
	var promo domain.PromoCode
	err := s.db.QueryRowContext(ctx, `
		UPDATE promo_codes
		SET active = $2
		WHERE code = $1
		RETURNING code, discount_percent, active, created_at
	`, code, active).Scan(&promo.Code, &promo.DiscountPercent, &promo.Active, &promo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	promo.CreatedAt = promo.CreatedAt.UTC()
	return &promo, nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, role = $3, active = $4, updated_at = now()
		WHERE username = $1
	`, user.Username, user.Password, user.Role, user.Active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var customerRaw []byte
	var itemsRaw []byte
	var slabsRaw []byte
	var promoRaw []byte
	var loyaltyRaw []byte

	err := row.Scan(
		&invoice.InvoiceNumber,
		&invoice.Date,
		&customerRaw,
		&itemsRaw,
		&invoice.PaymentType,
		&invoice.Subtotal,
		&invoice.BaseValue,
		&invoice.Discount,
		&invoice.Tax,
		&invoice.Cgst,
		&invoice.Sgst,
		&invoice.HasMixedTaxRates,
		&slabsRaw,
		&invoice.Total,
		&promoRaw,
		&loyaltyRaw,
		&invoice.Remarks,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customerRaw, &invoice.Customer); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &invoice.Items); err != nil {
		return nil, err
	}
	if len(slabsRaw) > 0 {
		if err := json.Unmarshal(slabsRaw, &invoice.TaxPercentages); err != nil {
			return nil, err
		}
	}
	if len(promoRaw) > 0 {
		if err := json.Unmarshal(promoRaw, &invoice.Promo); err != nil {
			return nil, err
		}
	}
	if len(loyaltyRaw) > 0 {
		if err := json.Unmarshal(loyaltyRaw, &invoice.Loyalty); err != nil {
			return nil, err
		}
	}
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.UpdatedAt = invoice.UpdatedAt.UTC()
	return &invoice, nil
}

func scanSalesInvoice(row rowScanner) (*domain.SalesInvoice, error) {
	var invoice domain.SalesInvoice
	var customerRaw []byte
	var itemsRaw []byte
	var billRaw []byte

	err := row.Scan(
		&invoice.InvoiceNumber,
		&invoice.Date,
		&customerRaw,
		&invoice.WorkOrderNumber,
		&invoice.PONumber,
		&invoice.PODate,
		&itemsRaw,
		&invoice.Total,
		&billRaw,
		&invoice.Remarks,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customerRaw, &invoice.Customer); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &invoice.Items); err != nil {
		return nil, err
	}
	if len(billRaw) > 0 {
		if err := json.Unmarshal(billRaw, &invoice.EwayBill); err != nil {
			return nil, err
		}
	}
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.UpdatedAt = invoice.UpdatedAt.UTC()
	return &invoice, nil
}

func scanDisposal(row rowScanner) (*domain.DisposalRecord, error) {
	var record domain.DisposalRecord
	var batchesRaw []byte
	err := row.Scan(
		&record.DisposalID,
		&record.ProductID,
		&record.ProductName,
		&record.Category,
		&record.Type,
		&batchesRaw,
		&record.Reason,
		&record.TotalQuantityDisposed,
		&record.DisposalDate,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(batchesRaw) > 0 {
		if err := json.Unmarshal(batchesRaw, &record.Batches); err != nil {
			return nil, err
		}
	}
	record.DisposalDate = record.DisposalDate.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func batchTotal(batches []domain.Batch) int {
	total := 0
	for _, b := range batches {
		total += b.Quantity
	}
	return total
}

func marshalOrNil(v any) (any, error) {
	switch val := v.(type) {
	case *domain.PromoApplication:
		if val == nil {
			return nil, nil
		}
	case *domain.LoyaltyApplication:
		if val == nil {
			return nil, nil
		}
	case *domain.ItemDiff:
		if val == nil {
			return nil, nil
		}
	case *domain.EwayBill:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
