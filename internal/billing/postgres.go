package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/garagedesk/garagedesk/internal/platform/db"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// PostgresRepository provides PostgreSQL backed persistence for billing documents.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type pgTxRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepo{tx: tx})
	})
	return db.MapError("billing.WithTx", err)
}

const invoiceColumns = `id::text, number, customer_id::text, COALESCE(vehicle_id::text, ''),
	subtotal::text, tax_rate::text, tax_amount::text, total::text, notes, status, due_date,
	COALESCE(source_estimate_id::text, ''), sent_at, paid_at, created_at, updated_at`

const estimateColumns = `id::text, number, customer_id::text, COALESCE(vehicle_id::text, ''),
	subtotal::text, tax_rate::text, tax_amount::text, total::text, notes, status, valid_until,
	converted_to_invoice, COALESCE(invoice_id::text, ''), sent_at, created_at, updated_at`

type amounts struct {
	subtotal, taxRate, taxAmount, total string
}

func (a amounts) apply(d *Document) error {
	var err error
	if d.Subtotal, err = decimal.NewFromString(a.subtotal); err != nil {
		return fmt.Errorf("parse subtotal: %w", err)
	}
	if d.TaxRate, err = decimal.NewFromString(a.taxRate); err != nil {
		return fmt.Errorf("parse tax rate: %w", err)
	}
	if d.TaxAmount, err = decimal.NewFromString(a.taxAmount); err != nil {
		return fmt.Errorf("parse tax amount: %w", err)
	}
	if d.Total, err = decimal.NewFromString(a.total); err != nil {
		return fmt.Errorf("parse total: %w", err)
	}
	return nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv Invoice
		a   amounts
		st  string
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.VehicleID,
		&a.subtotal, &a.taxRate, &a.taxAmount, &a.total, &inv.Notes, &st, &inv.DueDate,
		&inv.SourceEstimateID, &inv.SentAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.Status = InvoiceStatus(st)
	if err := a.apply(&inv.Document); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanEstimate(row pgx.Row) (*Estimate, error) {
	var (
		est Estimate
		a   amounts
		st  string
	)
	if err := row.Scan(&est.ID, &est.Number, &est.CustomerID, &est.VehicleID,
		&a.subtotal, &a.taxRate, &a.taxAmount, &a.total, &est.Notes, &st, &est.ValidUntil,
		&est.ConvertedToInvoice, &est.InvoiceID, &est.SentAt, &est.CreatedAt, &est.UpdatedAt); err != nil {
		return nil, err
	}
	est.Status = EstimateStatus(st)
	if err := a.apply(&est.Document); err != nil {
		return nil, err
	}
	return &est, nil
}

// ============================================================================
// INVOICES
// ============================================================================

func (r *PostgresRepository) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	const op = "billing.GetInvoice"
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.NotFound(op, "invoice", id)
	}
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(op, "invoice", id)
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	items, err := loadItems(ctx, r.pool, "invoice_items", "invoice_id", []string{id})
	if err != nil {
		return nil, err
	}
	inv.Items = items[id]
	return inv, nil
}

func (r *PostgresRepository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	where, args := documentFilter(filter.CustomerID, filter.VehicleID)
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices`+where+` ORDER BY created_at DESC, number DESC`, args...)
	if err != nil {
		return nil, db.MapError("billing.ListInvoices", err)
	}
	defer rows.Close()

	var (
		out []Invoice
		ids []string
	)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, r.pool, "invoice_items", "invoice_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *PostgresRepository) CountInvoices(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM invoices`).Scan(&n)
	return n, db.MapError("billing.CountInvoices", err)
}

func (r *PostgresRepository) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE number = $1)`, number).Scan(&exists)
	return exists, db.MapError("billing.InvoiceNumberExists", err)
}

func (t *pgTxRepo) InsertInvoice(ctx context.Context, inv Invoice) error {
	const op = "billing.InsertInvoice"
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoices (id, number, customer_id, vehicle_id, subtotal, tax_rate, tax_amount, total,
			notes, status, due_date, source_estimate_id, sent_at, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		inv.ID, inv.Number, inv.CustomerID, nullable(inv.VehicleID),
		inv.Subtotal.String(), inv.TaxRate.String(), inv.TaxAmount.String(), inv.Total.String(),
		inv.Notes, string(inv.Status), inv.DueDate, nullable(inv.SourceEstimateID),
		inv.SentAt, inv.PaidAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return db.MapError(op, err)
	}
	return insertItems(ctx, t.tx, "invoice_items", "invoice_id", inv.ID, inv.Items)
}

func (t *pgTxRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	const op = "billing.UpdateInvoice"
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET vehicle_id = $2, subtotal = $3, tax_rate = $4, tax_amount = $5, total = $6,
			notes = $7, status = $8, due_date = $9, sent_at = $10, paid_at = $11, updated_at = $12
		WHERE id = $1`,
		inv.ID, nullable(inv.VehicleID),
		inv.Subtotal.String(), inv.TaxRate.String(), inv.TaxAmount.String(), inv.Total.String(),
		inv.Notes, string(inv.Status), inv.DueDate, inv.SentAt, inv.PaidAt, inv.UpdatedAt)
	if err != nil {
		return db.MapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(op, "invoice", inv.ID)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return db.MapError(op, err)
	}
	return insertItems(ctx, t.tx, "invoice_items", "invoice_id", inv.ID, inv.Items)
}

func (t *pgTxRepo) DeleteInvoice(ctx context.Context, id string) error {
	const op = "billing.DeleteInvoice"
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return db.MapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(op, "invoice", id)
	}
	return nil
}

// ============================================================================
// ESTIMATES
// ============================================================================

func (r *PostgresRepository) GetEstimate(ctx context.Context, id string) (*Estimate, error) {
	const op = "billing.GetEstimate"
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.NotFound(op, "estimate", id)
	}
	est, err := scanEstimate(r.pool.QueryRow(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(op, "estimate", id)
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	items, err := loadItems(ctx, r.pool, "estimate_items", "estimate_id", []string{id})
	if err != nil {
		return nil, err
	}
	est.Items = items[id]
	return est, nil
}

func (r *PostgresRepository) ListEstimates(ctx context.Context, filter EstimateFilter) ([]Estimate, error) {
	where, args := documentFilter(filter.CustomerID, filter.VehicleID)
	rows, err := r.pool.Query(ctx, `SELECT `+estimateColumns+` FROM estimates`+where+` ORDER BY created_at DESC, number DESC`, args...)
	if err != nil {
		return nil, db.MapError("billing.ListEstimates", err)
	}
	defer rows.Close()

	var (
		out []Estimate
		ids []string
	)
	for rows.Next() {
		est, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *est)
		ids = append(ids, est.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, r.pool, "estimate_items", "estimate_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *PostgresRepository) CountEstimates(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM estimates`).Scan(&n)
	return n, db.MapError("billing.CountEstimates", err)
}

func (r *PostgresRepository) EstimateNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM estimates WHERE number = $1)`, number).Scan(&exists)
	return exists, db.MapError("billing.EstimateNumberExists", err)
}

func (t *pgTxRepo) InsertEstimate(ctx context.Context, est Estimate) error {
	const op = "billing.InsertEstimate"
	_, err := t.tx.Exec(ctx, `
		INSERT INTO estimates (id, number, customer_id, vehicle_id, subtotal, tax_rate, tax_amount, total,
			notes, status, valid_until, converted_to_invoice, invoice_id, sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		est.ID, est.Number, est.CustomerID, nullable(est.VehicleID),
		est.Subtotal.String(), est.TaxRate.String(), est.TaxAmount.String(), est.Total.String(),
		est.Notes, string(est.Status), est.ValidUntil, est.ConvertedToInvoice, nullable(est.InvoiceID),
		est.SentAt, est.CreatedAt, est.UpdatedAt)
	if err != nil {
		return db.MapError(op, err)
	}
	return insertItems(ctx, t.tx, "estimate_items", "estimate_id", est.ID, est.Items)
}

func (t *pgTxRepo) UpdateEstimate(ctx context.Context, est Estimate) error {
	const op = "billing.UpdateEstimate"
	tag, err := t.tx.Exec(ctx, `
		UPDATE estimates SET vehicle_id = $2, subtotal = $3, tax_rate = $4, tax_amount = $5, total = $6,
			notes = $7, status = $8, valid_until = $9, converted_to_invoice = $10, invoice_id = $11,
			sent_at = $12, updated_at = $13
		WHERE id = $1`,
		est.ID, nullable(est.VehicleID),
		est.Subtotal.String(), est.TaxRate.String(), est.TaxAmount.String(), est.Total.String(),
		est.Notes, string(est.Status), est.ValidUntil, est.ConvertedToInvoice, nullable(est.InvoiceID),
		est.SentAt, est.UpdatedAt)
	if err != nil {
		return db.MapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(op, "estimate", est.ID)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM estimate_items WHERE estimate_id = $1`, est.ID); err != nil {
		return db.MapError(op, err)
	}
	return insertItems(ctx, t.tx, "estimate_items", "estimate_id", est.ID, est.Items)
}

func (t *pgTxRepo) DeleteEstimate(ctx context.Context, id string) error {
	const op = "billing.DeleteEstimate"
	tag, err := t.tx.Exec(ctx, `DELETE FROM estimates WHERE id = $1`, id)
	if err != nil {
		return db.MapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(op, "estimate", id)
	}
	return nil
}

// ============================================================================
// REFERENCES
// ============================================================================

func (r *PostgresRepository) CountCustomerReferences(ctx context.Context, customerID string) (DocumentRefs, error) {
	return r.countRefs(ctx, "billing.CountCustomerReferences", customerID, `
		SELECT (SELECT count(*) FROM invoices WHERE customer_id = $1),
		       (SELECT count(*) FROM estimates WHERE customer_id = $1)`)
}

func (r *PostgresRepository) CountVehicleReferences(ctx context.Context, vehicleID string) (DocumentRefs, error) {
	return r.countRefs(ctx, "billing.CountVehicleReferences", vehicleID, `
		SELECT (SELECT count(*) FROM invoices WHERE vehicle_id = $1),
		       (SELECT count(*) FROM estimates WHERE vehicle_id = $1)`)
}

func (r *PostgresRepository) CountProductReferences(ctx context.Context, productID string) (DocumentRefs, error) {
	return r.countRefs(ctx, "billing.CountProductReferences", productID, `
		SELECT (SELECT count(DISTINCT invoice_id) FROM invoice_items WHERE product_id = $1),
		       (SELECT count(DISTINCT estimate_id) FROM estimate_items WHERE product_id = $1)`)
}

func (r *PostgresRepository) countRefs(ctx context.Context, op, id, query string) (DocumentRefs, error) {
	var refs DocumentRefs
	if _, err := uuid.Parse(id); err != nil {
		return refs, nil
	}
	err := r.pool.QueryRow(ctx, query, id).Scan(&refs.Invoices, &refs.Estimates)
	return refs, db.MapError(op, err)
}

// ============================================================================
// HELPERS
// ============================================================================

func documentFilter(customerID, vehicleID string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if customerID != "" {
		args = append(args, customerID)
		clauses = append(clauses, fmt.Sprintf("customer_id::text = $%d", len(args)))
	}
	if vehicleID != "" {
		args = append(args, vehicleID)
		clauses = append(clauses, fmt.Sprintf("vehicle_id::text = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// loadItems fetches line items for the given parents, keyed by parent id.
// table and parentCol are package constants, never user input.
func loadItems(ctx context.Context, q db.Querier, table, parentCol string, parentIDs []string) (map[string][]LineItem, error) {
	out := make(map[string][]LineItem, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %[2]s::text, id::text, COALESCE(product_id::text, ''), name, description, quantity,
		       unit_price::text, line_total::text
		FROM %[1]s WHERE %[2]s::text = ANY($1::text[]) ORDER BY %[2]s, position`, table, parentCol), parentIDs)
	if err != nil {
		return nil, db.MapError("billing.loadItems", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			parent      string
			item        LineItem
			price, line string
		)
		if err := rows.Scan(&parent, &item.ID, &item.ProductID, &item.Name, &item.Description,
			&item.Quantity, &price, &line); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		if item.LineTotal, err = decimal.NewFromString(line); err != nil {
			return nil, fmt.Errorf("parse line total: %w", err)
		}
		out[parent] = append(out[parent], item)
	}
	return out, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, table, parentCol, parentID string, items []LineItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := fmt.Sprintf(`INSERT INTO %s (id, %s, position, product_id, name, description, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, table, parentCol)
	for i, item := range items {
		batch.Queue(query, item.ID, parentID, i, nullable(item.ProductID), item.Name, item.Description,
			item.Quantity, item.UnitPrice.String(), item.LineTotal.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return db.MapError("billing.insertItems", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*PostgresRepository)(nil)
