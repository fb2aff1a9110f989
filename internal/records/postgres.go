package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/garagedesk/garagedesk/internal/platform/db"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// PostgresRepository provides PostgreSQL backed persistence for records.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

type pgTxRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepo{tx: tx})
	})
	return db.MapError("records.WithTx", err)
}

const (
	customerColumns = `id::text, name, email, phone, address, notes, created_at, updated_at`
	vehicleColumns  = `id::text, customer_id::text, registration, make, model, year, color, vin,
	mileage, mot_expiry, notes, created_at, updated_at`
	productColumns     = `id::text, sku, name, description, category, unit_price::text, active, created_at, updated_at`
	appointmentColumns = `id::text, customer_id::text, COALESCE(vehicle_id::text, ''), title, description,
	starts_at, ends_at, status, source, calendar_event_id, reminded_at, created_at, updated_at`
)

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	if err := row.Scan(&v.ID, &v.CustomerID, &v.Registration, &v.Make, &v.Model, &v.Year, &v.Color, &v.VIN,
		&v.Mileage, &v.MOTExpiry, &v.Notes, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if v.MOTExpiry != nil {
		v.MOTExpiry = dateOnly(v.MOTExpiry)
	}
	return &v, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &price, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse unit price: %w", err)
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a              Appointment
		status, source string
	)
	if err := row.Scan(&a.ID, &a.CustomerID, &a.VehicleID, &a.Title, &a.Description,
		&a.StartsAt, &a.EndsAt, &status, &source, &a.CalendarEventID, &a.RemindedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	a.Source = AppointmentSource(source)
	return &a, nil
}

func getOne[T any](ctx context.Context, q db.Querier, op, entity, query, id string, scan func(pgx.Row) (*T, error)) (*T, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.NotFound(op, entity, id)
	}
	out, err := scan(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(op, entity, id)
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return out, nil
}

func collect[T any](rows pgx.Rows, op string, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, db.MapError(op, err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(op, err)
	}
	return out, nil
}

// whereBuilder accumulates AND-ed predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func searchPattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

// ============================================================================
// READS
// ============================================================================

func (r *PostgresRepository) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return getOne(ctx, r.pool, "records.GetCustomer", "customer",
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id, scanCustomer)
}

func (r *PostgresRepository) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	const op = "records.FindCustomerByEmail"
	c, err := scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email <> '' AND lower(email) = lower($1) ORDER BY created_at LIMIT 1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(op, "customer", email)
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return c, nil
}

func (r *PostgresRepository) ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error) {
	const op = "records.ListCustomers"
	var w whereBuilder
	if strings.TrimSpace(filter.Search) != "" {
		w.add(`(lower(name) LIKE ? OR lower(email) LIKE ? OR phone LIKE ?)`, searchPattern(filter.Search))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers`+w.String()+` ORDER BY name, id`, w.args...)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return collect(rows, op, scanCustomer)
}

func (r *PostgresRepository) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	return getOne(ctx, r.pool, "records.GetVehicle", "vehicle",
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id, scanVehicle)
}

func (r *PostgresRepository) FindVehicleByRegistration(ctx context.Context, customerID, registration string) (*Vehicle, error) {
	const op = "records.FindVehicleByRegistration"
	if _, err := uuid.Parse(customerID); err != nil {
		return nil, shared.NotFound(op, "vehicle", registration)
	}
	v, err := scanVehicle(r.pool.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE customer_id = $1 AND registration = $2 ORDER BY created_at LIMIT 1`,
		customerID, registration))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(op, "vehicle", registration)
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return v, nil
}

func (r *PostgresRepository) ListVehicles(ctx context.Context, filter VehicleFilter) ([]Vehicle, error) {
	const op = "records.ListVehicles"
	var w whereBuilder
	if filter.CustomerID != "" {
		if _, err := uuid.Parse(filter.CustomerID); err != nil {
			return nil, nil
		}
		w.add(`customer_id = ?`, filter.CustomerID)
	}
	if strings.TrimSpace(filter.Search) != "" {
		w.add(`(lower(registration) LIKE ? OR lower(make) LIKE ? OR lower(model) LIKE ?)`, searchPattern(filter.Search))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles`+w.String()+` ORDER BY registration, id`, w.args...)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return collect(rows, op, scanVehicle)
}

func (r *PostgresRepository) ListVehiclesByMOTExpiry(ctx context.Context, day time.Time) ([]Vehicle, error) {
	const op = "records.ListVehiclesByMOTExpiry"
	rows, err := r.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE mot_expiry = $1::date ORDER BY registration, id`,
		day.Format(time.DateOnly))
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return collect(rows, op, scanVehicle)
}

func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	return getOne(ctx, r.pool, "records.GetProduct", "product",
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id, scanProduct)
}

func (r *PostgresRepository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	const op = "records.ListProducts"
	var w whereBuilder
	if filter.ActiveOnly {
		w.add(`active = ?`, true)
	}
	if strings.TrimSpace(filter.Search) != "" {
		w.add(`(lower(name) LIKE ? OR lower(sku) LIKE ? OR lower(category) LIKE ?)`, searchPattern(filter.Search))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products`+w.String()+` ORDER BY name, id`, w.args...)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return collect(rows, op, scanProduct)
}

func (r *PostgresRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return getOne(ctx, r.pool, "records.GetAppointment", "appointment",
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id, scanAppointment)
}

func (r *PostgresRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error) {
	const op = "records.ListAppointments"
	var w whereBuilder
	for _, ref := range []struct{ col, id string }{{"customer_id", filter.CustomerID}, {"vehicle_id", filter.VehicleID}} {
		if ref.id == "" {
			continue
		}
		if _, err := uuid.Parse(ref.id); err != nil {
			return nil, nil
		}
		w.add(ref.col+` = ?`, ref.id)
	}
	if filter.Status != "" {
		w.add(`status = ?`, string(filter.Status))
	}
	if !filter.From.IsZero() {
		w.add(`starts_at >= ?`, filter.From)
	}
	if !filter.To.IsZero() {
		w.add(`starts_at < ?`, filter.To)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments`+w.String()+` ORDER BY starts_at, id`, w.args...)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return collect(rows, op, scanAppointment)
}

// ============================================================================
// WRITES
// ============================================================================

func (t *pgTxRepo) CountCustomerDependents(ctx context.Context, customerID string) (int, int, error) {
	var vehicles, appointments int
	err := t.tx.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM vehicles WHERE customer_id = $1),
		(SELECT count(*) FROM appointments WHERE customer_id = $1)`, customerID).Scan(&vehicles, &appointments)
	if err != nil {
		return 0, 0, db.MapError("records.CountCustomerDependents", err)
	}
	return vehicles, appointments, nil
}

func (t *pgTxRepo) CountVehicleAppointments(ctx context.Context, vehicleID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE vehicle_id = $1`, vehicleID).Scan(&n); err != nil {
		return 0, db.MapError("records.CountVehicleAppointments", err)
	}
	return n, nil
}

func (t *pgTxRepo) exec(ctx context.Context, op, entity, id, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return db.MapError(op, err)
	}
	if tag.RowsAffected() == 0 && id != "" {
		return shared.NotFound(op, entity, id)
	}
	return nil
}

func (t *pgTxRepo) InsertCustomer(ctx context.Context, c Customer) error {
	return t.exec(ctx, "records.InsertCustomer", "customer", "",
		`INSERT INTO customers (id, name, email, phone, address, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Notes, c.CreatedAt, c.UpdatedAt)
}

func (t *pgTxRepo) UpdateCustomer(ctx context.Context, c Customer) error {
	return t.exec(ctx, "records.UpdateCustomer", "customer", c.ID,
		`UPDATE customers SET name = $2, email = $3, phone = $4, address = $5, notes = $6, updated_at = $7 WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Notes, c.UpdatedAt)
}

func (t *pgTxRepo) DeleteCustomer(ctx context.Context, id string) error {
	return t.exec(ctx, "records.DeleteCustomer", "customer", id, `DELETE FROM customers WHERE id = $1`, id)
}

func motParam(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(time.DateOnly)
}

func (t *pgTxRepo) InsertVehicle(ctx context.Context, v Vehicle) error {
	return t.exec(ctx, "records.InsertVehicle", "vehicle", "",
		`INSERT INTO vehicles (id, customer_id, registration, make, model, year, color, vin, mileage, mot_expiry, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::date, $11, $12, $13)`,
		v.ID, v.CustomerID, v.Registration, v.Make, v.Model, v.Year, v.Color, v.VIN, v.Mileage, motParam(v.MOTExpiry), v.Notes, v.CreatedAt, v.UpdatedAt)
}

func (t *pgTxRepo) UpdateVehicle(ctx context.Context, v Vehicle) error {
	return t.exec(ctx, "records.UpdateVehicle", "vehicle", v.ID,
		`UPDATE vehicles SET registration = $2, make = $3, model = $4, year = $5, color = $6, vin = $7, mileage = $8,
		mot_expiry = $9::date, notes = $10, updated_at = $11 WHERE id = $1`,
		v.ID, v.Registration, v.Make, v.Model, v.Year, v.Color, v.VIN, v.Mileage, motParam(v.MOTExpiry), v.Notes, v.UpdatedAt)
}

func (t *pgTxRepo) DeleteVehicle(ctx context.Context, id string) error {
	return t.exec(ctx, "records.DeleteVehicle", "vehicle", id, `DELETE FROM vehicles WHERE id = $1`, id)
}

func (t *pgTxRepo) InsertProduct(ctx context.Context, p Product) error {
	return t.exec(ctx, "records.InsertProduct", "product", "",
		`INSERT INTO products (id, sku, name, description, category, unit_price, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`,
		p.ID, p.SKU, p.Name, p.Description, p.Category, p.UnitPrice.String(), p.Active, p.CreatedAt, p.UpdatedAt)
}

func (t *pgTxRepo) UpdateProduct(ctx context.Context, p Product) error {
	return t.exec(ctx, "records.UpdateProduct", "product", p.ID,
		`UPDATE products SET sku = $2, name = $3, description = $4, category = $5, unit_price = $6::numeric,
		active = $7, updated_at = $8 WHERE id = $1`,
		p.ID, p.SKU, p.Name, p.Description, p.Category, p.UnitPrice.String(), p.Active, p.UpdatedAt)
}

func (t *pgTxRepo) DeleteProduct(ctx context.Context, id string) error {
	return t.exec(ctx, "records.DeleteProduct", "product", id, `DELETE FROM products WHERE id = $1`, id)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (t *pgTxRepo) InsertAppointment(ctx context.Context, a Appointment) error {
	return t.exec(ctx, "records.InsertAppointment", "appointment", "",
		`INSERT INTO appointments (id, customer_id, vehicle_id, title, description, starts_at, ends_at, status, source,
		calendar_event_id, reminded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.CustomerID, nullIfEmpty(a.VehicleID), a.Title, a.Description, a.StartsAt, a.EndsAt, string(a.Status),
		string(a.Source), a.CalendarEventID, a.RemindedAt, a.CreatedAt, a.UpdatedAt)
}

func (t *pgTxRepo) UpdateAppointment(ctx context.Context, a Appointment) error {
	return t.exec(ctx, "records.UpdateAppointment", "appointment", a.ID,
		`UPDATE appointments SET vehicle_id = $2, title = $3, description = $4, starts_at = $5, ends_at = $6, status = $7,
		calendar_event_id = $8, reminded_at = $9, updated_at = $10 WHERE id = $1`,
		a.ID, nullIfEmpty(a.VehicleID), a.Title, a.Description, a.StartsAt, a.EndsAt, string(a.Status),
		a.CalendarEventID, a.RemindedAt, a.UpdatedAt)
}

func (t *pgTxRepo) DeleteAppointment(ctx context.Context, id string) error {
	return t.exec(ctx, "records.DeleteAppointment", "appointment", id, `DELETE FROM appointments WHERE id = $1`, id)
}
