package records

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garagedesk/garagedesk/internal/shared"
)

// Repository is the persistence port used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetCustomer(ctx context.Context, id string) (*Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error)

	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
	FindVehicleByRegistration(ctx context.Context, customerID, registration string) (*Vehicle, error)
	ListVehicles(ctx context.Context, filter VehicleFilter) ([]Vehicle, error)
	ListVehiclesByMOTExpiry(ctx context.Context, day time.Time) ([]Vehicle, error)

	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)

	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
}

// TxRepository exposes transactional reads used by guards and all writes.
type TxRepository interface {
	CountCustomerDependents(ctx context.Context, customerID string) (vehicles, appointments int, err error)
	CountVehicleAppointments(ctx context.Context, vehicleID string) (int, error)

	InsertCustomer(ctx context.Context, c Customer) error
	UpdateCustomer(ctx context.Context, c Customer) error
	DeleteCustomer(ctx context.Context, id string) error

	InsertVehicle(ctx context.Context, v Vehicle) error
	UpdateVehicle(ctx context.Context, v Vehicle) error
	DeleteVehicle(ctx context.Context, id string) error

	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error

	InsertAppointment(ctx context.Context, a Appointment) error
	UpdateAppointment(ctx context.Context, a Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
}

// ============================================================================
// IN-MEMORY REPOSITORY
// ============================================================================

type memState struct {
	customers    map[string]Customer
	vehicles     map[string]Vehicle
	products     map[string]Product
	appointments map[string]Appointment
}

func newMemState() memState {
	return memState{
		customers:    make(map[string]Customer),
		vehicles:     make(map[string]Vehicle),
		products:     make(map[string]Product),
		appointments: make(map[string]Appointment),
	}
}

func (s memState) clone() memState {
	out := memState{
		customers:    make(map[string]Customer, len(s.customers)),
		vehicles:     make(map[string]Vehicle, len(s.vehicles)),
		products:     make(map[string]Product, len(s.products)),
		appointments: make(map[string]Appointment, len(s.appointments)),
	}
	for k, v := range s.customers {
		out.customers[k] = v
	}
	for k, v := range s.vehicles {
		out.vehicles[k] = cloneVehicle(v)
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.appointments {
		out.appointments[k] = cloneAppointment(v)
	}
	return out
}

func cloneVehicle(v Vehicle) Vehicle {
	if v.MOTExpiry != nil {
		t := *v.MOTExpiry
		v.MOTExpiry = &t
	}
	return v
}

func cloneAppointment(a Appointment) Appointment {
	if a.RemindedAt != nil {
		t := *a.RemindedAt
		a.RemindedAt = &t
	}
	return a
}

// MemoryRepository keeps records in process memory; state is lost on restart.
// Transactions run against a copy that replaces the live state on success.
type MemoryRepository struct {
	mu    sync.RWMutex
	state memState
}

// NewMemoryRepository constructs an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

// WithTx runs fn against a working copy and commits it when fn succeeds.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memTx{state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

type memTx struct {
	state memState
}

const memOp = "records.memory"

func (t *memTx) CountCustomerDependents(_ context.Context, customerID string) (int, int, error) {
	var vehicles, appointments int
	for _, v := range t.state.vehicles {
		if v.CustomerID == customerID {
			vehicles++
		}
	}
	for _, a := range t.state.appointments {
		if a.CustomerID == customerID {
			appointments++
		}
	}
	return vehicles, appointments, nil
}

func (t *memTx) CountVehicleAppointments(_ context.Context, vehicleID string) (int, error) {
	n := 0
	for _, a := range t.state.appointments {
		if a.VehicleID == vehicleID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertCustomer(_ context.Context, c Customer) error {
	if _, ok := t.state.customers[c.ID]; ok {
		return shared.Conflict(memOp, "customer id already exists")
	}
	t.state.customers[c.ID] = c
	return nil
}

func (t *memTx) UpdateCustomer(_ context.Context, c Customer) error {
	if _, ok := t.state.customers[c.ID]; !ok {
		return shared.NotFound(memOp, "customer", c.ID)
	}
	t.state.customers[c.ID] = c
	return nil
}

func (t *memTx) DeleteCustomer(ctx context.Context, id string) error {
	if _, ok := t.state.customers[id]; !ok {
		return shared.NotFound(memOp, "customer", id)
	}
	vehicles, appointments, _ := t.CountCustomerDependents(ctx, id)
	if vehicles+appointments > 0 {
		return shared.Referential(memOp, "customer", nonZero(map[string]int{"vehicles": vehicles, "appointments": appointments}))
	}
	delete(t.state.customers, id)
	return nil
}

func (t *memTx) InsertVehicle(_ context.Context, v Vehicle) error {
	if _, ok := t.state.vehicles[v.ID]; ok {
		return shared.Conflict(memOp, "vehicle id already exists")
	}
	if _, ok := t.state.customers[v.CustomerID]; !ok {
		return shared.Referential(memOp, "vehicle", map[string]int{"customers": 0})
	}
	t.state.vehicles[v.ID] = cloneVehicle(v)
	return nil
}

func (t *memTx) UpdateVehicle(_ context.Context, v Vehicle) error {
	if _, ok := t.state.vehicles[v.ID]; !ok {
		return shared.NotFound(memOp, "vehicle", v.ID)
	}
	t.state.vehicles[v.ID] = cloneVehicle(v)
	return nil
}

func (t *memTx) DeleteVehicle(ctx context.Context, id string) error {
	if _, ok := t.state.vehicles[id]; !ok {
		return shared.NotFound(memOp, "vehicle", id)
	}
	if n, _ := t.CountVehicleAppointments(ctx, id); n > 0 {
		return shared.Referential(memOp, "vehicle", map[string]int{"appointments": n})
	}
	delete(t.state.vehicles, id)
	return nil
}

func (t *memTx) InsertProduct(_ context.Context, p Product) error {
	if _, ok := t.state.products[p.ID]; ok {
		return shared.Conflict(memOp, "product id already exists")
	}
	t.state.products[p.ID] = p
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, p Product) error {
	if _, ok := t.state.products[p.ID]; !ok {
		return shared.NotFound(memOp, "product", p.ID)
	}
	t.state.products[p.ID] = p
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.state.products[id]; !ok {
		return shared.NotFound(memOp, "product", id)
	}
	delete(t.state.products, id)
	return nil
}

func (t *memTx) InsertAppointment(_ context.Context, a Appointment) error {
	if _, ok := t.state.appointments[a.ID]; ok {
		return shared.Conflict(memOp, "appointment id already exists")
	}
	if err := t.checkAppointmentRefs(a); err != nil {
		return err
	}
	t.state.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a Appointment) error {
	if _, ok := t.state.appointments[a.ID]; !ok {
		return shared.NotFound(memOp, "appointment", a.ID)
	}
	if err := t.checkAppointmentRefs(a); err != nil {
		return err
	}
	t.state.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id string) error {
	if _, ok := t.state.appointments[id]; !ok {
		return shared.NotFound(memOp, "appointment", id)
	}
	delete(t.state.appointments, id)
	return nil
}

func (t *memTx) checkAppointmentRefs(a Appointment) error {
	if _, ok := t.state.customers[a.CustomerID]; !ok {
		return shared.Referential(memOp, "appointment", map[string]int{"customers": 0})
	}
	if a.VehicleID != "" {
		if _, ok := t.state.vehicles[a.VehicleID]; !ok {
			return shared.Referential(memOp, "appointment", map[string]int{"vehicles": 0})
		}
	}
	if !a.EndsAt.After(a.StartsAt) {
		return shared.Validation(memOp, "appointment must end after it starts")
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

func (r *MemoryRepository) GetCustomer(_ context.Context, id string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.state.customers[id]
	if !ok {
		return nil, shared.NotFound("records.GetCustomer", "customer", id)
	}
	return &c, nil
}

func (r *MemoryRepository) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Customer
	for _, c := range r.state.customers {
		if c.Email == "" || !strings.EqualFold(c.Email, email) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = &c
		}
	}
	if found == nil {
		return nil, shared.NotFound("records.FindCustomerByEmail", "customer", email)
	}
	return found, nil
}

func (r *MemoryRepository) ListCustomers(_ context.Context, filter CustomerFilter) ([]Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Customer, 0, len(r.state.customers))
	for _, c := range r.state.customers {
		if !matches(filter.Search, c.Name, c.Email, c.Phone) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) GetVehicle(_ context.Context, id string) (*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.state.vehicles[id]
	if !ok {
		return nil, shared.NotFound("records.GetVehicle", "vehicle", id)
	}
	v = cloneVehicle(v)
	return &v, nil
}

func (r *MemoryRepository) FindVehicleByRegistration(_ context.Context, customerID, registration string) (*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.state.vehicles {
		if v.CustomerID == customerID && v.Registration == registration {
			v = cloneVehicle(v)
			return &v, nil
		}
	}
	return nil, shared.NotFound("records.FindVehicleByRegistration", "vehicle", registration)
}

func (r *MemoryRepository) ListVehicles(_ context.Context, filter VehicleFilter) ([]Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Vehicle, 0, len(r.state.vehicles))
	for _, v := range r.state.vehicles {
		if filter.CustomerID != "" && v.CustomerID != filter.CustomerID {
			continue
		}
		if !matches(filter.Search, v.Registration, v.Make, v.Model) {
			continue
		}
		out = append(out, cloneVehicle(v))
	}
	sortVehicles(out)
	return out, nil
}

func (r *MemoryRepository) ListVehiclesByMOTExpiry(_ context.Context, day time.Time) ([]Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Vehicle
	for _, v := range r.state.vehicles {
		if v.MOTExpiry != nil && sameDay(*v.MOTExpiry, day) {
			out = append(out, cloneVehicle(v))
		}
	}
	sortVehicles(out)
	return out, nil
}

func (r *MemoryRepository) GetProduct(_ context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.state.products[id]
	if !ok {
		return nil, shared.NotFound("records.GetProduct", "product", id)
	}
	return &p, nil
}

func (r *MemoryRepository) ListProducts(_ context.Context, filter ProductFilter) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0, len(r.state.products))
	for _, p := range r.state.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if !matches(filter.Search, p.Name, p.SKU, p.Category) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.state.appointments[id]
	if !ok {
		return nil, shared.NotFound("records.GetAppointment", "appointment", id)
	}
	a = cloneAppointment(a)
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, filter AppointmentFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Appointment, 0, len(r.state.appointments))
	for _, a := range r.state.appointments {
		switch {
		case filter.CustomerID != "" && a.CustomerID != filter.CustomerID:
			continue
		case filter.VehicleID != "" && a.VehicleID != filter.VehicleID:
			continue
		case filter.Status != "" && a.Status != filter.Status:
			continue
		case !filter.From.IsZero() && a.StartsAt.Before(filter.From):
			continue
		case !filter.To.IsZero() && !a.StartsAt.Before(filter.To):
			continue
		}
		out = append(out, cloneAppointment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matches(search string, fields ...string) bool {
	search = strings.TrimSpace(strings.ToLower(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func sortVehicles(vs []Vehicle) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Registration != vs[j].Registration {
			return vs[i].Registration < vs[j].Registration
		}
		return vs[i].ID < vs[j].ID
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func nonZero(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}
