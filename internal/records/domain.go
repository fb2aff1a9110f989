// Package records manages customers, vehicles, the product catalog and appointments.
package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a person or business the workshop serves.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vehicle belongs to exactly one customer.
type Vehicle struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customer_id"`
	Registration string     `json:"registration"`
	Make         string     `json:"make,omitempty"`
	Model        string     `json:"model,omitempty"`
	Year         int        `json:"year,omitempty"`
	Color        string     `json:"color,omitempty"`
	VIN          string     `json:"vin,omitempty"`
	Mileage      int        `json:"mileage,omitempty"`
	MOTExpiry    *time.Time `json:"mot_expiry,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Product is a catalog entry that line items may reference.
type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AppointmentStatus is the workshop-side state of a booking.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentScheduled: {AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow},
	AppointmentConfirmed: {AppointmentCompleted, AppointmentCancelled, AppointmentNoShow},
}

// CanTransitionAppointment reports whether from may move to to.
func CanTransitionAppointment(from, to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Open reports whether the appointment still awaits the customer.
func (s AppointmentStatus) Open() bool {
	return s == AppointmentScheduled || s == AppointmentConfirmed
}

// AppointmentSource records where a booking came from.
type AppointmentSource string

const (
	SourceStaff  AppointmentSource = "staff"
	SourceOnline AppointmentSource = "online"
)

// Appointment is a workshop slot for a customer and optionally one of their vehicles.
type Appointment struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer_id"`
	VehicleID       string            `json:"vehicle_id,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	StartsAt        time.Time         `json:"starts_at"`
	EndsAt          time.Time         `json:"ends_at"`
	Status          AppointmentStatus `json:"status"`
	Source          AppointmentSource `json:"source"`
	CalendarEventID string            `json:"calendar_event_id,omitempty"`
	RemindedAt      *time.Time        `json:"reminded_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// CustomerFilter narrows customer listings.
type CustomerFilter struct {
	Search  string
	Page    int
	PerPage int
}

// VehicleFilter narrows vehicle listings.
type VehicleFilter struct {
	CustomerID string
	Search     string
	Page       int
	PerPage    int
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	PerPage    int
}

// AppointmentFilter narrows appointment listings. From and To bound StartsAt, To exclusive.
type AppointmentFilter struct {
	CustomerID string
	VehicleID  string
	Status     AppointmentStatus
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

// ListResult is one page of records.
type ListResult[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
