package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateCustomerRequest is the payload for creating a customer.
type CreateCustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address string `json:"address,omitempty" validate:"max=500"`
	Notes   string `json:"notes,omitempty" validate:"max=4000"`
}

// UpdateCustomerRequest changes the provided customer fields.
type UpdateCustomerRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Notes   *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// CreateVehicleRequest is the payload for registering a vehicle. With Prefill set,
// empty details are completed from the vehicle lookup provider.
type CreateVehicleRequest struct {
	CustomerID   string     `json:"customer_id" validate:"required,max=64"`
	Registration string     `json:"registration" validate:"required,max=16"`
	Make         string     `json:"make,omitempty" validate:"max=100"`
	Model        string     `json:"model,omitempty" validate:"max=100"`
	Year         int        `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Color        string     `json:"color,omitempty" validate:"max=50"`
	VIN          string     `json:"vin,omitempty" validate:"max=17"`
	Mileage      int        `json:"mileage,omitempty" validate:"gte=0"`
	MOTExpiry    *time.Time `json:"mot_expiry,omitempty"`
	Notes        string     `json:"notes,omitempty" validate:"max=4000"`
	Prefill      bool       `json:"prefill,omitempty"`
}

// UpdateVehicleRequest changes the provided vehicle fields. Ownership never changes.
type UpdateVehicleRequest struct {
	Registration *string    `json:"registration,omitempty" validate:"omitempty,min=1,max=16"`
	Make         *string    `json:"make,omitempty" validate:"omitempty,max=100"`
	Model        *string    `json:"model,omitempty" validate:"omitempty,max=100"`
	Year         *int       `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Color        *string    `json:"color,omitempty" validate:"omitempty,max=50"`
	VIN          *string    `json:"vin,omitempty" validate:"omitempty,max=17"`
	Mileage      *int       `json:"mileage,omitempty" validate:"omitempty,gte=0"`
	MOTExpiry    *time.Time `json:"mot_expiry,omitempty"`
	Notes        *string    `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// CreateProductRequest is the payload for a catalog entry.
type CreateProductRequest struct {
	SKU         string          `json:"sku,omitempty" validate:"max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description,omitempty" validate:"max=1000"`
	Category    string          `json:"category,omitempty" validate:"max=100"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Active      *bool           `json:"active,omitempty"`
}

// UpdateProductRequest changes the provided product fields.
type UpdateProductRequest struct {
	SKU         *string          `json:"sku,omitempty" validate:"omitempty,max=64"`
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

// CreateAppointmentRequest books a workshop slot. EndsAt defaults to one hour after StartsAt.
type CreateAppointmentRequest struct {
	CustomerID  string     `json:"customer_id" validate:"required,max=64"`
	VehicleID   string     `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty" validate:"max=4000"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// UpdateAppointmentStatusRequest moves an appointment along its lifecycle.
type UpdateAppointmentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// BookingRequest is a public, unauthenticated booking.
type BookingRequest struct {
	Name         string    `json:"name" validate:"required,max=200"`
	Email        string    `json:"email" validate:"required,email,max=254"`
	Phone        string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	Registration string    `json:"registration,omitempty" validate:"omitempty,max=16"`
	Make         string    `json:"make,omitempty" validate:"max=100"`
	Model        string    `json:"model,omitempty" validate:"max=100"`
	Service      string    `json:"service,omitempty" validate:"max=200"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	Notes        string    `json:"notes,omitempty" validate:"max=2000"`
}

// BookingResult identifies the records a booking created or reused.
type BookingResult struct {
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	VehicleID     string    `json:"vehicle_id,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	Replayed      bool      `json:"replayed,omitempty"`
}

// BroadcastRequest is a templated message sent to every reachable customer.
type BroadcastRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email sms"`
	Subject string `json:"subject,omitempty" validate:"required_if=Channel email,max=200"`
	Body    string `json:"body" validate:"required,max=2000"`
}

// BroadcastResult summarises a broadcast.
type BroadcastResult struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
