package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItemInput describes a line on create/update requests. Name and unit price may be
// omitted when a catalog product is referenced; they are then filled from the catalog.
type LineItemInput struct {
	ProductID   string           `json:"product_id,omitempty" validate:"omitempty,max=64"`
	Name        string           `json:"name,omitempty" validate:"required_without=ProductID,max=200"`
	Description string           `json:"description,omitempty" validate:"max=1000"`
	Quantity    int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
}

type CreateInvoiceRequest struct {
	CustomerID string           `json:"customer_id" validate:"required,max=64"`
	VehicleID  string           `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	Items      []LineItemInput  `json:"items" validate:"required,min=1,dive"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	DueDate    *time.Time       `json:"due_date,omitempty"`
	Notes      string           `json:"notes,omitempty" validate:"max=4000"`
}

type UpdateInvoiceRequest struct {
	VehicleID *string          `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	Items     *[]LineItemInput `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty"`
	DueDate   *time.Time       `json:"due_date,omitempty"`
	Notes     *string          `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type CreateEstimateRequest struct {
	CustomerID string           `json:"customer_id" validate:"required,max=64"`
	VehicleID  string           `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	Items      []LineItemInput  `json:"items" validate:"required,min=1,dive"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
	Notes      string           `json:"notes,omitempty" validate:"max=4000"`
}

type UpdateEstimateRequest struct {
	VehicleID  *string          `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	Items      *[]LineItemInput `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
	Notes      *string          `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type SendRequest struct {
	Channel string `json:"channel,omitempty" validate:"omitempty,oneof=email sms"`
}

// ListResult is a page of documents.
type ListResult[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
