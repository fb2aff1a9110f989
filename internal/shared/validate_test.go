package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineInput struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type orderInput struct {
	CustomerID string      `json:"customer_id" validate:"required"`
	Email      string      `json:"email" validate:"omitempty,email"`
	Channel    string      `json:"channel" validate:"omitempty,oneof=email sms"`
	Lines      []lineInput `json:"lines" validate:"required,min=1,dive"`
}

func TestValidateStructReportsJSONPaths(t *testing.T) {
	v := NewValidator()
	err := ValidateStruct(v, "orders.Create", orderInput{
		Email:   "not-an-email",
		Channel: "fax",
		Lines:   []lineInput{{Name: "ok", Quantity: 1}, {Quantity: 0}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, map[string]string{
		"customer_id":       "is required",
		"email":             "must be a valid email address",
		"channel":           "must be one of: email sms",
		"lines[1].name":     "is required",
		"lines[1].quantity": "must be greater than 0",
	}, de.Fields)
}

func TestValidateStructPasses(t *testing.T) {
	v := NewValidator()
	err := ValidateStruct(v, "orders.Create", orderInput{
		CustomerID: "c1",
		Lines:      []lineInput{{Name: "ok", Quantity: 2}},
	})
	assert.NoError(t, err)
}
