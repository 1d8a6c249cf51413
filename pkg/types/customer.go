package types

import (
	"database/sql/driver"

	"github.com/google/uuid"
)

// Customer is the purchaser snapshot embedded in an order. The id
// references the user account when the purchase was not a guest
// checkout.
type Customer struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	VATNumber string     `json:"vat_number,omitempty"`
	VATValid  bool       `json:"vat_valid,omitempty"`
	Guest     bool       `json:"guest,omitempty"`
}

func (c Customer) Value() (driver.Value, error) {
	return jsonbValue(c)
}

func (c *Customer) Scan(value any) error {
	return jsonbScan(value, c)
}
