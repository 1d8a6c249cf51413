package types

import (
	"database/sql/driver"
	"strings"
)

// Address is the shipping contact captured from the payment processor,
// stored as a JSONB column.
type Address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

func (a Address) Value() (driver.Value, error) {
	return jsonbValue(a)
}

func (a *Address) Scan(value any) error {
	return jsonbScan(value, a)
}

// OneLine renders the address for notification emails.
func (a Address) OneLine() string {
	parts := []string{a.Line1}
	if a.Line2 != nil && strings.TrimSpace(*a.Line2) != "" {
		parts = append(parts, *a.Line2)
	}
	parts = append(parts, a.City, a.State, a.PostalCode, a.Country)

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
