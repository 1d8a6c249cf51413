package types

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// ColorSelection is the color variant chosen for a line item,
// snapshotted at order time.
type ColorSelection struct {
	Name    string `json:"name"`
	HexCode string `json:"hex_code"`
}

func (c ColorSelection) Value() (driver.Value, error) {
	return jsonbValue(c)
}

func (c *ColorSelection) Scan(value any) error {
	return jsonbScan(value, c)
}

// StorageSelection is the storage variant chosen for a line item. The
// price is the variant surcharge in major units.
type StorageSelection struct {
	Storage string          `json:"storage"`
	Price   decimal.Decimal `json:"price"`
}

func (s StorageSelection) Value() (driver.Value, error) {
	return jsonbValue(s)
}

func (s *StorageSelection) Scan(value any) error {
	return jsonbScan(value, s)
}
