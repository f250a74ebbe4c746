package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AddressSnapshot is the structured copy of a saved address stored on an
// order. It is written once at creation and never follows later edits.
type AddressSnapshot struct {
	AddressID  string  `json:"address_id"`
	Label      string  `json:"label,omitempty"`
	Recipient  string  `json:"recipient"`
	Phone      string  `json:"phone,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	Region     string  `json:"region"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Value marshals the snapshot into a JSON document column.
func (a AddressSnapshot) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address snapshot: %w", err)
	}
	return string(raw), nil
}

// Scan decodes the JSON document column.
func (a *AddressSnapshot) Scan(value interface{}) error {
	if value == nil {
		*a = AddressSnapshot{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address snapshot: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = AddressSnapshot{}
		return nil
	}
	return json.Unmarshal(raw, a)
}
