package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Geometry holds a GeoJSON document as opaque bytes. The inventory core
// never inspects coordinates; geometry is stored and served as-is.
type Geometry json.RawMessage

// MarshalJSON returns the raw GeoJSON bytes, or null when empty.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if len(g) == 0 {
		return []byte("null"), nil
	}
	return g, nil
}

// UnmarshalJSON stores the raw GeoJSON bytes without validation.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if g == nil {
		return fmt.Errorf("geometry: UnmarshalJSON on nil pointer")
	}
	*g = append((*g)[0:0], data...)
	return nil
}

// Value implements driver.Valuer so geometry can be written to a JSONB column.
func (g Geometry) Value() (driver.Value, error) {
	if len(g) == 0 {
		return nil, nil
	}
	return []byte(g), nil
}

// Scan implements sql.Scanner for reading geometry back from JSONB.
func (g *Geometry) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*g = nil
		return nil
	case []byte:
		*g = append((*g)[0:0], v...)
		return nil
	case string:
		*g = Geometry(v)
		return nil
	default:
		return fmt.Errorf("geometry: cannot scan %T", src)
	}
}
