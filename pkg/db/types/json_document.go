package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONDocument stores raw JSON in a jsonb column. It is written as text so the
// same value works with the simple query protocol and with SQLite.
type JSONDocument json.RawMessage

func (j *JSONDocument) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case string:
		*j = append((*j)[:0], v...)
		return nil
	case []byte:
		*j = append((*j)[:0], v...)
		return nil
	default:
		return fmt.Errorf("JSONDocument: unsupported Scan type %T", src)
	}
}

func (j JSONDocument) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSONDocument: invalid json")
	}
	return string(j), nil
}

func (j JSONDocument) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONDocument) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSONDocument: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}

// NewJSONDocument marshals v into a JSONDocument.
func NewJSONDocument(v any) (JSONDocument, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONDocument(raw), nil
}

// Decode unmarshals the document into dest. Empty documents leave dest untouched.
func (j JSONDocument) Decode(dest any) error {
	if len(j) == 0 {
		return nil
	}
	return json.Unmarshal(j, dest)
}
