package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Tags is an ordered set of strings stored as a JSON array.
// Malformed stored data scans to an empty set and is flagged instead of failing the row.
type Tags struct {
	Values    []string
	malformed bool
}

// NewTags trims, drops empty values and removes duplicates, keeping first occurrence order
func NewTags(values ...string) Tags {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return Tags{Values: out}
}

// Malformed reports whether the stored payload could not be decoded
func (t Tags) Malformed() bool {
	return t.malformed
}

// Value implements the driver.Valuer interface
func (t Tags) Value() (driver.Value, error) {
	if len(t.Values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(t.Values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface
func (t *Tags) Scan(value interface{}) error {
	*t = Tags{Values: []string{}}
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		t.malformed = true
		return nil
	}

	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		t.malformed = true
		return nil
	}
	*t = NewTags(values...)
	return nil
}

// GormDBDataType picks jsonb on postgres and text elsewhere
func (Tags) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

func (t Tags) MarshalJSON() ([]byte, error) {
	if t.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Values)
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*t = NewTags(values...)
	return nil
}

// Metadata is a string map stored as a JSON object.
// Malformed stored data scans to an empty map.
type Metadata map[string]string

// Value implements the driver.Valuer interface
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface
func (m *Metadata) Scan(value interface{}) error {
	*m = Metadata{}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	*m = out
	return nil
}

// GormDBDataType picks jsonb on postgres and text elsewhere
func (Metadata) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Embedding wraps a pgvector column. A payload that does not parse scans to an
// empty vector flagged as malformed, so one corrupt row never fails a load.
type Embedding struct {
	vec       pgvector.Vector
	malformed bool
}

// NewEmbedding copies values into an Embedding
func NewEmbedding(values []float32) Embedding {
	cp := make([]float32, len(values))
	copy(cp, values)
	return Embedding{vec: pgvector.NewVector(cp)}
}

// Slice returns the underlying values
func (e Embedding) Slice() []float32 {
	return e.vec.Slice()
}

// Dim returns the vector length
func (e Embedding) Dim() int {
	return len(e.vec.Slice())
}

// Malformed reports whether the stored payload could not be decoded
func (e Embedding) Malformed() bool {
	return e.malformed
}

// Value implements the driver.Valuer interface
func (e Embedding) Value() (driver.Value, error) {
	if e.Dim() == 0 {
		return nil, fmt.Errorf("cannot store an empty embedding")
	}
	return e.vec.Value()
}

// Scan implements the sql.Scanner interface
func (e *Embedding) Scan(value interface{}) error {
	*e = Embedding{}
	if value == nil {
		e.malformed = true
		return nil
	}
	var text string
	switch v := value.(type) {
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		e.malformed = true
		return nil
	}
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '[' || text[len(text)-1] != ']' {
		e.malformed = true
		return nil
	}
	var vec pgvector.Vector
	if err := vec.Scan(text); err != nil {
		e.malformed = true
		return nil
	}
	e.vec = vec
	return nil
}

// GormDataType marks the field as a column rather than an association
func (Embedding) GormDataType() string {
	return "vector"
}

// GormDBDataType picks the pgvector type on postgres and text elsewhere
func (Embedding) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "vector"
	}
	return "text"
}
