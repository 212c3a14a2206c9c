package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	apperrors "kvstore-collector/internal/shared/errors"
)

// Metadata fields stamped on every record before it is written to the store.
const (
	FieldUpdated = "_updated"
	FieldInputID = "_input_id"
	FieldKey     = "_key"

	// KeySeparator joins identity field values into a record key.
	KeySeparator = "-"
)

// Record is one report row: an ordered mapping from column label to a scalar
// value (string, float64, bool or nil). Column order is preserved in the JSON
// encoding.
type Record struct {
	keys   []string
	values map[string]interface{}
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]interface{})}
}

// RecordFromPairs builds a record from alternating label, value arguments.
// Odd trailing labels are ignored.
func RecordFromPairs(pairs ...interface{}) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		label, ok := pairs[i].(string)
		if !ok {
			continue
		}
		r.Set(label, pairs[i+1])
	}
	return r
}

// Set assigns a value, appending the label when it is new.
func (r *Record) Set(label string, value interface{}) {
	if r.values == nil {
		r.values = make(map[string]interface{})
	}
	if _, exists := r.values[label]; !exists {
		r.keys = append(r.keys, label)
	}
	r.values[label] = value
}

// Get returns the value for label and whether it is present.
func (r *Record) Get(label string) (interface{}, bool) {
	v, ok := r.values[label]
	return v, ok
}

// Delete removes a label.
func (r *Record) Delete(label string) {
	if _, ok := r.values[label]; !ok {
		return
	}
	delete(r.values, label)
	for i, k := range r.keys {
		if k == label {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Labels returns the column labels in insertion order.
func (r *Record) Labels() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns a shallow copy that can be annotated independently.
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]interface{}, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Map returns the record as a plain map.
func (r *Record) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the record as a JSON object in column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the order of its keys.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return apperrors.NewValidationError("record must be a JSON object")
	}
	*r = Record{values: make(map[string]interface{})}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}
		r.Set(label, value)
	}
	_, err = dec.Token()
	return err
}

// Annotate stamps the metadata fields used for troubleshooting and purge scoping.
func (r *Record) Annotate(updated, inputID string) {
	r.Set(FieldUpdated, updated)
	r.Set(FieldInputID, inputID)
}

// DeriveKey joins the values of the identity fields with KeySeparator. A field
// that is absent, nil or empty yields a MissingKeyField error.
func (r *Record) DeriveKey(fields []string) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := r.values[f]
		if !ok || v == nil {
			return "", apperrors.NewMissingKeyFieldError(f)
		}
		s := ScalarString(v)
		if s == "" {
			return "", apperrors.NewMissingKeyFieldError(f)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, KeySeparator), nil
}

// ScalarString renders a scalar record value as text.
func ScalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
