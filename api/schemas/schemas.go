// Package schemas holds the value types shared between the scraping core,
// the persistence layer, and the operator-facing surfaces.
package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// -- Run Ledger Models --

// Run identifies one end-to-end scraping session. Immutable once created.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// StatusEvent is one append-only progress entry belonging to a Run.
// Image is only set for CAPTCHA prompts (PNG bytes).
type StatusEvent struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Image     []byte    `json:"image,omitempty"`
}

// -- Extracted Record Models --

// Field is a single label/value pair read from a section table.
type Field struct {
	Label string
	Value string
}

// Fields is an ordered list of label/value pairs. Order follows the source
// column order, and labels are not required to be unique.
type Fields []Field

// Labels returns the field labels in order.
func (f Fields) Labels() []string {
	out := make([]string, len(f))
	for i, fld := range f {
		out[i] = fld.Label
	}
	return out
}

// Values returns the field values in order.
func (f Fields) Values() []string {
	out := make([]string, len(f))
	for i, fld := range f {
		out[i] = fld.Value
	}
	return out
}

// MarshalJSON encodes the fields as a JSON object whose keys appear in field
// order, matching what the export surface expects. Duplicate labels are
// written as-is; JSON permits repeated keys even if most decoders keep the
// last one.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fld.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fld.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving the key order of the
// document, which Postgres json columns retain verbatim.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("schemas: expected JSON object for fields, got %v", tok)
	}
	out := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("schemas: non-string field label %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("schemas: field %q: %w", key, err)
		}
		out = append(out, Field{Label: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// Record is one extracted property transaction: five fixed sections, each an
// ordered mapping from field label to field value.
type Record struct {
	Registration Fields `json:"registration"`
	Seller       Fields `json:"seller"`
	Buyer        Fields `json:"buyer"`
	Property     Fields `json:"property"`
	Khasra       Fields `json:"khasra"`
}

// Sections returns the five sections in their canonical order.
func (r Record) Sections() []Fields {
	return []Fields{r.Registration, r.Seller, r.Buyer, r.Property, r.Khasra}
}

// -- Run Outcome Models --

// Outcome classifies how a run terminated.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeInvalidInput    Outcome = "invalid-input"
	OutcomeLoginExhausted  Outcome = "login-checkpoint-exhausted"
	OutcomeFilterExhausted Outcome = "filter-checkpoint-exhausted"
	OutcomeError           Outcome = "unexpected-error"
)

// RunResult is the terminal report of a run: exactly one outcome with a
// message suitable for direct display.
type RunResult struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
}

// OK reports whether the run completed successfully.
func (r RunResult) OK() bool { return r.Outcome == OutcomeSuccess }
