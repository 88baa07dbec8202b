package qtl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrArity = errors.New("unexpected number of fields")

// DecodeError points at the row and field that could not be decoded.
type DecodeError struct {
	Schema string
	Row    int
	Field  int // -1 when the whole row is at fault
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("%s row %d: %v", e.Schema, e.Row, e.Err)
	}
	return fmt.Sprintf("%s row %d field %d: %v", e.Schema, e.Row, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Row is one positional array as sent on the wire.
type Row []json.RawMessage

// ParseRows splits a JSON array of arrays into rows.
func ParseRows(raw json.RawMessage) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Str reads field i as text. Numbers are accepted and kept in their wire form.
func (r Row) Str(i int) (string, error) {
	if i >= len(r) {
		return "", ErrArity
	}
	if isNull(r[i]) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(r[i], &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(r[i], &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("not a string: %s", r[i])
}

// Num reads field i as a number. Numeric strings are accepted.
func (r Row) Num(i int) (float64, error) {
	if i >= len(r) {
		return 0, ErrArity
	}
	if isNull(r[i]) {
		return 0, errors.New("null number")
	}
	var f float64
	if err := json.Unmarshal(r[i], &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(r[i], &s); err == nil {
		f, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("not a number: %s", r[i])
}

// NumOrNaN is Num with null and "NA" mapped to NaN.
func (r Row) NumOrNaN(i int) (float64, error) {
	if i < len(r) {
		if isNull(r[i]) {
			return math.NaN(), nil
		}
		var s string
		if err := json.Unmarshal(r[i], &s); err == nil && (s == "NA" || s == "NaN") {
			return math.NaN(), nil
		}
	}
	return r.Num(i)
}

// fieldReader accumulates the first error so decoders can read a row
// without checking after every field.
type fieldReader struct {
	schema string
	index  int
	row    Row
	err    error
}

func (f *fieldReader) fail(field int, err error) {
	if f.err == nil {
		f.err = &DecodeError{Schema: f.schema, Row: f.index, Field: field, Err: err}
	}
}

func (f *fieldReader) str(i int) string {
	s, err := f.row.Str(i)
	if err != nil {
		f.fail(i, err)
	}
	return s
}

func (f *fieldReader) num(i int) float64 {
	v, err := f.row.Num(i)
	if err != nil {
		f.fail(i, err)
	}
	return v
}

func (f *fieldReader) numOrNaN(i int) float64 {
	v, err := f.row.NumOrNaN(i)
	if err != nil {
		f.fail(i, err)
	}
	return v
}

func (f *fieldReader) marker(id, chrom, pos int) Marker {
	return Marker{ID: f.str(id), Chromosome: f.str(chrom), Position: f.num(pos)}
}

func (f *fieldReader) effects(from int) *AlleleEffects {
	var ae AlleleEffects
	for k := range ae {
		ae[k] = f.numOrNaN(from + k)
	}
	return &ae
}

func arityError(schema string, row, got int, want ...int) error {
	return &DecodeError{
		Schema: schema,
		Row:    row,
		Field:  -1,
		Err:    fmt.Errorf("%w: got %d, want %v", ErrArity, got, want),
	}
}
