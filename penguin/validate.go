package penguin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strings"
)

const (
	FieldBillLength    = "bill_length_mm"
	FieldBillDepth     = "bill_depth_mm"
	FieldFlipperLength = "flipper_length_mm"
	FieldBodyMass      = "body_mass_g"
	FieldYear          = "year"
	FieldSex           = "sex"
	FieldIsland        = "island"

	// FieldBody is the violation key used when the payload itself is not a
	// JSON object.
	FieldBody = "body"
)

// Range is the inclusive interval a numeric field must fall in.
type Range struct {
	Field   string
	Min     float64
	Max     float64
	Integer bool
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var numericRanges = []Range{
	{Field: FieldBillLength, Min: 30, Max: 65},
	{Field: FieldBillDepth, Min: 10, Max: 25},
	{Field: FieldFlipperLength, Min: 160, Max: 240},
	{Field: FieldBodyMass, Min: 2500, Max: 6500},
	{Field: FieldYear, Min: 2000, Max: 2100, Integer: true},
}

// Ranges returns the accepted interval of every numeric field.
func Ranges() []Range {
	out := make([]Range, len(numericRanges))
	copy(out, numericRanges)
	return out
}

// FieldNames lists every accepted input field in declaration order.
func FieldNames() []string {
	names := make([]string, 0, len(numericRanges)+2)
	for _, r := range numericRanges {
		names = append(names, r.Field)
	}
	return append(names, FieldSex, FieldIsland)
}

// ValidationError lists every violated field of a rejected input.
type ValidationError struct {
	Violations map[string][]string
}

func (e *ValidationError) Error() string {
	fields := e.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Violations[f], "; ")))
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// Fields returns the violated field names in sorted order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (e *ValidationError) add(field, msg string) {
	if e.Violations == nil {
		e.Violations = make(map[string][]string)
	}
	e.Violations[field] = append(e.Violations[field], msg)
}

func (e *ValidationError) empty() bool {
	return len(e.Violations) == 0
}

// Record is an undecoded client input: field name to raw JSON value.
type Record map[string]json.RawMessage

// DecodeRecord reads one JSON object from r. Payloads that are not a JSON
// object yield a *ValidationError; transport failures (including
// *http.MaxBytesError) are returned wrapped so the caller can map them.
func DecodeRecord(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		if isPayloadError(err) {
			return nil, bodyViolation("must be a JSON object")
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if rec == nil {
		return nil, bodyViolation("must be a JSON object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err != nil && !isPayloadError(err) {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		return nil, bodyViolation("unexpected data after JSON object")
	}
	return rec, nil
}

func isPayloadError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func bodyViolation(msg string) *ValidationError {
	verr := &ValidationError{}
	verr.add(FieldBody, msg)
	return verr
}

// Validate checks every field of rec and returns either normalized Features
// or a *ValidationError naming all violated fields. Unknown fields are
// rejected. Categorical values match case-insensitively.
func Validate(rec Record) (Features, error) {
	verr := &ValidationError{}
	var f Features

	numbers := make(map[string]float64, len(numericRanges))
	for _, rng := range numericRanges {
		v, ok := numberField(rec, rng, verr)
		if ok {
			numbers[rng.Field] = v
		}
	}

	if s, ok := stringField(rec, FieldSex, verr); ok {
		sex, err := ParseSex(s)
		if err != nil {
			verr.add(FieldSex, "must be one of: "+joinValues(allSexes))
		}
		f.Sex = sex
	}
	if s, ok := stringField(rec, FieldIsland, verr); ok {
		island, err := ParseIsland(s)
		if err != nil {
			verr.add(FieldIsland, "must be one of: "+joinValues(allIslands))
		}
		f.Island = island
	}

	known := FieldNames()
	for name := range rec {
		if !slices.Contains(known, name) {
			verr.add(name, "unknown field")
		}
	}

	if !verr.empty() {
		return Features{}, verr
	}

	f.BillLengthMM = numbers[FieldBillLength]
	f.BillDepthMM = numbers[FieldBillDepth]
	f.FlipperLengthMM = numbers[FieldFlipperLength]
	f.BodyMassG = numbers[FieldBodyMass]
	f.Year = int(numbers[FieldYear])
	return f, nil
}

func numberField(rec Record, rng Range, verr *ValidationError) (float64, bool) {
	raw, ok := present(rec, rng.Field, verr)
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		verr.add(rng.Field, "must be a number")
		return 0, false
	}
	if rng.Integer && v != math.Trunc(v) {
		verr.add(rng.Field, "must be an integer")
		return 0, false
	}
	if !rng.contains(v) {
		verr.add(rng.Field, fmt.Sprintf("must be between %g and %g", rng.Min, rng.Max))
		return 0, false
	}
	return v, true
}

func stringField(rec Record, field string, verr *ValidationError) (string, bool) {
	raw, ok := present(rec, field, verr)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.add(field, "must be a string")
		return "", false
	}
	return s, true
}

func present(rec Record, field string, verr *ValidationError) (json.RawMessage, bool) {
	raw, ok := rec[field]
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		verr.add(field, "field required")
		return nil, false
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		verr.add(field, "field required")
		return nil, false
	}
	return raw, true
}
