// Package form converts loosely typed UI input into typed values.
//
// The console UI submits form fields as strings, and some clients send
// JSON numbers instead. Value accepts both, and the Int/Float helpers parse
// at the boundary so that validation never compares a string to a number.
package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrParse is the sentinel wrapped by every *ParseError.
var ErrParse = errors.New("form: parse error")

// Value is a raw form field. It unmarshals from a JSON string, number,
// boolean or null and always holds the textual form.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	// Numbers and booleans keep their literal text.
	if data[0] == '{' || data[0] == '[' {
		return fmt.Errorf("%w: expected scalar, got %s", ErrParse, string(data[:1]))
	}
	*v = Value(data)
	return nil
}

// String returns the trimmed text.
func (v Value) String() string {
	return strings.TrimSpace(string(v))
}

// Empty reports whether the field is blank after trimming.
func (v Value) Empty() bool {
	return v.String() == ""
}

// Int parses the field as a base-10 integer.
// A JSON number with an integral value such as "502.0" is accepted.
func (v Value) Int() (int, bool) {
	s := v.String()
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// Float parses the field as a finite real number.
func (v Value) Float() (float64, bool) {
	s := v.String()
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseError reports a field that could not be converted to its typed form.
// It is distinct from a validation failure: validation produces user-facing
// messages, a ParseError means the caller skipped validation or sent
// structurally broken input.
type ParseError struct {
	Field string
	Value string
	Want  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("form: field %q: cannot parse %q as %s", e.Field, e.Value, e.Want)
}

// Unwrap returns ErrParse so callers can use errors.Is.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// RequireInt parses an integer field or returns a *ParseError.
func RequireInt(field string, v Value) (int, error) {
	n, ok := v.Int()
	if !ok {
		return 0, &ParseError{Field: field, Value: string(v), Want: "integer"}
	}
	return n, nil
}

// RequireFloat parses a real-number field or returns a *ParseError.
func RequireFloat(field string, v Value) (float64, error) {
	f, ok := v.Float()
	if !ok {
		return 0, &ParseError{Field: field, Value: string(v), Want: "number"}
	}
	return f, nil
}

// ValidationError carries the user-facing messages produced by a
// validation pass. Callers must not persist anything when it is returned.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Check returns a *ValidationError when msgs is non-empty, nil otherwise.
func Check(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

// FirstNonEmpty returns the first value that is not blank. It resolves
// field aliases such as name/deviceName.
func FirstNonEmpty(values ...Value) Value {
	for _, v := range values {
		if !v.Empty() {
			return v
		}
	}
	return ""
}
