package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, registry.ErrNotFound) {
//	    // 404
//	}
var (
	// ErrNotFound is returned when an id does not resolve to a stored record.
	ErrNotFound = errors.New("registry: not found")

	// ErrMalformedPayload is returned when a request body is not a JSON object.
	ErrMalformedPayload = errors.New("registry: malformed payload")

	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("registry: validation failed")

	// ErrStoreUnavailable wraps any failure of the underlying record store.
	ErrStoreUnavailable = errors.New("registry: store unavailable")

	// ErrDuplicateSerial is returned by a Store when the serial unique index rejects an insert.
	ErrDuplicateSerial = errors.New("registry: duplicate serial")
)

// Field error codes reported inside a ValidationError.
const (
	CodeRequired                = "required"
	CodeInvalidType             = "invalid_type"
	CodeTooLong                 = "too_long"
	CodeUnknownField            = "unknown_field"
	CodeInvalidAddress          = "invalid_address"
	CodeDuplicateSerial         = "duplicate_serial"
	CodeInvalidStatus           = "invalid_status"
	CodeGatewayCapacityExceeded = "gateway_capacity_exceeded"
	CodeUnknownGateway          = "unknown_gateway"
)

// ValidationError collects every field rule violated by a payload.
// Fields maps a field name to the codes raised against it.
type ValidationError struct {
	Fields map[string][]string
}

// Add records a violation. Duplicate codes for a field are ignored.
func (e *ValidationError) Add(field, code string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	for _, c := range e.Fields[field] {
		if c == code {
			return
		}
	}
	e.Fields[field] = append(e.Fields[field], code)
}

// Merge copies all violations of other into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, codes := range other.Fields {
		for _, code := range codes {
			e.Add(field, code)
		}
	}
}

// Has reports whether code was raised against field.
func (e *ValidationError) Has(field, code string) bool {
	for _, c := range e.Fields[field] {
		if c == code {
			return true
		}
	}
	return false
}

// Empty reports whether no violation was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Err returns e as an error, or nil when nothing was recorded.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], ", ")))
	}
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrValidationFailed) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
