package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation constants. Lengths follow the column widths of the schema.
const (
	maxSerialLength  = 100
	maxNameLength    = 100
	maxAddressLength = 15
	maxVendorLength  = 50

	ipv4Pattern = `^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`
)

var ipv4Regex = regexp.MustCompile(ipv4Pattern)

// validStatuses is built once for O(1) lookups.
var validStatuses map[Status]struct{}

func init() {
	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateGateway checks a candidate gateway against format, uniqueness
// and required-field rules. Every rule is evaluated; the returned error is
// nil or a *ValidationError listing all violations. Store failures are
// returned unchanged and take precedence over field errors.
func ValidateGateway(ctx context.Context, lookup Lookup, in GatewayInput) error {
	verr := &ValidationError{}

	checkRequired(verr, "name", in.Name, maxNameLength)

	if checkRequired(verr, "address", in.Address, maxAddressLength) && !IsIPv4(*in.Address) {
		verr.Add("address", CodeInvalidAddress)
	}

	if checkRequired(verr, "serial", in.Serial, maxSerialLength) {
		_, err := lookup.GatewayBySerial(ctx, *in.Serial)
		switch {
		case err == nil:
			verr.Add("serial", CodeDuplicateSerial)
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("checking serial uniqueness: %w", err)
		}
	}

	return verr.Err()
}

// ValidatePeripheral checks a candidate peripheral against the status
// enumeration, the gateway reference and the per-gateway capacity limit.
// Every rule is evaluated; see ValidateGateway for the error contract.
func ValidatePeripheral(ctx context.Context, lookup Lookup, in PeripheralInput) error {
	verr := &ValidationError{}

	checkRequired(verr, "vendor", in.Vendor, maxVendorLength)

	if checkRequired(verr, "status", in.Status, 0) {
		if err := ValidateStatus(Status(*in.Status)); err != nil {
			verr.Add("status", CodeInvalidStatus)
		}
	}

	if in.GatewayID == nil {
		verr.Add("gateway_id", CodeRequired)
		return verr.Err()
	}

	if _, err := lookup.GetGateway(ctx, *in.GatewayID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("checking gateway reference: %w", err)
		}
		verr.Add("gateway_id", CodeUnknownGateway)
	}

	count, err := lookup.CountPeripheralsByGateway(ctx, *in.GatewayID)
	if err != nil {
		return fmt.Errorf("counting gateway peripherals: %w", err)
	}
	if count >= CapacityLimit {
		verr.Add("gateway_id", CodeGatewayCapacityExceeded)
	}

	return verr.Err()
}

// ValidateStatus checks if a peripheral status is one of the allowed values.
func ValidateStatus(status Status) error {
	if _, ok := validStatuses[status]; ok {
		return nil
	}
	return fmt.Errorf("%w: status %q", ErrValidationFailed, status)
}

// IsIPv4 reports whether s is a dotted-quad IPv4 address.
func IsIPv4(s string) bool {
	return ipv4Regex.MatchString(s)
}

// checkRequired records "required" or "too_long" against field and reports
// whether the value is present and usable for further checks.
// A maxLen of zero disables the length check.
func checkRequired(verr *ValidationError, field string, v *string, maxLen int) bool {
	if v == nil || strings.TrimSpace(*v) == "" {
		verr.Add(field, CodeRequired)
		return false
	}
	if maxLen > 0 && len(*v) > maxLen {
		verr.Add(field, CodeTooLong)
		return false
	}
	return true
}
