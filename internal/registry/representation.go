package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultBasePath is the path prefix under which gateway and peripheral
// resources are addressed.
const DefaultBasePath = "/api"

// Links computes the navigation hyperlinks embedded in representations.
type Links struct {
	base string
}

// NewLinks creates a link builder rooted at basePath.
// An empty basePath falls back to DefaultBasePath.
func NewLinks(basePath string) Links {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return Links{base: strings.TrimRight(basePath, "/")}
}

// GatewaysURL addresses the gateway collection.
func (l Links) GatewaysURL() string { return l.base + "/gateways" }

// GatewayURL addresses a single gateway.
func (l Links) GatewayURL(id int64) string {
	return l.GatewaysURL() + "/" + strconv.FormatInt(id, 10)
}

// PeripheralsURL addresses the peripheral collection.
func (l Links) PeripheralsURL() string { return l.base + "/peripherals" }

// PeripheralURL addresses a single peripheral.
func (l Links) PeripheralURL(id int64) string {
	return l.PeripheralsURL() + "/" + strconv.FormatInt(id, 10)
}

// GatewayIDFromURL resolves a gateway detail link back to its id.
func (l Links) GatewayIDFromURL(href string) (int64, bool) {
	rest, ok := strings.CutPrefix(href, l.GatewaysURL()+"/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// NavLinks holds the self and collection links of a record.
type NavLinks struct {
	Self       string `json:"self"`
	Collection string `json:"collection"`
}

// GatewayListItem is the restricted gateway rendering used in collections.
type GatewayListItem struct {
	Name        string   `json:"name"`
	Peripherals []string `json:"peripherals"`
	Links       NavLinks `json:"_links"`
}

// GatewayDetail is the full single-gateway rendering. The store id is
// only exposed through the self link.
type GatewayDetail struct {
	Serial      string   `json:"serial"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Peripherals []string `json:"peripherals"`
	Links       NavLinks `json:"_links"`
}

// PeripheralListItem is the restricted peripheral rendering used in collections.
type PeripheralListItem struct {
	Vendor  string   `json:"vendor"`
	Status  Status   `json:"status"`
	Gateway string   `json:"gateway"`
	Links   NavLinks `json:"_links"`
}

// PeripheralDetail is the full single-peripheral rendering.
// The gateway reference is rendered as a link, never as a raw id.
type PeripheralDetail struct {
	UUID    string   `json:"uuid"`
	Vendor  string   `json:"vendor"`
	Date    string   `json:"date"`
	Status  Status   `json:"status"`
	Gateway string   `json:"gateway"`
	Links   NavLinks `json:"_links"`
}

// GatewayListItem renders g for a collection response.
func (l Links) GatewayListItem(g Gateway, peripherals []Peripheral) GatewayListItem {
	return GatewayListItem{
		Name:        g.Name,
		Peripherals: l.peripheralURLs(peripherals),
		Links:       l.gatewayNav(g.ID),
	}
}

// GatewayDetail renders g for a single-record response.
func (l Links) GatewayDetail(g Gateway, peripherals []Peripheral) GatewayDetail {
	return GatewayDetail{
		Serial:      g.Serial,
		Name:        g.Name,
		Address:     g.Address,
		Peripherals: l.peripheralURLs(peripherals),
		Links:       l.gatewayNav(g.ID),
	}
}

// PeripheralListItem renders p for a collection response.
func (l Links) PeripheralListItem(p Peripheral) PeripheralListItem {
	return PeripheralListItem{
		Vendor:  p.Vendor,
		Status:  p.Status,
		Gateway: l.GatewayURL(p.GatewayID),
		Links:   l.peripheralNav(p.ID),
	}
}

// PeripheralDetail renders p for a single-record response.
func (l Links) PeripheralDetail(p Peripheral) PeripheralDetail {
	return PeripheralDetail{
		UUID:    p.UUID,
		Vendor:  p.Vendor,
		Date:    p.Date.UTC().Format(time.RFC3339),
		Status:  p.Status,
		Gateway: l.GatewayURL(p.GatewayID),
		Links:   l.peripheralNav(p.ID),
	}
}

func (l Links) gatewayNav(id int64) NavLinks {
	return NavLinks{Self: l.GatewayURL(id), Collection: l.GatewaysURL()}
}

func (l Links) peripheralNav(id int64) NavLinks {
	return NavLinks{Self: l.PeripheralURL(id), Collection: l.PeripheralsURL()}
}

// peripheralURLs always returns a non-nil slice so JSON renders [] not null.
func (l Links) peripheralURLs(peripherals []Peripheral) []string {
	urls := make([]string, 0, len(peripherals))
	for _, p := range peripherals {
		urls = append(urls, l.PeripheralURL(p.ID))
	}
	return urls
}

// serverSetFields are output-only fields silently dropped from input.
var serverSetFields = map[string]struct{}{
	"id":   {},
	"uuid": {},
	"date": {},
}

// ParseGatewayInput decodes a gateway payload. A body that is not a JSON
// object yields ErrMalformedPayload. Field-level problems (wrong types,
// unknown fields) are returned as a *ValidationError alongside the partial
// input so they can be merged with validation results.
func ParseGatewayInput(r io.Reader) (GatewayInput, *ValidationError, error) {
	var in GatewayInput
	fields, err := decodeObject(r)
	if err != nil {
		return in, nil, err
	}

	verr := &ValidationError{}
	for key, raw := range fields {
		switch key {
		case "serial":
			in.Serial = decodeString(verr, key, raw)
		case "name":
			in.Name = decodeString(verr, key, raw)
		case "address":
			in.Address = decodeString(verr, key, raw)
		default:
			rejectUnknown(verr, key)
		}
	}
	return in, verr, nil
}

// ParsePeripheralInput decodes a peripheral payload. See ParseGatewayInput.
func ParsePeripheralInput(r io.Reader) (PeripheralInput, *ValidationError, error) {
	var in PeripheralInput
	fields, err := decodeObject(r)
	if err != nil {
		return in, nil, err
	}

	verr := &ValidationError{}
	for key, raw := range fields {
		switch key {
		case "vendor":
			in.Vendor = decodeString(verr, key, raw)
		case "status":
			in.Status = decodeString(verr, key, raw)
		case "gateway_id":
			in.GatewayID = decodeInt(verr, key, raw)
		default:
			rejectUnknown(verr, key)
		}
	}
	return in, verr, nil
}

// decodeObject reads exactly one JSON object. Anything but whitespace
// after it makes the whole body malformed.
func decodeObject(r io.Reader) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(r)
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrMalformedPayload)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON object")
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return fields, nil
}

// decodeString returns nil for JSON null so the field counts as missing.
func decodeString(verr *ValidationError, field string, raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.Add(field, CodeInvalidType)
		return nil
	}
	return &s
}

func decodeInt(verr *ValidationError, field string, raw json.RawMessage) *int64 {
	if isNull(raw) {
		return nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		verr.Add(field, CodeInvalidType)
		return nil
	}
	return &n
}

func rejectUnknown(verr *ValidationError, field string) {
	if _, ok := serverSetFields[field]; ok {
		return
	}
	verr.Add(field, CodeUnknownField)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
