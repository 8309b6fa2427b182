// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Billing forms arrive form-encoded from htmx; scripted clients may post the
// same fields as JSON.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tagihanair/internal/core"
)

// maxBodyBytes bounds every form or JSON body.
const maxBodyBytes = 64 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser reads a write request's fields from either a form-encoded
// or a JSON object body.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once; Parse decodes it.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.body, p.err = nil, errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		// Numbers stay text so amounts never pass through float64.
		dec := json.NewDecoder(bytes.NewReader(p.body))
		dec.UseNumber()
		var data map[string]any
		if err := dec.Decode(&data); err != nil {
			p.err = err
			return err
		}
		p.jsonData = data
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed field value with control characters removed.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// Amount parses a required rupiah amount or meter reading. Failures come
// back as *core.ValidationError naming the field.
func (p *RequestBodyParser) Amount(key string) (decimal.Decimal, error) {
	raw := p.Get(key)
	if raw == "" {
		return decimal.Zero, &core.ValidationError{Field: key, Err: core.ErrMissingField}
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: key, Err: err}
	}
	return d, nil
}

// OptionalAmount is Amount with an empty value read as zero.
func (p *RequestBodyParser) OptionalAmount(key string) (decimal.Decimal, error) {
	if p.Get(key) == "" {
		return decimal.Zero, nil
	}
	return p.Amount(key)
}

// IsJSON reports whether the body was decoded as JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue renders a decoded JSON scalar; objects and arrays read as empty.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseCustomerCode reads the code query parameter in canonical form.
func ParseCustomerCode(query url.Values) string {
	return core.NormalizeCode(sanitizeInput(query.Get("code")))
}

// RequireMethod returns a 405 response unless the request uses one of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST guards the write endpoints.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET accepts GET and HEAD.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// ParseBodyOrFail returns a 400 (or 413 for oversized bodies) response when
// the body cannot be decoded, nil otherwise.
func ParseBodyOrFail(p *RequestBodyParser) *HTMXResponseBuilder {
	err := p.Parse()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errBodyTooLarge):
		return ErrorResponse(http.StatusRequestEntityTooLarge, "Data yang dikirim terlalu besar.")
	default:
		return BadRequestError("Format permintaan tidak valid.")
	}
}

// fieldOf returns the field named by a validation error, if any.
func fieldOf(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Field
	}
	return ""
}
