// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies may be JSON or form-encoded; both end up as the same service command.

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"scadenzario/internal/core"
	"scadenzario/internal/services"
)

const maxBodyBytes = 1 << 20

// RequestBodyParser reads a request body once and exposes its fields
// regardless of whether it was JSON or form-encoded.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON or form data. JSON numbers are kept as
// json.Number so amounts never pass through float64.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Get returns a sanitized string value.
func (p *RequestBodyParser) Get(key string) string {
	return sanitizeInput(stringValue(p.Value(key)))
}

// Value returns the raw value of key: a string, json.Number, bool or nil.
func (p *RequestBodyParser) Value(key string) any {
	if p.jsonData != nil {
		return p.jsonData[key]
	}
	if p.formData != nil {
		if _, ok := p.formData[key]; ok {
			return strings.TrimSpace(p.formData.Get(key))
		}
	}
	return nil
}

// Bool interprets JSON booleans and the usual form spellings ("on", "true", "1").
func (p *RequestBodyParser) Bool(key string) bool {
	switch v := p.Value(key).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b || strings.EqualFold(v, "on")
	default:
		return false
	}
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

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

// ParseCreateSeries reads a creation command from the request body.
func ParseCreateSeries(w http.ResponseWriter, r *http.Request) (services.CreateSeriesCommand, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return services.CreateSeriesCommand{}, err
	}
	return services.CreateSeriesCommand{
		Description:     p.Get("description"),
		Type:            p.Get("type"),
		Amount:          p.Value("amount"),
		Date:            p.Get("date"),
		CategoryID:      p.Value("categoryId"),
		PaymentMethodID: p.Value("paymentMethodId"),
		RepeatCount:     p.Value("repeatCount"),
		DistributeTotal: p.Bool("distributeTotal"),
	}, nil
}

// ParseUpdateInstallment reads an update command from the request body.
func ParseUpdateInstallment(w http.ResponseWriter, r *http.Request) (services.UpdateInstallmentCommand, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return services.UpdateInstallmentCommand{}, err
	}
	return services.UpdateInstallmentCommand{
		Description:     p.Get("description"),
		Type:            p.Get("type"),
		Status:          p.Get("status"),
		Amount:          p.Value("amount"),
		Date:            p.Get("date"),
		CategoryID:      p.Value("categoryId"),
		PaymentMethodID: p.Value("paymentMethodId"),
	}, nil
}

// ParseListFilter builds a listing filter from query parameters. Paging
// values that are not numbers fall back to the defaults.
func ParseListFilter(query url.Values) (core.ListFilter, error) {
	f := core.ListFilter{
		Description: sanitizeInput(query.Get("description")),
		SeriesID:    strings.TrimSpace(query.Get("seriesId")),
	}
	if v := strings.TrimSpace(query.Get("type")); v != "" {
		t, err := core.ParseTransactionType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if v := strings.TrimSpace(query.Get("status")); v != "" {
		s, err := core.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.From = d
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.To = d
	}
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("page"))); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("limit"))); err == nil {
		f.Limit = v
	}
	return f.Normalize()
}

// pathID reads a positive numeric path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", core.ErrInvalidRequest, name)
	}
	return id, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
