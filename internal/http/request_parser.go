// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// the owner header, period path parameters, JSON bodies and amounts.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budgetly/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OwnerHeader carries the acting owner. Authentication is out of scope; the
// header is trusted as given.
const OwnerHeader = "X-Owner-ID"

const maxBodyBytes = 1 << 20

var (
	errMissingOwner = errors.New("missing " + OwnerHeader + " header")
	errInvalidOwner = errors.New("invalid " + OwnerHeader + " header")
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters. A missing
// parameter takes its value from def; a present one must be an integer.
// Range checks are left to the service.
func ParseMonthParams(query url.Values, def core.Period) (MonthParams, error) {
	params := MonthParams{Year: def.Year, Month: def.Month}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("invalid year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("invalid month %q", v)
		}
		params.Month = m
	}
	return params, nil
}

// PathMonthParams reads {year} and {month} from the route. Range checks are
// left to the service so they surface as invalid-period errors.
func PathMonthParams(r *http.Request) (MonthParams, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return MonthParams{}, fmt.Errorf("invalid year %q", chi.URLParam(r, "year"))
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return MonthParams{}, fmt.Errorf("invalid month %q", chi.URLParam(r, "month"))
	}
	return MonthParams{Year: year, Month: month}, nil
}

// PathID parses a positive integer route parameter.
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// OwnerID reads the acting owner from OwnerHeader.
func OwnerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if raw == "" {
		return 0, errMissingOwner
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidOwner
	}
	return id, nil
}

// DecodeJSON decodes a size-limited body into v, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: trailing data")
	}
	return nil
}

// Amount accepts a JSON string ("12,50") or number (12.5) and parses it
// with core.ParseAmount when Decimal is called.
type Amount struct {
	raw string
	set bool
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	a.set = true
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.raw)
	}
	if string(data) == "null" {
		a.set = false
		return nil
	}
	a.raw = string(data)
	return nil
}

// Decimal returns the parsed amount. A missing amount is ErrInvalidAmount.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if !a.set {
		return decimal.Zero, core.ErrInvalidAmount
	}
	return core.ParseAmount(sanitizeInput(a.raw))
}

// parseOccurredAt accepts RFC 3339 timestamps and plain YYYY-MM-DD dates,
// the latter meaning midnight UTC.
func parseOccurredAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.ErrMissingOccurredAt
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid occurred_at %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
