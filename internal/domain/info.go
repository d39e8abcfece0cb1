package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Info is the flattened key/value view of a provider quote
// (quoteType, currency, freeCashflow, enterpriseToEbitda, ...).
type Info map[string]interface{}

// Float returns a numeric value, or nil when the key is absent, not numeric
// or not finite ("NaN", "Infinity")
func (i Info) Float(key string) *float64 {
	val, ok := i[key]
	if !ok || val == nil {
		return nil
	}

	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// String returns a string value, or "" when the key is absent
func (i Info) String(key string) string {
	if val, ok := i[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// Has reports whether the key is present with a non-nil value
func (i Info) Has(key string) bool {
	val, ok := i[key]
	return ok && val != nil
}
