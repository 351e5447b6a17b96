package pool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Parse converts a raw response body into the canonical Stats record for the
// source's configured shape. Parsers are pure: unknown fields are ignored,
// a missing required field is a MalformedResponseError, and numbers are
// accepted both as JSON numbers and as strings since providers flip between
// the two without notice.
func Parse(src Source, raw []byte) (Stats, error) {
	obj, err := decodeObject(src.Name, raw)
	if err != nil {
		return Stats{}, err
	}

	switch src.Shape {
	case ShapeFlat:
		return parseFlat(src, obj, raw)
	case ShapeNested:
		return parseNested(src, obj, raw)
	case ShapeBTC:
		return parseBTC(src, obj, raw)
	default:
		return Stats{}, fmt.Errorf("source %s: unknown shape %q", src.Name, src.Shape)
	}
}

// parseFlat handles {"paid": ..., "balance": ..., "total_hash": ..., ...}.
func parseFlat(src Source, obj map[string]any, raw []byte) (Stats, error) {
	paid, ok := field(obj, "paid")
	if !ok {
		return Stats{}, &MalformedResponseError{Source: src.Name, Reason: `missing "paid"`, Raw: raw}
	}
	return Stats{
		CumulativePaid: convert(paid, src),
		Balance:        optionalField(obj, src, "balance"),
		Aux:            auxFields(obj, "paid", "balance"),
		FetchedAt:      time.Now(),
	}, nil
}

// parseNested handles {"stats": {"paid": ..., "balance": ...}}.
func parseNested(src Source, obj map[string]any, raw []byte) (Stats, error) {
	inner, ok := obj["stats"].(map[string]any)
	if !ok {
		return Stats{}, &MalformedResponseError{Source: src.Name, Reason: `missing "stats" object`, Raw: raw}
	}
	paid, ok := field(inner, "paid")
	if !ok {
		return Stats{}, &MalformedResponseError{Source: src.Name, Reason: `missing "stats.paid"`, Raw: raw}
	}
	return Stats{
		CumulativePaid: convert(paid, src),
		Balance:        optionalField(inner, src, "balance"),
		Aux:            auxFields(inner, "paid", "balance"),
		FetchedAt:      time.Now(),
	}, nil
}

// parseBTC handles {"paid": ..., "balance": ..., "unpaid": ...} where every
// amount is denominated in BTC and converted via the source's factor.
func parseBTC(src Source, obj map[string]any, raw []byte) (Stats, error) {
	paid, ok := field(obj, "paid")
	if !ok {
		return Stats{}, &MalformedResponseError{Source: src.Name, Reason: `missing "paid"`, Raw: raw}
	}
	aux := auxFields(obj, "paid", "balance")
	if unpaid, ok := field(obj, "unpaid"); ok {
		aux["unpaid"] = convert(unpaid, src).String()
	}
	return Stats{
		CumulativePaid: convert(paid, src),
		Balance:        optionalField(obj, src, "balance"),
		Aux:            aux,
		FetchedAt:      time.Now(),
	}, nil
}

func convert(v decimal.Decimal, src Source) decimal.Decimal {
	if src.ConversionFactor.IsZero() || src.ConversionFactor.Equal(decimal.New(1, 0)) {
		return v
	}
	return v.Mul(src.ConversionFactor)
}

func decodeObject(source string, raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &MalformedResponseError{Source: source, Reason: "not a JSON object", Raw: raw}
	}
	return obj, nil
}

// field extracts a decimal value that may arrive as a JSON number or a string.
func field(obj map[string]any, key string) (decimal.Decimal, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return decimal.Decimal{}, false
	}
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

func optionalField(obj map[string]any, src Source, key string) decimal.NullDecimal {
	if v, ok := field(obj, key); ok {
		return decimal.NullDecimal{Decimal: convert(v, src), Valid: true}
	}
	return decimal.NullDecimal{}
}

// auxFields copies the remaining scalar fields for diagnostic display.
func auxFields(obj map[string]any, skip ...string) map[string]any {
	skipped := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipped[k] = true
	}
	aux := make(map[string]any)
	for k, v := range obj {
		if skipped[k] {
			continue
		}
		switch t := v.(type) {
		case json.Number:
			aux[k] = t.String()
		case string, bool:
			aux[k] = t
		}
	}
	return aux
}
