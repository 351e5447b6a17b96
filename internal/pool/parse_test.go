package pool

import (
	"testing"

	"github.com/shopspring/decimal"
)

func flatSource() Source {
	return Source{
		Name:             "cpu-pool",
		Shape:            ShapeFlat,
		ConversionFactor: decimal.New(1, 0),
	}
}

func nestedSource() Source {
	return Source{
		Name:             "rplant",
		Shape:            ShapeNested,
		ConversionFactor: decimal.New(1, 0),
	}
}

func btcSource() Source {
	return Source{
		Name:             "zpool",
		Shape:            ShapeBTC,
		ConversionFactor: decimal.New(1000000, 0),
	}
}

func TestParseFlat(t *testing.T) {
	raw := []byte(`{"paid": 12.5, "balance": 0.75, "total_hash": 1500000, "workers": 3}`)

	stats, err := Parse(flatSource(), raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("CumulativePaid = %s, want 12.5", stats.CumulativePaid)
	}
	if !stats.Balance.Valid || !stats.Balance.Decimal.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("Balance = %v, want 0.75", stats.Balance)
	}
	if stats.Aux["total_hash"] != "1500000" {
		t.Errorf("Aux[total_hash] = %v, want 1500000", stats.Aux["total_hash"])
	}
}

func TestParseFlatStringNumbers(t *testing.T) {
	raw := []byte(`{"paid": "101.0001", "balance": "0.2"}`)

	stats, err := Parse(flatSource(), raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.RequireFromString("101.0001")) {
		t.Errorf("CumulativePaid = %s, want 101.0001", stats.CumulativePaid)
	}
}

func TestParseFlatMissingPaid(t *testing.T) {
	raw := []byte(`{"balance": 0.75, "total_hash": 1500000}`)

	_, err := Parse(flatSource(), raw)
	if !IsMalformed(err) {
		t.Fatalf("err = %v, want MalformedResponseError", err)
	}
}

func TestParseFlatUnknownFieldsIgnored(t *testing.T) {
	raw := []byte(`{"paid": 1, "brand_new_field": {"deep": true}, "note": "hi"}`)

	stats, err := Parse(flatSource(), raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.New(1, 0)) {
		t.Errorf("CumulativePaid = %s, want 1", stats.CumulativePaid)
	}
}

func TestParseNested(t *testing.T) {
	raw := []byte(`{"stats": {"paid": 40.25, "balance": 1.1, "hashrate": 250000}, "currency": "advc"}`)

	stats, err := Parse(nestedSource(), raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.RequireFromString("40.25")) {
		t.Errorf("CumulativePaid = %s, want 40.25", stats.CumulativePaid)
	}
	if stats.Aux["hashrate"] != "250000" {
		t.Errorf("Aux[hashrate] = %v, want 250000", stats.Aux["hashrate"])
	}
}

func TestParseNestedMissingStats(t *testing.T) {
	raw := []byte(`{"paid": 40.25}`)

	_, err := Parse(nestedSource(), raw)
	if !IsMalformed(err) {
		t.Fatalf("err = %v, want MalformedResponseError", err)
	}
}

func TestParseNestedMissingPaid(t *testing.T) {
	raw := []byte(`{"stats": {"balance": 1.1}}`)

	_, err := Parse(nestedSource(), raw)
	if !IsMalformed(err) {
		t.Fatalf("err = %v, want MalformedResponseError", err)
	}
}

func TestParseBTCConversion(t *testing.T) {
	raw := []byte(`{"paid": 0.00001500, "balance": 0.00000200, "unpaid": 0.00000300}`)

	stats, err := Parse(btcSource(), raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.New(15, 0)) {
		t.Errorf("CumulativePaid = %s, want 15", stats.CumulativePaid)
	}
	if !stats.Balance.Decimal.Equal(decimal.New(2, 0)) {
		t.Errorf("Balance = %s, want 2", stats.Balance.Decimal)
	}
	if stats.Aux["unpaid"] != "3" {
		t.Errorf("Aux[unpaid] = %v, want 3", stats.Aux["unpaid"])
	}
}

func TestParseBTCExactDecimal(t *testing.T) {
	// 0.1 BTC through a float64 would drift; decimal must not.
	raw := []byte(`{"paid": 0.1}`)

	stats, err := Parse(btcSource(), raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.New(100000, 0)) {
		t.Errorf("CumulativePaid = %s, want 100000", stats.CumulativePaid)
	}
}

func TestParseNotAnObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"nope"`, `<!doctype html>`, ``} {
		if _, err := Parse(flatSource(), []byte(raw)); !IsMalformed(err) {
			t.Errorf("Parse(%q) err = %v, want MalformedResponseError", raw, err)
		}
	}
}

func TestParseUnknownShape(t *testing.T) {
	src := Source{Name: "weird", Shape: Shape("csv")}
	if _, err := Parse(src, []byte(`{"paid": 1}`)); err == nil {
		t.Error("expected error for unknown shape, got nil")
	}
}
