package pool

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shape selects the parser for a pool's response body.
type Shape string

const (
	// ShapeFlat is a flat object: {"paid": ..., "balance": ..., "total_hash": ...}.
	ShapeFlat Shape = "flat"
	// ShapeNested wraps the payout fields: {"stats": {"paid": ..., "balance": ...}}.
	ShapeNested Shape = "nested"
	// ShapeBTC is flat but denominated in BTC: {"paid": ..., "balance": ..., "unpaid": ...}.
	// Values are multiplied by the source's conversion factor.
	ShapeBTC Shape = "btc"
)

// Source describes one external mining pool. Sources are read-only
// configuration loaded at startup; edits take effect on the next cycle.
type Source struct {
	Name             string
	EndpointTemplate string // %s is replaced with the wallet address
	Enabled          bool
	Shape            Shape
	ConversionFactor decimal.Decimal // multiplier into ADVC, 1 for native sources
}

// Stats is the canonical record every adapter produces, already converted
// to the internal unit.
type Stats struct {
	CumulativePaid decimal.Decimal
	Balance        decimal.NullDecimal
	Aux            map[string]any // provider extras, diagnostic display only
	FetchedAt      time.Time
}
