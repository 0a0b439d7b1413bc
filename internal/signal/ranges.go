package signal

import (
	"iter"
	"math"
	"regexp"

	"github.com/shopspring/decimal"
)

// RangeEpsilon is subtracted from every range's upper bound so a value sitting exactly on a
// breakpoint matches one range only.
var RangeEpsilon = decimal.New(1, -5)

var rangePayloadPattern = regexp.MustCompile(`^(\d+(\.\d+)?)?,(\d+(\.\d+)?)?$`)

// ValidRangePayload reports whether value is a "min,max" activation payload with at least one side set.
func ValidRangePayload(value string) bool {
	return value != "," && rangePayloadPattern.MatchString(value)
}

// Round rounds value to the nearest multiple of base. Bases below 1 are applied through their
// inverse, since 1234 * 0.0001 loses precision where 1234 / 10000 does not.
func Round(value, base float64) float64 {
	if base == 0 {
		base = 1
	}
	if math.Abs(base) >= 1 {
		return math.Round(value/base) * base
	}
	counterBase := 1 / base
	return math.Round(value*counterBase) / counterBase
}

// Series describes exponentially growing breakpoints: Min * Multiplier^i rounded to RoundBase,
// up to and including Max.
type Series struct {
	Min        float64
	Max        float64
	Multiplier float64
	RoundBase  float64
}

// All yields the breakpoints in increasing order, skipping values that collapse onto the previous
// one after rounding.
func (s Series) All() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		if s.Min <= 0 || s.Multiplier <= 1 || math.IsNaN(s.Max) {
			return
		}
		var previous float64
		started := false
		for i := 0; ; i++ {
			value := Round(s.Min*math.Pow(s.Multiplier, float64(i)), s.RoundBase)
			if value > s.Max {
				return
			}
			if started && value == previous {
				continue
			}
			previous, started = value, true
			if !yield(value) {
				return
			}
		}
	}
}

// Range is a half-open interval [Min, Max). An invalid side is unbounded.
type Range struct {
	Min decimal.NullDecimal
	Max decimal.NullDecimal
}

// Payload is the activation value of the range: "min,max" with an empty side when unbounded.
func (r Range) Payload() string {
	var lower, upper string
	if r.Min.Valid {
		lower = r.Min.Decimal.String()
	}
	if r.Max.Valid {
		upper = r.Max.Decimal.String()
	}
	return lower + "," + upper
}

// UpperBound is the inclusive bound used in max- media queries.
func (r Range) UpperBound() decimal.Decimal {
	return r.Max.Decimal.Sub(RangeEpsilon)
}

// Ranges partitions the number line at the breakpoints: N breakpoints give N+1 ranges, the first
// and last unbounded on one side. No breakpoints give no ranges.
func (s Series) Ranges() []Range {
	var ranges []Range
	previous := decimal.NullDecimal{}
	for breakpoint := range s.All() {
		current := decimal.NewNullDecimal(decimal.NewFromFloat(breakpoint))
		ranges = append(ranges, Range{Min: previous, Max: current})
		previous = current
	}
	if previous.Valid {
		ranges = append(ranges, Range{Min: previous})
	}
	return ranges
}
