package billing

import (
	"encoding/json"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultTolerance is one unit of the smallest currency denomination.
const DefaultTolerance int64 = 1

// MaxAmount bounds every stored amount, including package totals.
const MaxAmount int64 = 100_000_000_000_000

var amountPrinter = message.NewPrinter(language.English)

// ParseAmount converts a loosely typed payload value into a non-negative amount
// in the smallest currency unit. Numbers and numeric strings are accepted;
// strings may contain thousands separators.
func ParseAmount(v any) (int64, error) {
	var n int64
	switch t := v.(type) {
	case nil:
		return 0, invalidArgument("amount is required")
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, invalidArgument("amount %d is out of range", t)
		}
		n = int64(t)
	case float64:
		parsed, err := floatAmount(t)
		if err != nil {
			return 0, err
		}
		n = parsed
	case json.Number:
		parsed, err := parseAmountString(t.String())
		if err != nil {
			return 0, err
		}
		n = parsed
	case string:
		parsed, err := parseAmountString(t)
		if err != nil {
			return 0, err
		}
		n = parsed
	default:
		return 0, invalidArgument("amount has unsupported type %T", v)
	}

	if n < 0 {
		return 0, invalidArgument("amount must not be negative")
	}
	if n > MaxAmount {
		return 0, invalidArgument("amount %s exceeds the maximum of %s", FormatAmount(n), FormatAmount(MaxAmount))
	}
	return n, nil
}

func parseAmountString(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "_", "")
	if cleaned == "" {
		return 0, invalidArgument("amount is required")
	}
	if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, invalidArgument("amount %q is not numeric", s)
	}
	return floatAmount(f)
}

func floatAmount(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidArgument("amount is not a finite number")
	}
	if f != math.Trunc(f) {
		return 0, invalidArgument("amount %v has a fractional part", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, invalidArgument("amount %v is out of range", f)
	}
	return int64(f), nil
}

// FormatAmount renders an amount with thousands separators.
func FormatAmount(amount int64) string {
	return amountPrinter.Sprintf("%d", amount)
}

// mulAmount multiplies a session count by a price. ok is false when the
// product does not fit in an int64.
func mulAmount(count int, price int64) (product int64, ok bool) {
	hi, lo := bits.Mul64(uint64(abs64(int64(count))), uint64(abs64(price)))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	product = int64(lo)
	if (count < 0) != (price < 0) {
		product = -product
	}
	return product, true
}

func withinTolerance(a, b, tolerance int64) bool {
	return abs64(a-b) <= tolerance
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
