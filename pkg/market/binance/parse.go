package market

import "strconv"

// toFloat coerces a decoded JSON numeric field (Binance sends prices and
// quantities as strings in some streams, floats in others) to float64.
func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

// toInt64 coerces a decoded JSON timestamp field to int64.
func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}
