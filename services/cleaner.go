package services

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// numericRunRegexp captures the first run that starts with a digit and may
// continue with digits, spaces (including non-breaking ones) and separators.
var numericRunRegexp = regexp.MustCompile(`\d[\d\s\x{00A0}\x{202F}.,]*`)

// CleanPrice turns a raw price value into a float64. Numbers pass through;
// text such as "8 000 DH" or "1 200,50 €" has its first numeric run
// extracted, spaces and thousands separators removed and a decimal comma
// read as a point. Anything unparseable yields 0.
func CleanPrice(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		return parseNumericText(string(n))
	case string:
		return parseNumericText(n)
	case []byte:
		return parseNumericText(string(n))
	default:
		return 0
	}
}

// CleanInt is CleanPrice truncated to an integer ("3 ch" → 3). Values that
// do not fit an int yield 0.
func CleanInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0
		}
		return int(n)
	}

	f := CleanPrice(v)
	if f >= math.MaxInt || f <= math.MinInt {
		return 0
	}
	return int(f)
}

func parseNumericText(s string) float64 {
	run := numericRunRegexp.FindString(s)
	if run == "" {
		return 0
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, run)
	digits = strings.TrimRight(digits, ".,")
	digits = normaliseSeparators(digits)

	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

// normaliseSeparators resolves "." and "," into a single decimal point.
// With both present the last one is the decimal separator; a lone comma is
// a decimal comma; a repeated separator is a thousands separator.
func normaliseSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
