package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var currencyNoiseRe = regexp.MustCompile(`[€$£¥\s]`)

// ParseAmount parses a currency amount string. Currency symbols and
// whitespace are stripped; both decimal conventions are handled:
// "1,234.56" and "1.234,56" parse to the same value.
func ParseAmount(s string) (float64, error) {
	cleaned := currencyNoiseRe.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}

	hasComma := strings.Contains(cleaned, ",")
	hasPeriod := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasPeriod:
		// The later separator is the decimal one.
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		// A lone comma is decimal only when exactly two digits follow.
		idx := strings.LastIndex(cleaned, ",")
		if len(cleaned)-idx-1 == 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

var fractionRe = regexp.MustCompile(`^(\d+)\s+(\d+)/(\d+)$|^(\d+)/(\d+)$`)

// ParseQuantity parses a quantity string. Plain decimals, thousands
// commas and simple fractions ("1/2", "1 1/2") are accepted.
func ParseQuantity(s string) (float64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	if m := fractionRe.FindStringSubmatch(cleaned); m != nil {
		if m[1] != "" {
			whole, _ := strconv.ParseFloat(m[1], 64)
			num, _ := strconv.ParseFloat(m[2], 64)
			den, err := strconv.ParseFloat(m[3], 64)
			if err != nil || den == 0 {
				return 0, fmt.Errorf("parse quantity %q: zero denominator", s)
			}
			return whole + num/den, nil
		}
		num, _ := strconv.ParseFloat(m[4], 64)
		den, err := strconv.ParseFloat(m[5], 64)
		if err != nil || den == 0 {
			return 0, fmt.Errorf("parse quantity %q: zero denominator", s)
		}
		return num / den, nil
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return v, nil
}
