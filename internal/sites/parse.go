package sites

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// maxPrice is the largest price a price_observations row can hold.
const maxPrice = math.MaxInt32

// ParsePrice turns the text of a site's price element into an integer
// price. Each shop formats prices differently, so the rule is per site.
func ParsePrice(s Site, text string) (int, error) {
	switch s {
	case Alta:
		return parseGrouped(text)
	case Zoommer:
		return parseDigits(text)
	case GamingLaptops:
		return parseFirstToken(text)
	case EE, Veli:
		return parseDecimal(text)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, s.String())
	}
}

// parseGrouped handles "1 299" and "1,299": whitespace and thousands
// separators are dropped, anything else must be a plain integer.
func parseGrouped(text string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ',' {
			return -1
		}
		return r
	}, text)

	return atoi(cleaned, text)
}

// parseDigits keeps only ASCII digits, so "₾1,234 GEL" reads as 1234.
func parseDigits(text string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)

	return atoi(cleaned, text)
}

// parseFirstToken reads "1,234 GEL" by taking the first field only.
func parseFirstToken(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty price text", ErrParse)
	}

	return atoi(strings.ReplaceAll(fields[0], ",", ""), text)
}

// parseDecimal keeps digits and the decimal point and truncates the
// fractional part: "1234.99 GEL" reads as 1234.
func parseDecimal(text string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrParse, text)
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrParse, text, err)
	}
	if f > maxPrice {
		return 0, fmt.Errorf("%w: %q out of range", ErrParse, text)
	}

	return int(math.Trunc(f)), nil
}

func atoi(cleaned, original string) (int, error) {
	if cleaned == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrParse, original)
	}

	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrParse, original, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative price %q", ErrParse, original)
	}
	if n > maxPrice {
		return 0, fmt.Errorf("%w: %q out of range", ErrParse, original)
	}

	return n, nil
}
