package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonPriceChars = regexp.MustCompile(`[^\d.,]`)
	percentRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	decimalRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	reviewRe      = regexp.MustCompile(`\(?(\d+(?:[.,]\d+)?)\)?`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// parsePrice normalizes a displayed price like "$1,234.56" or "1.234,56" to a
// float. Returns nil when the text carries no parseable amount.
func parsePrice(text string) *float64 {
	cleaned := nonPriceChars.ReplaceAllString(strings.TrimSpace(text), "")
	if cleaned == "" {
		return nil
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			// European format: 1.234,56
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			// American format: 1,234.56
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseDiscount extracts the percentage from text like "25% OFF".
func parseDiscount(text string) string {
	m := percentRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + "%"
}

// parseRating extracts a 0-5 rating from text like "4.6" or "4,6".
func parseRating(text string) *float64 {
	m := decimalRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseReviewCount extracts the review count from text like "(123)".
func parseReviewCount(text string) *int {
	m := reviewRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	n := int(v)
	return &n
}

// cleanText collapses runs of whitespace and strips control characters.
func cleanText(text string) string {
	cleaned := whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return -1
		}
		return r
	}, cleaned)
}
