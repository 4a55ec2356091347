package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.StrictPolicy()

// SanitizeString removes potentially dangerous characters
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	if len(input) > 1000 {
		input = input[:1000]
	}

	return input
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeDetail cleans free-text status detail coming from the payment
// gateway before it is persisted: gateway payloads are external input.
func SanitizeDetail(input string) string {
	input = SanitizeHTML(SanitizeString(input))
	if len(input) > 255 {
		input = input[:255]
	}
	return input
}
