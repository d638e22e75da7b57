package normalizer

import (
	"regexp"
	"strings"
)

// MessageNormalizer replaces dynamic parts of log messages with placeholders
// so that messages produced by the same code path share one pattern
type MessageNormalizer struct {
	uuidPattern      *regexp.Regexp
	timestampPattern *regexp.Regexp
	ipPattern        *regexp.Regexp
	hexPattern       *regexp.Regexp
	numberPattern    *regexp.Regexp
	stringPattern    *regexp.Regexp
	spacePattern     *regexp.Regexp
}

// NewMessageNormalizer creates a normalizer with compiled patterns
func NewMessageNormalizer() *MessageNormalizer {
	return &MessageNormalizer{
		// Request IDs and trace IDs in Lambda/ECS logs
		uuidPattern: regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`),

		// 2024-01-15T10:30:45.123Z, 2024-01-15 10:30:45
		timestampPattern: regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),

		ipPattern: regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b`),

		// 0x7f3a..., long hex digests
		hexPattern: regexp.MustCompile(`(?i)\b(?:0x[0-9a-f]+|[0-9a-f]{16,})\b`),

		numberPattern: regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),

		stringPattern: regexp.MustCompile(`"[^"]*"`),

		spacePattern: regexp.MustCompile(`\s+`),
	}
}

// Normalize returns the pattern of msg. Returns empty string if input is empty.
// Pattern order matters: specific patterns run before numbers.
func (n *MessageNormalizer) Normalize(msg string) string {
	if msg == "" {
		return ""
	}

	normalized := n.uuidPattern.ReplaceAllString(msg, "<UUID>")
	normalized = n.timestampPattern.ReplaceAllString(normalized, "<TIMESTAMP>")
	normalized = n.ipPattern.ReplaceAllString(normalized, "<IP>")
	normalized = n.hexPattern.ReplaceAllString(normalized, "<HEX>")
	normalized = n.numberPattern.ReplaceAllString(normalized, "<NUMBER>")

	// Strings in quotes last, as they may contain other patterns
	normalized = n.stringPattern.ReplaceAllString(normalized, "<STRING>")

	normalized = n.spacePattern.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}
