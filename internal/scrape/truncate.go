package scrape

// DefaultMaxContentLen is the character budget applied to article text
// before it is sent to translation or classification.
const DefaultMaxContentLen = 2000

// Truncate cuts text to a language-aware character budget. Chinese and
// Russian carry more information per character than English, so they get a
// smaller budget to keep token usage comparable. Counts runes, not bytes.
func Truncate(text, language string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLen
	}
	switch language {
	case "zh":
		maxLen = int(float64(maxLen) * 0.4)
	case "ru":
		maxLen = int(float64(maxLen) * 0.7)
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
