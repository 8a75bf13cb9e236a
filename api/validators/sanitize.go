package validators

import (
	"strings"
	"unicode"
)

// TextField is a free-text input together with its cap in characters.
type TextField struct {
	Name     string
	MaxRunes int
}

var (
	// SearchText is the seller board's order search box.
	SearchText = TextField{Name: "search", MaxRunes: 120}
	// EnumText covers status and sort filters; anything longer is no known value.
	EnumText = TextField{Name: "enum", MaxRunes: 32}
	DateText = TextField{Name: "date", MaxRunes: 32}
	// ReasonText is the note attached to a reject, cancel or refund.
	ReasonText = TextField{Name: "reason", MaxRunes: 500}
	// IDText bounds product and order ids taken from the path.
	IDText = TextField{Name: "id", MaxRunes: 128}
)

// Clean trims the input, turns control characters into spaces and cuts it to the
// field's cap without splitting a character.
func (f TextField) Clean(input string) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input))
	if f.MaxRunes <= 0 {
		return cleaned
	}
	count := 0
	for i := range cleaned {
		if count == f.MaxRunes {
			return strings.TrimSpace(cleaned[:i])
		}
		count++
	}
	return cleaned
}
