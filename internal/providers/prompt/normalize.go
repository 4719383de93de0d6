// Package prompt cleans up user prompts before submission to the generation
// API.
package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize collapses whitespace and trims a prompt. Empty prompts stay
// empty; callers decide whether that is an error.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// TitleFor renders a short display title for a layer from its prompt,
// truncated on a word boundary and title-cased for the given locale tag.
func TitleFor(rawPrompt, locale string) string {
	normalized := Normalize(rawPrompt)
	if normalized == "" {
		return ""
	}

	words := strings.Fields(normalized)
	if len(words) > 6 {
		words = words[:6]
	}

	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return cases.Title(tag).String(strings.Join(words, " "))
}
