package textutil

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var headlineCaser = cases.Title(language.AmericanEnglish)

// Headline converts a keyword or phrase into title case for use as an article
// headline fallback.
func Headline(text string) string {
	return headlineCaser.String(text)
}
