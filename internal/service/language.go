package service

import (
	"strings"
	"unicode"
)

type Language string

const (
	LanguageEnglish Language = "english"
	LanguageHindi   Language = "hindi"
)

// Romanized Hindi words common enough in chat to signal a Hinglish speaker.
var hindiIndicators = map[string]struct{}{
	"namaste": {}, "namaskar": {}, "kya": {}, "hai": {}, "nahi": {}, "nahin": {},
	"kaise": {}, "aap": {}, "mujhe": {}, "chahiye": {}, "haan": {}, "theek": {},
	"karna": {}, "kripya": {}, "dhanyavad": {}, "dhanyawad": {}, "batao": {}, "kitna": {},
}

// DetectLanguage is a token heuristic, not a classifier: any Devanagari rune or indicator
// word selects Hindi, everything else stays English.
func DetectLanguage(text string) Language {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return LanguageHindi
		}
	}
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if _, ok := hindiIndicators[token]; ok {
			return LanguageHindi
		}
	}
	return LanguageEnglish
}
