package ocr

import (
	"fmt"
	"strings"
)

// DefaultLanguage is used when a request names no language.
const DefaultLanguage = "vi"

// Languages lists the codes offered by the form, in display order.
var Languages = []string{"en", "uk", "vi"}

var tesseractCodes = map[string]string{
	"en": "eng",
	"uk": "ukr",
	"vi": "vie",
}

// UnsupportedLanguageError is returned for a language code outside Languages.
type UnsupportedLanguageError struct {
	Lang string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q (supported: %s)", e.Lang, strings.Join(Languages, ", "))
}

// TesseractLanguages maps form codes to Tesseract codes. Duplicates are
// dropped and an empty list selects DefaultLanguage.
func TesseractLanguages(langs []string) ([]string, error) {
	if len(langs) == 0 {
		langs = []string{DefaultLanguage}
	}

	out := make([]string, 0, len(langs))
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		code, ok := tesseractCodes[strings.ToLower(strings.TrimSpace(l))]
		if !ok {
			return nil, &UnsupportedLanguageError{Lang: l}
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out, nil
}
