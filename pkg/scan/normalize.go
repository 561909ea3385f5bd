package scan

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ============================================================================
// TEXT NORMALIZATION
// ============================================================================
// Obfuscated prompts routinely hide behind Unicode tricks: fullwidth letters,
// zero-width joiners between pattern words, soft hyphens. Normalization folds
// these back so the literal catalog matches what a human reads.

// invisibleRunes that survive NFKC but still split or hide words.
var invisibleRunes = map[rune]bool{
	'\u00ad': true, // soft hyphen
	'\u200b': true, // zero-width space
	'\u200c': true, // zero-width non-joiner
	'\u200d': true, // zero-width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // BOM / zero-width no-break space
}

// Normalize applies NFKC folding, strips format and invisible characters,
// and lowercases. All matching runs over the result; reported positions are
// offsets into it.
func Normalize(text string) string {
	folded := norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.Is(unicode.Cf, r) || invisibleRunes[r] {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
