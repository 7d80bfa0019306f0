package opensong

import (
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

// quoteFolds maps typographic punctuation that OpenSong libraries commonly
// contain to the ASCII equivalents plain text renderers expect.
var quoteFolds = map[rune]rune{
	'‘': '\'', // LEFT SINGLE QUOTATION MARK
	'’': '\'', // RIGHT SINGLE QUOTATION MARK
	'‚': '\'', // SINGLE LOW-9 QUOTATION MARK
	'‛': '\'', // SINGLE HIGH-REVERSED-9 QUOTATION MARK
	'“': '"',  // LEFT DOUBLE QUOTATION MARK
	'”': '"',  // RIGHT DOUBLE QUOTATION MARK
	'„': '"',  // DOUBLE LOW-9 QUOTATION MARK
	'‟': '"',  // DOUBLE HIGH-REVERSED-9 QUOTATION MARK
	'‹': '<',  // SINGLE LEFT-POINTING ANGLE QUOTATION MARK
	'›': '>',  // SINGLE RIGHT-POINTING ANGLE QUOTATION MARK
}

// Sanitize normalizes text to NFC and folds typographic quotes to ASCII.
func Sanitize(s string) string {
	s = unorm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if folded, ok := quoteFolds[r]; ok {
			return folded
		}
		return r
	}, s)
}
