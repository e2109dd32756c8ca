// Package normalize canonicalizes free-text check fields so that noisy
// oracle output and billing-system records become comparable: name/payee
// canonicalization, currency parsing to integer cents, and calendar date
// parsing.
package normalize

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldASCII strips combining diacritical marks so accented and plain
// spellings canonicalize identically ("José" and "Jose").
var foldASCII = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// unitMarkers are words that introduce a trailing unit/apartment number on
// a remitter line. The marker is stripped together with the number.
var unitMarkers = map[string]bool{
	"apt":       true,
	"apartment": true,
	"unit":      true,
	"ste":       true,
	"suite":     true,
	"rm":        true,
	"room":      true,
	"no":        true,
}

// Name canonicalizes a person or household name. Rules, in order:
// whitespace collapsed, lowercased, diacritics folded, punctuation removed
// (apostrophes and periods fuse their neighbors, all other punctuation
// splits words), and trailing standalone 1-5 digit unit/apartment tokens
// stripped along with an optional preceding unit marker word. Word order
// is preserved; idempotent.
func Name(s string) string {
	if folded, _, err := transform.String(foldASCII, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '.':
			// fuse: o'brien -> obrien, j.r. -> jr
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	words = stripUnitTokens(words)
	return strings.Join(words, " ")
}

// Payee canonicalizes a payee line. Payees follow the same rules as names.
func Payee(s string) string {
	return Name(s)
}

// WordSet returns the set of words in the canonical form of s, for
// order-independent comparison.
func WordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(Name(s)) {
		set[w] = true
	}
	return set
}

// stripUnitTokens removes trailing standalone digit runs of 1-5 characters
// and their optional preceding unit marker. A digit run that is the only
// remaining word is kept. Runs until stable so repeated application is a
// no-op.
func stripUnitTokens(words []string) []string {
	for len(words) >= 2 {
		last := words[len(words)-1]
		if !isUnitNumber(last) {
			break
		}
		words = words[:len(words)-1]
		if len(words) >= 2 && unitMarkers[words[len(words)-1]] {
			words = words[:len(words)-1]
		}
	}
	return words
}

func isUnitNumber(w string) bool {
	if len(w) < 1 || len(w) > 5 {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Amount parses a currency string into integer cents. Accepts an optional
// dollar sign, well-formed thousands separators, and up to two decimal
// places. Anything else is rejected.
func Amount(s string) (int64, error) {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "$")
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, eris.Errorf("normalize: empty amount %q", s)
	}

	intPart := t
	fracPart := ""
	if i := strings.IndexByte(t, '.'); i >= 0 {
		intPart, fracPart = t[:i], t[i+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return 0, eris.Errorf("normalize: malformed amount %q", s)
		}
	}

	if intPart == "" && fracPart == "" {
		return 0, eris.Errorf("normalize: malformed amount %q", s)
	}

	if err := checkGrouping(intPart); err != nil {
		return 0, eris.Wrapf(err, "normalize: malformed amount %q", s)
	}
	digits := strings.ReplaceAll(intPart, ",", "")
	if digits == "" {
		digits = "0"
	}

	if len(fracPart) > 2 || !allDigits(fracPart) {
		return 0, eris.Errorf("normalize: malformed amount %q", s)
	}

	whole, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "normalize: malformed amount %q", s)
	}

	cents := whole * 100
	switch len(fracPart) {
	case 1:
		f, _ := strconv.ParseInt(fracPart, 10, 64)
		cents += f * 10
	case 2:
		f, _ := strconv.ParseInt(fracPart, 10, 64)
		cents += f
	}
	return cents, nil
}

// checkGrouping validates the integer part of an amount: plain digits, or
// comma groups of exactly three after a leading group of one to three.
func checkGrouping(intPart string) error {
	if intPart == "" {
		return nil
	}
	groups := strings.Split(intPart, ",")
	if len(groups) == 1 {
		if !allDigits(groups[0]) || groups[0] == "" {
			return eris.New("non-digit integer part")
		}
		return nil
	}
	for i, g := range groups {
		if !allDigits(g) {
			return eris.New("non-digit group")
		}
		if i == 0 {
			if len(g) < 1 || len(g) > 3 {
				return eris.New("bad leading group")
			}
			continue
		}
		if len(g) != 3 {
			return eris.New("bad thousands group")
		}
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// dateLayouts lists the forms the oracle and billing sources are known to
// emit, most common first.
var dateLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"2006-01-02",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
}

// Date parses a calendar date, returning UTC midnight of that day.
func Date(s string) (time.Time, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return time.Time{}, eris.Errorf("normalize: empty date %q", s)
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("normalize: unparseable date %q", s)
}

// DaysApart returns the absolute difference between two dates in whole
// calendar days.
func DaysApart(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := au.Sub(bu)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
