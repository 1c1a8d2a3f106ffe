package domain

import (
	"regexp"
	"strings"
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

func ValidCurrency(c string) bool {
	return currencyRe.MatchString(c)
}

// PairKey builds the canonical "BASE-TARGET" key used by caches and the
// hardcoded rate table.
func PairKey(base, target string) string {
	return strings.ToUpper(base) + "-" + strings.ToUpper(target)
}

// SplitPair splits a "BASE-TARGET" key back into currencies.
func SplitPair(pair string) (base, target string, ok bool) {
	parts := strings.SplitN(pair, "-", 2)
	if len(parts) != 2 || !ValidCurrency(parts[0]) || !ValidCurrency(parts[1]) {
		return "", "", false
	}
	return parts[0], parts[1], true
}
