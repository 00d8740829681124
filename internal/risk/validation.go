package risk

import "regexp"

// symbolPattern matches an exchange symbol: one uppercase-alphanumeric
// segment of 2-10 characters, optionally followed by a single "/"
// and a second segment of the same shape (e.g. "BTC", "BTC/USDT").
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}(/[A-Z0-9]{2,10})?$`)

// sqlKeywords catches symbols that pass symbolPattern's character
// class but are themselves SQL keywords or contain one as a whole
// word fragment (e.g. "WHEREHOUSE", "ORACLE", "ANDROID").
var sqlKeywords = []string{
	"SELECT", "DROP", "UNION", "INSERT", "DELETE", "UPDATE",
	"WHERE", "OR", "AND", "NULL", "TRUE", "FALSE", "EXEC", "EXECUTE",
}

// isValidSymbol reports whether symbol is safe to interpolate into a
// query and plausible as an exchange ticker: uppercase alphanumeric,
// 2-10 characters, with an optional "/"-separated quote segment.
func isValidSymbol(symbol string) bool {
	if !symbolPattern.MatchString(symbol) {
		return false
	}
	for _, kw := range sqlKeywords {
		if containsWord(symbol, kw) {
			return false
		}
	}
	return true
}

// containsWord reports whether s contains kw as a substring.
func containsWord(s, kw string) bool {
	for i := 0; i+len(kw) <= len(s); i++ {
		if s[i:i+len(kw)] == kw {
			return true
		}
	}
	return false
}
