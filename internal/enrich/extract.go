package enrich

import "regexp"

// productPattern is one extraction rule. A token match is only accepted
// when the next character is not a digit or an underscore, so "TS0001" is
// not read as "TS000" and "TS0601_motion" is left to the suffixed rule.
type productPattern struct {
	re    *regexp.Regexp
	token bool
}

// Product id patterns, tried in order.
var productPatterns = []productPattern{
	{regexp.MustCompile(`TS\d{3}[A-Z]?`), true},
	{regexp.MustCompile(`TS\d{4}[A-Z]?`), true},
	{regexp.MustCompile(`TS\d{3,4}[A-Z]?_\w+`), false},
}

// Extract finds a knowledge base key in a driver directory name, e.g.
// "plugs-TS011F" -> "TS011F", "sensors-TS0601_motion" -> "TS0601_motion".
func Extract(name string) (string, bool) {
	for _, p := range productPatterns {
		for _, loc := range p.re.FindAllStringIndex(name, -1) {
			if p.token && loc[1] < len(name) && continuesToken(name[loc[1]]) {
				continue
			}
			return name[loc[0]:loc[1]], true
		}
	}
	return "", false
}

func continuesToken(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9')
}
