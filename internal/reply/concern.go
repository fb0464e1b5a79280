package reply

import "strings"

type concernRule struct {
	slug     string
	keywords []string
}

// concernRules are checked in order; the first rule with a matching keyword wins.
var concernRules = []concernRule{
	{"acne-oil", []string{"acne", "pimple", "breakout", "blackhead", "oily", "oil control", "pores"}},
	{"anti-aging", []string{"aging", "ageing", "anti-age", "wrinkle", "fine line", "retinol", "firming", "sagging"}},
	{"dark-spots", []string{"dark spot", "pigmentation", "hyperpigmentation", "melasma", "uneven tone", "brighten"}},
	{"dryness-hydration", []string{"dry", "dehydrat", "hydrat", "flaky", "tight skin", "moistur"}},
	{"sensitivity", []string{"sensitive", "redness", "irritat", "rosacea", "eczema"}},
	{"sun-protection", []string{"sunscreen", "spf", "sunblock", "sun protection", "uv"}},
}

// ClassifyConcern maps a customer message onto a concern slug, or "" when nothing matches.
func ClassifyConcern(message string) string {
	text := strings.ToLower(message)
	for _, rule := range concernRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.slug
			}
		}
	}
	return ""
}
