package resolve

import "strings"

// stopWords are dropped before token-overlap scoring. They carry no
// product identity and inflate scores between unrelated lines.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "per": {},
	"of": {}, "in": {}, "x": {}, "new": {}, "pcs": {}, "pc": {},
	"each": {}, "unit": {}, "units": {}, "pack": {}, "packs": {},
	"box": {}, "ctn": {}, "carton": {}, "tin": {}, "can": {},
	"bottle": {}, "pkt": {}, "kg": {}, "ltr": {}, "ml": {}, "l": {},
}

// importantVocab is the brand and product-class vocabulary that earns a
// scoring bonus. Shared words here are much stronger evidence of a
// match than generic token overlap.
var importantVocab = map[string]struct{}{
	"oil": {}, "bunge": {}, "cuisine": {}, "procuisine": {},
	"sunflower": {}, "olive": {}, "canola": {}, "rapeseed": {},
	"corn": {}, "palm": {}, "vegetable": {}, "frying": {},
	"pro": {}, "ghee": {}, "margarine": {}, "shortening": {},
	"butter": {}, "vinegar": {}, "mayonnaise": {},
}

const importantWordBonus = 0.15

// scoreTokens splits both names into lowercase words, drops stop
// words, and scores overlap relative to the smaller token set, plus a
// bonus per shared important word.
func scoreTokens(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}

	overlap := 0
	bonus := 0.0
	for tok := range ta {
		if _, ok := tb[tok]; !ok {
			continue
		}
		overlap++
		if _, ok := importantVocab[tok]; ok {
			bonus += importantWordBonus
		}
	}

	return float64(overlap)/float64(smaller) + bonus
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:()[]\"'")
		if len(tok) < 2 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
