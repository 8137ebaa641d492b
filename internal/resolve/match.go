package resolve

import (
	"regexp"
	"strings"

	"lpoflow/internal"
	"lpoflow/internal/util"
)

// MatchScoreThreshold is the minimum token-overlap score accepted by
// the scored strategy.
const MatchScoreThreshold = 0.4

// Match is one strategy's verdict for a (raw, candidates) pair.
type Match struct {
	Mapping internal.ProductMapping
	Reason  internal.MatchReason
	Score   float64
}

// strategy inspects the raw name against every candidate mapping and
// either returns its best match or reports no opinion. Strategies are
// pure so the whole chain is deterministic for a fixed mapping order.
type strategy func(m *Matcher, raw string, candidates []internal.ProductMapping) *Match

// matchChain is evaluated in priority order with early exit. Stronger
// evidence always wins over weaker evidence regardless of score.
var matchChain = []strategy{
	(*Matcher).matchExact,
	(*Matcher).matchContainment,
	(*Matcher).matchScoredTokens,
	(*Matcher).matchNormalizedContainment,
}

// Matcher runs the strategy chain with a configurable score threshold.
type Matcher struct {
	threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = MatchScoreThreshold
	}
	return &Matcher{threshold: threshold}
}

// Match resolves one raw product-name string against the customer's
// mappings. A nil result means no strategy succeeded and the line
// needs a manual mapping.
func (m *Matcher) Match(raw string, candidates []internal.ProductMapping) *Match {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(candidates) == 0 {
		return nil
	}
	for _, s := range matchChain {
		if match := s(m, raw, candidates); match != nil {
			return match
		}
	}
	return nil
}

// MatchProduct runs the chain with the default threshold.
func MatchProduct(raw string, candidates []internal.ProductMapping) *Match {
	return NewMatcher(MatchScoreThreshold).Match(raw, candidates)
}

func (m *Matcher) matchExact(raw string, candidates []internal.ProductMapping) *Match {
	for _, c := range candidates {
		if strings.EqualFold(raw, c.LPOName) {
			return &Match{Mapping: c, Reason: internal.ReasonExact, Score: 1}
		}
	}
	return nil
}

// matchContainment accepts a substring relation either way and prefers
// the tightest containment: the highest matched/candidate length ratio.
func (m *Matcher) matchContainment(raw string, candidates []internal.ProductMapping) *Match {
	lowerRaw := strings.ToLower(raw)

	var best *Match
	for _, c := range candidates {
		lowerName := strings.ToLower(c.LPOName)
		if lowerName == "" {
			continue
		}

		var ratio float64
		switch {
		case strings.Contains(lowerName, lowerRaw):
			ratio = float64(len(lowerRaw)) / float64(len(lowerName))
		case strings.Contains(lowerRaw, lowerName):
			ratio = float64(len(lowerName)) / float64(len(lowerRaw))
		default:
			continue
		}

		if best == nil || ratio > best.Score {
			best = &Match{Mapping: c, Reason: internal.ReasonContainment, Score: ratio}
		}
	}
	return best
}

func (m *Matcher) matchScoredTokens(raw string, candidates []internal.ProductMapping) *Match {
	var best *Match
	for _, c := range candidates {
		score := scoreTokens(raw, c.LPOName)
		if score < m.threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Mapping: c, Reason: internal.ReasonTokens, Score: score}
		}
	}
	return best
}

// packSuffixNoise strips trailing pack-size qualifiers before the last
// containment retry, e.g. "... 4X4LTR" or "... 10L".
var packSuffixNoise = regexp.MustCompile(`(?i)\s*\d+\s*[xX×]\s*\d+(\.\d+)?\s*(LTR|L|KG|ML|GM|G)\b|\s*\d+(\.\d+)?\s*(LTR|L|KG|ML|GM|G)\b`)

func (m *Matcher) matchNormalizedContainment(raw string, candidates []internal.ProductMapping) *Match {
	normRaw := normalizeForFuzzy(raw)
	if normRaw == "" {
		return nil
	}

	var best *Match
	for _, c := range candidates {
		normName := normalizeForFuzzy(c.LPOName)
		if normName == "" {
			continue
		}

		var ratio float64
		switch {
		case strings.Contains(normName, normRaw):
			ratio = float64(len(normRaw)) / float64(len(normName))
		case strings.Contains(normRaw, normName):
			ratio = float64(len(normName)) / float64(len(normRaw))
		default:
			continue
		}

		if best == nil || ratio > best.Score {
			best = &Match{Mapping: c, Reason: internal.ReasonFuzzy, Score: ratio}
		}
	}
	return best
}

func normalizeForFuzzy(s string) string {
	s = packSuffixNoise.ReplaceAllString(s, " ")
	return strings.ToLower(util.CollapseSpaces(s))
}
