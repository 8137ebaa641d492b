package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	unitPattern   = regexp.MustCompile(`(?i)\b(can|tin|pkt|box|ctn|bottle|pcs|pc|each|case|kg|ltr|l|ml)\b`)
	numberPattern = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)`)
	withUnit      = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(can|tin|pkt|box|ctn|bottle|pcs|pc|each|case|kg|ltr|ml)\b`)
)

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty pulls the most plausible quantity and unit out of a free-text
// order line. A number adjacent to a unit word wins; otherwise the last
// bare number on the line is taken.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, " ", " ")

	qtyRaw := ""
	qtyToken := ""

	wm := withUnit.FindAllStringSubmatch(line, -1)
	if len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = strings.TrimSpace(last[1])
	} else {
		nm := numberPattern.FindAllStringSubmatch(line, -1)
		if len(nm) > 0 {
			last := nm[len(nm)-1]
			qtyRaw = strings.TrimSpace(last[1])
			qtyToken = strings.TrimSpace(last[1])
		}
	}

	var qtyPtr *float64
	if qtyToken != "" {
		norm := normalizeNumericToken(qtyToken)
		if parsed, err := strconv.ParseFloat(norm, 64); err == nil {
			qtyPtr = FloatPtr(parsed)
		}
	}

	var unitPtr *string
	if um := unitPattern.FindStringSubmatch(line); len(um) > 1 {
		u := strings.ToUpper(strings.TrimSpace(um[1]))
		unitPtr = &u
	}

	var qtyRawPtr *string
	if qtyRaw != "" {
		qtyRawPtr = &qtyRaw
	}

	return ParsedQty{Qty: qtyPtr, Unit: unitPtr, QtyRaw: qtyRawPtr}
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`).MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`).MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
