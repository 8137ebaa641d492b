package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"lpoflow/internal"
	"lpoflow/internal/util"
)

// RawItem is a product occurrence discovered in a document before
// catalog resolution.
type RawItem struct {
	Name     string
	Quantity float64
	Unit     string
	Context  string
}

const (
	qtyContextRadius = 100
	maxPlausibleQty  = 1000
)

var (
	unitVocab = `CAN|TIN|PKT|BOX|CTN|BOTTLE|PCS|EACH|CASE|BAG|JAR|DRUM`

	// e.g. "3 TIN SUNFLOWER OIL" or "SUNFLOWER OIL 3 TIN". Names are
	// matched case-sensitively so the capture stops where uppercase
	// product text gives way to prose.
	qtyThenName  = regexp.MustCompile(`\b(\d{1,4})\s*(?:` + unitVocab + `)\s+([A-Z][A-Z0-9 \-./]{4,60})`)
	nameThenQty  = regexp.MustCompile(`\b([A-Z][A-Z0-9 \-./]{4,60}?)\s+(\d{1,4})\s*(?:` + unitVocab + `)\b`)
	packSizeHint = regexp.MustCompile(`(?i)\b\d+\s*[xX×]\s*\d+\s*(LTR|L|KG|ML|GM|G)\b`)
)

// DiscoverItems finds product lines in a document. The primary pass is
// a reverse lookup: every known raw mapping name is searched for in the
// text, and its quantity read from the surrounding context. Table rows
// and generic line patterns then contribute anything the lookup did not
// cover, so unrecognized products surface as unmapped lines instead of
// vanishing.
func DiscoverItems(text string, tables [][][]string, mappings []internal.ProductMapping) ([]RawItem, []string) {
	var warnings []string

	items := discoverByMappings(text, mappings, &warnings)

	extra := discoverFromTables(tables)
	if len(extra) == 0 {
		extra = discoverByPatterns(text)
	}
	for _, candidate := range extra {
		if coveredByKnown(candidate.Name, items) {
			continue
		}
		items = append(items, candidate)
	}

	return dedupeItems(items), warnings
}

// coveredByKnown reports whether a heuristically found name is just a
// restatement of a line the mapping lookup already produced.
func coveredByKnown(name string, known []RawItem) bool {
	lower := strings.ToLower(util.CollapseSpaces(name))
	if lower == "" {
		return true
	}
	for _, item := range known {
		other := strings.ToLower(util.CollapseSpaces(item.Name))
		if strings.Contains(lower, other) || strings.Contains(other, lower) {
			return true
		}
	}
	return false
}

func discoverByMappings(text string, mappings []internal.ProductMapping, warnings *[]string) []RawItem {
	lowerText := strings.ToLower(text)
	seen := map[string]struct{}{}

	var out []RawItem
	for _, m := range mappings {
		name := strings.TrimSpace(m.LPOName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}

		idx := strings.Index(lowerText, key)
		if idx < 0 {
			continue
		}
		seen[key] = struct{}{}

		context := contextWindow(text, idx, len(name))

		// Quantities on neighboring order lines must not leak into this
		// one, so the line holding the name is consulted first and the
		// wider window only when the line itself carries no quantity.
		qty, unit, ok := quantityFromContext(lineAt(text, idx, len(name)), name)
		if !ok {
			qty, unit, ok = quantityFromContext(context, name)
		}
		if !ok {
			qty = 1
			*warnings = append(*warnings, fmt.Sprintf("no plausible quantity near %q, defaulted to 1", name))
		}
		out = append(out, RawItem{Name: name, Quantity: qty, Unit: unit, Context: context})
	}
	return out
}

// quantityFromContext reads a quantity from the text surrounding a
// matched product name, rejecting numbers that cannot be an order
// quantity (pack sizes, years, phone fragments).
func quantityFromContext(context, name string) (float64, string, bool) {
	// Drop the name itself so its digits (e.g. "F10") are not read as
	// a quantity.
	cleaned := strings.Replace(strings.ToLower(context), strings.ToLower(name), " ", 1)
	cleaned = packSizeHint.ReplaceAllString(cleaned, " ")

	parsed := util.ParseQty(cleaned)
	if parsed.Qty == nil {
		return 0, "", false
	}
	qty := *parsed.Qty
	if qty <= 0 || qty > maxPlausibleQty {
		return 0, "", false
	}
	unit := ""
	if parsed.Unit != nil {
		unit = strings.ToUpper(*parsed.Unit)
	}
	return qty, unit, true
}

// lineAt returns the full line of text containing the match at idx.
func lineAt(text string, idx, nameLen int) string {
	start := strings.LastIndexByte(text[:idx], '\n') + 1
	end := idx + nameLen
	if end > len(text) {
		end = len(text)
	}
	if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
		end += nl
	} else {
		end = len(text)
	}
	return text[start:end]
}

func contextWindow(text string, idx, nameLen int) string {
	start := idx - qtyContextRadius
	if start < 0 {
		start = 0
	}
	end := idx + nameLen + qtyContextRadius
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

// discoverFromTables treats each row as name-plus-quantity when one
// cell is textual and another is a small number.
func discoverFromTables(tables [][][]string) []RawItem {
	var out []RawItem
	for _, table := range tables {
		for _, row := range table {
			item, ok := rowToItem(row)
			if ok {
				out = append(out, item)
			}
		}
	}
	return dedupeItems(out)
}

var (
	bareNumber = regexp.MustCompile(`^\d{1,4}(\.\d+)?$`)
	alphaRun   = regexp.MustCompile(`[A-Za-z]{3}`)
	unitCell   = regexp.MustCompile(`(?i)^(` + unitVocab + `)$`)
)

func rowToItem(row []string) (RawItem, bool) {
	name := ""
	qty := 0.0
	unit := ""

	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if bareNumber.MatchString(cell) {
			if qty == 0 {
				parsed := util.ParseQty(cell)
				if parsed.Qty != nil && *parsed.Qty > 0 && *parsed.Qty <= maxPlausibleQty {
					qty = *parsed.Qty
				}
			}
			continue
		}
		if len(cell) > len(name) && alphaRun.MatchString(cell) {
			name = cell
		}
		if unitCell.MatchString(cell) {
			unit = strings.ToUpper(cell)
		}
	}

	if name == "" || qty == 0 || looksLikeHeader(name) {
		return RawItem{}, false
	}
	return RawItem{Name: name, Quantity: qty, Unit: unit, Context: strings.Join(row, " | ")}, true
}

func looksLikeHeader(cell string) bool {
	lower := strings.ToLower(cell)
	for _, h := range []string{"item", "description", "product", "particulars", "qty", "quantity", "unit", "price", "amount", "total"} {
		if lower == h {
			return true
		}
	}
	return false
}

func discoverByPatterns(text string) []RawItem {
	var out []RawItem

	for _, m := range qtyThenName.FindAllStringSubmatch(text, -1) {
		parsed := util.ParseQty(m[1])
		if parsed.Qty == nil {
			continue
		}
		out = append(out, RawItem{Name: util.CollapseSpaces(m[2]), Quantity: *parsed.Qty, Context: m[0]})
	}
	for _, m := range nameThenQty.FindAllStringSubmatch(text, -1) {
		parsed := util.ParseQty(m[2])
		if parsed.Qty == nil {
			continue
		}
		out = append(out, RawItem{Name: util.CollapseSpaces(m[1]), Quantity: *parsed.Qty, Context: m[0]})
	}

	return dedupeItems(out)
}

func dedupeItems(items []RawItem) []RawItem {
	seen := map[string]struct{}{}
	out := make([]RawItem, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(util.CollapseSpaces(item.Name))
		if key == "" || looksLikeHeader(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// ResolveProducts maps discovered items onto the customer's catalog.
// Unmatched items stay in the result flagged NeedsMapping so failures
// carry the raw names verbatim. A nil matcher uses the default
// threshold.
func ResolveProducts(items []RawItem, mappings []internal.ProductMapping, matcher *Matcher) []internal.LineItem {
	if matcher == nil {
		matcher = NewMatcher(MatchScoreThreshold)
	}
	out := make([]internal.LineItem, 0, len(items))
	for _, raw := range items {
		line := internal.LineItem{
			LPOName:    raw.Name,
			Quantity:   raw.Quantity,
			Unit:       raw.Unit,
			RawContext: util.CollapseSpaces(raw.Context),
		}

		if m := matcher.Match(raw.Name, mappings); m != nil {
			line.SystemName = m.Mapping.SystemName
			line.UnitPrice = m.Mapping.UnitPrice
			line.VATRate = m.Mapping.VATRate
			line.MatchReason = m.Reason
			if line.Unit == "" {
				line.Unit = m.Mapping.Unit
			}
			line.Total = line.Quantity * line.UnitPrice
		} else {
			line.NeedsMapping = true
			line.MatchReason = internal.ReasonNone
		}
		out = append(out, line)
	}
	return out
}

// ComputeTotals sums resolved lines for the export payload.
func ComputeTotals(items []internal.LineItem) internal.Totals {
	var t internal.Totals
	for _, item := range items {
		t.Subtotal += item.Total
		t.VATAmount += item.Total * item.VATRate / 100
	}
	t.Total = t.Subtotal + t.VATAmount
	return t
}
