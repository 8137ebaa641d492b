package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpoflow/internal"
)

func TestDiscoverItemsByMappingLookup(t *testing.T) {
	mappings := []internal.ProductMapping{
		mapping("SUNFLOWER OIL TIN", "Sunflower Oil 16LTR Tin"),
		mapping("OLIVE OIL 5LTR", "Olive Oil 5LTR"),
	}
	text := "Dear supplier,\nplease send 3 TIN of SUNFLOWER OIL TIN to our kitchen.\nRegards"

	items, warnings := DiscoverItems(text, nil, mappings)
	require.Len(t, items, 1)
	assert.Equal(t, "SUNFLOWER OIL TIN", items[0].Name)
	assert.Equal(t, 3.0, items[0].Quantity)
	assert.Empty(t, warnings)
}

func TestDiscoverItemsNeighborLineQtyDoesNotLeak(t *testing.T) {
	mappings := []internal.ProductMapping{
		mapping("SUNFLOWER OIL TIN", "Sunflower Oil 16LTR Tin"),
		mapping("OLIVE OIL JAR", "Olive Oil Jar"),
	}
	// Each product carries its own quantity; the one on the next line
	// must not win just because it sits inside the context window.
	text := "2 TIN SUNFLOWER OIL TIN\n7 BOX OLIVE OIL JAR\n"

	items, warnings := DiscoverItems(text, nil, mappings)
	require.Len(t, items, 2)
	byName := map[string]float64{}
	for _, item := range items {
		byName[item.Name] = item.Quantity
	}
	assert.Equal(t, 2.0, byName["SUNFLOWER OIL TIN"])
	assert.Equal(t, 7.0, byName["OLIVE OIL JAR"])
	assert.Empty(t, warnings)
}

func TestDiscoverItemsDefaultsImplausibleQty(t *testing.T) {
	mappings := []internal.ProductMapping{
		mapping("OLIVE OIL 5LTR", "Olive Oil 5LTR"),
	}
	// The only number in context is a phone-sized one.
	text := "ref 5550123456 OLIVE OIL 5LTR please deliver"

	items, warnings := DiscoverItems(text, nil, mappings)
	require.Len(t, items, 1)
	assert.Equal(t, 1.0, items[0].Quantity)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "OLIVE OIL 5LTR")
}

func TestDiscoverItemsFallsBackToTables(t *testing.T) {
	tables := [][][]string{{
		{"Item", "Qty", "Unit"},
		{"FRYING OIL BUNGE PRO F10", "2", "CAN"},
		{"SUNFLOWER OIL TIN", "3", "TIN"},
	}}

	items, _ := DiscoverItems("no mapped names here", tables, nil)
	require.Len(t, items, 2)
	assert.Equal(t, "FRYING OIL BUNGE PRO F10", items[0].Name)
	assert.Equal(t, 2.0, items[0].Quantity)
	assert.Equal(t, "CAN", items[0].Unit)
}

func TestDiscoverItemsUnknownLinesSurviveMappingPass(t *testing.T) {
	mappings := []internal.ProductMapping{
		mapping("SUNFLOWER OIL TIN", "Sunflower Oil 16LTR Tin"),
	}
	tables := [][][]string{{
		{"SUNFLOWER OIL TIN", "3", "TIN"},
		{"SOMETHING ELSE ENTIRELY", "9", "BOX"},
	}}
	text := "order: 3 TIN SUNFLOWER OIL TIN"

	items, _ := DiscoverItems(text, tables, mappings)
	require.Len(t, items, 2)
	// The mapped line keeps its lookup identity; the unknown row is
	// preserved so it can be flagged rather than dropped.
	assert.Equal(t, "SUNFLOWER OIL TIN", items[0].Name)
	assert.Equal(t, "SOMETHING ELSE ENTIRELY", items[1].Name)
}

func TestDiscoverItemsGenericLinePatterns(t *testing.T) {
	text := "We need 5 CTN CANOLA OIL DRUMS and also MAYONNAISE JARS 4 PKT thanks"

	items, _ := DiscoverItems(text, nil, nil)
	require.NotEmpty(t, items)
	names := map[string]float64{}
	for _, item := range items {
		names[item.Name] = item.Quantity
	}
	assert.Equal(t, 5.0, names["CANOLA OIL DRUMS"])
}

func TestResolveProductsFlagsUnmapped(t *testing.T) {
	mappings := []internal.ProductMapping{
		func() internal.ProductMapping {
			m := mapping("SUNFLOWER OIL TIN", "Sunflower Oil 16LTR Tin")
			m.UnitPrice = 94.5
			m.Unit = "TIN"
			return m
		}(),
	}
	items := []RawItem{
		{Name: "SUNFLOWER OIL TIN", Quantity: 3},
		{Name: "XYZ UNKNOWN WIDGET", Quantity: 2},
	}

	lines := ResolveProducts(items, mappings, nil)
	require.Len(t, lines, 2)

	assert.Equal(t, "Sunflower Oil 16LTR Tin", lines[0].SystemName)
	assert.Equal(t, internal.ReasonExact, lines[0].MatchReason)
	assert.Equal(t, "TIN", lines[0].Unit)
	assert.InDelta(t, 283.5, lines[0].Total, 0.001)
	assert.False(t, lines[0].NeedsMapping)

	assert.True(t, lines[1].NeedsMapping)
	assert.Equal(t, internal.ReasonNone, lines[1].MatchReason)
	assert.Zero(t, lines[1].UnitPrice)
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals([]internal.LineItem{
		{Total: 100, VATRate: 5},
		{Total: 50, VATRate: 5},
	})
	assert.InDelta(t, 150.0, totals.Subtotal, 0.001)
	assert.InDelta(t, 7.5, totals.VATAmount, 0.001)
	assert.InDelta(t, 157.5, totals.Total, 0.001)
}
