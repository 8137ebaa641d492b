package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpoflow/internal"
)

func mapping(lpoName, systemName string) internal.ProductMapping {
	return internal.ProductMapping{
		LPOName:    lpoName,
		SystemName: systemName,
		UnitPrice:  10,
		Unit:       "EACH",
		VATRate:    5,
		Active:     true,
	}
}

func TestMatchExactWinsRegardlessOfCase(t *testing.T) {
	candidates := []internal.ProductMapping{
		mapping("SUNFLOWER OIL", "Sunflower Oil 4x4LTR"),
		mapping("SUNFLOWER OIL TIN", "Sunflower Oil 16LTR Tin"),
	}

	m := MatchProduct("sunflower oil tin", candidates)
	require.NotNil(t, m)
	assert.Equal(t, internal.ReasonExact, m.Reason)
	assert.Equal(t, "Sunflower Oil 16LTR Tin", m.Mapping.SystemName)
}

func TestMatchContainmentPrefersTightest(t *testing.T) {
	candidates := []internal.ProductMapping{
		mapping("PREMIUM EXTRA VIRGIN OLIVE OIL SPANISH 5LTR", "Olive Oil ES 5LTR"),
		mapping("OLIVE OIL 5LTR", "Olive Oil 5LTR"),
	}

	m := MatchProduct("OLIVE OIL", candidates)
	require.NotNil(t, m)
	assert.Equal(t, internal.ReasonContainment, m.Reason)
	// "OLIVE OIL" covers a larger share of the shorter candidate.
	assert.Equal(t, "Olive Oil 5LTR", m.Mapping.SystemName)
}

func TestMatchScoredTokens(t *testing.T) {
	candidates := []internal.ProductMapping{
		mapping("Bunge ProCuisine Frying Oil F10 10L", "Bunge ProCuisine F10 10LTR"),
		mapping("CANOLA OIL DRUM 20L", "Canola Oil 20LTR Drum"),
	}

	m := MatchProduct("FRYING OIL BUNGE PRO F10", candidates)
	require.NotNil(t, m)
	assert.Equal(t, internal.ReasonTokens, m.Reason)
	assert.Equal(t, "Bunge ProCuisine F10 10LTR", m.Mapping.SystemName)
	assert.GreaterOrEqual(t, m.Score, MatchScoreThreshold)
}

func TestMatchScoredRejectsBelowThreshold(t *testing.T) {
	candidates := []internal.ProductMapping{
		mapping("Bunge ProCuisine Frying Oil F10 10L", "Bunge ProCuisine F10 10LTR"),
	}

	assert.Nil(t, MatchProduct("XYZ UNKNOWN WIDGET", candidates))
}

func TestMatchSurvivesPackSizeSuffix(t *testing.T) {
	candidates := []internal.ProductMapping{
		mapping("SUNFLOWER-GOLD REFINED 4X4LTR", "Sunflower Gold 4x4LTR"),
	}

	m := MatchProduct("sunflower-gold refined", candidates)
	require.NotNil(t, m)
	assert.Equal(t, "Sunflower Gold 4x4LTR", m.Mapping.SystemName)
}

func TestMatchIsDeterministic(t *testing.T) {
	candidates := []internal.ProductMapping{
		mapping("FRYING OIL PRO A", "Product A"),
		mapping("FRYING OIL PRO B", "Product B"),
	}

	first := MatchProduct("FRYING OIL PRO", candidates)
	require.NotNil(t, first)
	for i := 0; i < 20; i++ {
		m := MatchProduct("FRYING OIL PRO", candidates)
		require.NotNil(t, m)
		assert.Equal(t, first.Mapping.SystemName, m.Mapping.SystemName)
		assert.Equal(t, first.Reason, m.Reason)
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	assert.Nil(t, MatchProduct("", []internal.ProductMapping{mapping("A", "a")}))
	assert.Nil(t, MatchProduct("SOMETHING", nil))
}
