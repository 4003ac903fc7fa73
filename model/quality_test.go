package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func distinctItems(n int) []GeneratedItem {
	items := make([]GeneratedItem, n)
	for i := range items {
		items[i] = GeneratedItem{
			ID:      fmt.Sprintf("scene-%d", i),
			Content: fmt.Sprintf("A wide establishing shot of location %d, camera slowly pushing in as the light changes.", i),
		}
	}
	return items
}

func TestQualityGateEmptyResult(t *testing.T) {
	report := EvaluateGenerationQuality(nil, 20, "")

	assert.True(t, report.NeedsFallback)
	assert.True(t, report.NeedsProModel)
	assert.Contains(t, report.Issues, "empty result")
}

func TestQualityGateAllIdentical(t *testing.T) {
	items := make([]GeneratedItem, 20)
	for i := range items {
		items[i] = GeneratedItem{ID: fmt.Sprintf("scene-%d", i), Content: "The same scene repeated over and over with no variation at all."}
	}

	report := EvaluateGenerationQuality(items, 20, "")

	assert.True(t, report.NeedsFallback)
	assert.True(t, report.NeedsProModel, "full duplication should escalate past the fallback model")
}

func TestQualityGateCleanBatch(t *testing.T) {
	report := EvaluateGenerationQuality(distinctItems(20), 20, "")

	assert.False(t, report.NeedsFallback)
	assert.False(t, report.NeedsProModel)
	assert.Empty(t, report.Issues)
}

func TestQualityGateInsufficientCount(t *testing.T) {
	report := EvaluateGenerationQuality(distinctItems(8), 20, "")

	assert.True(t, report.NeedsFallback)
	assert.False(t, report.NeedsProModel, "8 of 20 is above the near-total failure line")
}

func TestQualityGateNearTotalFailureEscalates(t *testing.T) {
	report := EvaluateGenerationQuality(distinctItems(1), 20, "")

	assert.True(t, report.NeedsFallback)
	assert.True(t, report.NeedsProModel)
}

func TestQualityGateEmptyContent(t *testing.T) {
	items := distinctItems(10)
	items[4].Content = "   "

	report := EvaluateGenerationQuality(items, 10, "")

	assert.True(t, report.NeedsFallback)
	assert.False(t, report.NeedsProModel)
}

func TestQualityGateErrorPatterns(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"english refusal", `{"scenes": []} I cannot generate this content.`},
		{"no data", "NO DATA returned from upstream"},
		{"localized empty array", `返回了空数组`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := EvaluateGenerationQuality(distinctItems(10), 10, tt.raw)
			assert.True(t, report.NeedsFallback)
		})
	}
}

func TestQualityGateShortContent(t *testing.T) {
	items := distinctItems(10)
	for i := 0; i < 3; i++ {
		items[i].Content = "too short"
	}

	report := EvaluateGenerationQuality(items, 10, "")

	assert.True(t, report.NeedsFallback)
}

func TestQualityGatePartialDuplication(t *testing.T) {
	// 7 of 20 share the first item's prefix: over the 30% fallback line,
	// under the 80% pro line.
	items := distinctItems(20)
	for i := 1; i < 7; i++ {
		items[i].Content = items[0].Content
	}

	report := EvaluateGenerationQuality(items, 20, "")

	assert.True(t, report.NeedsFallback)
	assert.False(t, report.NeedsProModel)
}
