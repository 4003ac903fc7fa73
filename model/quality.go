/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"fmt"
	"strings"
)

// GeneratedItem is one generated unit (a scene, a caption block) from a
// batch generation call.
type GeneratedItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// QualityReport is the outcome of inspecting a generation batch.
// NeedsFallback requests a retry on the fallback model; NeedsProModel
// escalates straight to the strongest tier when the cheap retry is
// provably hopeless.
type QualityReport struct {
	NeedsFallback bool     `json:"needs_fallback"`
	NeedsProModel bool     `json:"needs_pro_model"`
	Reason        string   `json:"reason,omitempty"`
	Issues        []string `json:"issues,omitempty"`
}

// Known refusal and error phrases that occasionally leak into provider
// output instead of real content. Includes localized variants seen in
// production responses.
var errorPatterns = []string{
	"i cannot",
	"i can't",
	"i'm unable",
	"no data",
	"error occurred",
	"无法生成",
	"没有数据",
	"空数组",
	"抱歉",
}

const (
	duplicateThreshold    = 0.30
	duplicateProThreshold = 0.80
	shortContentThreshold = 0.20
	shortContentMinLen    = 30
	prefixLen             = 50
)

// EvaluateGenerationQuality inspects a batch of generated items against
// the expected count and optionally the raw provider response text.
// Each rule is evaluated independently; any triggered rule sets
// NeedsFallback. The function is pure: the caller persists any retry
// decision.
func EvaluateGenerationQuality(items []GeneratedItem, expectedCount int, rawResponse string) QualityReport {
	report := QualityReport{}

	addIssue := func(issue string) {
		report.NeedsFallback = true
		report.Issues = append(report.Issues, issue)
		if report.Reason == "" {
			report.Reason = issue
		}
	}

	if len(items) == 0 {
		addIssue("empty result")
	}

	if expectedCount > 0 && len(items) > 0 && len(items)*2 < expectedCount {
		addIssue(fmt.Sprintf("insufficient count: got %d, expected %d", len(items), expectedCount))
	}

	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			addIssue(fmt.Sprintf("empty content in item %s", item.ID))
			break
		}
	}

	if rawResponse != "" {
		lower := strings.ToLower(rawResponse)
		for _, pattern := range errorPatterns {
			if strings.Contains(lower, pattern) {
				addIssue(fmt.Sprintf("error pattern in response: %q", pattern))
				break
			}
		}
	}

	dupRatio := duplicateRatio(items)
	if len(items) > 1 && dupRatio > duplicateThreshold {
		addIssue(fmt.Sprintf("duplicate content across %.0f%% of items", dupRatio*100))
	}

	if len(items) > 0 {
		short := 0
		for _, item := range items {
			if len([]rune(strings.TrimSpace(item.Content))) < shortContentMinLen {
				short++
			}
		}
		if float64(short)/float64(len(items)) > shortContentThreshold {
			addIssue(fmt.Sprintf("low quality: %d of %d items under %d chars", short, len(items), shortContentMinLen))
		}
	}

	// Escalation: a pro retry is warranted only when the cheap retry is
	// near-certain to fail the same way.
	if len(items) == 0 {
		report.NeedsProModel = true
	}
	if expectedCount >= 10 && len(items)*10 < expectedCount {
		report.NeedsProModel = true
	}
	if len(items) > 1 && dupRatio > duplicateProThreshold {
		report.NeedsProModel = true
	}

	return report
}

// duplicateRatio measures how much of the batch repeats the first
// item's content, matching either exactly or on a shared prefix.
func duplicateRatio(items []GeneratedItem) float64 {
	if len(items) < 2 {
		return 0
	}
	first := strings.TrimSpace(items[0].Content)
	if first == "" {
		return 0
	}
	prefix := first
	if runes := []rune(first); len(runes) > prefixLen {
		prefix = string(runes[:prefixLen])
	}

	dupes := 0
	for _, item := range items[1:] {
		content := strings.TrimSpace(item.Content)
		if content == first || strings.HasPrefix(content, prefix) {
			dupes++
		}
	}
	return float64(dupes+1) / float64(len(items))
}
