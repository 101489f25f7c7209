package graph

import (
	"regexp"
	"strings"
)

// ============================================================================
// Entity Similarity
// ============================================================================

var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeName normalizes an entity name for comparison
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = whitespacePattern.ReplaceAllString(name, " ")
	name = strings.TrimRight(name, ".,!?;:")
	return name
}

// NameSimilarity scores two entity names in [0, 1]. Exact normalized
// matches score 1; containment scores by length ratio; otherwise the score
// is the word-overlap ratio.
func NameSimilarity(name1, name2 string) float64 {
	n1 := normalizeName(name1)
	n2 := normalizeName(name2)
	if n1 == "" || n2 == "" {
		return 0
	}
	if n1 == n2 {
		return 1
	}

	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		len1, len2 := len(n1), len(n2)
		shorter, longer := len1, len2
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}

	words1 := strings.Fields(n1)
	words2 := strings.Fields(n2)
	if len(words1) == 0 || len(words2) == 0 {
		return 0
	}

	wordSet := make(map[string]bool, len(words1))
	for _, word := range words1 {
		wordSet[word] = true
	}
	matches := 0
	for _, word := range words2 {
		if wordSet[word] {
			matches++
		}
	}

	avgWords := float64(len(words1)+len(words2)) / 2
	return float64(matches) / avgWords
}
