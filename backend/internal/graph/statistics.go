package graph

import (
	"strconv"
	"strings"
)

// ============================================================================
// Statement Statistics
// ============================================================================

// ParseStatistics normalizes the backend's free-text statistics lines
// ("Nodes created: 1") into a snake_case numeric map. Lines that do not
// parse as `key: value` with a numeric value are dropped, never an error.
func ParseStatistics(lines []string) map[string]int64 {
	stats := make(map[string]int64, len(lines))
	for _, line := range lines {
		idx := strings.LastIndex(line, ":")
		if idx <= 0 {
			continue
		}
		key := normalizeStatKey(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		// Timing stats carry a unit suffix ("0.52 milliseconds"); strip it
		if spaceIdx := strings.IndexByte(value, ' '); spaceIdx > 0 {
			value = value[:spaceIdx]
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		stats[key] = int64(n)
	}
	return stats
}

func normalizeStatKey(key string) string {
	key = strings.TrimSpace(strings.ToLower(key))
	return strings.ReplaceAll(key, " ", "_")
}

// OutcomeFromStatistics classifies what a write statement did based on the
// backend-reported counters
func OutcomeFromStatistics(stats map[string]int64) Outcome {
	if stats["nodes_created"] > 0 || stats["relationships_created"] > 0 {
		return OutcomeCreated
	}
	if stats["properties_set"] > 0 || stats["nodes_deleted"] > 0 || stats["relationships_deleted"] > 0 {
		return OutcomeUpdated
	}
	return OutcomeNoOp
}
