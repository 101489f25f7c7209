package graph

import "strconv"

// ============================================================================
// Row Helpers
// ============================================================================
//
// Reply cells are loosely typed: integers arrive as int64, doubles as
// strings on the wire. These helpers normalize row access.

func getStringFromRow(row map[string]interface{}, key string) string {
	val, ok := row[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRow(row map[string]interface{}, key string) int64 {
	val, ok := row[key]
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func getMapFromRow(row map[string]interface{}, key string) map[string]interface{} {
	val, ok := row[key]
	if !ok || val == nil {
		return nil
	}
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return nil
}
