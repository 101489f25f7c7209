package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"memograph/backend/internal/constants"
	"memograph/backend/pkg/errors"
)

// ============================================================================
// Query Builders
// ============================================================================
//
// Every builder is pure: it turns inputs into a parameterized statement and
// does no I/O. The tenant id is always passed as a parameter and always
// appears in the match clause — this is the tenant-isolation mechanism.
// Labels, relationship types and property keys cannot be parameterized in
// Cypher, so they are validated against the fixed schemas before inlining.

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// safePropertyKey rejects property keys that cannot be inlined safely.
// Keys already pass the per-type schema allow-list; this is the second gate.
func safePropertyKey(key string) error {
	if !identifierPattern.MatchString(key) {
		return errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("invalid property key: %q", key), nil)
	}
	return nil
}

// sortedKeys keeps generated statements deterministic for cache fingerprints
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildUpsertNode merges a node on (tenant_id, entity_id). First creation
// sets the supplied properties, first_mentioned and mention_count = 1; a
// repeat match re-applies the properties and increments mention_count.
func BuildUpsertNode(tenantID string, e Entity, now time.Time) (BatchOperation, error) {
	if err := ValidateEntity(e); err != nil {
		return BatchOperation{}, err
	}

	params := map[string]interface{}{
		"tenant_id": tenantID,
		"entity_id": e.ID,
		"name":      e.Name,
		"now":       now.UTC().Format(time.RFC3339),
	}

	var createSets, matchSets []string
	createSets = append(createSets,
		"n.name = $name",
		"n.first_mentioned = $now",
		"n.mention_count = 1",
	)
	matchSets = append(matchSets,
		"n.name = $name",
		"n.mention_count = n.mention_count + 1",
	)

	for _, key := range sortedKeys(e.Properties) {
		if err := safePropertyKey(key); err != nil {
			return BatchOperation{}, err
		}
		param := "p_" + key
		params[param] = e.Properties[key]
		assignment := fmt.Sprintf("n.%s = $%s", key, param)
		createSets = append(createSets, assignment)
		matchSets = append(matchSets, assignment)
	}

	statement := fmt.Sprintf(`
		MERGE (n:%s {tenant_id: $tenant_id, entity_id: $entity_id})
		ON CREATE SET %s
		ON MATCH SET %s
		RETURN n.entity_id AS entity_id, n.mention_count AS mention_count
	`, e.Type, strings.Join(createSets, ", "), strings.Join(matchSets, ", "))

	return BatchOperation{Statement: statement, Params: params}, nil
}

// BuildMatchNode fetches a node by (tenant_id, entity_id), optionally
// constrained to one type label
func BuildMatchNode(tenantID, entityID, entityType string) (BatchOperation, error) {
	label := ""
	if entityType != "" {
		if !IsEntityType(entityType) {
			return BatchOperation{}, errors.New(errors.CodeInvalidEntity,
				fmt.Sprintf("unknown entity type: %s", entityType), nil)
		}
		label = ":" + entityType
	}

	statement := fmt.Sprintf(`
		MATCH (n%s {tenant_id: $tenant_id, entity_id: $entity_id})
		RETURN n.entity_id AS entity_id, labels(n)[0] AS type, n.name AS name,
		       n.mention_count AS mention_count, n.first_mentioned AS first_mentioned
	`, label)

	return BatchOperation{
		Statement: statement,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
	}, nil
}

// BuildSetNodeProperties writes individual fields on an existing node
func BuildSetNodeProperties(tenantID, entityID string, props map[string]interface{}) (BatchOperation, error) {
	if len(props) == 0 {
		return BatchOperation{}, errors.New(errors.CodeInvalidEntity, "no properties to set", nil)
	}

	params := map[string]interface{}{
		"tenant_id": tenantID,
		"entity_id": entityID,
	}

	var sets []string
	for _, key := range sortedKeys(props) {
		if err := safePropertyKey(key); err != nil {
			return BatchOperation{}, err
		}
		param := "p_" + key
		params[param] = props[key]
		sets = append(sets, fmt.Sprintf("n.%s = $%s", key, param))
	}

	statement := fmt.Sprintf(`
		MATCH (n {tenant_id: $tenant_id, entity_id: $entity_id})
		SET %s
		RETURN n.entity_id AS entity_id
	`, strings.Join(sets, ", "))

	return BatchOperation{Statement: statement, Params: params}, nil
}

// BuildCreateRelationship merges a directed edge on (from, type, to) so
// repeated inference never duplicates it. Both endpoints must already exist
// for this tenant. Properties are written as individual field assignments;
// the backend does not deep-merge relationship property objects.
func BuildCreateRelationship(tenantID string, rel Relationship) (BatchOperation, error) {
	if !IsRelationshipType(rel.Type) {
		return BatchOperation{}, errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("unknown relationship type: %s", rel.Type), nil)
	}

	params := map[string]interface{}{
		"tenant_id": tenantID,
		"from_id":   rel.FromID,
		"to_id":     rel.ToID,
	}

	var sets []string
	for _, key := range sortedKeys(rel.Properties) {
		if err := safePropertyKey(key); err != nil {
			return BatchOperation{}, err
		}
		param := "r_" + key
		params[param] = rel.Properties[key]
		sets = append(sets, fmt.Sprintf("r.%s = $%s", key, param))
	}

	setClause := ""
	if len(sets) > 0 {
		setClause = "SET " + strings.Join(sets, ", ")
	}

	statement := fmt.Sprintf(`
		MATCH (a {tenant_id: $tenant_id, entity_id: $from_id})
		MATCH (b {tenant_id: $tenant_id, entity_id: $to_id})
		MERGE (a)-[r:%s]->(b)
		%s
		RETURN a.entity_id AS from_id, b.entity_id AS to_id
	`, rel.Type, setClause)

	return BatchOperation{Statement: statement, Params: params}, nil
}

// BuildDeleteRelationship removes one edge between two tenant nodes
func BuildDeleteRelationship(tenantID, fromID, toID, relType string) (BatchOperation, error) {
	if !IsRelationshipType(relType) {
		return BatchOperation{}, errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("unknown relationship type: %s", relType), nil)
	}

	statement := fmt.Sprintf(`
		MATCH (a {tenant_id: $tenant_id, entity_id: $from_id})-[r:%s]->(b {tenant_id: $tenant_id, entity_id: $to_id})
		DELETE r
	`, relType)

	return BatchOperation{
		Statement: statement,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"from_id":   fromID,
			"to_id":     toID,
		},
	}, nil
}

// BuildNeighborhood fetches the center node plus everything reachable within
// depth hops. Depth outside 1..3 is a caller error here, not clamped; the
// API boundary owns clamping if it wants it.
func BuildNeighborhood(tenantID, entityID string, depth int) (BatchOperation, error) {
	if depth < constants.MinNeighborhoodDepth || depth > constants.MaxNeighborhoodDepth {
		return BatchOperation{}, errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("neighborhood depth must be between %d and %d, got %d",
				constants.MinNeighborhoodDepth, constants.MaxNeighborhoodDepth, depth), nil)
	}

	statement := fmt.Sprintf(`
		MATCH (c {tenant_id: $tenant_id, entity_id: $entity_id})
		OPTIONAL MATCH (c)-[r*1..%d]-(m {tenant_id: $tenant_id})
		RETURN c.entity_id AS center_id, labels(c)[0] AS center_type, c.name AS center_name,
		       m.entity_id AS neighbor_id, labels(m)[0] AS neighbor_type, m.name AS neighbor_name
	`, depth)

	return BatchOperation{
		Statement: statement,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
	}, nil
}

// BuildDeleteNode removes a node and every relationship attached to it
func BuildDeleteNode(tenantID, entityID string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id, entity_id: $entity_id})
		DETACH DELETE n
	`,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
	}
}

// BuildSearch finds nodes whose name contains the text, case-insensitive.
func BuildSearch(tenantID, text string, limit int) BatchOperation {
	if limit < 1 {
		limit = 10
	}
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id})
		WHERE toLower(n.name) CONTAINS toLower($text)
		RETURN n.entity_id AS entity_id, labels(n)[0] AS type, n.name AS name
		LIMIT $limit
	`,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"text":      text,
			"limit":     limit,
		},
	}
}

// BuildNodeStats aggregates node counts per type for a tenant
func BuildNodeStats(tenantID string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id})
		RETURN labels(n)[0] AS type, count(n) AS node_count
	`,
		Params: map[string]interface{}{"tenant_id": tenantID},
	}
}

// BuildRelationshipStats counts a tenant's relationships
func BuildRelationshipStats(tenantID string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (a {tenant_id: $tenant_id})-[r]->(b {tenant_id: $tenant_id})
		RETURN count(r) AS relationship_count
	`,
		Params: map[string]interface{}{"tenant_id": tenantID},
	}
}

// BuildMostConnected lists the tenant's highest-degree nodes
func BuildMostConnected(tenantID string, limit int) BatchOperation {
	if limit < 1 {
		limit = 5
	}
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id})-[r]-()
		RETURN n.entity_id AS entity_id, n.name AS name, labels(n)[0] AS type, count(r) AS degree
		ORDER BY degree DESC
		LIMIT $limit
	`,
		Params: map[string]interface{}{"tenant_id": tenantID, "limit": limit},
	}
}

// BuildNodeWithProperties fetches a node including its full property bag
func BuildNodeWithProperties(tenantID, entityID string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id, entity_id: $entity_id})
		RETURN n.entity_id AS entity_id, labels(n)[0] AS type, n.name AS name,
		       n.mention_count AS mention_count, n.first_mentioned AS first_mentioned,
		       properties(n) AS props
	`,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
	}
}

// ============================================================================
// Entity-Merge Builders
// ============================================================================
//
// Merging loser into winner is a multi-statement sequence: read the loser's
// incident edges, re-create each on the winner with its original type and
// properties, write the merged property bag onto the winner, then delete the
// loser. The relationship type comes back as data and is switched through
// the known-type table before it is inlined into the copy statement.

// BuildOutgoingRelationships reads a node's outgoing edges with their types
// and properties
func BuildOutgoingRelationships(tenantID, entityID string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id, entity_id: $entity_id})-[r]->(m {tenant_id: $tenant_id})
		RETURN type(r) AS rel_type, m.entity_id AS other_id, properties(r) AS props
	`,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
	}
}

// BuildIncomingRelationships reads a node's incoming edges with their types
// and properties
func BuildIncomingRelationships(tenantID, entityID string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (m {tenant_id: $tenant_id})-[r]->(n {tenant_id: $tenant_id, entity_id: $entity_id})
		RETURN type(r) AS rel_type, m.entity_id AS other_id, properties(r) AS props
	`,
		Params: map[string]interface{}{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
	}
}

// BuildCopyRelationship re-creates one of the loser's edges on the winner,
// preserving the original type and properties. outgoing selects direction.
func BuildCopyRelationship(tenantID, winnerID, otherID, relType string, outgoing bool, props map[string]interface{}) (BatchOperation, error) {
	if !IsRelationshipType(relType) {
		return BatchOperation{}, errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("unknown relationship type: %s", relType), nil)
	}

	params := map[string]interface{}{
		"tenant_id": tenantID,
		"winner_id": winnerID,
		"other_id":  otherID,
	}

	var sets []string
	for _, key := range sortedKeys(props) {
		if err := safePropertyKey(key); err != nil {
			return BatchOperation{}, err
		}
		param := "r_" + key
		params[param] = props[key]
		sets = append(sets, fmt.Sprintf("r.%s = $%s", key, param))
	}
	setClause := ""
	if len(sets) > 0 {
		setClause = "SET " + strings.Join(sets, ", ")
	}

	pattern := fmt.Sprintf("(w)-[r:%s]->(o)", relType)
	if !outgoing {
		pattern = fmt.Sprintf("(o)-[r:%s]->(w)", relType)
	}

	statement := fmt.Sprintf(`
		MATCH (w {tenant_id: $tenant_id, entity_id: $winner_id})
		MATCH (o {tenant_id: $tenant_id, entity_id: $other_id})
		MERGE %s
		%s
	`, pattern, setClause)

	return BatchOperation{Statement: statement, Params: params}, nil
}

// BuildMergeCounters writes the summed mention count and the earliest
// first-seen timestamp onto the winner
func BuildMergeCounters(tenantID, winnerID string, mentionCount int64, firstMentioned string) BatchOperation {
	return BatchOperation{
		Statement: `
		MATCH (n {tenant_id: $tenant_id, entity_id: $entity_id})
		SET n.mention_count = $mention_count, n.first_mentioned = $first_mentioned
	`,
		Params: map[string]interface{}{
			"tenant_id":       tenantID,
			"entity_id":       winnerID,
			"mention_count":   mentionCount,
			"first_mentioned": firstMentioned,
		},
	}
}

// MergeProperties combines two property bags under the given policy
func MergeProperties(source, target map[string]interface{}, policy MergePolicy) map[string]interface{} {
	merged := make(map[string]interface{}, len(source)+len(target))
	switch policy {
	case MergePreferSource:
		for k, v := range target {
			merged[k] = v
		}
		for k, v := range source {
			merged[k] = v
		}
	case MergePreferTarget:
		for k, v := range source {
			merged[k] = v
		}
		for k, v := range target {
			merged[k] = v
		}
	default: // MergeCombine: union; list values are unioned, scalars keep target
		for k, v := range source {
			merged[k] = v
		}
		for k, v := range target {
			if existing, ok := merged[k]; ok {
				merged[k] = combineValues(existing, v)
			} else {
				merged[k] = v
			}
		}
	}
	return merged
}

func combineValues(source, target interface{}) interface{} {
	srcList, srcOK := toStringList(source)
	tgtList, tgtOK := toStringList(target)
	if !srcOK || !tgtOK {
		return target
	}
	seen := make(map[string]bool, len(tgtList))
	combined := make([]string, 0, len(srcList)+len(tgtList))
	for _, v := range tgtList {
		seen[v] = true
		combined = append(combined, v)
	}
	for _, v := range srcList {
		if !seen[v] {
			combined = append(combined, v)
		}
	}
	return combined
}

func toStringList(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
