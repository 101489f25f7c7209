package graph

import (
	"fmt"
	"time"

	"memograph/backend/internal/constants"
	"memograph/backend/pkg/errors"
)

// ============================================================================
// Graph Types
// ============================================================================

// Entity is an extracted candidate entity handed to the sync pipeline
type Entity struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Name       string                 `json:"name"`
	Confidence float64                `json:"confidence"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Node represents a stored graph vertex
type Node struct {
	EntityID       string                 `json:"entity_id"`
	Type           string                 `json:"type"`
	Name           string                 `json:"name"`
	MentionCount   int64                  `json:"mention_count"`
	FirstMentioned time.Time              `json:"first_mentioned"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
}

// Relationship represents a directed edge between two nodes
type Relationship struct {
	FromID     string                 `json:"from_id"`
	ToID       string                 `json:"to_id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// CandidateRelationship is a relationship proposed by the inference collaborator
type CandidateRelationship struct {
	FromID     string                 `json:"from_id"`
	FromType   string                 `json:"from_type"`
	ToID       string                 `json:"to_id"`
	ToType     string                 `json:"to_type"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// BatchOperation is one parameterized statement queued for execution
type BatchOperation struct {
	Statement string                 `json:"statement"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// QueryResult is the normalized outcome of one statement
type QueryResult struct {
	Rows       []map[string]interface{} `json:"rows"`
	Statistics map[string]int64         `json:"statistics"`
}

// Outcome classifies what one batch operation did
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeNoOp    Outcome = "no_op"
)

// OperationResult pairs a batch operation with its outcome
type OperationResult struct {
	Outcome    Outcome          `json:"outcome"`
	Statistics map[string]int64 `json:"statistics"`
}

// SyncResult summarizes one completed sync run
type SyncResult struct {
	NodesCreated         int               `json:"nodes_created"`
	NodesUpdated         int               `json:"nodes_updated"`
	RelationshipsCreated int               `json:"relationships_created"`
	EntitiesMerged       int               `json:"entities_merged"`
	EntityNodes          map[string]Entity `json:"entity_nodes"`
}

// MergePolicy selects how property bags combine during an entity merge
type MergePolicy string

const (
	MergePreferSource MergePolicy = "prefer_source"
	MergePreferTarget MergePolicy = "prefer_target"
	MergeCombine      MergePolicy = "combine"
)

// NodeRef is a lightweight node reference in neighborhood results
type NodeRef struct {
	EntityID string `json:"entity_id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

// Neighborhood is a center node plus every node reachable within the depth
type Neighborhood struct {
	Center    NodeRef   `json:"center"`
	Neighbors []NodeRef `json:"neighbors"`
	Depth     int       `json:"depth"`
}

// SearchResult represents one search hit
type SearchResult struct {
	EntityID string  `json:"entity_id"`
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// TenantStats aggregates a tenant's graph shape
type TenantStats struct {
	NodeCount         int64            `json:"node_count"`
	RelationshipCount int64            `json:"relationship_count"`
	NodesByType       map[string]int64 `json:"nodes_by_type"`
	MostConnected     []ConnectedNode  `json:"most_connected"`
}

// ConnectedNode is a stats entry for a highly connected node
type ConnectedNode struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Degree   int64  `json:"degree"`
}

// HealthStatus is the pool health snapshot
type HealthStatus struct {
	Status               string `json:"status"`
	PoolSize             int    `json:"pool_size"`
	AvailableConnections int    `json:"available_connections"`
}

// ============================================================================
// Type Schema
// ============================================================================

// entityTypes is the fixed set of node labels
var entityTypes = map[string]bool{
	constants.EntityTypePerson:       true,
	constants.EntityTypeProject:      true,
	constants.EntityTypeMeeting:      true,
	constants.EntityTypeTopic:        true,
	constants.EntityTypeTechnology:   true,
	constants.EntityTypeLocation:     true,
	constants.EntityTypeOrganization: true,
}

// IsEntityType reports whether label is one of the fixed node types
func IsEntityType(label string) bool {
	return entityTypes[label]
}

// typePair is an allowed (from, to) combination for a relationship type
type typePair struct {
	from string
	to   string
}

// relationshipSchema declares each relationship type's allowed endpoint
// types and whether the edge reads the same in both directions
type relationshipSchema struct {
	pairs         []typePair
	bidirectional bool
}

var relationshipTypes = map[string]relationshipSchema{
	constants.RelWorksOn: {
		pairs: []typePair{
			{constants.EntityTypePerson, constants.EntityTypeProject},
			{constants.EntityTypeOrganization, constants.EntityTypeProject},
		},
	},
	constants.RelAttended: {
		pairs: []typePair{
			{constants.EntityTypePerson, constants.EntityTypeMeeting},
		},
	},
	constants.RelDiscussed: {
		pairs: []typePair{
			{constants.EntityTypeMeeting, constants.EntityTypeTopic},
			{constants.EntityTypePerson, constants.EntityTypeTopic},
		},
	},
	constants.RelUses: {
		pairs: []typePair{
			{constants.EntityTypeProject, constants.EntityTypeTechnology},
			{constants.EntityTypePerson, constants.EntityTypeTechnology},
			{constants.EntityTypeOrganization, constants.EntityTypeTechnology},
		},
	},
	constants.RelLocatedIn: {
		pairs: []typePair{
			{constants.EntityTypePerson, constants.EntityTypeLocation},
			{constants.EntityTypeMeeting, constants.EntityTypeLocation},
			{constants.EntityTypeOrganization, constants.EntityTypeLocation},
		},
	},
	constants.RelMemberOf: {
		pairs: []typePair{
			{constants.EntityTypePerson, constants.EntityTypeOrganization},
		},
	},
	constants.RelKnows: {
		pairs: []typePair{
			{constants.EntityTypePerson, constants.EntityTypePerson},
		},
		bidirectional: true,
	},
	constants.RelManages: {
		pairs: []typePair{
			{constants.EntityTypePerson, constants.EntityTypePerson},
			{constants.EntityTypePerson, constants.EntityTypeProject},
		},
	},
	constants.RelRelatedTo: {
		pairs: []typePair{
			{constants.EntityTypeTopic, constants.EntityTypeTopic},
			{constants.EntityTypeTechnology, constants.EntityTypeTopic},
			{constants.EntityTypeProject, constants.EntityTypeTopic},
		},
		bidirectional: true,
	},
}

// IsRelationshipType reports whether relType is a known relationship type
func IsRelationshipType(relType string) bool {
	_, ok := relationshipTypes[relType]
	return ok
}

// ValidateRelationship checks a relationship type against its declared
// endpoint type pairs, honoring bidirectionality
func ValidateRelationship(relType, fromType, toType string) error {
	schema, ok := relationshipTypes[relType]
	if !ok {
		return errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("unknown relationship type: %s", relType), nil)
	}
	for _, p := range schema.pairs {
		if p.from == fromType && p.to == toType {
			return nil
		}
		if schema.bidirectional && p.from == toType && p.to == fromType {
			return nil
		}
	}
	return errors.New(errors.CodeInvalidEntity,
		fmt.Sprintf("relationship %s does not allow %s -> %s", relType, fromType, toType), nil)
}

// ============================================================================
// Property Schema
// ============================================================================

// propertySchemas lists the allowed property keys per entity type. Unknown
// keys are rejected rather than stored.
var propertySchemas = map[string]map[string]bool{
	constants.EntityTypePerson: {
		"role": true, "email": true, "organization": true, "aliases": true,
		"notes": true,
	},
	constants.EntityTypeProject: {
		"status": true, "description": true, "deadline": true, "priority": true,
		"tags": true,
	},
	constants.EntityTypeMeeting: {
		"date": true, "duration_minutes": true, "location": true, "agenda": true,
		"recurring": true,
	},
	constants.EntityTypeTopic: {
		"description": true, "keywords": true,
	},
	constants.EntityTypeTechnology: {
		"category": true, "version": true, "description": true,
	},
	constants.EntityTypeLocation: {
		"address": true, "city": true, "country": true, "timezone": true,
	},
	constants.EntityTypeOrganization: {
		"industry": true, "website": true, "size": true, "description": true,
	},
}

// ValidateEntity checks an entity's type, name and property bag. Property
// values must be string, number, bool or list-of-string.
func ValidateEntity(e Entity) error {
	if !IsEntityType(e.Type) {
		return errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("unknown entity type: %s", e.Type), nil)
	}
	if e.Name == "" {
		return errors.New(errors.CodeInvalidEntity, "entity name is required", nil)
	}
	allowed := propertySchemas[e.Type]
	for key, value := range e.Properties {
		if !allowed[key] {
			return errors.New(errors.CodeInvalidEntity,
				fmt.Sprintf("unknown property %q for entity type %s", key, e.Type), nil)
		}
		if err := validatePropertyValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func validatePropertyValue(key string, value interface{}) error {
	switch v := value.(type) {
	case string, bool, int, int64, float64:
		return nil
	case []string:
		return nil
	case []interface{}:
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return errors.New(errors.CodeInvalidEntity,
					fmt.Sprintf("property %q lists must contain only strings", key), nil)
			}
		}
		return nil
	default:
		return errors.New(errors.CodeInvalidEntity,
			fmt.Sprintf("property %q has unsupported type %T", key, value), nil)
	}
}
