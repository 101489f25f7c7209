package constants

// Graph name constants
const (
	// GraphNamePrefix is prepended to every derived tenant graph name
	GraphNamePrefix = "tenant_"
	// GraphNameSuffix is appended to every derived tenant graph name
	GraphNameSuffix = "_kg"
	// MaxTenantIDLength bounds tenant identifiers before derivation
	MaxTenantIDLength = 64
)

// Neighborhood depth limits
const (
	// MinNeighborhoodDepth is the smallest hop count a neighborhood fetch accepts
	MinNeighborhoodDepth = 1
	// MaxNeighborhoodDepth is the largest hop count a neighborhood fetch accepts
	// Deeper traversals belong to an offline path, not the read API
	MaxNeighborhoodDepth = 3
)

// Entity type labels
const (
	EntityTypePerson       = "Person"
	EntityTypeProject      = "Project"
	EntityTypeMeeting      = "Meeting"
	EntityTypeTopic        = "Topic"
	EntityTypeTechnology   = "Technology"
	EntityTypeLocation     = "Location"
	EntityTypeOrganization = "Organization"
)

// Relationship type labels
const (
	RelWorksOn   = "WORKS_ON"
	RelAttended  = "ATTENDED"
	RelDiscussed = "DISCUSSED"
	RelUses      = "USES"
	RelLocatedIn = "LOCATED_IN"
	RelMemberOf  = "MEMBER_OF"
	RelKnows     = "KNOWS"
	RelManages   = "MANAGES"
	RelRelatedTo = "RELATED_TO"
)
