package schema

// Node type names of the political catalogue.
const (
	Person          = "Person"
	Legislation     = "Legislation"
	Organization    = "Organization"
	GovernmentBody  = "GovernmentBody"
	Vote            = "Vote"
	Statement       = "Statement"
	MediaAppearance = "MediaAppearance"
	SocialPost      = "SocialPost"
	Document        = "Document"
	Location        = "Location"
	Event           = "Event"
)

// Relationship type names of the political catalogue.
const (
	Sponsors       = "SPONSORS"
	MemberOf       = "MEMBER_OF"
	VotedOn        = "VOTED_ON"
	AffiliatedWith = "AFFILIATED_WITH"
	MadeStatement  = "MADE_STATEMENT"
	AppearedIn     = "APPEARED_IN"
	Posted         = "POSTED"
	Mentions       = "MENTIONS"
	RelatedTo      = "RELATED_TO"
)

var provenance = []string{"id", "source_document", "confidence", "created_at"}

func attrs(extra ...string) []string {
	out := make([]string, 0, len(provenance)+len(extra))
	out = append(out, provenance...)
	return append(out, extra...)
}

// DefaultNodeTypes returns the node types of the political catalogue.
func DefaultNodeTypes() []NodeType {
	return []NodeType{
		{
			Name:      Person,
			Allowed:   attrs("name", "aliases", "party", "role", "verified", "description"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
		{
			Name:      Legislation,
			Allowed:   attrs("name", "bill_number", "status", "introduced", "description"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
		{
			Name:      Organization,
			Allowed:   attrs("name", "kind", "description"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
		{
			Name:      GovernmentBody,
			Allowed:   attrs("name", "jurisdiction", "chamber", "description"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
		{
			// name identifies the roll call, e.g. "Privacy Act, third reading".
			Name:      Vote,
			Allowed:   attrs("name", "position", "date"),
			Required:  []string{"name", "position"},
			UniqueKey: "name",
		},
		{
			Name:      Statement,
			Allowed:   attrs("name", "text", "date"),
			Required:  []string{"name", "text"},
			UniqueKey: "name",
		},
		{
			Name:      MediaAppearance,
			Allowed:   attrs("name", "outlet", "date", "url"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
		{
			Name:      SocialPost,
			Allowed:   attrs("name", "platform", "text", "url", "date"),
			Required:  []string{"name", "platform"},
			UniqueKey: "name",
		},
		{
			Name: Document,
			Allowed: attrs(
				"source_type",
				"title",
				"bias_score",
				"bias_variance",
				"bias_direction",
				"sentiment_label",
				"sentiment_polarity",
				"factual_accuracy",
				"flagged_claims",
				"has_hate_speech",
				"hate_speech_severity",
				"toxicity",
				"entity_count",
				"relationship_count",
			),
			Required:  []string{"id"},
			UniqueKey: "id",
		},
		{
			Name:      Location,
			Allowed:   attrs("name", "kind"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
		{
			Name:      Event,
			Allowed:   attrs("name", "date", "description"),
			Required:  []string{"name"},
			UniqueKey: "name",
		},
	}
}

// DefaultRelationshipTypes returns the relationship types of the political catalogue.
func DefaultRelationshipTypes() []RelationshipType {
	rel := attrs("role", "since", "until", "evidence")
	return []RelationshipType{
		{Name: Sponsors, From: Person, To: Legislation, Allowed: rel},
		{Name: MemberOf, From: Person, To: GovernmentBody, Allowed: rel},
		{Name: VotedOn, From: Person, To: Legislation, Allowed: attrs("position", "date", "evidence")},
		{Name: AffiliatedWith, From: Person, To: Organization, Allowed: rel},
		{Name: MadeStatement, From: Person, To: Statement, Allowed: rel},
		{Name: AppearedIn, From: Person, To: MediaAppearance, Allowed: rel},
		{Name: Posted, From: Person, To: SocialPost, Allowed: rel},
		{Name: Mentions, From: Document, To: AnyNode, Allowed: attrs("count")},
		{
			Name:     RelatedTo,
			From:     AnyNode,
			To:       AnyNode,
			Allowed:  attrs("shared_neighbors", "inferred"),
			Required: []string{"confidence"},
		},
	}
}

// Default returns a registry holding the political catalogue.
func Default() *Registry {
	r, err := NewRegistry(DefaultNodeTypes(), DefaultRelationshipTypes())
	if err != nil {
		panic("schema: invalid default catalogue: " + err.Error())
	}
	return r
}
