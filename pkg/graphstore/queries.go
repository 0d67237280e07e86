package graphstore

import "strings"

// Named traversal queries. Every backend must understand these expressions;
// the in-memory backend understands nothing else.
const (
	// QueryDirectRelationships lists relationships between $a and $b in
	// either direction. Columns: id, type.
	QueryDirectRelationships = `MATCH (a {id: $a})-[r]-(b {id: $b})
RETURN r.id AS id, type(r) AS type`

	// QuerySharedNeighbors counts distinct one-hop neighbors of both $a and
	// $b, ignoring Document nodes. Column: shared.
	QuerySharedNeighbors = `MATCH (a {id: $a})--(n)--(b {id: $b})
WHERE n.id <> $a AND n.id <> $b AND NOT n:Document
RETURN count(DISTINCT n) AS shared`

	// QueryRelationshipCounts counts outgoing relationships of $id per type.
	// Columns: type, count.
	QueryRelationshipCounts = `MATCH (p {id: $id})-[r]->()
RETURN type(r) AS type, count(r) AS count
ORDER BY type`

	// QueryMemberships lists the government bodies $id is a member of.
	// Columns: id, name.
	QueryMemberships = `MATCH (p {id: $id})-[:MEMBER_OF]->(g:GovernmentBody)
RETURN g.id AS id, g.name AS name
ORDER BY name`
)

// NormalizeQuery folds whitespace so that named queries can be compared
// independently of formatting.
func NormalizeQuery(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

// IntValue reads an integer column of a record. Drivers return int64 while
// JSON round trips produce float64.
func IntValue(rec Record, column string) int {
	switch v := rec[column].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// StringValue reads a string column of a record.
func StringValue(rec Record, column string) string {
	s, _ := rec[column].(string)
	return s
}
