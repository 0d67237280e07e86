// Package schema holds the static catalogue of graph node and relationship
// types and the validation rules attached to them.
//
// A Registry is immutable once built by NewRegistry, so it can be shared by
// any number of goroutines without synchronization.
package schema

import (
	"fmt"
	"slices"
	"sort"
)

// AnyNode is the endpoint wildcard of a RelationshipType.
const AnyNode = "*"

// NodeType declares a node category of the graph.
//
// Allowed lists every attribute a node of this type may carry, Required is
// the subset that must be present. UniqueKey names the attribute that
// identifies a node for exact-match lookups; it must be required, so every
// node of a keyed type can be found again.
type NodeType struct {
	Name      string
	Allowed   []string
	Required  []string
	UniqueKey string
}

// RelationshipType declares a directed predicate between two node types.
// From and To hold node type names or AnyNode.
type RelationshipType struct {
	Name     string
	From     string
	To       string
	Allowed  []string
	Required []string
}

// Registry validates node and relationship attribute maps against the
// declared types.
type Registry struct {
	nodes map[string]NodeType
	rels  map[string]RelationshipType
}

// NewRegistry builds a registry. It fails on duplicate type names, on
// required attributes missing from the allowed set, on unique keys that are
// not required and on relationship endpoints naming unknown node types.
func NewRegistry(nodes []NodeType, rels []RelationshipType) (*Registry, error) {
	r := &Registry{
		nodes: make(map[string]NodeType, len(nodes)),
		rels:  make(map[string]RelationshipType, len(rels)),
	}

	for _, nt := range nodes {
		if nt.Name == "" {
			return nil, fmt.Errorf("node type without name")
		}
		if _, ok := r.nodes[nt.Name]; ok {
			return nil, fmt.Errorf("duplicate node type %q", nt.Name)
		}
		for _, req := range nt.Required {
			if !slices.Contains(nt.Allowed, req) {
				return nil, fmt.Errorf("node type %q: required attribute %q is not allowed", nt.Name, req)
			}
		}
		if nt.UniqueKey != "" && !slices.Contains(nt.Allowed, nt.UniqueKey) {
			return nil, fmt.Errorf("node type %q: unique key %q is not allowed", nt.Name, nt.UniqueKey)
		}
		if nt.UniqueKey != "" && !slices.Contains(nt.Required, nt.UniqueKey) {
			return nil, fmt.Errorf("node type %q: unique key %q is not required", nt.Name, nt.UniqueKey)
		}
		r.nodes[nt.Name] = cloneNodeType(nt)
	}

	for _, rt := range rels {
		if rt.Name == "" {
			return nil, fmt.Errorf("relationship type without name")
		}
		if _, ok := r.rels[rt.Name]; ok {
			return nil, fmt.Errorf("duplicate relationship type %q", rt.Name)
		}
		for _, end := range []string{rt.From, rt.To} {
			if end == AnyNode {
				continue
			}
			if _, ok := r.nodes[end]; !ok {
				return nil, fmt.Errorf("relationship type %q: unknown endpoint type %q", rt.Name, end)
			}
		}
		for _, req := range rt.Required {
			if !slices.Contains(rt.Allowed, req) {
				return nil, fmt.Errorf("relationship type %q: required attribute %q is not allowed", rt.Name, req)
			}
		}
		r.rels[rt.Name] = cloneRelationshipType(rt)
	}

	return r, nil
}

// LookupNodeType returns the declared node type with the given name.
func (r *Registry) LookupNodeType(name string) (NodeType, bool) {
	nt, ok := r.nodes[name]
	if !ok {
		return NodeType{}, false
	}
	return cloneNodeType(nt), true
}

// LookupRelationshipType returns the declared relationship type with the given name.
func (r *Registry) LookupRelationshipType(name string) (RelationshipType, bool) {
	rt, ok := r.rels[name]
	if !ok {
		return RelationshipType{}, false
	}
	return cloneRelationshipType(rt), true
}

// ValidateNode reports whether attrs form a valid node of the named type.
func (r *Registry) ValidateNode(typeName string, attrs map[string]any) bool {
	nt, ok := r.nodes[typeName]
	if !ok {
		return false
	}
	return validAttributes(nt.Allowed, nt.Required, attrs)
}

// ValidateRelationship reports whether attrs are valid for the named
// relationship type. Endpoint existence is not checked here.
func (r *Registry) ValidateRelationship(typeName string, attrs map[string]any) bool {
	rt, ok := r.rels[typeName]
	if !ok {
		return false
	}
	return validAttributes(rt.Allowed, rt.Required, attrs)
}

// Endpoints returns the declared From and To node types of a relationship type.
func (r *Registry) Endpoints(typeName string) (from, to string, ok bool) {
	rt, ok := r.rels[typeName]
	if !ok {
		return "", "", false
	}
	return rt.From, rt.To, true
}

// AcceptsEndpoints reports whether a relationship of the named type may
// connect a node of type from to a node of type to.
func (r *Registry) AcceptsEndpoints(typeName, from, to string) bool {
	rt, ok := r.rels[typeName]
	if !ok {
		return false
	}
	return endpointMatches(rt.From, from) && endpointMatches(rt.To, to)
}

// ValidatePartial reports whether attrs only names attributes allowed on the
// node type. Required attributes are not enforced, which is what updates need.
func (r *Registry) ValidatePartial(typeName string, attrs map[string]any) bool {
	nt, ok := r.nodes[typeName]
	if !ok {
		return false
	}
	for k := range attrs {
		if !slices.Contains(nt.Allowed, k) {
			return false
		}
	}
	return true
}

// NodeTypes lists the declared node type names in sorted order.
func (r *Registry) NodeTypes() []string {
	names := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RelationshipTypes lists the declared relationship type names in sorted order.
func (r *Registry) RelationshipTypes() []string {
	names := make([]string, 0, len(r.rels))
	for n := range r.rels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func endpointMatches(declared, actual string) bool {
	return declared == AnyNode || declared == actual
}

func validAttributes(allowed, required []string, attrs map[string]any) bool {
	for _, req := range required {
		v, ok := attrs[req]
		if !ok || isEmpty(v) {
			return false
		}
	}
	for k := range attrs {
		if !slices.Contains(allowed, k) {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

func cloneNodeType(nt NodeType) NodeType {
	nt.Allowed = slices.Clone(nt.Allowed)
	nt.Required = slices.Clone(nt.Required)
	return nt
}

func cloneRelationshipType(rt RelationshipType) RelationshipType {
	rt.Allowed = slices.Clone(rt.Allowed)
	rt.Required = slices.Clone(rt.Required)
	return rt
}
