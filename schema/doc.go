// Package schema derives JSON Schemas from Go types and validates raw JSON
// against them. The server uses it to advertise tool input schemas in
// listings and to reject call arguments before a tool handler runs.
//
// # Generation
//
// GenerateFromType walks a struct type and maps exported fields to object
// properties under their encoding/json names:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Full-text query"`
//	    Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,default=10"`
//	    Scope string `json:"scope,omitempty" jsonschema:"enum=code|docs|all"`
//	}
//
// The jsonschema tag is a comma-separated list of directives:
//
//	required              the field must be present in the arguments
//	description=<text>    property description shown in listings
//	minimum=<n>           lower bound for numeric fields
//	maximum=<n>           upper bound for numeric fields
//	enum=<a|b|c>          the allowed values
//	default=<v>           advertised default, typed to match the field
//
// Nested structs, slices, maps, and pointers follow their encoding/json
// shapes; untagged embedded structs flatten into the parent object and
// []byte is described as a string, matching how it marshals.
//
// # Validation
//
// Validate checks raw JSON against a schema and reports every violation in
// one pass, each located by a dotted path:
//
//	email: missing required field; tags[1]: want string, got number
package schema
