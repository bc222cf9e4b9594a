// Package schema compiles and validates JSON Schemas for tool inputs and outputs.
//
// Schemas can be written as raw maps (as advertised to models) or built programmatically:
//
//	input := schema.Object(map[string]*schema.Field{
//	    "query": schema.String("Search query"),
//	    "limit": schema.Integer("Max results").Min(1).Max(100),
//	}, "query")
//
//	s, err := schema.Compile(input)
//	if err != nil {
//	    // invalid schema
//	}
//
//	if err := s.Validate(map[string]any{"query": "lattice"}); err != nil {
//	    // err is a *schema.ValidationError
//	}
//
// Values are normalised through their JSON encoding before validation, so Go structs,
// ints and float64 decoded from JSON are all accepted the same way.
package schema
