package schema

// Object builds an object schema. Property names passed in required are mandatory.
func Object(properties map[string]*Field, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, f := range properties {
		props[name] = f.Build()
	}

	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Field describes one property of an object schema.
type Field struct {
	attrs map[string]any
}

func newField(typ, description string) *Field {
	f := &Field{attrs: map[string]any{"type": typ}}
	if description != "" {
		f.attrs["description"] = description
	}
	return f
}

// String creates a string field.
func String(description string) *Field { return newField("string", description) }

// Integer creates an integer field.
func Integer(description string) *Field { return newField("integer", description) }

// Number creates a number field.
func Number(description string) *Field { return newField("number", description) }

// Boolean creates a boolean field.
func Boolean(description string) *Field { return newField("boolean", description) }

// Array creates an array field with the given item schema.
func Array(description string, items map[string]any) *Field {
	f := newField("array", description)
	f.attrs["items"] = items
	return f
}

// Enum restricts the allowed values.
func (f *Field) Enum(values ...any) *Field {
	f.attrs["enum"] = values
	return f
}

// Min sets the inclusive minimum of a numeric field.
func (f *Field) Min(v float64) *Field {
	f.attrs["minimum"] = v
	return f
}

// Max sets the inclusive maximum of a numeric field.
func (f *Field) Max(v float64) *Field {
	f.attrs["maximum"] = v
	return f
}

// MinLength sets the minimum length of a string field.
func (f *Field) MinLength(n int) *Field {
	f.attrs["minLength"] = n
	return f
}

// Pattern sets a regular expression a string field must match.
func (f *Field) Pattern(p string) *Field {
	f.attrs["pattern"] = p
	return f
}

// Default documents the default value.
func (f *Field) Default(v any) *Field {
	f.attrs["default"] = v
	return f
}

// Build returns the map representation of the field.
func (f *Field) Build() map[string]any {
	out := make(map[string]any, len(f.attrs))
	for k, v := range f.attrs {
		out[k] = v
	}
	return out
}
