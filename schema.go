package cairn

import "github.com/arasdb/cairn/internal/schema"

// Schema, Field, and FieldRules re-export the internal/schema types so
// callers never need to import that package directly.
type Schema = schema.Schema
type Field = schema.Field
type FieldRules = schema.FieldRules

const (
	TypeString   = schema.TypeString
	TypeInteger  = schema.TypeInteger
	TypeFloating = schema.TypeFloating
	TypeBoolean  = schema.TypeBoolean
	TypeSequence = schema.TypeSequence
	TypeMapping  = schema.TypeMapping
)

// NewSchema builds a Schema from an ordered field list.
func NewSchema(fields []Field) *Schema {
	return schema.New(fields)
}
