// Package schema implements declarative per-field validation rules for
// documents stored in a collection: type checks, uniqueness, enumeration,
// length and numeric bounds, and cross-collection reference checks.
package schema

import (
	"fmt"
	"math"
	"reflect"
	"sync"
)

// Kind identifies which rule a ValidationError came from.
type Kind string

const (
	KindType         Kind = "type"
	KindUnique       Kind = "unique"
	KindLength       Kind = "length"
	KindNumericBound Kind = "numeric_bound"
	KindEnum         Kind = "enum"
	KindReference    Kind = "reference"
)

// ValidationError reports the first rule a document failed. Validation
// aborts on the first failure; a document is never partially accepted.
type ValidationError struct {
	Kind   Kind
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %s %s: %s", e.Kind, e.Field, e.Detail)
}

// Type names the admissible value categories for the "type" rule. JSON
// decoding collapses all numbers into float64, so "integer" is checked as
// a float64 with no fractional part rather than as a distinct Go type.
type Type string

const (
	TypeString   Type = "string"
	TypeInteger  Type = "integer"
	TypeFloating Type = "floating"
	TypeBoolean  Type = "boolean"
	TypeSequence Type = "sequence"
	TypeMapping  Type = "mapping"
)

// FieldRules is one field's rule set. A zero value of a bound pointer
// means that bound is not enforced; rules only apply when the field is
// present in the document being validated.
type FieldRules struct {
	Type   Type
	Unique bool
	Enum   []any

	LengthGT, LengthGTE, LengthLT, LengthLTE *int
	NumGT, NumGTE, NumLT, NumLTE             *float64

	// Ref names a collection whose documents the field's string value
	// must identify.
	Ref string
}

// Field pairs a field name with its rule set. Schemas are defined as an
// ordered list rather than a map so that validation failures are
// deterministic across runs.
type Field struct {
	Name  string
	Rules FieldRules
}

// Schema is an ordered field→rule-set mapping plus the in-memory
// uniqueness registry described in the design notes: each unique field
// owns a map from observed value to the id of the document that holds
// it, primed from a full scan the first time a write touches that field
// and kept current by Register/Unregister thereafter.
type Schema struct {
	mu     sync.Mutex
	fields []Field
	unique map[string]map[string]string // field -> value -> owning doc id
	primed map[string]bool
}

// New builds a Schema from an ordered field list.
func New(fields []Field) *Schema {
	return &Schema{
		fields: fields,
		unique: make(map[string]map[string]string),
		primed: make(map[string]bool),
	}
}

// UniqueFields returns the names of fields carrying a unique rule, in
// schema order.
func (s *Schema) UniqueFields() []string {
	var names []string
	for _, f := range s.fields {
		if f.Rules.Unique {
			names = append(names, f.Name)
		}
	}
	return names
}

// IsPrimed reports whether field's uniqueness registry has already been
// rebuilt from a full scan.
func (s *Schema) IsPrimed(field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primed[field]
}

// Prime seeds field's uniqueness registry from a caller-supplied full
// scan (value -> owning document id) and marks it primed. Called lazily,
// at most once per field, on the first write that touches it.
func (s *Schema) Prime(field string, values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = v
	}
	s.unique[field] = m
	s.primed[field] = true
}

// Validate checks doc against every rule, in field order, stopping at
// the first failure. docID identifies the document being validated (a
// newly generated id for inserts, the existing id for updates) so that a
// unique-field value already owned by this same document is not treated
// as a conflict. refLookup resolves whether id exists in the named
// collection; it is only consulted for fields carrying a ref rule.
func (s *Schema) Validate(doc map[string]any, docID string, refLookup func(collection, id string) (bool, error)) error {
	for _, f := range s.fields {
		val, present := doc[f.Name]
		if !present {
			continue
		}

		if f.Rules.Type != "" {
			if !checkType(val, f.Rules.Type) {
				return &ValidationError{Kind: KindType, Field: f.Name, Detail: fmt.Sprintf("expected %s", f.Rules.Type)}
			}
		}

		if f.Rules.Enum != nil && !enumContains(f.Rules.Enum, val) {
			return &ValidationError{Kind: KindEnum, Field: f.Name, Detail: "value not in enumerated set"}
		}

		if str, ok := val.(string); ok {
			if err := checkLength(str, f.Rules); err != nil {
				return &ValidationError{Kind: KindLength, Field: f.Name, Detail: err.Error()}
			}
		}

		if n, ok := asFloat(val); ok {
			if err := checkNumericBounds(n, f.Rules); err != nil {
				return &ValidationError{Kind: KindNumericBound, Field: f.Name, Detail: err.Error()}
			}
		}

		if f.Rules.Unique {
			if err := s.checkUnique(f.Name, val, docID); err != nil {
				return err
			}
		}

		if f.Rules.Ref != "" {
			if err := checkReference(f.Name, f.Rules.Ref, val, refLookup); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Schema) checkUnique(field string, val any, docID string) error {
	key, ok := uniqueKey(val)
	if !ok {
		return &ValidationError{Kind: KindUnique, Field: field, Detail: "value is not comparable for uniqueness"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owner, exists := s.unique[field][key]
	if exists && owner != docID {
		return &ValidationError{Kind: KindUnique, Field: field, Detail: fmt.Sprintf("value already used by document %q", owner)}
	}
	return nil
}

// Register records doc's unique-field values as owned by docID. Called
// only after doc has been durably written.
func (s *Schema) Register(doc map[string]any, docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fields {
		if !f.Rules.Unique {
			continue
		}
		val, present := doc[f.Name]
		if !present {
			continue
		}
		key, ok := uniqueKey(val)
		if !ok {
			continue
		}
		if s.unique[f.Name] == nil {
			s.unique[f.Name] = make(map[string]string)
		}
		s.unique[f.Name][key] = docID
	}
}

// Unregister releases docID's hold on doc's unique-field values, freeing
// them for reuse. Used by Collection.Update to exclude the document's
// own prior values from the uniqueness check before re-validating.
func (s *Schema) Unregister(doc map[string]any, docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fields {
		if !f.Rules.Unique {
			continue
		}
		val, present := doc[f.Name]
		if !present {
			continue
		}
		key, ok := uniqueKey(val)
		if !ok {
			continue
		}
		if owner := s.unique[f.Name][key]; owner == docID {
			delete(s.unique[f.Name], key)
		}
	}
}

// UniqueKey encodes val the same way the uniqueness registry does
// internally, so callers priming the registry from an external scan (see
// Collection.ensureUniquePrimed) stay in lockstep with Register/checkUnique.
func UniqueKey(val any) (string, bool) {
	return uniqueKey(val)
}

func uniqueKey(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		return "s:" + v, true
	case bool:
		return fmt.Sprintf("b:%t", v), true
	case float64:
		return fmt.Sprintf("n:%v", v), true
	default:
		return "", false
	}
}

func checkType(val any, want Type) bool {
	switch want {
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeBoolean:
		_, ok := val.(bool)
		return ok
	case TypeInteger:
		n, ok := val.(float64)
		return ok && n == math.Trunc(n)
	case TypeFloating:
		_, ok := val.(float64)
		return ok
	case TypeSequence:
		_, ok := val.([]any)
		return ok
	case TypeMapping:
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}

func enumContains(enum []any, val any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, val) {
			return true
		}
	}
	return false
}

func checkLength(s string, r FieldRules) error {
	n := len(s)
	if r.LengthGT != nil && !(n > *r.LengthGT) {
		return fmt.Errorf("length %d not > %d", n, *r.LengthGT)
	}
	if r.LengthGTE != nil && !(n >= *r.LengthGTE) {
		return fmt.Errorf("length %d not >= %d", n, *r.LengthGTE)
	}
	if r.LengthLT != nil && !(n < *r.LengthLT) {
		return fmt.Errorf("length %d not < %d", n, *r.LengthLT)
	}
	if r.LengthLTE != nil && !(n <= *r.LengthLTE) {
		return fmt.Errorf("length %d not <= %d", n, *r.LengthLTE)
	}
	return nil
}

func checkNumericBounds(n float64, r FieldRules) error {
	if r.NumGT != nil && !(n > *r.NumGT) {
		return fmt.Errorf("%v not > %v", n, *r.NumGT)
	}
	if r.NumGTE != nil && !(n >= *r.NumGTE) {
		return fmt.Errorf("%v not >= %v", n, *r.NumGTE)
	}
	if r.NumLT != nil && !(n < *r.NumLT) {
		return fmt.Errorf("%v not < %v", n, *r.NumLT)
	}
	if r.NumLTE != nil && !(n <= *r.NumLTE) {
		return fmt.Errorf("%v not <= %v", n, *r.NumLTE)
	}
	return nil
}

func checkReference(field, collection string, val any, refLookup func(collection, id string) (bool, error)) error {
	id, ok := val.(string)
	if !ok {
		return &ValidationError{Kind: KindReference, Field: field, Detail: "reference value must be a string id"}
	}
	if refLookup == nil {
		return &ValidationError{Kind: KindReference, Field: field, Detail: "no reference resolver supplied"}
	}
	found, err := refLookup(collection, id)
	if err != nil {
		return fmt.Errorf("schema: reference lookup for %s: %w", field, err)
	}
	if !found {
		return &ValidationError{Kind: KindReference, Field: field, Detail: fmt.Sprintf("no document %q in collection %q", id, collection)}
	}
	return nil
}

func asFloat(val any) (float64, bool) {
	n, ok := val.(float64)
	return n, ok
}
