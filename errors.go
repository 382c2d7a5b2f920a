package cairn

import (
	"errors"
	"fmt"

	"github.com/arasdb/cairn/internal/record"
	"github.com/arasdb/cairn/internal/schema"
)

// ErrNotFound is returned by Update on a missing identifier. Get does not
// return it: an unknown identifier is reported by Get's found result.
var ErrNotFound = errors.New("cairn: not found")

// ErrStorage wraps an underlying filesystem/IO failure from the storage
// engine. It is considered unrecoverable for the operation that raised
// it, and likely for the store as a whole.
var ErrStorage = errors.New("storage error")

// ErrCorruptRecord is the same sentinel internal/record raises for a
// malformed line encountered outside WAL replay (which tolerates a torn
// trailing line instead of failing).
var ErrCorruptRecord = record.ErrCorrupt

// ValidationError reports the first schema rule a document failed: one
// of Kind{Type,Unique,Length,NumericBound,Enum,Reference}. It leaves
// storage and the uniqueness registry unchanged.
type ValidationError = schema.ValidationError

// Kind names a schema rule category; see the Kind* constants.
type Kind = schema.Kind

const (
	KindType         = schema.KindType
	KindUnique       = schema.KindUnique
	KindLength       = schema.KindLength
	KindNumericBound = schema.KindNumericBound
	KindEnum         = schema.KindEnum
	KindReference    = schema.KindReference
)

func wrapStorage(op string, err error) error {
	return fmt.Errorf("cairn: %s: %w: %w", op, ErrStorage, err)
}
