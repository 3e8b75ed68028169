package config

import (
	"fmt"

	"github.com/QuadTriangle/wsagent/internal/value"
)

// Type is a schema entry's value type.
type Type uint8

const (
	STRING Type = iota
	INT
	UINT
	FLOAT
	BOOL
)

func (t Type) String() string {
	switch t {
	case STRING:
		return "string"
	case INT:
		return "integer"
	case UINT:
		return "unsigned integer"
	case FLOAT:
		return "float"
	case BOOL:
		return "boolean"
	default:
		return "unknown"
	}
}

// DefaultProducer returns a dynamic default value. It is invoked each
// time an effective value or dump is computed, so it may depend on the
// current time, environment, or anything else.
type DefaultProducer func() value.Value

// StaticDefault wraps a constant as a DefaultProducer.
func StaticDefault(v value.Value) DefaultProducer {
	return func() value.Value { return v }
}

// entry is an immutable schema registration plus the store's mutable
// user-supplied value for that key.
type entry struct {
	key      string
	typ      Type
	required bool
	def      DefaultProducer

	userValue value.Value // value.Null() means "unset"
}

func (e *entry) effectiveValue() value.Value {
	if !e.userValue.IsNull() {
		return e.userValue
	}
	if e.def != nil {
		return e.def()
	}
	return value.Null()
}

// newEntry validates the required/default invariant before an entry
// is created. required and def are mutually exclusive.
func newEntry(key string, typ Type, required bool, def DefaultProducer) (*entry, error) {
	if required && def != nil {
		return nil, fmt.Errorf("config: key %q cannot be required and have a default value at the same time", key)
	}
	return &entry{key: key, typ: typ, required: required, def: def, userValue: value.Null()}, nil
}
