// Package config implements the schema-validated, thread-observable
// configuration store that feeds the connection state machine:
// typed keys, partial previewed updates, and introspection dumps.
package config

import (
	"sync"

	"github.com/QuadTriangle/wsagent/internal/value"
	"github.com/tidwall/sjson"
)

// Store holds the schema and the current user-supplied values. The zero
// value is not usable; use NewStore.
type Store struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

// NewStore creates an empty store. Keys are registered with RegisterKey.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// RegisterKey adds a schema entry. Fails if required and def are both
// given. Registration order has no semantic effect; it only determines
// iteration order in Dump/preview output.
func (s *Store) RegisterKey(key string, typ Type, required bool, def DefaultProducer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := newEntry(key, typ, required, def)
	if err != nil {
		return err
	}
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = e
	return nil
}

// Get returns the effective value for key, or Null if key is unknown.
func (s *Store) Get(key string) value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return value.Null()
	}
	return e.effectiveValue()
}

// PreviewEntry is one key's row in a Preview / Dump document.
type PreviewEntry struct {
	UserValue      value.Value
	DefaultValue   value.Value
	HasDefault     bool
	EffectiveValue value.Value
	Type           Type
	Required       bool
}

// Preview is a read-only projection of the store, produced by
// PreviewUpdate or Dump, in the same shape either way.
type Preview struct {
	order   []string
	entries map[string]PreviewEntry
}

// Keys returns the schema keys in registration order.
func (p *Preview) Keys() []string { return p.order }

// Entry returns the row for key and whether it exists.
func (p *Preview) Entry(key string) (PreviewEntry, bool) {
	e, ok := p.entries[key]
	return e, ok
}

// JSON renders the preview in the wire shape documented in spec.md §6,
// built incrementally with sjson so the output never round-trips
// through an intermediate Go struct with its own json tags.
func (p *Preview) JSON() []byte {
	doc := []byte("{}")
	for _, key := range p.order {
		e := p.entries[key]
		sub := []byte("{}")
		sub, _ = sjson.SetBytes(sub, "user_value", e.UserValue.Interface())
		if e.HasDefault {
			sub, _ = sjson.SetBytes(sub, "default_value", e.DefaultValue.Interface())
		}
		sub, _ = sjson.SetBytes(sub, "effective_value", e.EffectiveValue.Interface())
		sub, _ = sjson.SetBytes(sub, "type", e.Type.String())
		if e.Required {
			sub, _ = sjson.SetBytes(sub, "required", true)
		}
		doc, _ = sjson.SetRawBytes(doc, key, sub)
	}
	return doc
}

// buildPreview merges updates (an Object, or Null meaning "no updates")
// against the current store without mutating it or validating it.
func (s *Store) buildPreview(updates value.Value) *Preview {
	p := &Preview{
		order:   append([]string(nil), s.order...),
		entries: make(map[string]PreviewEntry, len(s.order)),
	}
	var updateObj map[string]value.Value
	if updates.IsObject() {
		updateObj = objectOf(updates)
	}

	for _, key := range s.order {
		e := s.entries[key]
		pe := PreviewEntry{Type: e.typ, Required: e.required}

		if updateObj != nil {
			if uv, present := updateObj[key]; present {
				pe.UserValue = uv
			} else {
				pe.UserValue = e.userValue
			}
		} else {
			pe.UserValue = e.userValue
		}

		if e.def != nil {
			pe.DefaultValue = e.def()
			pe.HasDefault = true
		} else {
			pe.DefaultValue = value.Null()
		}

		if !pe.UserValue.IsNull() {
			pe.EffectiveValue = pe.UserValue
		} else if pe.HasDefault {
			pe.EffectiveValue = pe.DefaultValue
		} else {
			pe.EffectiveValue = value.Null()
		}

		p.entries[key] = pe
	}
	return p
}

// objectOf extracts the backing map from an Object-kind Value.
func objectOf(v value.Value) map[string]value.Value {
	m, _ := v.ObjectEntries()
	return m
}

func validate(p *Preview) []Error {
	var errs []Error
	for _, key := range p.order {
		e := p.entries[key]
		if e.Required && e.EffectiveValue.IsNull() {
			errs = append(errs, Error{Key: key, Message: "is required"})
			continue
		}
		if e.EffectiveValue.IsNull() {
			continue
		}
		switch e.Type {
		case STRING:
			if !e.EffectiveValue.IsString() {
				errs = append(errs, Error{Key: key, Message: "must be a string"})
			}
		case INT:
			if !e.EffectiveValue.ConvertibleToInt() {
				errs = append(errs, Error{Key: key, Message: "must be an integer"})
			}
		case UINT:
			if !e.EffectiveValue.ConvertibleToInt() {
				errs = append(errs, Error{Key: key, Message: "must be an integer"})
			} else if !e.EffectiveValue.ConvertibleToUInt() {
				errs = append(errs, Error{Key: key, Message: "must be greater than 0"})
			}
		case FLOAT:
			if !e.EffectiveValue.IsNumber() {
				errs = append(errs, Error{Key: key, Message: "must be a number"})
			}
		case BOOL:
			if !e.EffectiveValue.IsBool() {
				errs = append(errs, Error{Key: key, Message: "must be a boolean"})
			}
		}
	}
	SortErrors(errs)
	return errs
}

// PreviewUpdate merges updates against the current store and validates
// the result, without mutating the store. updates must be an Object or
// Null; anything else produces a single document-level error.
func (s *Store) PreviewUpdate(updates value.Value) (*Preview, []Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !updates.IsNull() && !updates.IsObject() {
		return s.buildPreview(value.Null()), []Error{{Message: "The JSON document must be an object"}}
	}

	p := s.buildPreview(updates)
	return p, validate(p)
}

// ForceApplyPreview copies each row's UserValue into the store without
// validating it. The caller must ensure preview came from PreviewUpdate
// (or Dump) against this same store.
func (s *Store) ForceApplyPreview(p *Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range p.order {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		e.userValue = p.entries[key].UserValue
	}
}

// Update previews updates and, only if validation produced no errors,
// applies them. Returns whether the update was applied.
func (s *Store) Update(updates value.Value) (bool, []Error) {
	preview, errs := s.PreviewUpdate(updates)
	if len(errs) > 0 {
		return false, errs
	}
	s.ForceApplyPreview(preview)
	return true, nil
}

// Dump returns a snapshot of the store in the same shape as Preview.
func (s *Store) Dump() *Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildPreview(value.Null())
}
