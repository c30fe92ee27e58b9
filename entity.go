package strata

import (
	"fmt"
	"reflect"

	"github.com/syssam/strata/meta"
)

// Entity is one row of an entity type, owned by a single EntityManager.
//
// Primitive fields are read with Get and written with Set. Relation
// fields are reached through their proxies, Reference and Collection.
// A relation field value is either a raw foreign identity (int64), the
// resolved *Entity, or nil.
type Entity struct {
	em        *EntityManager
	meta      *meta.EntityMeta
	id        int64
	data      map[string]any
	dirty     bool
	relations map[string]relation
}

// ID returns the identity of the entity, or 0 if it was not persisted yet.
func (e *Entity) ID() int64 { return e.id }

// IsNew reports whether the entity has no identity yet.
func (e *Entity) IsNew() bool { return e.id == 0 }

// IsDirty reports whether the entity has changes that were not flushed.
func (e *Entity) IsDirty() bool { return e.dirty }

// Meta returns the metadata of the entity type.
func (e *Entity) Meta() *meta.EntityMeta { return e.meta }

// Manager returns the EntityManager that owns the entity.
func (e *Entity) Manager() *EntityManager { return e.em }

// Get returns the value of a primitive field, or the raw value of a
// many-to-one field. It returns nil for unknown and unset fields.
func (e *Entity) Get(field string) any {
	return e.data[field]
}

// Set assigns a field and marks the entity dirty. Assigning the current
// value is a no-op. Reference fields accept an *Entity, a raw int64
// identity or nil, and route through the reference proxy so the inverse
// side stays consistent.
func (e *Entity) Set(field string, v any) error {
	if rel, ok := e.meta.Relation(field); ok {
		return e.setRelation(rel, v)
	}
	if _, ok := e.meta.FieldColumn(field); !ok {
		return NewInvariantError(e.meta.Name, "unknown field %q", field)
	}
	if old, ok := e.data[field]; ok && reflect.DeepEqual(old, v) {
		return nil
	}
	e.data[field] = v
	e.dirty = true
	return nil
}

func (e *Entity) setRelation(rel meta.Relation, v any) error {
	switch rel.Kind {
	case meta.ManyToOne:
		ref := e.relations[rel.Field].(*manyToOneReference)
		switch v := v.(type) {
		case nil:
			return ref.Set(nil)
		case *Entity:
			return ref.Set(v)
		case int64:
			ref.setID(v)
			return nil
		}
	case meta.OneToOne:
		ref := e.relations[rel.Field].(*oneToOneReference)
		switch v := v.(type) {
		case nil:
			return ref.Set(nil)
		case *Entity:
			return ref.Set(v)
		}
	default:
		return NewInvariantError(e.meta.Name, "%s is a collection, use Collection(%q)", rel.Field, rel.Field)
	}
	return NewInvariantError(e.meta.Name, "invalid value %T for %s", v, rel.Field)
}

// Reference returns the proxy of a many-to-one or one-to-one field.
// It panics with an *InvariantError if the field is not a reference.
func (e *Entity) Reference(field string) Reference {
	if ref, ok := e.relations[field].(Reference); ok {
		return ref
	}
	panic(NewInvariantError(e.meta.Name, "%q is not a reference field", field))
}

// Collection returns the proxy of a one-to-many or many-to-many field.
// It panics with an *InvariantError if the field is not a collection.
func (e *Entity) Collection(field string) Collection {
	if c, ok := e.relations[field].(Collection); ok {
		return c
	}
	panic(NewInvariantError(e.meta.Name, "%q is not a collection field", field))
}

// String implements the fmt.Stringer interface.
func (e *Entity) String() string {
	if e.id == 0 {
		return e.meta.Name + "#new"
	}
	return fmt.Sprintf("%s#%d", e.meta.Name, e.id)
}

// inverseOf returns the proxy on e paired with rel, the relation of
// another entity type pointing at e.
func (e *Entity) inverseOf(rel meta.Relation) inverse {
	if e == nil || rel.OtherField == "" {
		return nil
	}
	inv, _ := e.relations[rel.OtherField].(inverse)
	return inv
}

// pointsAt reports whether the many-to-one field currently refers to
// owner, either resolved or as a raw identity.
func (e *Entity) pointsAt(field string, owner *Entity) bool {
	switch v := e.data[field].(type) {
	case *Entity:
		return v == owner
	case int64:
		return owner.id != 0 && v == owner.id
	}
	return false
}

// columnValue serializes the column of the current row image. Resolved
// foreign keys are written as the identity of their target.
func (e *Entity) columnValue(c meta.Column) (any, error) {
	v := e.data[c.Field]
	if target, ok := v.(*Entity); ok && c.ForeignKey {
		if target.id == 0 {
			return nil, NewInvariantError(e.meta.Name, "%s references %s which has no identity", c.Field, target)
		}
		v = target.id
	}
	out, err := c.Serde.ToDB(v)
	if err != nil {
		return nil, fmt.Errorf("strata: serializing %s.%s: %w", e.meta.Name, c.Field, err)
	}
	return out, nil
}
