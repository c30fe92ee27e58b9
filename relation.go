package strata

import (
	"context"
	"slices"

	"github.com/syssam/strata/meta"
)

// Reference is the proxy of a many-to-one or one-to-one field.
type Reference interface {
	// Load resolves the reference through the identity map. It only
	// reaches the database when the target is not materialized yet.
	Load(context.Context) (*Entity, error)
	// Get returns the target, or a NotLoadedError if it was not loaded.
	Get() (*Entity, error)
	// Set assigns the target, or clears the reference when target is
	// nil, keeping the inverse side of both old and new target in sync.
	Set(target *Entity) error
	// IsLoaded reports whether Get can answer without a Load.
	IsLoaded() bool
	// ID returns the identity of the current target, or 0.
	ID() int64
}

// Collection is the proxy of a one-to-many or many-to-many field.
type Collection interface {
	// Load returns the members, querying the database once.
	Load(context.Context) ([]*Entity, error)
	// Get returns the members, or a NotLoadedError if they were not loaded.
	Get() ([]*Entity, error)
	// Add makes the entities members of the collection.
	Add(...*Entity) error
	// Remove drops the entities from the collection.
	Remove(...*Entity) error
	// IsLoaded reports whether Get can answer without a Load.
	IsLoaded() bool
}

// relation is implemented by every proxy.
type relation interface {
	field() meta.Relation
}

// inverse is the side of a relationship that mirrors a reference held by
// the other entity. Both directions mutate through it.
type inverse interface {
	relation
	// attach records that e now points at the owner.
	attach(e *Entity)
	// detach records that e no longer points at the owner.
	detach(e *Entity)
}

// newRelation returns the proxy for rel on owner. Proxies of new
// entities start loaded: their membership is exactly what the caller
// adds.
func newRelation(owner *Entity, rel meta.Relation, loaded bool) relation {
	switch rel.Kind {
	case meta.ManyToOne:
		return &manyToOneReference{owner: owner, rel: rel}
	case meta.OneToOne:
		return &oneToOneReference{owner: owner, rel: rel, loaded: loaded}
	case meta.OneToMany:
		return &oneToManyCollection{owner: owner, rel: rel, loaded: loaded}
	default:
		return &manyToManyCollection{owner: owner, rel: rel, loaded: loaded}
	}
}

// checkTarget validates that target may be assigned to rel of owner.
func checkTarget(owner *Entity, rel meta.Relation, target *Entity) error {
	switch {
	case target == nil:
		return nil
	case target.em != owner.em:
		return NewInvariantError(owner.meta.Name, "%s of %s belongs to another unit of work", target, rel.Field)
	case target.meta.Name != rel.Other:
		return NewInvariantError(owner.meta.Name, "%s expects %s, got %s", rel.Field, rel.Other, target.meta.Name)
	}
	return nil
}

func appendUnique(list []*Entity, e *Entity) []*Entity {
	if slices.Contains(list, e) {
		return list
	}
	return append(list, e)
}

func without(list []*Entity, e *Entity) []*Entity {
	return slices.DeleteFunc(list, func(m *Entity) bool { return m == e })
}

// merge returns pending followed by stored, skipping duplicates.
func merge(pending, stored []*Entity) []*Entity {
	out := make([]*Entity, 0, len(pending)+len(stored))
	for _, e := range pending {
		out = appendUnique(out, e)
	}
	for _, e := range stored {
		out = appendUnique(out, e)
	}
	return out
}
