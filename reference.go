package strata

import (
	"context"

	"github.com/syssam/strata/meta"
)

// manyToOneReference owns a foreign key column. Its value lives in the
// owner's data under the relation field.
type manyToOneReference struct {
	owner *Entity
	rel   meta.Relation
}

func (r *manyToOneReference) field() meta.Relation { return r.rel }

func (r *manyToOneReference) Load(ctx context.Context) (*Entity, error) {
	id, ok := r.owner.data[r.rel.Field].(int64)
	if !ok {
		return r.Get()
	}
	m, err := r.owner.em.lookup(r.rel.Other)
	if err != nil {
		return nil, err
	}
	target, err := r.owner.em.Load(ctx, m, id)
	if err != nil {
		return nil, err
	}
	// The field may have been reassigned while loading.
	if cur, ok := r.owner.data[r.rel.Field].(int64); ok && cur == id {
		r.resolve(target)
	}
	return r.Get()
}

func (r *manyToOneReference) Get() (*Entity, error) {
	switch v := r.owner.data[r.rel.Field].(type) {
	case *Entity:
		return v, nil
	case int64:
		return nil, NewNotLoadedError(r.owner.meta.Name, r.rel.Field)
	}
	return nil, nil
}

func (r *manyToOneReference) Set(target *Entity) error {
	if err := checkTarget(r.owner, r.rel, target); err != nil {
		return err
	}
	r.set(target)
	return nil
}

func (r *manyToOneReference) IsLoaded() bool {
	_, raw := r.owner.data[r.rel.Field].(int64)
	return !raw
}

func (r *manyToOneReference) ID() int64 {
	switch v := r.owner.data[r.rel.Field].(type) {
	case *Entity:
		return v.id
	case int64:
		return v
	}
	return 0
}

// set is the single mutation path of the relationship. Collections and
// one-to-one inverses call it too.
func (r *manyToOneReference) set(target *Entity) {
	var prev *Entity
	switch v := r.owner.data[r.rel.Field].(type) {
	case *Entity:
		if v == target {
			return
		}
		prev = v
	case int64:
		if target != nil && target.id == v {
			// Resolution of the current value, not a change.
			r.resolve(target)
			return
		}
		prev = r.owner.em.peek(r.rel.Other, v)
	default:
		if target == nil {
			return
		}
	}
	if inv := prev.inverseOf(r.rel); inv != nil {
		inv.detach(r.owner)
	}
	if target == nil {
		r.owner.data[r.rel.Field] = nil
	} else {
		r.owner.data[r.rel.Field] = target
	}
	r.owner.dirty = true
	if inv := target.inverseOf(r.rel); inv != nil {
		inv.attach(r.owner)
	}
}

// resolve replaces a raw identity with its instance and registers the
// owner on the inverse side. The owner stays clean.
func (r *manyToOneReference) resolve(target *Entity) {
	r.owner.data[r.rel.Field] = target
	if inv := target.inverseOf(r.rel); inv != nil {
		inv.attach(r.owner)
	}
}

// setID assigns a raw identity. A target already in the identity map is
// assigned as an instance instead.
func (r *manyToOneReference) setID(id int64) {
	if id == 0 {
		r.set(nil)
		return
	}
	if target := r.owner.em.peek(r.rel.Other, id); target != nil {
		r.set(target)
		return
	}
	if cur := r.ID(); cur == id {
		return
	}
	switch v := r.owner.data[r.rel.Field].(type) {
	case *Entity:
		if inv := v.inverseOf(r.rel); inv != nil {
			inv.detach(r.owner)
		}
	case int64:
		if inv := r.owner.em.peek(r.rel.Other, v).inverseOf(r.rel); inv != nil {
			inv.detach(r.owner)
		}
	}
	r.owner.data[r.rel.Field] = id
	r.owner.dirty = true
}

// oneToOneReference is the inverse side of a unique foreign key held by
// the other entity. The child's manyToOneReference remains the single
// source of truth; this proxy mirrors it.
type oneToOneReference struct {
	owner  *Entity
	rel    meta.Relation
	loaded bool
	value  *Entity
	// pending is the child attached before the reference was loaded.
	pending    *Entity
	hasPending bool
}

func (r *oneToOneReference) field() meta.Relation { return r.rel }

func (r *oneToOneReference) Load(ctx context.Context) (*Entity, error) {
	if r.loaded {
		return r.value, nil
	}
	m, err := r.owner.em.lookup(r.rel.Other)
	if err != nil {
		return nil, err
	}
	rows, err := r.owner.em.fetchBy(ctx, m, r.rel.OtherColumn, r.owner.id)
	if err != nil {
		return nil, err
	}
	var stored *Entity
	for _, child := range rows {
		if child.pointsAt(r.rel.OtherField, r.owner) {
			child.data[r.rel.OtherField] = r.owner
			stored = child
			break
		}
	}
	if r.loaded {
		return r.value, nil
	}
	for _, child := range r.owner.em.rawReferrers(r.rel.Other, r.rel.OtherField, r.owner) {
		if child != stored {
			child.relations[r.rel.OtherField].(*manyToOneReference).resolve(r.owner)
		}
	}
	r.loaded = true
	if !r.hasPending {
		r.value = stored
		return stored, nil
	}
	r.value, r.pending, r.hasPending = r.pending, nil, false
	if stored != nil && stored != r.value {
		r.displace(stored)
	}
	return r.value, nil
}

func (r *oneToOneReference) Get() (*Entity, error) {
	switch {
	case r.loaded:
		return r.value, nil
	case r.hasPending:
		return r.pending, nil
	}
	return nil, NewNotLoadedError(r.owner.meta.Name, r.rel.Field)
}

func (r *oneToOneReference) Set(child *Entity) error {
	if err := checkTarget(r.owner, r.rel, child); err != nil {
		return err
	}
	if child != nil {
		child.relations[r.rel.OtherField].(*manyToOneReference).set(r.owner)
		return nil
	}
	cur, err := r.Get()
	if err != nil {
		return err
	}
	if cur != nil {
		cur.relations[r.rel.OtherField].(*manyToOneReference).set(nil)
	}
	return nil
}

func (r *oneToOneReference) IsLoaded() bool { return r.loaded || r.hasPending }

func (r *oneToOneReference) ID() int64 {
	e, _ := r.Get()
	if e == nil {
		return 0
	}
	return e.id
}

func (r *oneToOneReference) attach(child *Entity) {
	if !r.loaded {
		prev := r.pending
		r.pending, r.hasPending = child, true
		if prev != nil && prev != child {
			r.displace(prev)
		}
		return
	}
	prev := r.value
	r.value = child
	if prev != nil && prev != child {
		r.displace(prev)
	}
}

func (r *oneToOneReference) detach(child *Entity) {
	switch {
	case r.loaded && r.value == child:
		r.value = nil
	case !r.loaded && r.pending == child:
		r.pending, r.hasPending = nil, false
	}
}

// displace clears the foreign key of a child replaced by another one, so
// at most one row refers to the owner.
func (r *oneToOneReference) displace(child *Entity) {
	if child.pointsAt(r.rel.OtherField, r.owner) {
		child.relations[r.rel.OtherField].(*manyToOneReference).set(nil)
	}
}
