package strata

import (
	"context"
	"slices"

	"github.com/syssam/strata/meta"
	"github.com/syssam/strata/meta/serde"
)

// oneToManyCollection mirrors the many-to-one references of the other
// entity type that point at the owner.
type oneToManyCollection struct {
	owner   *Entity
	rel     meta.Relation
	loaded  bool
	members []*Entity
	// added holds members attached before the collection was loaded.
	added []*Entity
}

func (c *oneToManyCollection) field() meta.Relation { return c.rel }

func (c *oneToManyCollection) Load(ctx context.Context) ([]*Entity, error) {
	if c.loaded {
		return c.Get()
	}
	m, err := c.owner.em.lookup(c.rel.Other)
	if err != nil {
		return nil, err
	}
	rows, err := c.owner.em.fetchBy(ctx, m, c.rel.OtherColumn, c.owner.id)
	if err != nil {
		return nil, err
	}
	if c.loaded {
		return c.Get()
	}
	stored := make([]*Entity, 0, len(rows))
	for _, child := range rows {
		// Rows whose reference was reassigned in memory belong elsewhere.
		if !child.pointsAt(c.rel.OtherField, c.owner) {
			continue
		}
		child.data[c.rel.OtherField] = c.owner
		stored = append(stored, child)
	}
	// Rows reassigned to the owner by raw identity are not stored yet.
	for _, child := range c.owner.em.rawReferrers(c.rel.Other, c.rel.OtherField, c.owner) {
		child.relations[c.rel.OtherField].(*manyToOneReference).resolve(c.owner)
	}
	c.members = merge(c.added, stored)
	c.added = nil
	c.loaded = true
	return c.Get()
}

func (c *oneToManyCollection) Get() ([]*Entity, error) {
	if !c.loaded {
		return nil, NewNotLoadedError(c.owner.meta.Name, c.rel.Field)
	}
	return slices.Clone(c.members), nil
}

func (c *oneToManyCollection) Add(children ...*Entity) error {
	for _, child := range children {
		if err := checkTarget(c.owner, c.rel, child); err != nil {
			return err
		}
	}
	for _, child := range children {
		child.relations[c.rel.OtherField].(*manyToOneReference).set(c.owner)
		c.attach(child)
	}
	return nil
}

func (c *oneToManyCollection) Remove(children ...*Entity) error {
	for _, child := range children {
		if err := checkTarget(c.owner, c.rel, child); err != nil {
			return err
		}
	}
	for _, child := range children {
		if child.pointsAt(c.rel.OtherField, c.owner) {
			child.relations[c.rel.OtherField].(*manyToOneReference).set(nil)
		}
		c.detach(child)
	}
	return nil
}

func (c *oneToManyCollection) IsLoaded() bool { return c.loaded }

func (c *oneToManyCollection) attach(child *Entity) {
	if c.loaded {
		c.members = appendUnique(c.members, child)
	} else {
		c.added = appendUnique(c.added, child)
	}
}

func (c *oneToManyCollection) detach(child *Entity) {
	c.members = without(c.members, child)
	c.added = without(c.added, child)
}

// manyToManyCollection keeps membership in a join table. Both sides are
// updated in memory and the pair is queued for the flush.
type manyToManyCollection struct {
	owner   *Entity
	rel     meta.Relation
	loaded  bool
	members []*Entity
	added   []*Entity
	// removed holds members detached before the collection was loaded,
	// whose join rows may still be stored.
	removed []*Entity
}

func (c *manyToManyCollection) field() meta.Relation { return c.rel }

func (c *manyToManyCollection) Load(ctx context.Context) ([]*Entity, error) {
	if c.loaded {
		return c.Get()
	}
	em := c.owner.em
	m, err := em.lookup(c.rel.Other)
	if err != nil {
		return nil, err
	}
	ids, err := em.fetchJoin(ctx, c.rel, c.owner.id)
	if err != nil {
		return nil, err
	}
	others, err := em.LoadMany(ctx, m, ids)
	if err != nil {
		return nil, err
	}
	if c.loaded {
		return c.Get()
	}
	stored := slices.DeleteFunc(others, func(e *Entity) bool { return slices.Contains(c.removed, e) })
	c.members = merge(c.added, stored)
	c.added, c.removed = nil, nil
	c.loaded = true
	return c.Get()
}

func (c *manyToManyCollection) Get() ([]*Entity, error) {
	if !c.loaded {
		return nil, NewNotLoadedError(c.owner.meta.Name, c.rel.Field)
	}
	return slices.Clone(c.members), nil
}

func (c *manyToManyCollection) Add(others ...*Entity) error {
	for _, other := range others {
		if err := checkTarget(c.owner, c.rel, other); err != nil {
			return err
		}
	}
	for _, other := range others {
		if c.contains(other) {
			continue
		}
		c.attach(other)
		if inv := other.inverseOf(c.rel); inv != nil {
			inv.attach(c.owner)
		}
		c.owner.em.queueLink(c.rel, c.owner, other, false)
	}
	return nil
}

func (c *manyToManyCollection) Remove(others ...*Entity) error {
	for _, other := range others {
		if err := checkTarget(c.owner, c.rel, other); err != nil {
			return err
		}
	}
	for _, other := range others {
		c.detach(other)
		if inv := other.inverseOf(c.rel); inv != nil {
			inv.detach(c.owner)
		}
		c.owner.em.queueLink(c.rel, c.owner, other, true)
	}
	return nil
}

func (c *manyToManyCollection) IsLoaded() bool { return c.loaded }

func (c *manyToManyCollection) contains(e *Entity) bool {
	return slices.Contains(c.members, e) || slices.Contains(c.added, e)
}

func (c *manyToManyCollection) attach(other *Entity) {
	if c.loaded {
		c.members = appendUnique(c.members, other)
		return
	}
	c.added = appendUnique(c.added, other)
	c.removed = without(c.removed, other)
}

func (c *manyToManyCollection) detach(other *Entity) {
	c.members = without(c.members, other)
	c.added = without(c.added, other)
	if !c.loaded {
		c.removed = appendUnique(c.removed, other)
	}
}

// joinIDs converts scanned join-table values into identities.
func joinIDs(rows [][]any) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		v, err := serde.ID.FromDB(row[0])
		if err != nil {
			return nil, err
		}
		if id, ok := v.(int64); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
