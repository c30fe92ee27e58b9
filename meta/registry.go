package meta

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Registry holds the metadata of every entity type a unit of work may use.
type Registry struct {
	byName map[string]*EntityMeta
	all    []*EntityMeta
	order  map[string]int
}

// NewRegistry validates the given metadata and returns a registry. It
// checks that relation targets exist, that every relation has a matching
// inverse, that many-to-one relations are backed by a foreign key column,
// and that parents never rank after their dependents. Types sharing a
// rank are ordered so that parents still come first.
func NewRegistry(metas ...*EntityMeta) (*Registry, error) {
	r := &Registry{byName: make(map[string]*EntityMeta, len(metas))}
	for _, m := range metas {
		if m.Name == "" || m.Table == "" {
			return nil, fmt.Errorf("meta: entity %q: name and table are required", m.Name)
		}
		if _, ok := r.byName[m.Name]; ok {
			return nil, fmt.Errorf("meta: duplicate entity %q", m.Name)
		}
		if len(m.Columns) == 0 {
			return nil, fmt.Errorf("meta: entity %q has no columns", m.Name)
		}
		r.byName[m.Name] = m
		r.all = append(r.all, m)
	}
	var errs []error
	for _, m := range r.all {
		for _, rel := range m.Relations {
			if err := r.validate(m, rel); err != nil {
				errs = append(errs, fmt.Errorf("meta: %s.%s: %w", m.Name, rel.Field, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	all, err := flushOrder(r.all)
	if err != nil {
		return nil, err
	}
	r.all = all
	r.order = make(map[string]int, len(all))
	for i, m := range all {
		r.order[m.Name] = i
	}
	return r, nil
}

// flushOrder sorts metas by rank and, within a rank, places every type
// after the types it references. Names break the remaining ties.
func flushOrder(metas []*EntityMeta) ([]*EntityMeta, error) {
	slices.SortStableFunc(metas, func(a, b *EntityMeta) int {
		return cmp.Or(cmp.Compare(a.Rank, b.Rank), cmp.Compare(a.Name, b.Name))
	})
	out := make([]*EntityMeta, 0, len(metas))
	placed := make(map[string]bool, len(metas))
	for start := 0; start < len(metas); {
		end := start
		for end < len(metas) && metas[end].Rank == metas[start].Rank {
			end++
		}
		rest := slices.Clone(metas[start:end])
		for len(rest) > 0 {
			i := slices.IndexFunc(rest, func(m *EntityMeta) bool { return parentsPlaced(m, placed) })
			if i < 0 {
				names := make([]string, len(rest))
				for j, m := range rest {
					names[j] = m.Name
				}
				return nil, fmt.Errorf("meta: foreign keys of %s form a cycle at rank %d", strings.Join(names, ", "), rest[0].Rank)
			}
			placed[rest[i].Name] = true
			out = append(out, rest[i])
			rest = slices.Delete(rest, i, i+1)
		}
		start = end
	}
	return out, nil
}

// parentsPlaced reports whether every entity type m references, other
// than m itself, is already placed.
func parentsPlaced(m *EntityMeta, placed map[string]bool) bool {
	for _, rel := range m.Relations {
		if rel.Kind == ManyToOne && rel.Other != m.Name && !placed[rel.Other] {
			return false
		}
	}
	return true
}

// MustNewRegistry is like NewRegistry but panics on invalid metadata.
func MustNewRegistry(metas ...*EntityMeta) *Registry {
	r, err := NewRegistry(metas...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the metadata registered under name.
func (r *Registry) Lookup(name string) (*EntityMeta, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Contains reports whether m itself is registered.
func (r *Registry) Contains(m *EntityMeta) bool {
	return m != nil && r.byName[m.Name] == m
}

// All returns every registered entity type in flush order.
func (r *Registry) All() []*EntityMeta {
	return slices.Clone(r.all)
}

// Order returns the position of the named entity type in flush order,
// or -1 if it is not registered.
func (r *Registry) Order(name string) int {
	if i, ok := r.order[name]; ok {
		return i
	}
	return -1
}

func (r *Registry) validate(m *EntityMeta, rel Relation) error {
	other, ok := r.byName[rel.Other]
	if !ok {
		return fmt.Errorf("unknown entity %q", rel.Other)
	}
	switch rel.Kind {
	case ManyToOne:
		c, ok := m.FieldColumn(rel.Field)
		if !ok || !c.ForeignKey || c.Name != rel.Column {
			return fmt.Errorf("missing foreign key column %q", rel.Column)
		}
		if other.Rank > m.Rank {
			return fmt.Errorf("rank %d is lower than the rank %d of %s", m.Rank, other.Rank, other.Name)
		}
	case OneToMany, OneToOne, ManyToMany:
		if rel.OtherField == "" {
			return errors.New("inverse field is required")
		}
	default:
		return fmt.Errorf("invalid relation kind %d", rel.Kind)
	}
	if rel.Kind == ManyToMany && (rel.JoinTable == "" || rel.Column == "" || rel.OtherColumn == "") {
		return errors.New("join table and columns are required")
	}
	if rel.OtherField == "" {
		return nil
	}
	inv, ok := other.Relation(rel.OtherField)
	if !ok {
		return fmt.Errorf("inverse field %s.%s does not exist", other.Name, rel.OtherField)
	}
	if inv.Other != m.Name || inv.OtherField != rel.Field || !pairs(rel, inv) {
		return fmt.Errorf("inverse field %s.%s (%s) does not pair with %s", other.Name, inv.Field, inv.Kind, rel.Kind)
	}
	return nil
}

// pairs reports whether two relation kinds form the two ends of one
// relationship.
func pairs(a, b Relation) bool {
	switch a.Kind {
	case ManyToOne:
		return (b.Kind == OneToMany || b.Kind == OneToOne) && b.OtherColumn == a.Column
	case OneToMany, OneToOne:
		return b.Kind == ManyToOne && b.Column == a.OtherColumn
	case ManyToMany:
		return b.Kind == ManyToMany && b.JoinTable == a.JoinTable &&
			b.Column == a.OtherColumn && b.OtherColumn == a.Column
	}
	return false
}
