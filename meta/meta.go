// Package meta defines the entity metadata consumed by the strata unit of
// work: table names, ordered column serializers, relation descriptors, and
// the flush rank that orders writes across entity types.
//
// Metadata is normally produced by schema code generation. It is immutable
// once registered and shared by every EntityManager.
package meta

import (
	"slices"

	"github.com/syssam/strata/meta/serde"
)

// IDColumn is the surrogate identity column every table carries.
const IDColumn = "id"

// Column describes one persisted, non-identity column.
type Column struct {
	// Name is the column name.
	Name string
	// Field is the entity field the column is read from and hydrated into.
	Field string
	// DBType is the database type of the column, e.g. "text" or "bigint".
	DBType string
	// Serde converts between field and column values.
	Serde serde.Serde
	// ForeignKey marks the column of a many-to-one relation. Its field holds
	// either a raw identity, a resolved entity, or nil.
	ForeignKey bool
}

// RelationKind is the cardinality of a relation field.
type RelationKind int

// Relation kinds.
const (
	ManyToOne RelationKind = iota + 1
	OneToMany
	OneToOne
	ManyToMany
)

// String returns the relation kind name.
func (k RelationKind) String() string {
	switch k {
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	case OneToOne:
		return "one-to-one"
	case ManyToMany:
		return "many-to-many"
	}
	return "unknown"
}

// Relation describes a relation field and the inverse field it pairs with.
//
// Column semantics depend on Kind:
//
//	ManyToOne:  Column is the foreign key on this table.
//	OneToMany:  OtherColumn is the foreign key on the other table.
//	OneToOne:   OtherColumn is the unique foreign key on the other table.
//	ManyToMany: Column and OtherColumn are the join table columns pointing
//	            at this entity and at the other entity.
type Relation struct {
	Kind        RelationKind
	Field       string
	Other       string
	OtherField  string
	Column      string
	OtherColumn string
	JoinTable   string
}

// IsCollection reports whether the relation field holds many entities.
func (r Relation) IsCollection() bool {
	return r.Kind == OneToMany || r.Kind == ManyToMany
}

// EntityMeta describes one entity type.
type EntityMeta struct {
	// Name is the entity type name, e.g. "Author".
	Name string
	// Table is the table the entity is persisted in.
	Table string
	// Rank orders flushes across entity types: a type referenced by a
	// foreign key has a rank lower than or equal to its dependents.
	Rank int
	// Columns lists the persisted columns, excluding IDColumn.
	Columns []Column
	// Relations lists the relation fields.
	Relations []Relation
}

// SelectColumns returns IDColumn followed by every column name, the
// column order used when loading rows.
func (m *EntityMeta) SelectColumns() []string {
	names := make([]string, 0, len(m.Columns)+1)
	names = append(names, IDColumn)
	for _, c := range m.Columns {
		names = append(names, c.Name)
	}
	return names
}

// ColumnNames returns the persisted column names in order.
func (m *EntityMeta) ColumnNames() []string {
	return m.SelectColumns()[1:]
}

// FieldColumn returns the column backing the given field.
func (m *EntityMeta) FieldColumn(field string) (Column, bool) {
	i := slices.IndexFunc(m.Columns, func(c Column) bool { return c.Field == field })
	if i < 0 {
		return Column{}, false
	}
	return m.Columns[i], true
}

// Relation returns the relation of the given field.
func (m *EntityMeta) Relation(field string) (Relation, bool) {
	i := slices.IndexFunc(m.Relations, func(r Relation) bool { return r.Field == field })
	if i < 0 {
		return Relation{}, false
	}
	return m.Relations[i], true
}
