package meta

import (
	"github.com/go-openapi/inflect"

	"github.com/syssam/strata/meta/serde"
)

// Builder assembles an EntityMeta with conventional names: the table is
// the pluralized snake_case entity name, columns are snake_case field
// names, and foreign keys carry an "_id" suffix.
//
//	author := meta.New("Author").
//		Field("firstName", "text", serde.String).
//		OneToMany("books", "Book", "author").
//		Build()
type Builder struct {
	m EntityMeta
}

// New returns a Builder for the named entity type.
func New(name string) *Builder {
	return &Builder{m: EntityMeta{Name: name, Table: TableName(name)}}
}

// TableName returns the conventional table name of an entity type.
func TableName(entity string) string {
	return inflect.Underscore(inflect.Pluralize(entity))
}

// ColumnName returns the conventional column name of a field.
func ColumnName(field string) string {
	return inflect.Underscore(field)
}

// ForeignKeyName returns the conventional foreign key column of a
// reference field.
func ForeignKeyName(field string) string {
	return ColumnName(field) + "_id"
}

// Table overrides the table name.
func (b *Builder) Table(name string) *Builder {
	b.m.Table = name
	return b
}

// Rank sets the flush rank.
func (b *Builder) Rank(rank int) *Builder {
	b.m.Rank = rank
	return b
}

// Field adds a primitive column.
func (b *Builder) Field(field, dbType string, s serde.Serde) *Builder {
	b.m.Columns = append(b.m.Columns, Column{Name: ColumnName(field), Field: field, DBType: dbType, Serde: s})
	return b
}

// ManyToOne adds a reference field backed by a foreign key column on
// this table. otherField names the inverse collection or one-to-one field,
// or is empty for a reference without an inverse.
func (b *Builder) ManyToOne(field, other, otherField string) *Builder {
	column := ForeignKeyName(field)
	b.m.Columns = append(b.m.Columns, Column{
		Name:       column,
		Field:      field,
		DBType:     "bigint",
		Serde:      serde.ID,
		ForeignKey: true,
	})
	b.m.Relations = append(b.m.Relations, Relation{
		Kind:       ManyToOne,
		Field:      field,
		Other:      other,
		OtherField: otherField,
		Column:     column,
	})
	return b
}

// OneToMany adds a collection of the other entities whose otherField
// reference points at this entity.
func (b *Builder) OneToMany(field, other, otherField string) *Builder {
	b.m.Relations = append(b.m.Relations, Relation{
		Kind:        OneToMany,
		Field:       field,
		Other:       other,
		OtherField:  otherField,
		OtherColumn: ForeignKeyName(otherField),
	})
	return b
}

// OneToOne adds the inverse side of a unique foreign key held by the
// other entity's otherField reference.
func (b *Builder) OneToOne(field, other, otherField string) *Builder {
	b.m.Relations = append(b.m.Relations, Relation{
		Kind:        OneToOne,
		Field:       field,
		Other:       other,
		OtherField:  otherField,
		OtherColumn: ForeignKeyName(otherField),
	})
	return b
}

// ManyToMany adds a collection stored in joinTable. The join columns are
// the foreign key names of both entity types.
func (b *Builder) ManyToMany(field, other, otherField, joinTable string) *Builder {
	b.m.Relations = append(b.m.Relations, Relation{
		Kind:        ManyToMany,
		Field:       field,
		Other:       other,
		OtherField:  otherField,
		Column:      ForeignKeyName(b.m.Name),
		OtherColumn: ForeignKeyName(other),
		JoinTable:   joinTable,
	})
	return b
}

// Build returns the assembled metadata.
func (b *Builder) Build() *EntityMeta {
	m := b.m
	return &m
}
