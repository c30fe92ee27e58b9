package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/meta"
	"github.com/syssam/strata/meta/serde"
)

var authorMeta = meta.New("Author").Rank(0).
	Field("firstName", "text", serde.String).
	OneToMany("books", "Book", "author").
	Build()

var tagMeta = meta.New("Tag").Rank(0).
	Field("name", "text", serde.String).
	ManyToMany("books", "Book", "tags", "books_to_tags").
	Build()

var bookMeta = meta.New("Book").Rank(1).
	Field("title", "text", serde.String).
	Field("pages", "bigint", serde.Int).
	ManyToOne("author", "Author", "books").
	ManyToMany("tags", "Tag", "books", "books_to_tags").
	Build()

var registry = meta.MustNewRegistry(authorMeta, tagMeta, bookMeta)

// createSchema creates the benchmark tables if they do not exist.
func createSchema(ctx context.Context, drv dialect.ExecQuerier, name string) error {
	pk := map[string]string{
		dialect.SQLite:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		dialect.Postgres: "BIGSERIAL PRIMARY KEY",
		dialect.MySQL:    "BIGINT AUTO_INCREMENT PRIMARY KEY",
	}[name]
	text := "TEXT"
	if name == dialect.MySQL {
		text = "VARCHAR(255)"
	}
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS authors (id {pk}, first_name {text})",
		"CREATE TABLE IF NOT EXISTS tags (id {pk}, name {text})",
		"CREATE TABLE IF NOT EXISTS books (id {pk}, title {text}, pages BIGINT, author_id BIGINT REFERENCES authors (id))",
		"CREATE TABLE IF NOT EXISTS books_to_tags (book_id BIGINT NOT NULL REFERENCES books (id), tag_id BIGINT NOT NULL REFERENCES tags (id), PRIMARY KEY (book_id, tag_id))",
	}
	r := strings.NewReplacer("{pk}", pk, "{text}", text)
	for _, stmt := range stmts {
		if err := drv.Exec(ctx, r.Replace(stmt), []any{}, nil); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
