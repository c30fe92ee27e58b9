// Package strata is the runtime core of an object-relational mapping
// layer: a unit of work that keeps exactly one in-memory Entity per row,
// relation proxies that keep both ends of a relationship consistent
// without a reload, and a flush engine that writes a mutated graph as
// rank-ordered batches.
//
// A unit of work is an EntityManager. Entities never leave the manager
// that loaded or created them:
//
//	em := strata.NewEntityManager(drv, registry)
//	author, err := em.Load(ctx, AuthorMeta, 1)
//	if err != nil {
//		return err
//	}
//	book, _ := em.Create(BookMeta, map[string]any{"title": "Dune"})
//	if err := author.Collection("books").Add(book); err != nil {
//		return err
//	}
//	// book.Reference("author").Get() now returns author.
//	if err := em.Flush(ctx); err != nil {
//		return err
//	}
//
// Graph mutations are synchronous and meant for a single goroutine. Loads
// may be issued concurrently and never create two instances of one row.
package strata
