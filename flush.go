package strata

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/strata/contrib/dataloader"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/meta"
)

// Flush writes every pending change of the scope. Entity types are
// written in ascending rank, ties broken by name. Each type gets at most
// one batched insert followed by one bulk update, and many-to-many
// membership changes are written last, one insert and one delete per
// join table.
//
// Entities of the same rank must not reference each other through new
// rows; such a reference fails with an InvariantError.
//
// A failing batch aborts the flush with a *PersistError. Batches written
// before it stay written; use FlushTx for an atomic flush.
func (em *EntityManager) Flush(ctx context.Context) error {
	em.flushMu.Lock()
	defer em.flushMu.Unlock()
	links := em.pendingLinks()
	if err := em.flush(ctx, em.drv, links, nil); err != nil {
		return err
	}
	em.clearLinks(links)
	return nil
}

// FlushTx runs Flush inside a transaction. On failure the transaction is
// rolled back and the graph is restored to its state before the call:
// generated identities are removed and flushed entities are dirty again,
// so the flush can be retried.
func (em *EntityManager) FlushTx(ctx context.Context) error {
	em.flushMu.Lock()
	defer em.flushMu.Unlock()
	tx, err := em.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("strata: starting flush transaction: %w", err)
	}
	var (
		j     journal
		links = em.pendingLinks()
	)
	if err := em.flush(ctx, tx, links, &j); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, &RollbackError{Err: rerr})
		}
		em.revert(&j)
		return err
	}
	if err := tx.Commit(); err != nil {
		em.revert(&j)
		return fmt.Errorf("strata: committing flush: %w", err)
	}
	em.clearLinks(links)
	return nil
}

// journal records what a flush changed in memory, so a rolled back
// transaction can be undone.
type journal struct {
	inserted []*Entity
	cleaned  []*Entity
}

func (j *journal) insert(es ...*Entity) {
	if j != nil {
		j.inserted = append(j.inserted, es...)
	}
}

func (j *journal) clean(es ...*Entity) {
	if j != nil {
		j.cleaned = append(j.cleaned, es...)
	}
}

func (em *EntityManager) revert(j *journal) {
	em.mu.Lock()
	defer em.mu.Unlock()
	for _, e := range j.inserted {
		delete(em.entities, key{name: e.meta.Name, id: e.id})
		e.id = 0
		e.dirty = true
	}
	for _, e := range j.cleaned {
		e.dirty = true
	}
}

func (em *EntityManager) flush(ctx context.Context, h dialect.ExecQuerier, links []link, j *journal) error {
	var pending []*Entity
	for _, e := range em.Entities() {
		if e.id == 0 || e.dirty {
			pending = append(pending, e)
		}
	}
	groups, order := dataloader.GroupByKey(pending, func(e *Entity) *meta.EntityMeta { return e.meta })
	slices.SortStableFunc(order, func(a, b *meta.EntityMeta) int {
		return cmp.Compare(em.reg.Order(a.Name), em.reg.Order(b.Name))
	})
	for _, m := range order {
		var inserts, updates []*Entity
		for _, e := range groups[m] {
			if e.id == 0 {
				inserts = append(inserts, e)
			} else {
				updates = append(updates, e)
			}
		}
		if err := em.insert(ctx, h, m, inserts, j); err != nil {
			return err
		}
		if err := em.update(ctx, h, m, updates, j); err != nil {
			return err
		}
	}
	return em.link(ctx, h, links)
}

// insert writes new entities of one type as a single statement and
// assigns the generated identities in submission order.
func (em *EntityManager) insert(ctx context.Context, h dialect.ExecQuerier, m *meta.EntityMeta, entities []*Entity, j *journal) error {
	if len(entities) == 0 {
		return nil
	}
	batch := &sql.BatchInsert{
		Table:     m.Table,
		Columns:   m.ColumnNames(),
		Rows:      make([][]any, 0, len(entities)),
		Returning: meta.IDColumn,
	}
	for _, e := range entities {
		row := make([]any, len(m.Columns))
		for i, c := range m.Columns {
			v, err := e.columnValue(c)
			if err != nil {
				return err
			}
			row[i] = v
		}
		batch.Rows = append(batch.Rows, row)
	}
	query, args := batch.Query(em.dialect)
	ids, err := em.insertIDs(ctx, h, query, args)
	if err == nil && len(ids) != len(entities) {
		err = fmt.Errorf("expected %d generated ids, got %d", len(entities), len(ids))
	}
	if err != nil {
		return &PersistError{Entity: m.Name, Table: m.Table, Rank: m.Rank, Op: OpInsert, Rows: len(entities), Err: err}
	}
	em.mu.Lock()
	for i, e := range entities {
		e.id = ids[i]
		e.dirty = false
		em.entities[key{name: m.Name, id: e.id}] = e
	}
	em.mu.Unlock()
	j.insert(entities...)
	em.logBatch(ctx, m.Name, m.Rank, OpInsert, len(entities))
	return nil
}

// insertIDs runs a batch insert and returns the generated identities.
// Dialects without RETURNING report the first identity of the batch and
// assign the following ones consecutively.
func (em *EntityManager) insertIDs(ctx context.Context, h dialect.ExecQuerier, query string, args []any) ([]int64, error) {
	if sql.SupportsReturning(em.dialect) {
		var rows sql.Rows
		if err := h.Query(ctx, query, args, &rows); err != nil {
			return nil, err
		}
		return sql.ScanInt64s(rows)
	}
	var res sql.Result
	if err := h.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, affected)
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}

// update writes changed entities of one type as a single bulk update.
func (em *EntityManager) update(ctx context.Context, h dialect.ExecQuerier, m *meta.EntityMeta, entities []*Entity, j *journal) error {
	if len(entities) == 0 {
		return nil
	}
	batch := &sql.BulkUpdate{
		Table:   m.Table,
		Key:     sql.UpdateColumn{Name: meta.IDColumn, DBType: "bigint"},
		Columns: make([]sql.UpdateColumn, len(m.Columns)),
		Keys:    make([]any, 0, len(entities)),
		Values:  make([][]any, len(m.Columns)),
	}
	for i, c := range m.Columns {
		batch.Columns[i] = sql.UpdateColumn{Name: c.Name, DBType: c.DBType}
	}
	for _, e := range entities {
		batch.Keys = append(batch.Keys, e.id)
		for i, c := range m.Columns {
			v, err := e.columnValue(c)
			if err != nil {
				return err
			}
			batch.Values[i] = append(batch.Values[i], v)
		}
	}
	query, args := batch.Query(em.dialect)
	if err := h.Exec(ctx, query, args, nil); err != nil {
		return &PersistError{Entity: m.Name, Table: m.Table, Rank: m.Rank, Op: OpUpdate, Rows: len(entities), Err: err}
	}
	for _, e := range entities {
		e.dirty = false
	}
	j.clean(entities...)
	em.logBatch(ctx, m.Name, m.Rank, OpUpdate, len(entities))
	return nil
}

// link writes queued many-to-many changes, after every entity rank.
func (em *EntityManager) link(ctx context.Context, h dialect.ExecQuerier, links []link) error {
	if len(links) == 0 {
		return nil
	}
	rank := 0
	if all := em.reg.All(); len(all) > 0 {
		rank = all[len(all)-1].Rank + 1
	}
	groups, order := dataloader.GroupByKey(links, func(l link) string { return l.table })
	for _, table := range order {
		var (
			first   = groups[table][0]
			inserts [][]any
			deletes [][2]any
		)
		for _, l := range groups[table] {
			persisted := l.left.id != 0 && l.right.id != 0
			switch {
			case l.unlink && persisted:
				deletes = append(deletes, [2]any{l.left.id, l.right.id})
			case l.unlink:
				// Never stored.
			case !persisted:
				return NewInvariantError(table, "link %s to %s without identity", l.left, l.right)
			default:
				inserts = append(inserts, []any{l.left.id, l.right.id})
			}
		}
		if len(inserts) > 0 {
			batch := &sql.BatchInsert{
				Table:           table,
				Columns:         []string{first.column, first.otherColumn},
				Rows:            inserts,
				IgnoreConflicts: true,
			}
			query, args := batch.Query(em.dialect)
			if err := h.Exec(ctx, query, args, nil); err != nil {
				return &PersistError{Entity: table, Table: table, Rank: rank, Op: OpLink, Rows: len(inserts), Err: err}
			}
			em.logBatch(ctx, table, rank, OpLink, len(inserts))
		}
		if len(deletes) > 0 {
			query, args := sql.DeletePairs(em.dialect, table, first.column, first.otherColumn, deletes)
			if err := h.Exec(ctx, query, args, nil); err != nil {
				return &PersistError{Entity: table, Table: table, Rank: rank, Op: OpUnlink, Rows: len(deletes), Err: err}
			}
			em.logBatch(ctx, table, rank, OpUnlink, len(deletes))
		}
	}
	return nil
}

func (em *EntityManager) logBatch(ctx context.Context, entity string, rank int, op Op, rows int) {
	em.log.DebugContext(ctx, "flushed batch",
		"scope", em.id,
		"entity", entity,
		"rank", rank,
		"op", op,
		"rows", rows,
	)
}

// pendingLinks returns a copy of the queued link changes.
func (em *EntityManager) pendingLinks() []link {
	em.mu.Lock()
	defer em.mu.Unlock()
	links := make([]link, len(em.links))
	for i, l := range em.links {
		links[i] = *l
	}
	return links
}

// clearLinks drops the flushed link changes. A pair changed again since
// the snapshot stays queued.
func (em *EntityManager) clearLinks(flushed []link) {
	em.mu.Lock()
	defer em.mu.Unlock()
	for _, l := range flushed {
		if queued, ok := em.linkIdx[l.linkKey]; ok && queued.unlink == l.unlink {
			delete(em.linkIdx, l.linkKey)
		}
	}
	em.links = slices.DeleteFunc(em.links, func(l *link) bool {
		_, ok := em.linkIdx[l.linkKey]
		return !ok
	})
}
