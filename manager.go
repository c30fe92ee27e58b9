package strata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/strata/contrib/dataloader"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/meta"
	"github.com/syssam/strata/meta/serde"
)

// key identifies a persisted entity in the identity map.
type key struct {
	name string
	id   int64
}

// Option configures an EntityManager.
type Option func(*EntityManager)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(em *EntityManager) {
		em.log = logger
	}
}

// EntityManager is a unit of work: it owns the identity map of one scope,
// every entity loaded or created through it, and the flush of their
// changes. Use one EntityManager per request or job and drop it after.
type EntityManager struct {
	drv     dialect.Driver
	dialect string
	reg     *meta.Registry
	log     *slog.Logger
	id      uuid.UUID

	// mu guards the identity map, the touched list, in-flight fetches
	// and the link queue.
	mu       sync.Mutex
	entities map[key]*Entity
	fetching map[key]*fetch
	touched  []*Entity
	links    []*link
	linkIdx  map[linkKey]*link
	loads    singleflight.Group

	// flushMu serializes flushes.
	flushMu sync.Mutex
}

// NewEntityManager returns a unit of work that loads and flushes through
// drv. Relation targets are resolved by name in reg.
func NewEntityManager(drv dialect.Driver, reg *meta.Registry, opts ...Option) *EntityManager {
	em := &EntityManager{
		drv:      drv,
		dialect:  dialect.Normalize(drv.Dialect()),
		reg:      reg,
		log:      slog.Default(),
		id:       uuid.New(),
		entities: make(map[key]*Entity),
		fetching: make(map[key]*fetch),
		linkIdx:  make(map[linkKey]*link),
	}
	for _, opt := range opts {
		opt(em)
	}
	return em
}

// ID returns the identifier of the scope, used in log records.
func (em *EntityManager) ID() uuid.UUID { return em.id }

// Registry returns the metadata registry of the scope.
func (em *EntityManager) Registry() *meta.Registry { return em.reg }

// Entities returns every entity known to the scope, in the order they
// were loaded or created.
func (em *EntityManager) Entities() []*Entity {
	em.mu.Lock()
	defer em.mu.Unlock()
	out := make([]*Entity, len(em.touched))
	copy(out, em.touched)
	return out
}

// Load returns the entity of type m with the given identity. A cached
// instance is returned as is. Otherwise the row is fetched, and
// concurrent loads of the same row share that fetch. A missing row
// returns a NotFoundError.
//
// Canceling ctx abandons the wait, not the shared fetch.
func (em *EntityManager) Load(ctx context.Context, m *meta.EntityMeta, id int64) (*Entity, error) {
	if err := em.checkMeta(m); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, NewInvariantError(m.Name, "load without identity")
	}
	if e := em.peek(m.Name, id); e != nil {
		return e, nil
	}
	ch := em.loads.DoChan(m.Name+":"+strconv.FormatInt(id, 10), func() (any, error) {
		k := key{name: m.Name, id: id}
		em.mu.Lock()
		if e := em.entities[k]; e != nil {
			em.mu.Unlock()
			return e, nil
		}
		f, running := em.fetching[k]
		if !running {
			f = &fetch{done: make(chan struct{})}
			em.fetching[k] = f
		}
		em.mu.Unlock()
		if running {
			// A LoadMany batch is reading the row.
			<-f.done
		} else {
			_, f.err = em.fetchBy(context.WithoutCancel(ctx), m, meta.IDColumn, id)
			em.release(m.Name, f, id)
		}
		if f.err != nil {
			return nil, f.err
		}
		if e := em.peek(m.Name, id); e != nil {
			return e, nil
		}
		return nil, NewNotFoundError(m.Name, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entity), nil
	}
}

// LoadMany returns the entities of type m with the given identities, in
// the requested order. Entities missing from the identity map are
// fetched with a single query, except those a concurrent Load or
// LoadMany is already reading, whose fetch is awaited instead. If any
// identity has no row, a NotFoundError is returned for the first one.
func (em *EntityManager) LoadMany(ctx context.Context, m *meta.EntityMeta, ids []int64) ([]*Entity, error) {
	if err := em.checkMeta(m); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := dataloader.Unique(ids)
	var (
		f       = &fetch{done: make(chan struct{})}
		claimed []int64
		waits   []*fetch
	)
	em.mu.Lock()
	for _, id := range keys {
		k := key{name: m.Name, id: id}
		if id == 0 || em.entities[k] != nil {
			continue
		}
		if running, ok := em.fetching[k]; ok {
			waits = append(waits, running)
			continue
		}
		em.fetching[k] = f
		claimed = append(claimed, id)
	}
	em.mu.Unlock()
	if len(claimed) > 0 {
		waits = append(waits, f)
		go func() {
			f.err = em.fetchIn(context.WithoutCancel(ctx), m, claimed)
			em.release(m.Name, f, claimed...)
		}()
	}
	for _, w := range dataloader.Unique(waits) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.done:
			if w.err != nil {
				return nil, w.err
			}
		}
	}
	found := make([]*Entity, 0, len(keys))
	for _, id := range keys {
		if e := em.peek(m.Name, id); e != nil {
			found = append(found, e)
		}
	}
	out, errs := dataloader.OrderByKeys(ids, found, (*Entity).ID)
	if i, err := dataloader.FirstError(errs); err != nil {
		return nil, NewNotFoundError(m.Name, ids[i])
	}
	return out, nil
}

// Create returns a new, dirty entity of type m with no identity. Fields
// are keyed by field name. Reference fields take an *Entity (or a raw
// int64 identity for many-to-one), collection fields take []*Entity,
// and both update the inverse side as Set and Add do.
func (em *EntityManager) Create(m *meta.EntityMeta, fields map[string]any) (*Entity, error) {
	if err := em.checkMeta(m); err != nil {
		return nil, err
	}
	e := em.newEntity(m, 0, true)
	for name, v := range fields {
		if err := e.checkInit(name, v); err != nil {
			return nil, err
		}
	}
	e.dirty = true
	for _, c := range m.Columns {
		if v, ok := fields[c.Field]; ok && !c.ForeignKey {
			e.data[c.Field] = v
		}
	}
	em.mu.Lock()
	em.touched = append(em.touched, e)
	em.mu.Unlock()
	for _, rel := range m.Relations {
		v, ok := fields[rel.Field]
		if !ok {
			continue
		}
		var err error
		if members, ok := v.([]*Entity); ok {
			err = e.Collection(rel.Field).Add(members...)
		} else {
			err = e.setRelation(rel, v)
		}
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// checkInit validates one initial value of Create.
func (e *Entity) checkInit(name string, v any) error {
	rel, ok := e.meta.Relation(name)
	if !ok {
		if _, ok := e.meta.FieldColumn(name); !ok {
			return NewInvariantError(e.meta.Name, "unknown field %q", name)
		}
		return nil
	}
	switch v := v.(type) {
	case nil:
		if rel.IsCollection() {
			return NewInvariantError(e.meta.Name, "%s expects []*Entity", name)
		}
	case int64:
		if rel.Kind != meta.ManyToOne {
			return NewInvariantError(e.meta.Name, "%s does not accept a raw identity", name)
		}
	case *Entity:
		if rel.IsCollection() {
			return NewInvariantError(e.meta.Name, "%s expects []*Entity", name)
		}
		return checkTarget(e, rel, v)
	case []*Entity:
		if !rel.IsCollection() {
			return NewInvariantError(e.meta.Name, "%s expects *Entity", name)
		}
		for _, member := range v {
			if err := checkTarget(e, rel, member); err != nil {
				return err
			}
		}
	default:
		return NewInvariantError(e.meta.Name, "invalid value %T for %s", v, name)
	}
	return nil
}

func (em *EntityManager) newEntity(m *meta.EntityMeta, id int64, loaded bool) *Entity {
	e := &Entity{
		em:        em,
		meta:      m,
		id:        id,
		data:      make(map[string]any, len(m.Columns)),
		relations: make(map[string]relation, len(m.Relations)),
	}
	for _, rel := range m.Relations {
		e.relations[rel.Field] = newRelation(e, rel, loaded)
	}
	return e
}

func (em *EntityManager) checkMeta(m *meta.EntityMeta) error {
	if m == nil || !em.reg.Contains(m) {
		name := "<nil>"
		if m != nil {
			name = m.Name
		}
		return NewInvariantError(name, "entity type is not registered")
	}
	return nil
}

func (em *EntityManager) lookup(name string) (*meta.EntityMeta, error) {
	m, ok := em.reg.Lookup(name)
	if !ok {
		return nil, NewInvariantError(name, "entity type is not registered")
	}
	return m, nil
}

// fetch is an in-flight read of rows by identity. Its rows are in the
// identity map once done is closed.
type fetch struct {
	done chan struct{}
	err  error
}

// release unregisters f for the given identities and wakes its waiters.
func (em *EntityManager) release(name string, f *fetch, ids ...int64) {
	em.mu.Lock()
	for _, id := range ids {
		delete(em.fetching, key{name: name, id: id})
	}
	em.mu.Unlock()
	close(f.done)
}

// fetchIn loads the rows of m with the given identities into the
// identity map.
func (em *EntityManager) fetchIn(ctx context.Context, m *meta.EntityMeta, ids []int64) error {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	query, args := sql.SelectIn(em.dialect, m.Table, m.SelectColumns(), meta.IDColumn, values)
	rows, err := em.query(ctx, query, args)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := em.hydrate(m, row); err != nil {
			return err
		}
	}
	return nil
}

// rawReferrers returns the entities of type name whose field holds the
// raw identity of owner.
func (em *EntityManager) rawReferrers(name, field string, owner *Entity) []*Entity {
	if owner.id == 0 {
		return nil
	}
	var out []*Entity
	for _, e := range em.Entities() {
		if id, ok := e.data[field].(int64); ok && id == owner.id && e.meta.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// peek returns the cached instance of a persisted entity, or nil.
func (em *EntityManager) peek(name string, id int64) *Entity {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.entities[key{name: name, id: id}]
}

// fetchBy loads the rows of m whose column equals value. Rows already in
// the identity map resolve to the cached instance.
func (em *EntityManager) fetchBy(ctx context.Context, m *meta.EntityMeta, column string, value int64) ([]*Entity, error) {
	if value == 0 {
		return nil, nil
	}
	query, args := sql.SelectBy(em.dialect, m.Table, m.SelectColumns(), column, value)
	rows, err := em.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		e, err := em.hydrate(m, row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// fetchJoin returns the identities linked to id through the join table
// of rel.
func (em *EntityManager) fetchJoin(ctx context.Context, rel meta.Relation, id int64) ([]int64, error) {
	if id == 0 {
		return nil, nil
	}
	query, args := sql.SelectBy(em.dialect, rel.JoinTable, []string{rel.OtherColumn}, rel.Column, id)
	rows, err := em.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	ids, err := joinIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("strata: reading %s: %w", rel.JoinTable, err)
	}
	return ids, nil
}

func (em *EntityManager) query(ctx context.Context, query string, args []any) ([][]any, error) {
	var rows sql.Rows
	if err := em.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	return sql.ScanValues(rows)
}

// hydrate turns a row selected with m.SelectColumns into an entity. An
// instance already in the identity map wins over the row.
func (em *EntityManager) hydrate(m *meta.EntityMeta, row []any) (*Entity, error) {
	v, err := serde.ID.FromDB(row[0])
	if err != nil {
		return nil, fmt.Errorf("strata: hydrating %s id: %w", m.Name, err)
	}
	id, _ := v.(int64)
	if id == 0 {
		return nil, NewInvariantError(m.Name, "row without identity")
	}
	data := make(map[string]any, len(m.Columns))
	for i, c := range m.Columns {
		v, err := c.Serde.FromDB(row[i+1])
		if err != nil {
			return nil, fmt.Errorf("strata: hydrating %s.%s: %w", m.Name, c.Field, err)
		}
		if fk, ok := v.(int64); c.ForeignKey && ok && fk == 0 {
			v = nil
		}
		data[c.Field] = v
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	k := key{name: m.Name, id: id}
	if e, ok := em.entities[k]; ok {
		return e, nil
	}
	e := em.newEntity(m, id, false)
	e.data = data
	em.entities[k] = e
	em.touched = append(em.touched, e)
	return e, nil
}

// linkKey identifies a join-table row by its two entities. left is the
// entity stored in the lexically smaller join column.
type linkKey struct {
	table       string
	left, right *Entity
}

// link is a queued insert or delete of a join-table row.
type link struct {
	linkKey
	column, otherColumn string
	unlink              bool
}

// queueLink records the membership change of a many-to-many pair. The
// last change of a pair wins.
func (em *EntityManager) queueLink(rel meta.Relation, owner, other *Entity, unlink bool) {
	l := &link{
		linkKey:     linkKey{table: rel.JoinTable, left: owner, right: other},
		column:      rel.Column,
		otherColumn: rel.OtherColumn,
		unlink:      unlink,
	}
	if l.column > l.otherColumn {
		l.left, l.right = l.right, l.left
		l.column, l.otherColumn = l.otherColumn, l.column
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if queued, ok := em.linkIdx[l.linkKey]; ok {
		queued.unlink = unlink
		return
	}
	em.linkIdx[l.linkKey] = l
	em.links = append(em.links, l)
}
