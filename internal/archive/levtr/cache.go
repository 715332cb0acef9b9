package levtr

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

const (
	selectAllSQL = `SELECT id, ltype1, l1, ltype2, l2, pind, p1, p2 FROM levtr`
	selectByID   = selectAllSQL + ` WHERE id = ?`
	selectIDSQL  = `SELECT id FROM levtr
		WHERE ltype1 = ? AND l1 = ? AND ltype2 = ? AND l2 = ? AND pind = ? AND p1 = ? AND p2 = ?`
	insertSQL = `INSERT INTO levtr (ltype1, l1, ltype2, l2, pind, p1, p2) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

type key struct {
	level  Level
	trange Trange
}

// Cache maps levtr ids to (Level, Trange) and back.
//
// A Cache belongs to an archive connection and outlives transactions, so
// it is safe for concurrent use. Ids written by a transaction that is later
// rolled back stay cached; transactions that create rows should intern into
// a private Cache and Merge it into the shared one after commit.
type Cache struct {
	mu    sync.RWMutex
	byID  map[int64]key
	byKey map[key]int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		byID:  make(map[int64]key),
		byKey: make(map[key]int64),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[int64]key)
	c.byKey = make(map[key]int64)
}

// Preload bulk-loads every levtr row.
func (c *Cache) Preload(ctx context.Context, conn *backend.Conn) error {
	rows, err := conn.Query(ctx, selectAllSQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := make(map[int64]key)
	for rows.Next() {
		id, k, err := scanEntry(rows)
		if err != nil {
			return dberrors.Backend(selectAllSQL, err)
		}
		loaded[id] = k
	}
	if err := rows.Err(); err != nil {
		return dberrors.Backend(selectAllSQL, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, k := range loaded {
		c.byID[id] = k
		c.byKey[k] = id
	}
	return nil
}

// Add records a known (id, level, trange) association, for instance one
// read through a join.
func (c *Cache) Add(id int64, level Level, trange Trange) {
	if id == StationID {
		return
	}
	c.store(id, key{level, trange})
}

// Merge copies every entry of other into c.
func (c *Cache) Merge(other *Cache) {
	if other == nil || other == c {
		return
	}
	other.mu.RLock()
	entries := make(map[int64]key, len(other.byID))
	for id, k := range other.byID {
		entries[id] = k
	}
	other.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, k := range entries {
		c.byID[id] = k
		c.byKey[k] = id
	}
}

func (c *Cache) store(id int64, k key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = k
	c.byKey[k] = id
}

// Get returns the level and time range of id. StationID returns missing
// values. Unknown ids are loaded with a single-row query; an id that is not
// in storage is dberrors.ErrNotFound.
func (c *Cache) Get(ctx context.Context, conn *backend.Conn, id int64) (Level, Trange, error) {
	if id == StationID {
		return MissingLevel(), MissingTrange(), nil
	}

	c.mu.RLock()
	k, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return k.level, k.trange, nil
	}

	var l Level
	var t Trange
	var rowID int64
	err := conn.QueryRow(ctx, selectByID, id).Scan(&rowID,
		&l.Ltype1, &l.L1, &l.Ltype2, &l.L2, &t.Pind, &t.P1, &t.P2)
	if err != nil {
		if dberrors.IsNotFound(err) {
			return Level{}, Trange{}, fmt.Errorf("%w: levtr %d", dberrors.ErrNotFound, id)
		}
		return Level{}, Trange{}, err
	}

	c.store(id, key{l, t})
	return l, t, nil
}

// Level returns the level of id.
func (c *Cache) Level(ctx context.Context, conn *backend.Conn, id int64) (Level, error) {
	l, _, err := c.Get(ctx, conn, id)
	return l, err
}

// Trange returns the time range of id.
func (c *Cache) Trange(ctx context.Context, conn *backend.Conn, id int64) (Trange, error) {
	_, t, err := c.Get(ctx, conn, id)
	return t, err
}

// Lookup returns the cached id of (level, trange) without touching storage.
func (c *Cache) Lookup(level Level, trange Trange) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byKey[key{level, trange}]
	return id, ok
}

// ObtainID returns the id of (level, trange), inserting a new levtr row
// when it does not exist yet.
//
// When the insert fails on the unique constraint because a concurrent
// writer created the same row, the winner's id is queried once more.
func (c *Cache) ObtainID(ctx context.Context, conn *backend.Conn, level Level, trange Trange) (int64, error) {
	k := key{level, trange}
	if id, ok := c.Lookup(level, trange); ok {
		return id, nil
	}

	id, err := c.selectID(ctx, conn, k)
	switch {
	case err == nil:
		c.store(id, k)
		return id, nil
	case !dberrors.IsNotFound(err):
		return 0, err
	}

	id, err = conn.InsertID(ctx, insertSQL, args(k)...)
	if err != nil {
		if !conn.IsUniqueViolation(err) {
			return 0, err
		}
		if id, err = c.selectID(ctx, conn, k); err != nil {
			return 0, err
		}
	}

	c.store(id, k)
	return id, nil
}

func (c *Cache) selectID(ctx context.Context, conn *backend.Conn, k key) (int64, error) {
	var id int64
	if err := conn.QueryRow(ctx, selectIDSQL, args(k)...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func args(k key) []any {
	return []any{
		k.level.Ltype1, k.level.L1, k.level.Ltype2, k.level.L2,
		k.trange.Pind, k.trange.P1, k.trange.P2,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (int64, key, error) {
	var id int64
	var k key
	err := s.Scan(&id,
		&k.level.Ltype1, &k.level.L1, &k.level.Ltype2, &k.level.L2,
		&k.trange.Pind, &k.trange.P1, &k.trange.P2)
	return id, k, err
}
