package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/best"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

const (
	selectReportsSQL = `SELECT id, memo, description, prio FROM repinfo`
	selectReportSQL  = selectReportsSQL + ` WHERE memo = ?`
	insertReportSQL  = `INSERT INTO repinfo (memo, description, prio) VALUES (?, ?, ?)`
	updateReportSQL  = `UPDATE repinfo SET description = ?, prio = ? WHERE id = ?`
)

// Report is an entry of the report dictionary.
type Report struct {
	ID          int64
	Memo        string
	Description string
	Priority    int
}

// reportCache is the archive-wide report dictionary.
type reportCache struct {
	mu     sync.RWMutex
	byMemo map[string]Report
}

func newReportCache() *reportCache {
	return &reportCache{byMemo: make(map[string]Report)}
}

// load replaces the cache content with every repinfo row.
func (c *reportCache) load(ctx context.Context, conn *backend.Conn) error {
	rows, err := conn.Query(ctx, selectReportsSQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := make(map[string]Report)
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Memo, &r.Description, &r.Priority); err != nil {
			return dberrors.Backend(selectReportsSQL, err)
		}
		loaded[r.Memo] = r
	}
	if err := rows.Err(); err != nil {
		return dberrors.Backend(selectReportsSQL, err)
	}

	c.mu.Lock()
	c.byMemo = loaded
	c.mu.Unlock()
	return nil
}

func (c *reportCache) get(memo string) (Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byMemo[memo]
	return r, ok
}

func (c *reportCache) merge(reports map[string]Report) {
	if len(reports) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for memo, r := range reports {
		c.byMemo[memo] = r
	}
}

// list returns the reports by descending priority, then memo.
func (c *reportCache) list() []Report {
	c.mu.RLock()
	out := make([]Report, 0, len(c.byMemo))
	for _, r := range c.byMemo {
		out = append(out, r)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Memo < out[j].Memo
	})
	return out
}

func (c *reportCache) priorities() best.Priorities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := make(best.Priorities, len(c.byMemo))
	for memo, r := range c.byMemo {
		p[memo] = r.Priority
	}
	return p
}

// txReports resolves reports for one transaction. Reports created by the
// transaction stay private until it commits.
type txReports struct {
	shared          *reportCache
	created         map[string]Report
	defaultPriority int
}

// ReportID implements batch.ReportResolver.
func (r *txReports) ReportID(ctx context.Context, conn *backend.Conn, memo string, create bool) (int64, error) {
	if rep, ok := r.shared.get(memo); ok {
		return rep.ID, nil
	}
	if rep, ok := r.created[memo]; ok {
		return rep.ID, nil
	}

	rep, err := selectReport(ctx, conn, memo)
	switch {
	case err == nil:
		r.remember(rep)
		return rep.ID, nil
	case !dberrors.IsNotFound(err):
		return 0, err
	case !create:
		return 0, fmt.Errorf("%w: report %q", dberrors.ErrNotFound, memo)
	}

	rep = Report{Memo: memo, Priority: r.defaultPriority}
	rep.ID, err = conn.InsertID(ctx, insertReportSQL, rep.Memo, rep.Description, rep.Priority)
	if err != nil {
		if !conn.IsUniqueViolation(err) {
			return 0, err
		}
		// Created concurrently: use the winner's row.
		if rep, err = selectReport(ctx, conn, memo); err != nil {
			return 0, err
		}
	}
	r.remember(rep)
	return rep.ID, nil
}

func (r *txReports) remember(rep Report) {
	if r.created == nil {
		r.created = make(map[string]Report)
	}
	r.created[rep.Memo] = rep
}

func selectReport(ctx context.Context, conn *backend.Conn, memo string) (Report, error) {
	var rep Report
	err := conn.QueryRow(ctx, selectReportSQL, memo).Scan(&rep.ID, &rep.Memo, &rep.Description, &rep.Priority)
	return rep, err
}

// syncReport creates or updates one report row.
func syncReport(ctx context.Context, conn *backend.Conn, rep Report) (Report, error) {
	existing, err := selectReport(ctx, conn, rep.Memo)
	switch {
	case err == nil:
		rep.ID = existing.ID
		if existing.Description == rep.Description && existing.Priority == rep.Priority {
			return rep, nil
		}
		_, err = conn.Exec(ctx, updateReportSQL, rep.Description, rep.Priority, rep.ID)
		return rep, err
	case dberrors.IsNotFound(err):
		rep.ID, err = conn.InsertID(ctx, insertReportSQL, rep.Memo, rep.Description, rep.Priority)
		return rep, err
	default:
		return Report{}, err
	}
}
