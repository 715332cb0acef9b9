package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/query"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// paramAttrs is the request parameter that adds value attributes to rows.
const paramAttrs = "attrs"

// requestQuery is a parsed query request.
type requestQuery struct {
	q     *query.Query
	attrs bool
	// capped is true when the row cap replaced the requested limit.
	capped bool
}

// parseQuery converts URL parameters into an archive query. Every parameter
// except attrs must name a query key; repeated parameters keep the last value.
func parseQuery(table *variable.Vartable, params url.Values, maxRows int) (*requestQuery, error) {
	rq := &requestQuery{q: &query.Query{}}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := params[name]
		value := values[len(values)-1]

		if name == paramAttrs {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%w: attrs=%q is not a boolean", dberrors.ErrConsistency, value)
			}
			rq.attrs = b
			continue
		}

		key, err := query.ParseKey(name)
		if err != nil {
			return nil, err
		}
		if err := rq.q.Set(table, key, value); err != nil {
			return nil, err
		}
	}

	if maxRows > 0 && (rq.q.Limit == 0 || rq.q.Limit > maxRows) {
		rq.capped = true
		rq.q.Limit = maxRows
	}
	return rq, nil
}

// parseQueryRequest parses r's URL parameters with the server's row cap.
func (s *Server) parseQueryRequest(r *http.Request) (*requestQuery, error) {
	return parseQuery(s.archive.Vartable(), r.URL.Query(), s.cfg.MaxRows)
}
