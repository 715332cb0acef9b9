package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/obsarchive/internal/archive"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// datetimeLayout is the JSON form of observation datetimes.
const datetimeLayout = "2006-01-02T15:04:05Z"

// stationJSON is a station in responses.
type stationJSON struct {
	ID       int64   `json:"ana_id"`
	Report   string  `json:"rep_memo"`
	Priority int     `json:"priority"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Ident    string  `json:"ident,omitempty"`
	Mobile   bool    `json:"mobile"`
}

func newStationJSON(st archive.Station) stationJSON {
	return stationJSON{
		ID:       st.ID,
		Report:   st.Report,
		Priority: st.Priority,
		Lat:      st.Coords.LatDegrees(),
		Lon:      st.Coords.LonDegrees(),
		Ident:    st.Ident,
		Mobile:   st.Mobile(),
	}
}

// stationDatumJSON is a station metadata value in responses.
type stationDatumJSON struct {
	ContextID int64          `json:"context_id"`
	Station   stationJSON    `json:"station"`
	Var       string         `json:"var"`
	Value     any            `json:"value"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// datumJSON is a measured value in responses. Missing level and time range
// fields are null.
type datumJSON struct {
	ContextID int64          `json:"context_id"`
	Station   stationJSON    `json:"station"`
	Datetime  string         `json:"datetime"`
	Level     []*int         `json:"level"`
	Trange    []*int         `json:"trange"`
	Var       string         `json:"var"`
	Value     any            `json:"value"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// summaryJSON is a summary entry in responses.
type summaryJSON struct {
	Station     stationJSON `json:"station"`
	Level       []*int      `json:"level"`
	Trange      []*int      `json:"trange"`
	Var         string      `json:"var"`
	Count       int         `json:"count"`
	DatetimeMin string      `json:"datetimemin"`
	DatetimeMax string      `json:"datetimemax"`
}

// reportJSON is a report dictionary entry in responses.
type reportJSON struct {
	ID          int64  `json:"id"`
	Memo        string `json:"rep_memo"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
}

// variableJSON is a variable dictionary entry in responses.
type variableJSON struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Type        string `json:"type"`
	Scale       int    `json:"scale,omitempty"`
	Len         int    `json:"len,omitempty"`
}

// listResponse wraps the rows of a query endpoint.
type listResponse[T any] struct {
	Rows      []T  `json:"rows"`
	Count     int  `json:"count"`
	Truncated bool `json:"truncated,omitempty"`
}

func newListResponse[T any](rows []T, rq *requestQuery) listResponse[T] {
	if rows == nil {
		rows = []T{}
	}
	return listResponse[T]{
		Rows:      rows,
		Count:     len(rows),
		Truncated: rq.capped && len(rows) == rq.q.Limit,
	}
}

// varValue returns the JSON value of v: a number for numeric variables, the
// text for strings and lower-case hex for binary values.
func varValue(v *variable.Var) any {
	if !v.IsSet() {
		return nil
	}
	if v.Info().Type.IsNumeric() {
		f, err := v.Float()
		if err != nil {
			return nil
		}
		return f
	}
	return v.Text()
}

// attrsJSON returns the attributes of v keyed by varcode.
func attrsJSON(attrs []variable.Var) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for i := range attrs {
		out[attrs[i].Code().String()] = varValue(&attrs[i])
	}
	return out
}

func levelJSON(l levtr.Level) []*int {
	return missingToNil(l.Ltype1, l.L1, l.Ltype2, l.L2)
}

func trangeJSON(t levtr.Trange) []*int {
	return missingToNil(t.Pind, t.P1, t.P2)
}

func missingToNil(fields ...int) []*int {
	out := make([]*int, len(fields))
	for i, f := range fields {
		if f != levtr.Missing {
			out[i] = &f
		}
	}
	return out
}

// handleListReports returns the report dictionary in priority order.
func (s *Server) handleListReports(w http.ResponseWriter, _ *http.Request) {
	reports := s.archive.Reports()
	out := make([]reportJSON, 0, len(reports))
	for _, rep := range reports {
		out = append(out, reportJSON{
			ID:          rep.ID,
			Memo:        rep.Memo,
			Description: rep.Description,
			Priority:    rep.Priority,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": out,
		"count":   len(out),
	})
}

// handleListVariables returns the variable dictionary.
func (s *Server) handleListVariables(w http.ResponseWriter, _ *http.Request) {
	table := s.archive.Vartable()
	codes := table.Codes()
	out := make([]variableJSON, 0, len(codes))
	for _, code := range codes {
		info, err := table.Query(code)
		if err != nil {
			continue
		}
		out = append(out, variableJSON{
			Code:        info.Code.String(),
			Description: info.Description,
			Unit:        info.Unit,
			Type:        info.Type.String(),
			Scale:       info.Scale,
			Len:         info.Len,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"variables": out,
		"count":     len(out),
	})
}

// handleListStations runs a station query.
func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	rq, err := s.parseQueryRequest(r)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	cur, err := s.archive.QueryStations(r.Context(), rq.q)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	stations, err := cur.All()
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}

	out := make([]stationJSON, 0, len(stations))
	for _, st := range stations {
		out = append(out, newStationJSON(st))
	}
	rowsReturned.WithLabelValues("stations").Add(float64(len(out)))
	writeJSON(w, http.StatusOK, newListResponse(out, rq))
}

// handleListStationData runs a station data query.
func (s *Server) handleListStationData(w http.ResponseWriter, r *http.Request) {
	rq, err := s.parseQueryRequest(r)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	cur, err := s.archive.QueryStationData(r.Context(), rq.q)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	rows, err := cur.All()
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}

	out := make([]stationDatumJSON, 0, len(rows))
	for _, d := range rows {
		item := stationDatumJSON{
			ContextID: d.ID,
			Station:   newStationJSON(d.Station),
			Var:       d.Var.Code().String(),
			Value:     varValue(&d.Var),
		}
		if rq.attrs {
			item.Attrs = attrsJSON(d.Var.Attrs())
		}
		out = append(out, item)
	}
	rowsReturned.WithLabelValues("station_data").Add(float64(len(out)))
	writeJSON(w, http.StatusOK, newListResponse(out, rq))
}

// handleListData runs a measured data query.
func (s *Server) handleListData(w http.ResponseWriter, r *http.Request) {
	rq, err := s.parseQueryRequest(r)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	cur, err := s.archive.QueryData(r.Context(), rq.q)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	rows, err := cur.All()
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}

	out := make([]datumJSON, 0, len(rows))
	for _, d := range rows {
		item := datumJSON{
			ContextID: d.ID,
			Station:   newStationJSON(d.Station),
			Datetime:  d.Datetime.UTC().Format(datetimeLayout),
			Level:     levelJSON(d.Level),
			Trange:    trangeJSON(d.Trange),
			Var:       d.Var.Code().String(),
			Value:     varValue(&d.Var),
		}
		if rq.attrs {
			item.Attrs = attrsJSON(d.Var.Attrs())
		}
		out = append(out, item)
	}
	rowsReturned.WithLabelValues("data").Add(float64(len(out)))
	writeJSON(w, http.StatusOK, newListResponse(out, rq))
}

// handleSummary runs a summary query.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rq, err := s.parseQueryRequest(r)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	cur, err := s.archive.QuerySummary(r.Context(), rq.q)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	rows, err := cur.All()
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}

	out := make([]summaryJSON, 0, len(rows))
	for _, e := range rows {
		out = append(out, summaryJSON{
			Station:     newStationJSON(e.Station),
			Level:       levelJSON(e.Level),
			Trange:      trangeJSON(e.Trange),
			Var:         e.Code.String(),
			Count:       e.Count,
			DatetimeMin: e.DatetimeMin.UTC().Format(datetimeLayout),
			DatetimeMax: e.DatetimeMax.UTC().Format(datetimeLayout),
		})
	}
	rowsReturned.WithLabelValues("summary").Add(float64(len(out)))
	writeJSON(w, http.StatusOK, newListResponse(out, rq))
}

// handleDataAttrs returns the attributes of one measured value.
func (s *Server) handleDataAttrs(w http.ResponseWriter, r *http.Request) {
	s.handleAttrs(w, r, archive.DataValue)
}

// handleStationDataAttrs returns the attributes of one station value.
func (s *Server) handleStationDataAttrs(w http.ResponseWriter, r *http.Request) {
	s.handleAttrs(w, r, archive.StationValue)
}

func (s *Server) handleAttrs(w http.ResponseWriter, r *http.Request, kind archive.ValueKind) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid value id")
		return
	}
	attrs, err := s.archive.AttrQuery(r.Context(), kind, id)
	if err != nil {
		s.writeArchiveError(w, r, err)
		return
	}
	out := attrsJSON(attrs)
	if out == nil {
		out = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"context_id": id,
		"kind":       kind.String(),
		"attrs":      out,
	})
}
