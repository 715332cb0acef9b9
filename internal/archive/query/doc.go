// Package query builds the fixed family of archive read statements.
//
// A Query holds independently optional predicates. Only the predicates
// that are set contribute to the WHERE clause, joined with AND:
//
//	q := &query.Query{}
//	q.Set(table, query.KeyRepMemo, "synop")
//	q.Set(table, query.KeyVar, "t")
//	q.Set(table, query.KeyDatetimeMin, "2024-03-01 00:00:00")
//	stmt, err := query.BuildData(q, dialect)
//
// Four statement shapes share the predicates:
//
//   - BuildStations: one row per station, with an EXISTS sub-select when
//     data predicates are set
//   - BuildStationData: one row per station metadata value
//   - BuildData: one row per measured value, ordered by station, datetime,
//     level/time range and variable (or by position first for best-value
//     queries, so that rows describing the same event from different
//     reports are adjacent)
//   - BuildSummary: values grouped by station, level/time range and
//     variable with count and datetime bounds
//
// BuildDataIDs and BuildStationDataIDs select only row ids for bulk deletes.
//
// Attribute filters ("B33007>50,B33196=0") are not part of the SQL: the
// attribute blob is opaque to the database, so the filter is applied to
// decoded attributes by the cursor reading the rows.
package query
