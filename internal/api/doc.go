// Package api implements the read-only HTTP query API of the observation
// archive.
//
// This package provides:
//   - JSON endpoints for stations, station data, measured data and summaries
//   - Report dictionary and priority listing
//   - Attribute lookup for a single stored value
//   - Health and status endpoints plus a Prometheus /metrics handler
//   - Middleware stack (request ID, logging, recovery, CORS, rate limit)
//
// # Queries
//
// URL query parameters map one-to-one onto archive query keys, so
// /api/v1/data?rep_memo=synop&var=B12101&datetimemin=2024-01-01 becomes the
// equivalent archive query. The parameters query=best and limit=N are
// handled by the archive; attrs=1 adds value attributes to each row. The
// number of returned rows is capped by the api.max_rows setting.
//
// # Errors
//
// Archive errors are mapped to HTTP status codes: missing records give 404,
// malformed or inconsistent queries give 400 and everything else gives 500.
package api
