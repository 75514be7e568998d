// Package query keeps a paged, filtered list of remote records in a
// repository category. A QueryManager calls a caller supplied list Endpoint,
// tracks page number, record count and filter state, and resynchronizes the
// cached list around create, update and remove calls.
package query
