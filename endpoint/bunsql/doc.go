// Package bunsql serves query endpoints from SQL tables through Bun and
// provides writers whose operations plug into a QueryManager as apply
// functions. Saved filter views are persisted with ViewStore.
package bunsql
