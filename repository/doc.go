// Package repository provides an observable in-memory store that keeps item
// collections grouped by category, with point mutation, bulk replacement and
// change subscriptions.
package repository
