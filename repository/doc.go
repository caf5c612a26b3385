// Package repository provides a generic repository abstraction built on Bun
// for CRUD operations, sorting, paging, transactions and upserts, and the
// member, team and item repositories built on it.
package repository
