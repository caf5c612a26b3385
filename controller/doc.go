// Package controller exposes members over HTTP with chi: lookup by id, lookup
// through a converter middleware, and a paged, sortable listing of DTOs.
package controller
