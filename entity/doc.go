// Package entity holds the Bun models of the application: teams, their
// members and items, plus the auditing columns they share.
package entity
