// Package spy captures the statements Bun sends to the database and writes
// them to a log sink as single-line, pretty-printed SQL.
//
// A Formatter is built once at startup and handed to NewQueryHook; there is
// no package-level active formatter.
package spy
