// Package materializer flattens a cached collection into a CSV artifact.
//
// The column schema is the Columns table: each entry names a column and
// extracts it from the decoded payload, defaulting to "" when the field is
// absent. Nested lists (addresses, recent activity, recent transactions) are
// written as compact JSON in a single cell. Rows follow the record cache
// order, so an unchanged cache always produces the same bytes.
package materializer
