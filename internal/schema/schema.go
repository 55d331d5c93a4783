package schema

import "context"

// Introspector reads table definitions from the live catalog
type Introspector interface {
	// LookupTable resolves table (plain or schema-qualified) and returns its
	// columns, or nil without error when no such table is visible.
	LookupTable(ctx context.Context, table string) (*TableInfo, error)
}
