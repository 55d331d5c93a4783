package schema

// ColumnInfo describes a single column as the catalog reports it
type ColumnInfo struct {
	Name       string
	DataType   string // information_schema data_type, with USER-DEFINED resolved to udt_name
	UDTName    string // underlying type name: int4, varchar, timestamptz, …
	IsNullable bool
	MaxLength  *int // character_maximum_length; nil for unbounded or non-character types
}

// TableInfo describes a table and its columns in ordinal order
type TableInfo struct {
	Schema  string
	Name    string
	Columns []ColumnInfo
}

// Column finds a column by name.
func (t *TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// QualifiedName returns schema.table.
func (t *TableInfo) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
