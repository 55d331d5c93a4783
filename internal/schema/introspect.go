package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/types"
)

// PgIntrospector implements Introspector for PostgreSQL using
// information_schema, over any database.Conn
type PgIntrospector struct {
	conn database.Conn
}

// NewPgIntrospector creates a new Postgres schema introspector
func NewPgIntrospector(conn database.Conn) *PgIntrospector {
	return &PgIntrospector{conn: conn}
}

const (
	qualifiedTableQuery = `SELECT table_schema FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2 LIMIT 1`

	// first match along the search path, pg_catalog and temp schemas included
	searchPathTableQuery = `SELECT t.table_schema
		FROM information_schema.tables t
		WHERE t.table_name = $1
		  AND t.table_schema = ANY (current_schemas(true))
		ORDER BY array_position(current_schemas(true), t.table_schema::name)
		LIMIT 1`

	columnsQuery = `SELECT column_name,
		       is_nullable,
		       data_type,
		       udt_name,
		       COALESCE(character_maximum_length, -1) AS max_length
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
)

// LookupTable resolves the schema of table and returns its columns
func (p *PgIntrospector) LookupTable(ctx context.Context, table string) (*TableInfo, error) {
	schemaName, err := p.resolveSchema(ctx, table)
	if err != nil || schemaName == "" {
		return nil, err
	}
	name := table
	if _, rest, ok := strings.Cut(table, "."); ok {
		name = rest
	}
	return p.InspectTable(ctx, schemaName, name)
}

func (p *PgIntrospector) resolveSchema(ctx context.Context, table string) (string, error) {
	var res *database.Result
	var err error
	if schemaName, name, ok := strings.Cut(table, "."); ok {
		res, err = p.conn.Execute(ctx, qualifiedTableQuery, types.TextParam(schemaName), types.TextParam(name))
	} else {
		res, err = p.conn.Execute(ctx, searchPathTableQuery, types.TextParam(table))
	}
	if err != nil {
		return "", fmt.Errorf("resolve table %s: %w", table, err)
	}
	row, ok := res.First()
	if !ok {
		return "", nil
	}
	return row.Text("table_schema"), nil
}

// InspectTable returns column details for a single table
func (p *PgIntrospector) InspectTable(ctx context.Context, schemaName, table string) (*TableInfo, error) {
	res, err := p.conn.Execute(ctx, columnsQuery, types.TextParam(schemaName), types.TextParam(table))
	if err != nil {
		return nil, fmt.Errorf("inspect table %s.%s: %w", schemaName, table, err)
	}

	info := &TableInfo{Schema: schemaName, Name: table}
	for _, row := range res.Rows() {
		col := ColumnInfo{
			Name:       row.Text("column_name"),
			DataType:   strings.ToLower(row.Text("data_type")),
			UDTName:    row.Text("udt_name"),
			IsNullable: row.Text("is_nullable") == "YES",
		}
		if col.DataType == "user-defined" {
			col.DataType = col.UDTName
		}
		n, err := types.Int32.Decode(row.Text("max_length"))
		if err != nil {
			return nil, fmt.Errorf("inspect table %s.%s: column %s: %w", schemaName, table, col.Name, err)
		}
		if n >= 0 {
			length := int(n)
			col.MaxLength = &length
		}
		info.Columns = append(info.Columns, col)
	}
	return info, nil
}
