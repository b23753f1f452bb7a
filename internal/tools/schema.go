package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ListTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema_description:"Optional schema name to filter tables (defaults to 'public')"`
}

type TableInfo struct {
	Name   string `json:"name" jsonschema_description:"Table name"`
	Schema string `json:"schema" jsonschema_description:"Schema name"`
	Type   string `json:"type" jsonschema_description:"Table type (table or view)"`
}

type ListTablesOutput struct {
	Tables []TableInfo `json:"tables" jsonschema_description:"Array of table information"`
}

func GetListTablesTool(deps *Deps) *ToolDefinition[ListTablesInput, ListTablesOutput] {
	return NewToolDefinition[ListTablesInput, ListTablesOutput](
		"list_tables",
		"List tables and views in the database with schema metadata.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
			return listTablesHandler(ctx, input, deps)
		},
	)
}

func listTablesHandler(ctx context.Context, input ListTablesInput, deps *Deps) (*mcp.CallToolResult, ListTablesOutput, error) {
	exec, err := deps.Executor(ctx)
	if err != nil {
		return nil, ListTablesOutput{}, err
	}

	schema := input.Schema
	if schema == "" {
		schema = "public"
	}

	query := `
		SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`

	result, err := exec.Execute(ctx, query, schema)
	if err != nil {
		return nil, ListTablesOutput{}, err
	}

	var tables []TableInfo
	for _, row := range result.Rows {
		info := TableInfo{
			Name:   asString(row[0]),
			Schema: asString(row[1]),
		}
		switch asString(row[2]) {
		case "BASE TABLE":
			info.Type = "table"
		case "VIEW":
			info.Type = "view"
		default:
			info.Type = asString(row[2])
		}
		tables = append(tables, info)
	}

	return jsonResult(ListTablesOutput{Tables: tables})
}

type DescribeTableInput struct {
	Table  string `json:"table_name" jsonschema:"required" jsonschema_description:"Table name to describe"`
	Schema string `json:"schema,omitempty" jsonschema_description:"Schema name (defaults to 'public')"`
}

type ColumnInfo struct {
	Name       string `json:"name" jsonschema_description:"Column name"`
	DataType   string `json:"data_type" jsonschema_description:"PostgreSQL data type"`
	Nullable   bool   `json:"nullable" jsonschema_description:"Whether the column accepts NULL"`
	Default    string `json:"default,omitempty" jsonschema_description:"Default expression, if any"`
	PrimaryKey bool   `json:"primary_key" jsonschema_description:"Whether the column is part of the primary key"`
}

type DescribeTableOutput struct {
	Table   string       `json:"table" jsonschema_description:"Table name"`
	Schema  string       `json:"schema" jsonschema_description:"Schema name"`
	Columns []ColumnInfo `json:"columns" jsonschema_description:"Columns in ordinal order"`
}

func GetDescribeTableTool(deps *Deps) *ToolDefinition[DescribeTableInput, DescribeTableOutput] {
	return NewToolDefinition[DescribeTableInput, DescribeTableOutput](
		"describe_table",
		"Describe the columns of a table: names, types, nullability, defaults and primary key membership.",
		func(ctx context.Context, req *mcp.CallToolRequest, input DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
			return describeTableHandler(ctx, input, deps)
		},
	)
}

func describeTableHandler(ctx context.Context, input DescribeTableInput, deps *Deps) (*mcp.CallToolResult, DescribeTableOutput, error) {
	if input.Table == "" {
		return nil, DescribeTableOutput{}, fmt.Errorf("table_name is required")
	}

	exec, err := deps.Executor(ctx)
	if err != nil {
		return nil, DescribeTableOutput{}, err
	}

	schema := input.Schema
	if schema == "" {
		schema = "public"
	}

	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON kcu.constraint_name = tc.constraint_name
					AND kcu.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	result, err := exec.Execute(ctx, query, schema, input.Table)
	if err != nil {
		return nil, DescribeTableOutput{}, err
	}
	if len(result.Rows) == 0 {
		return nil, DescribeTableOutput{}, fmt.Errorf("table %s.%s not found", schema, input.Table)
	}

	var columns []ColumnInfo
	for _, row := range result.Rows {
		columns = append(columns, ColumnInfo{
			Name:       asString(row[0]),
			DataType:   asString(row[1]),
			Nullable:   asString(row[2]) == "YES",
			Default:    asString(row[3]),
			PrimaryKey: asBool(row[4]),
		})
	}

	return jsonResult(DescribeTableOutput{
		Table:   input.Table,
		Schema:  schema,
		Columns: columns,
	})
}

type GetDatabaseInfoInput struct{}

type GetDatabaseInfoOutput struct {
	Database   string `json:"database" jsonschema_description:"Current database name"`
	User       string `json:"user" jsonschema_description:"Current database user"`
	Version    string `json:"version" jsonschema_description:"Server version string"`
	SizePretty string `json:"size" jsonschema_description:"Database size, human readable"`
	ReadOnly   bool   `json:"read_only" jsonschema_description:"Whether the read-only policy is active"`
}

func GetDatabaseInfoTool(deps *Deps) *ToolDefinition[GetDatabaseInfoInput, GetDatabaseInfoOutput] {
	return NewToolDefinition[GetDatabaseInfoInput, GetDatabaseInfoOutput](
		"get_database_info",
		"Report the connected database's name, user, server version and size.",
		func(ctx context.Context, req *mcp.CallToolRequest, input GetDatabaseInfoInput) (*mcp.CallToolResult, GetDatabaseInfoOutput, error) {
			return getDatabaseInfoHandler(ctx, deps)
		},
	)
}

func getDatabaseInfoHandler(ctx context.Context, deps *Deps) (*mcp.CallToolResult, GetDatabaseInfoOutput, error) {
	exec, err := deps.Executor(ctx)
	if err != nil {
		return nil, GetDatabaseInfoOutput{}, err
	}

	query := `
		SELECT
			current_database(),
			current_user,
			version(),
			pg_size_pretty(pg_database_size(current_database()))`

	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, GetDatabaseInfoOutput{}, err
	}
	if len(result.Rows) != 1 || len(result.Rows[0]) != 4 {
		return nil, GetDatabaseInfoOutput{}, fmt.Errorf("unexpected database info shape")
	}

	row := result.Rows[0]
	return jsonResult(GetDatabaseInfoOutput{
		Database:   asString(row[0]),
		User:       asString(row[1]),
		Version:    asString(row[2]),
		SizePretty: asString(row[3]),
		ReadOnly:   exec.ReadOnly(),
	})
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
