package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/internal/logging"
)

type ExecuteSQLQueryInput struct {
	Query  string `json:"query" jsonschema:"required" jsonschema_description:"SQL statement to execute. In read-only mode only SELECT/SHOW/EXPLAIN-style statements are accepted."`
	Params []any  `json:"params,omitempty" jsonschema_description:"Optional positional parameters bound as $1, $2, ..."`
}

type ExecuteSQLQueryOutput struct {
	Columns  []string `json:"columns" jsonschema_description:"Column names in result order"`
	Rows     [][]any  `json:"rows" jsonschema_description:"Result rows; every row has one value per column"`
	RowCount int      `json:"row_count" jsonschema_description:"Number of rows returned"`
}

func GetExecuteSQLQueryTool(deps *Deps) *ToolDefinition[ExecuteSQLQueryInput, ExecuteSQLQueryOutput] {
	return NewToolDefinition[ExecuteSQLQueryInput, ExecuteSQLQueryOutput](
		"execute_sql_query",
		"Execute a SQL statement against the configured PostgreSQL database and return a rectangular result.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExecuteSQLQueryInput) (*mcp.CallToolResult, ExecuteSQLQueryOutput, error) {
			return executeSQLQueryHandler(ctx, input, deps)
		},
	)
}

func executeSQLQueryHandler(ctx context.Context, input ExecuteSQLQueryInput, deps *Deps) (*mcp.CallToolResult, ExecuteSQLQueryOutput, error) {
	if input.Query == "" {
		return nil, ExecuteSQLQueryOutput{}, fmt.Errorf("query is required")
	}

	exec, err := deps.Executor(ctx)
	if err != nil {
		return nil, ExecuteSQLQueryOutput{}, err
	}

	result, err := exec.Execute(ctx, input.Query, input.Params...)
	if err != nil {
		deps.Logger().Warn("execute_sql_query failed",
			zap.String("query", logging.SanitizeQuery(input.Query)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, ExecuteSQLQueryOutput{}, err
	}

	return jsonResult(ExecuteSQLQueryOutput{
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
	})
}
