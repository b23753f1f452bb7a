package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func RegisterTools(s *mcp.Server, deps *Deps) {
	// Query Tool
	GetExecuteSQLQueryTool(deps).Register(s)
	// List Tables Tool
	GetListTablesTool(deps).Register(s)
	// Describe Table Tool
	GetDescribeTableTool(deps).Register(s)
	// Get DB Info Tool
	GetDatabaseInfoTool(deps).Register(s)
	// Discover Configs Tool
	GetDiscoverConfigsTool(deps).Register(s)
	// List Config Files Tool
	GetListConfigFilesTool(deps).Register(s)
	// Validate Config Tool
	GetValidateConfigTool(deps).Register(s)
	// Setup Config Tool
	GetSetupConfigTool(deps).Register(s)
	// Backup Env File Tool
	GetBackupEnvFileTool(deps).Register(s)
	// Select And Configure Tool
	GetSelectAndConfigureTool(deps).Register(s)
	// Working Directory Tool
	GetWorkingDirectoryTool(deps).Register(s)
}
