package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/internal/discovery"
	"github.com/sebcbi1/postgres-mcp/internal/logging"
	"github.com/sebcbi1/postgres-mcp/internal/pool"
	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

// CandidateInfo is the redacted, client-facing view of a discovered
// configuration. Plaintext credentials never leave the process.
type CandidateInfo struct {
	URI        string  `json:"uri" jsonschema_description:"Connection URI with the password masked"`
	Source     string  `json:"source" jsonschema_description:"File the candidate was found in"`
	Format     string  `json:"format" jsonschema_description:"How the source was parsed (dotenv, ini, json, yaml, toml, param-files)"`
	Confidence float64 `json:"confidence" jsonschema_description:"1.0 explicit URI, 0.8 constructed from parameters, 0.5 raw text match"`
}

func candidateInfos(candidates []discovery.Candidate) []CandidateInfo {
	infos := make([]CandidateInfo, len(candidates))
	for i, c := range candidates {
		infos[i] = CandidateInfo{
			URI:        c.Config.Redacted(),
			Source:     c.Source,
			Format:     string(c.Format),
			Confidence: c.Confidence,
		}
	}
	return infos
}

type DiscoverConfigsInput struct {
	Directory string `json:"directory,omitempty" jsonschema_description:"Directory to scan (defaults to the project directory)"`
}

type DiscoverConfigsOutput struct {
	Candidates []CandidateInfo `json:"candidates" jsonschema_description:"Distinct database candidates, best first"`
	Scanned    string          `json:"scanned" jsonschema_description:"Directory that was scanned"`
}

func GetDiscoverConfigsTool(deps *Deps) *ToolDefinition[DiscoverConfigsInput, DiscoverConfigsOutput] {
	return NewToolDefinition[DiscoverConfigsInput, DiscoverConfigsOutput](
		"discover_database_configs",
		"Scan the project tree for PostgreSQL connection configurations in .env, INI, JSON, YAML, TOML and parameter files.",
		func(ctx context.Context, req *mcp.CallToolRequest, input DiscoverConfigsInput) (*mcp.CallToolResult, DiscoverConfigsOutput, error) {
			return discoverConfigsHandler(input, deps)
		},
	)
}

func discoverConfigsHandler(input DiscoverConfigsInput, deps *Deps) (*mcp.CallToolResult, DiscoverConfigsOutput, error) {
	dir := input.Directory
	if dir == "" {
		dir = deps.Config().ProjectDir
	}

	candidates, err := discovery.NewScanner(dir, deps.Logger()).Scan()
	if err != nil {
		return nil, DiscoverConfigsOutput{}, fmt.Errorf("scan %s: %w", dir, err)
	}
	distinct := discovery.Deduplicate(candidates)

	return jsonResult(DiscoverConfigsOutput{
		Candidates: candidateInfos(distinct),
		Scanned:    dir,
	})
}

type ListConfigFilesInput struct {
	Directory string `json:"directory,omitempty" jsonschema_description:"Directory to scan (defaults to the project directory)"`
}

type ListConfigFilesOutput struct {
	Files []string `json:"files" jsonschema_description:"Configuration files the scanner would parse"`
}

func GetListConfigFilesTool(deps *Deps) *ToolDefinition[ListConfigFilesInput, ListConfigFilesOutput] {
	return NewToolDefinition[ListConfigFilesInput, ListConfigFilesOutput](
		"list_config_files",
		"List configuration files in the project tree without parsing them.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ListConfigFilesInput) (*mcp.CallToolResult, ListConfigFilesOutput, error) {
			dir := input.Directory
			if dir == "" {
				dir = deps.Config().ProjectDir
			}
			files, err := discovery.NewScanner(dir, deps.Logger()).ConfigFiles()
			if err != nil {
				return nil, ListConfigFilesOutput{}, fmt.Errorf("scan %s: %w", dir, err)
			}
			return jsonResult(ListConfigFilesOutput{Files: files})
		},
	)
}

type ValidateConfigInput struct {
	URI string `json:"uri" jsonschema:"required" jsonschema_description:"PostgreSQL connection URI to validate"`
}

type ValidateConfigOutput struct {
	Valid     bool   `json:"valid" jsonschema_description:"Whether the URI parsed and the server answered a ping"`
	URI       string `json:"uri" jsonschema_description:"The validated URI, password masked"`
	Error     string `json:"error,omitempty" jsonschema_description:"Failure detail, credentials redacted"`
	Reachable bool   `json:"reachable" jsonschema_description:"Whether a connection was established"`
}

func GetValidateConfigTool(deps *Deps) *ToolDefinition[ValidateConfigInput, ValidateConfigOutput] {
	return NewToolDefinition[ValidateConfigInput, ValidateConfigOutput](
		"validate_database_config",
		"Parse a connection URI and verify the database answers a ping.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ValidateConfigInput) (*mcp.CallToolResult, ValidateConfigOutput, error) {
			return validateConfigHandler(ctx, input, deps)
		},
	)
}

func validateConfigHandler(ctx context.Context, input ValidateConfigInput, deps *Deps) (*mcp.CallToolResult, ValidateConfigOutput, error) {
	connCfg, err := config.ParseConnectionURI(input.URI)
	if err != nil {
		return jsonResult(ValidateConfigOutput{
			Valid: false,
			URI:   logging.SanitizeConnString(input.URI),
			Error: err.Error(),
		})
	}

	if err := pool.ValidateConnection(ctx, connCfg, nil); err != nil {
		return jsonResult(ValidateConfigOutput{
			Valid:     false,
			URI:       connCfg.Redacted(),
			Error:     logging.SanitizeError(err),
			Reachable: false,
		})
	}

	return jsonResult(ValidateConfigOutput{
		Valid:     true,
		URI:       connCfg.Redacted(),
		Reachable: true,
	})
}

type SetupConfigInput struct {
	URI string `json:"uri" jsonschema:"required" jsonschema_description:"PostgreSQL connection URI to persist as the active configuration"`
}

type SetupConfigOutput struct {
	URI     string `json:"uri" jsonschema_description:"Persisted URI, password masked"`
	EnvFile string `json:"env_file" jsonschema_description:"Path of the .env file written"`
	Message string `json:"message" jsonschema_description:"Summary of what was done"`
}

func GetSetupConfigTool(deps *Deps) *ToolDefinition[SetupConfigInput, SetupConfigOutput] {
	return NewToolDefinition[SetupConfigInput, SetupConfigOutput](
		"setup_database_config",
		"Persist a connection URI to the project .env (after backing it up) and make it the active configuration.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SetupConfigInput) (*mcp.CallToolResult, SetupConfigOutput, error) {
			return setupConfigHandler(input, deps)
		},
	)
}

func setupConfigHandler(input SetupConfigInput, deps *Deps) (*mcp.CallToolResult, SetupConfigOutput, error) {
	connCfg, err := config.ParseConnectionURI(input.URI)
	if err != nil {
		return nil, SetupConfigOutput{}, err
	}

	projectDir := deps.Config().ProjectDir
	envFile := discovery.NewEnvFile(projectDir)
	if err := envFile.SetDatabaseURI(connCfg.ConnString()); err != nil {
		return nil, SetupConfigOutput{}, err
	}

	// The process environment follows the persisted file so a restart and a
	// running server see the same configuration.
	config.LoadProjectEnv(projectDir, true)
	deps.Reconfigure(connCfg.ConnString())
	deps.Logger().Info("database configuration updated",
		zap.String("uri", connCfg.Redacted()),
		zap.String("env_file", envFile.Path()))

	return jsonResult(SetupConfigOutput{
		URI:     connCfg.Redacted(),
		EnvFile: envFile.Path(),
		Message: fmt.Sprintf("%s set in %s", config.EnvKeyDatabase, envFile.Path()),
	})
}

type BackupEnvFileInput struct{}

type BackupEnvFileOutput struct {
	Backup  string `json:"backup,omitempty" jsonschema_description:"Path of the backup written, empty when there was no .env"`
	Message string `json:"message" jsonschema_description:"Summary of what was done"`
}

func GetBackupEnvFileTool(deps *Deps) *ToolDefinition[BackupEnvFileInput, BackupEnvFileOutput] {
	return NewToolDefinition[BackupEnvFileInput, BackupEnvFileOutput](
		"backup_env_file",
		"Copy the project .env to .env.bak.",
		func(ctx context.Context, req *mcp.CallToolRequest, input BackupEnvFileInput) (*mcp.CallToolResult, BackupEnvFileOutput, error) {
			envFile := discovery.NewEnvFile(deps.Config().ProjectDir)
			backup, err := envFile.Backup()
			if err != nil {
				return nil, BackupEnvFileOutput{}, err
			}
			msg := "no .env file to back up"
			if backup != "" {
				msg = fmt.Sprintf("backed up %s to %s", envFile.Path(), backup)
			}
			return jsonResult(BackupEnvFileOutput{Backup: backup, Message: msg})
		},
	)
}

type SelectAndConfigureInput struct {
	Directory string `json:"directory,omitempty" jsonschema_description:"Directory to scan (defaults to the project directory)"`
	Selection int    `json:"selected_index,omitempty" jsonschema_description:"1-based index of the candidate to activate. Omit to list candidates first."`
}

type SelectAndConfigureOutput struct {
	Candidates []CandidateInfo `json:"candidates,omitempty" jsonschema_description:"Distinct candidates awaiting selection"`
	Selected   *CandidateInfo  `json:"selected,omitempty" jsonschema_description:"The candidate that was activated"`
	Message    string          `json:"message" jsonschema_description:"What happened, or what to do next"`
}

// GetSelectAndConfigureTool is the two-phase selection flow: called without
// a selection it lists the distinct candidates; called with one it persists
// that candidate and rebuilds the pool. A single distinct candidate is
// activated immediately without a second call.
func GetSelectAndConfigureTool(deps *Deps) *ToolDefinition[SelectAndConfigureInput, SelectAndConfigureOutput] {
	return NewToolDefinition[SelectAndConfigureInput, SelectAndConfigureOutput](
		"select_and_configure_database",
		"Discover database candidates and activate one: lists candidates when several exist, activates directly when exactly one is found.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SelectAndConfigureInput) (*mcp.CallToolResult, SelectAndConfigureOutput, error) {
			return selectAndConfigureHandler(ctx, input, deps)
		},
	)
}

func selectAndConfigureHandler(ctx context.Context, input SelectAndConfigureInput, deps *Deps) (*mcp.CallToolResult, SelectAndConfigureOutput, error) {
	dir := input.Directory
	if dir == "" {
		dir = deps.Config().ProjectDir
	}

	candidates, err := discovery.NewScanner(dir, deps.Logger()).Scan()
	if err != nil {
		return nil, SelectAndConfigureOutput{}, fmt.Errorf("scan %s: %w", dir, err)
	}

	selector := discovery.Selector(nil)
	if input.Selection > 0 {
		selector = func(ctx context.Context, distinct []discovery.Candidate) (int, error) {
			if input.Selection > len(distinct) {
				return 0, fmt.Errorf("selection %d out of range: %d candidates", input.Selection, len(distinct))
			}
			return input.Selection - 1, nil
		}
	}

	resolver := discovery.NewResolver(discovery.NewEnvFile(deps.Config().ProjectDir), selector, deps.Logger())
	chosen, err := resolver.Resolve(ctx, candidates)
	if err != nil {
		// More than one candidate and no selection yet: report the options
		// instead of failing.
		var ambErr *dberrors.AmbiguousConfigurationError
		if errors.As(err, &ambErr) {
			distinct := discovery.Deduplicate(candidates)
			return jsonResult(SelectAndConfigureOutput{
				Candidates: candidateInfos(distinct),
				Message:    fmt.Sprintf("%d distinct candidates found; call again with selection set to 1-%d", len(distinct), len(distinct)),
			})
		}
		return nil, SelectAndConfigureOutput{}, err
	}

	config.LoadProjectEnv(deps.Config().ProjectDir, true)
	deps.Reconfigure(chosen.Config.ConnString())

	info := CandidateInfo{
		URI:        chosen.Config.Redacted(),
		Source:     chosen.Source,
		Format:     string(chosen.Format),
		Confidence: chosen.Confidence,
	}
	return jsonResult(SelectAndConfigureOutput{
		Selected: &info,
		Message:  fmt.Sprintf("activated %s from %s", info.URI, info.Source),
	})
}

type GetWorkingDirectoryInput struct{}

type GetWorkingDirectoryOutput struct {
	ProjectDir string `json:"project_dir" jsonschema_description:"Directory used for discovery scans and the .env file"`
	EnvFile    string `json:"env_file" jsonschema_description:"Path of the project .env file"`
}

func GetWorkingDirectoryTool(deps *Deps) *ToolDefinition[GetWorkingDirectoryInput, GetWorkingDirectoryOutput] {
	return NewToolDefinition[GetWorkingDirectoryInput, GetWorkingDirectoryOutput](
		"get_working_directory",
		"Report the project directory used for configuration discovery.",
		func(ctx context.Context, req *mcp.CallToolRequest, input GetWorkingDirectoryInput) (*mcp.CallToolResult, GetWorkingDirectoryOutput, error) {
			dir := deps.Config().ProjectDir
			return jsonResult(GetWorkingDirectoryOutput{
				ProjectDir: dir,
				EnvFile:    discovery.NewEnvFile(dir).Path(),
			})
		},
	)
}
