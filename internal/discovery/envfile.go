package discovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sebcbi1/postgres-mcp/internal/config"
)

// EnvFile manages the project's .env file: backing it up before mutation and
// persisting the selected connection URI under the MCP_DATABASE key. Keys the
// file already carries are preserved verbatim by godotenv's read/write cycle.
type EnvFile struct {
	path string
}

func NewEnvFile(projectDir string) *EnvFile {
	return &EnvFile{path: filepath.Join(projectDir, ".env")}
}

// Path returns the .env file location, whether or not it exists yet.
func (f *EnvFile) Path() string {
	return f.path
}

// Backup copies the current .env to .env.bak. A missing .env is not an
// error: there is simply nothing to preserve.
func (f *EnvFile) Backup() (string, error) {
	content, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.path, err)
	}
	backup := f.path + ".bak"
	if err := os.WriteFile(backup, content, 0o600); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return backup, nil
}

// SetDatabaseURI backs up the existing file, then writes MCP_DATABASE=uri,
// keeping all other keys. The file is created if absent.
func (f *EnvFile) SetDatabaseURI(uri string) error {
	if _, err := f.Backup(); err != nil {
		return err
	}

	env, err := godotenv.Read(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", f.path, err)
		}
		env = make(map[string]string)
	}
	env[config.EnvKeyDatabase] = uri

	if err := godotenv.Write(env, f.path); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}
