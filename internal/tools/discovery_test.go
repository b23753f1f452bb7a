package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebcbi1/postgres-mcp/internal/config"
)

func newTestDeps(t *testing.T, projectDir string) *Deps {
	t.Helper()
	return NewDeps(&config.Config{
		ReadOnly:   true,
		PoolMin:    1,
		PoolMax:    2,
		ProjectDir: projectDir,
	}, nil)
}

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverConfigs_RedactsCredentials(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, ".env", "DATABASE_URL=postgres://app:supersecret@db:5432/prod\n")

	_, out, err := discoverConfigsHandler(DiscoverConfigsInput{}, newTestDeps(t, dir))
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.NotContains(t, out.Candidates[0].URI, "supersecret")
	assert.Contains(t, out.Candidates[0].URI, "db:5432/prod")
	assert.Equal(t, "dotenv", out.Candidates[0].Format)
}

func TestSelectAndConfigure_SingleCandidateActivatesDirectly(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, ".env", "DATABASE_URL=postgres://app:pw@solo:5432/only\n")
	deps := newTestDeps(t, dir)

	_, out, err := selectAndConfigureHandler(context.Background(), SelectAndConfigureInput{}, deps)
	require.NoError(t, err)
	require.NotNil(t, out.Selected)
	assert.NotContains(t, out.Selected.URI, "pw")

	assert.Equal(t, "postgres://app:pw@solo:5432/only", deps.Config().DatabaseURL,
		"active configuration switches to the chosen URI")

	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@solo:5432/only", env[config.EnvKeyDatabase])
}

func TestSelectAndConfigure_TwoPhaseSelection(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "a/.env", "DATABASE_URL=postgres://u@first:5432/db\n")
	writeProjectFile(t, dir, "b/.env", "DATABASE_URL=postgres://u@second:5432/db\n")
	deps := newTestDeps(t, dir)

	// Phase one: no selection yet, the candidates come back for review.
	_, out, err := selectAndConfigureHandler(context.Background(), SelectAndConfigureInput{}, deps)
	require.NoError(t, err)
	assert.Nil(t, out.Selected)
	require.Len(t, out.Candidates, 2)
	assert.Empty(t, deps.Config().DatabaseURL, "nothing activates until a selection is made")

	// Phase two: pick the second candidate.
	_, out, err = selectAndConfigureHandler(context.Background(), SelectAndConfigureInput{Selection: 2}, deps)
	require.NoError(t, err)
	require.NotNil(t, out.Selected)
	assert.NotEmpty(t, deps.Config().DatabaseURL)
}

func TestSelectAndConfigure_SelectionOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "a/.env", "DATABASE_URL=postgres://u@first:5432/db\n")
	writeProjectFile(t, dir, "b/.env", "DATABASE_URL=postgres://u@second:5432/db\n")

	_, _, err := selectAndConfigureHandler(context.Background(),
		SelectAndConfigureInput{Selection: 9}, newTestDeps(t, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestSetupConfig_PersistsAndReconfigures(t *testing.T) {
	dir := t.TempDir()
	deps := newTestDeps(t, dir)

	_, out, err := setupConfigHandler(SetupConfigInput{URI: "postgres://svc:pw@new:5432/db"}, deps)
	require.NoError(t, err)
	assert.NotContains(t, out.URI, "pw")
	assert.Equal(t, filepath.Join(dir, ".env"), out.EnvFile)
	assert.Equal(t, "postgres://svc:pw@new:5432/db", deps.Config().DatabaseURL)
}

func TestSetupConfig_RejectsInvalidURI(t *testing.T) {
	_, _, err := setupConfigHandler(SetupConfigInput{URI: "mysql://u@h/db"}, newTestDeps(t, t.TempDir()))
	require.Error(t, err)
}
